package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"tgrelay/internal/eventbus"
	"tgrelay/internal/files"
	"tgrelay/internal/observability"
	"tgrelay/internal/relay"
	"tgrelay/internal/relay/relaymock"
	"tgrelay/internal/storage"
	"tgrelay/internal/transform"
	logx "tgrelay/pkg/logx"
)

var dest = relay.Peer{ChatID: -100500, ThreadID: 3}

type fixture struct {
	svc    *Service
	client *relaymock.MockClient
	bus    eventbus.Bus
	store  storage.Store
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	client := relaymock.NewMockClient(ctrl)
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "relay.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	bus := eventbus.New()
	stamper := files.NewStamper(logx.Nop()).WithClock(func() time.Time {
		return time.Date(2024, 3, 5, 14, 7, 9, 123456000, time.UTC)
	})
	svc := New(cfg, Deps{Client: client, Log: logx.Nop(), Bus: bus, Store: st, Stamper: stamper})
	return &fixture{svc: svc, client: client, bus: bus, store: st}
}

func mustChain(t *testing.T, rules ...transform.Rule) *transform.Chain {
	t.Helper()
	c, err := transform.NewChain(rules, transform.DefaultStyleTable())
	require.NoError(t, err)
	return c
}

func TestSendRewritesAndDropsEntities(t *testing.T) {
	f := newFixture(t, Config{})
	f.svc.SetRules(mustChain(t, transform.Rule{Pattern: "colour", Replacement: "color"}), nil)

	f.client.EXPECT().
		SendMessage(gomock.Any(), dest, relay.Outgoing{Text: "my color"}).
		Return(relay.MessageRef{ChatID: dest.ChatID, MessageID: 9}, nil)

	res, err := f.svc.Send(context.Background(), Job{
		To:  dest,
		Msg: relay.Message{Text: "my colour", Entities: []relay.Entity{{Type: "bold", Offset: 3, Length: 6}}},
	})
	require.NoError(t, err)
	require.Equal(t, 9, res.Ref.MessageID)

	recs, err := f.store.RecentDeliveries(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.True(t, recs[0].Transformed)
	require.Equal(t, "none", recs[0].Class)
	require.Equal(t, 9, recs[0].MessageID)
}

func TestSendUnchangedTextKeepsEntities(t *testing.T) {
	f := newFixture(t, Config{})
	f.svc.SetRules(mustChain(t, transform.Rule{Pattern: "absent", Replacement: "x"}), nil)
	ents := []relay.Entity{{Type: "italic", Offset: 0, Length: 2}}

	f.client.EXPECT().
		SendMessage(gomock.Any(), dest, relay.Outgoing{Text: "hi", Entities: ents}).
		Return(relay.MessageRef{MessageID: 1}, nil)

	_, err := f.svc.Send(context.Background(), Job{To: dest, Msg: relay.Message{Text: "hi", Entities: ents}})
	require.NoError(t, err)
}

func TestSendFiltered(t *testing.T) {
	f := newFixture(t, Config{})
	filter, err := transform.NewFilter(nil, []transform.Rule{{Pattern: "spam"}})
	require.NoError(t, err)
	f.svc.SetRules(nil, filter)
	events, unsub := f.bus.Subscribe(4)
	defer unsub()

	_, err = f.svc.Send(context.Background(), Job{To: dest, Msg: relay.Message{Text: "buy spam now"}})
	require.ErrorIs(t, err, ErrFiltered)
	require.Equal(t, eventbus.TypeFiltered, (<-events).Type)
}

func TestSendPermissionFailureIsRecorded(t *testing.T) {
	f := newFixture(t, Config{})
	events, unsub := f.bus.Subscribe(4, "relay.failed")
	defer unsub()

	f.client.EXPECT().
		SendMessage(gomock.Any(), dest, gomock.Any()).
		Return(relay.MessageRef{}, relay.ErrWriteForbidden)

	_, err := f.svc.Send(context.Background(), Job{To: dest, Msg: relay.Message{Text: "x"}})
	require.Equal(t, relay.ClassPermissionDenied, relay.ClassOf(err))

	ev := <-events
	data, ok := ev.Data.(DeliveryEvent)
	require.True(t, ok)
	require.Equal(t, "permission_denied", data.Class)
	require.Equal(t, "primary", data.Stage)

	recs, err := f.store.RecentDeliveries(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "primary", recs[0].Stage)
	require.Equal(t, 1, recs[0].Attempts)
	require.NotEmpty(t, recs[0].Error)
}

func TestSendStampsLocalFile(t *testing.T) {
	f := newFixture(t, Config{Stamp: true})
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o600))
	events, unsub := f.bus.Subscribe(4, "relay.")
	defer unsub()

	media := &relay.Media{FileID: "D1", Kind: relay.MediaDocument, FileName: "report.pdf"}
	f.client.EXPECT().
		SendFile(gomock.Any(), dest, relay.Upload{Media: media}, gomock.Any()).
		Return(relay.MessageRef{MessageID: 4}, nil)

	_, err := f.svc.Send(context.Background(), Job{
		To:        dest,
		Msg:       relay.Message{File: media},
		LocalPath: path,
		Actor:     "alice smith",
	})
	require.NoError(t, err)

	want := filepath.Join(dir, "alice_smith_2024_03_05_14:07:09.123456_report.pdf")
	require.FileExists(t, want)
	require.NoFileExists(t, path)
	ev := <-events
	require.Equal(t, eventbus.TypeDelivered, ev.Type)
	require.Equal(t, want, ev.Data.(DeliveryEvent).Path)
}

func TestSeenWindowSuppressesDuplicates(t *testing.T) {
	f := newFixture(t, Config{SeenWindow: time.Hour})
	job := Job{To: dest, Msg: relay.Message{Source: relay.MessageRef{ChatID: -1, MessageID: 77}, Text: "once"}}

	f.client.EXPECT().SendMessage(gomock.Any(), dest, gomock.Any()).Return(relay.MessageRef{MessageID: 1}, nil).Times(1)

	_, err := f.svc.Send(context.Background(), job)
	require.NoError(t, err)
	_, err = f.svc.Send(context.Background(), job)
	require.ErrorIs(t, err, ErrDuplicate)

	// A fresh service sharing the store still remembers.
	again := New(Config{SeenWindow: time.Hour}, Deps{Client: f.client, Store: f.store})
	_, err = again.Send(context.Background(), job)
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestEnqueueRequiresStart(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.svc.Enqueue(context.Background(), Job{To: dest})
	require.ErrorIs(t, err, ErrStopped)
	require.ErrorIs(t, f.svc.Health(), ErrStopped)
}

func TestEnqueueDeliversAndStopDrains(t *testing.T) {
	f := newFixture(t, Config{Workers: 2})
	events, unsub := f.bus.Subscribe(16, eventbus.TypeDelivered, eventbus.TypeFallback)
	defer unsub()

	f.client.EXPECT().
		SendMessage(gomock.Any(), dest, gomock.Any()).
		Return(relay.MessageRef{MessageID: 1}, nil).
		Times(3)

	f.svc.Start(context.Background())
	require.NoError(t, f.svc.Health())
	for i := 0; i < 3; i++ {
		id, err := f.svc.Enqueue(context.Background(), Job{To: dest, Msg: relay.Message{Text: "m"}})
		require.NoError(t, err)
		require.NotEmpty(t, id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f.svc.Stop(ctx)
	require.Len(t, events, 3)

	_, err := f.svc.Enqueue(context.Background(), Job{To: dest})
	require.ErrorIs(t, err, ErrStopped)
}

func TestEnqueueQueueFull(t *testing.T) {
	f := newFixture(t, Config{Workers: 1, QueueSize: 1})
	started := make(chan struct{}, 1)
	release := make(chan struct{})

	f.client.EXPECT().
		SendMessage(gomock.Any(), dest, gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ relay.Peer, _ relay.Outgoing) (relay.MessageRef, error) {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
			return relay.MessageRef{MessageID: 1}, nil
		}).
		Times(2)

	f.svc.Start(context.Background())
	job := Job{To: dest, Msg: relay.Message{Text: "m"}}
	_, err := f.svc.Enqueue(context.Background(), job)
	require.NoError(t, err)
	<-started

	_, err = f.svc.Enqueue(context.Background(), job)
	require.NoError(t, err)
	_, err = f.svc.Enqueue(context.Background(), job)
	require.ErrorIs(t, err, ErrQueueFull)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f.svc.Stop(ctx)
}

func TestRecentDeliveriesWithoutStore(t *testing.T) {
	svc := New(Config{}, Deps{})
	_, err := svc.RecentDeliveries(context.Background(), 5)
	require.True(t, errors.Is(err, storage.ErrDisabled))
}

func TestSeenWindowHoldsKeyWhileInFlight(t *testing.T) {
	f := newFixture(t, Config{Workers: 2, SeenWindow: time.Minute})
	job := Job{To: relay.Peer{ChatID: 5}, Msg: relay.Message{Source: relay.MessageRef{ChatID: 1, MessageID: 9}, Text: "retry"}}

	f.client.EXPECT().
		SendMessage(gomock.Any(), job.To, gomock.Any()).
		DoAndReturn(func(context.Context, relay.Peer, relay.Outgoing) (relay.MessageRef, error) {
			time.Sleep(50 * time.Millisecond)
			return relay.MessageRef{MessageID: 1}, nil
		}).
		Times(1)

	f.svc.Start(context.Background())
	_, err := f.svc.Enqueue(context.Background(), job)
	require.NoError(t, err)
	_, err = f.svc.Enqueue(context.Background(), job)
	require.ErrorIs(t, err, ErrDuplicate)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f.svc.Stop(ctx)
}

func TestSeenWindowReleasedAfterFailure(t *testing.T) {
	f := newFixture(t, Config{SeenWindow: time.Minute})
	job := Job{To: dest, Msg: relay.Message{Source: relay.MessageRef{ChatID: 1, MessageID: 10}, Text: "x"}}

	gomock.InOrder(
		f.client.EXPECT().SendMessage(gomock.Any(), dest, gomock.Any()).Return(relay.MessageRef{}, relay.ErrWriteForbidden),
		f.client.EXPECT().SendMessage(gomock.Any(), dest, gomock.Any()).Return(relay.MessageRef{MessageID: 2}, nil),
	)

	_, err := f.svc.Send(context.Background(), job)
	require.Error(t, err)
	_, err = f.svc.Send(context.Background(), job)
	require.NoError(t, err)
	_, err = f.svc.Send(context.Background(), job)
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestArchiveSavesDownloadedAttachment(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, Config{Stamp: true, ArchiveDir: dir})
	media := &relay.Media{FileID: "D1", Kind: relay.MediaDocument, FileName: "report.pdf"}
	msg := relay.Message{File: media}

	f.client.EXPECT().SendFile(gomock.Any(), dest, relay.Upload{Media: media}, gomock.Any()).Return(relay.MessageRef{MessageID: 4}, nil)
	f.client.EXPECT().DownloadMedia(gomock.Any(), msg).Return([]byte("%PDF"), nil)

	_, err := f.svc.Send(context.Background(), Job{To: dest, Msg: msg, Actor: "bob"})
	require.NoError(t, err)

	want := filepath.Join(dir, "bob_2024_03_05_14:07:09.123456_report.pdf")
	b, err := os.ReadFile(want)
	require.NoError(t, err)
	require.Equal(t, "%PDF", string(b))
	require.NoFileExists(t, filepath.Join(dir, "report.pdf"))
}

func TestArchiveReusesFallbackBytes(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, Config{Stamp: true, ArchiveDir: dir})
	media := &relay.Media{FileID: "P1", Kind: relay.MediaPhoto}
	msg := relay.Message{File: media}

	gomock.InOrder(
		f.client.EXPECT().SendFile(gomock.Any(), dest, relay.Upload{Media: media}, gomock.Any()).Return(relay.MessageRef{}, errors.New("wrong file type")),
		f.client.EXPECT().DownloadMedia(gomock.Any(), msg).Return([]byte("jpeg"), nil).Times(1),
		f.client.EXPECT().SendFile(gomock.Any(), dest, relay.Upload{Data: []byte("jpeg")}, gomock.Any()).Return(relay.MessageRef{MessageID: 6}, nil),
	)

	res, err := f.svc.Send(context.Background(), Job{To: dest, Msg: msg})
	require.NoError(t, err)
	require.True(t, res.Fallback)
	require.FileExists(t, filepath.Join(dir, "tgrelay_2024_03_05_14:07:09.123456_P1"))
}

func counterValue(t *testing.T, m *observability.Metrics, name string) float64 {
	t.Helper()
	mfs, err := m.Registry().Gather()
	require.NoError(t, err)
	var v float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, mm := range mf.GetMetric() {
			v += mm.GetCounter().GetValue()
		}
	}
	return v
}

func TestFailedFallbackCountsAsFallback(t *testing.T) {
	m := observability.NewMetrics()
	ctrl := gomock.NewController(t)
	client := relaymock.NewMockClient(ctrl)
	svc := New(Config{CircuitTrip: -1}, Deps{Client: client, Metrics: m})

	client.EXPECT().SendMessage(gomock.Any(), dest, gomock.Any()).Return(relay.MessageRef{}, errors.New("flood")).Times(2)

	_, err := svc.Send(context.Background(), Job{To: dest, Msg: relay.Message{Text: "x"}})
	require.Equal(t, relay.ClassFallback, relay.ClassOf(err))
	require.Equal(t, 1.0, counterValue(t, m, "tgrelay_fallbacks_total"))
}

func TestStyledRewriteSendsHTML(t *testing.T) {
	f := newFixture(t, Config{})
	f.svc.SetRules(mustChain(t, transform.Rule{Pattern: "urgent", Replacement: "bold", Regex: true}), nil)

	f.client.EXPECT().
		SendMessage(gomock.Any(), dest, relay.Outgoing{Text: "this is <b>urgent</b> &amp; late", ParseMode: relay.ParseHTML}).
		Return(relay.MessageRef{MessageID: 3}, nil)

	_, err := f.svc.Send(context.Background(), Job{
		To:  dest,
		Msg: relay.Message{Text: "this is urgent & late", Entities: []relay.Entity{{Type: "italic", Offset: 0, Length: 4}}},
	})
	require.NoError(t, err)
}
