package service

import (
	"context"
	"errors"

	"github.com/samber/lo"

	"tgrelay/internal/relay"
	logx "tgrelay/pkg/logx"
)

// indexRoutes merges routes by source chat. Duplicate peers and routes back
// into the source chat itself are dropped.
func indexRoutes(routes []Route) map[int64][]relay.Peer {
	idx := make(map[int64][]relay.Peer, len(routes))
	for _, r := range routes {
		for _, to := range r.To {
			if to.ChatID == 0 || to.ChatID == r.From {
				continue
			}
			idx[r.From] = append(idx[r.From], to)
		}
	}
	for from, peers := range idx {
		idx[from] = lo.Uniq(peers)
	}
	return idx
}

// Destinations returns the peers routed from chat.
func (s *Service) Destinations(chat int64) []relay.Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]relay.Peer(nil), s.routes[chat]...)
}

// Relay enqueues msg for every destination routed from its source chat and
// returns the accepted job ids. Filtered and duplicate messages are skipped
// quietly; other enqueue failures are joined into the error.
func (s *Service) Relay(ctx context.Context, msg relay.Message, actor string) ([]string, error) {
	peers := s.Destinations(msg.Source.ChatID)
	if len(peers) == 0 {
		return nil, nil
	}
	var (
		ids  []string
		errs []error
	)
	for _, to := range peers {
		id, err := s.Enqueue(ctx, Job{To: to, Msg: msg, Actor: actor})
		switch {
		case err == nil:
			ids = append(ids, id)
		case errors.Is(err, ErrFiltered), errors.Is(err, ErrDuplicate):
			s.log.Debug("relay skipped",
				logx.Int64("from", msg.Source.ChatID),
				logx.Int64("to", to.ChatID),
				logx.Err(err))
		default:
			errs = append(errs, err)
		}
	}
	return ids, errors.Join(errs...)
}
