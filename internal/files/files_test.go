package files

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "tgrelay/pkg/logx"

	"github.com/stretchr/testify/require"
)

const forbidden = "-!@#$%^&*() \t\n"

func TestSafeName(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"", ""},
		{"plain.txt", "plain.txt"},
		{"my file (1).jpg", "my_file__1_.jpg"},
		{"a-b!c@d#e$f%g^h&i*j", "a_b_c_d_e_f_g_h_i_j"},
		{"tab\tnew\nline", "tab_new_line"},
		{"ünïcödé ok", "ünïcödé_ok"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, SafeName(tt.in), "SafeName(%q)", tt.in)
	}
}

func TestSafeNameIdempotentAndClean(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"", "x", "-", "((()))", "user 2024-01-01 10:00:00.000000 photo.jpg",
		"  leading and trailing  ", "!@#$%^&*()_+=", "mixé space",
	}
	for _, in := range inputs {
		once := SafeName(in)
		require.Equal(t, once, SafeName(once), "not idempotent for %q", in)
		require.False(t, strings.ContainsAny(once, forbidden), "SafeName(%q) = %q still has forbidden chars", in, once)
	}
}

func TestStampRenamesFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))

	at := time.Date(2024, 3, 5, 14, 7, 9, 123456000, time.UTC)
	st := NewStamper(logx.Nop()).WithClock(func() time.Time { return at })

	out, err := st.Stamp(src, "alice smith")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "alice_smith_2024_03_05_14:07:09.123456_report.pdf"), out)

	_, err = os.Stat(src)
	require.True(t, os.IsNotExist(err))
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "data", string(b))
}

func TestStampMissingFileWarnsAndKeepsPath(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	st := NewStamper(logx.NewWriter(&buf, "debug"))
	missing := filepath.Join(t.TempDir(), "gone.bin")

	out, err := st.Stamp(missing, "bob")
	require.Error(t, err)
	require.Equal(t, missing, out)
	require.Contains(t, buf.String(), "stamping file name failed")
	require.Contains(t, buf.String(), `"level":"warn"`)
}

func TestCleanup(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a := filepath.Join(dir, "a.tmp")
	require.NoError(t, os.WriteFile(a, nil, 0o644))

	var buf bytes.Buffer
	err := Cleanup(logx.NewWriter(&buf, "debug"), a, filepath.Join(dir, "missing.tmp"))
	require.NoError(t, err)
	_, statErr := os.Stat(a)
	require.True(t, os.IsNotExist(statErr))
	require.Contains(t, buf.String(), "does not exist")
}

func TestCleanSessionFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for _, name := range []string{"bot.session", "bot.session-journal", "keep.txt", "session.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.session"), 0o755))

	n, err := CleanSessionFiles(logx.Nop(), dir)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(left))
	for _, e := range left {
		names = append(names, e.Name())
	}
	require.ElementsMatch(t, []string{"keep.txt", "session.txt", "dir.session"}, names)
}

func TestPrune(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	now := time.Now()
	oldPath := filepath.Join(dir, "old.jpg")
	newPath := filepath.Join(dir, "new.jpg")
	require.NoError(t, os.WriteFile(oldPath, nil, 0o644))
	require.NoError(t, os.WriteFile(newPath, nil, 0o644))
	require.NoError(t, os.Chtimes(oldPath, now.Add(-48*time.Hour), now.Add(-48*time.Hour)))

	n, err := Prune(logx.Nop(), dir, 24*time.Hour, now)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, err = os.Stat(newPath)
	require.NoError(t, err)

	n, err = Prune(logx.Nop(), dir, 0, now)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSaveSanitizesName(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archive")

	path, err := Save(dir, "../my report (1).pdf", []byte("%PDF"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "my_report__1_.pdf"), path)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "%PDF", string(b))

	_, err = Save(dir, "  ", nil)
	require.Error(t, err)
}
