// Package files normalizes and archives attachment files on local disk.
package files

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	logx "tgrelay/pkg/logx"
)

// StampLayout is the timestamp embedded by Stamp before sanitizing.
const StampLayout = "2006-01-02 15:04:05.000000"

const unsafeChars = "-!@#$%^&*()"

// SafeName replaces whitespace and - ! @ # $ % ^ & * ( ) with underscores.
func SafeName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || strings.ContainsRune(unsafeChars, r) {
			return '_'
		}
		return r
	}, name)
}

// Stamper renames files so their names carry who sent them and when.
type Stamper struct {
	log logx.Logger
	now func() time.Time
}

func NewStamper(log logx.Logger) *Stamper {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Stamper{log: log.Component("files"), now: time.Now}
}

// WithClock returns a copy of s that reads time from now.
func (s *Stamper) WithClock(now func() time.Time) *Stamper {
	cp := *s
	cp.now = now
	return &cp
}

// StampedName is the name Stamp would give to base for actor at t.
func StampedName(base, actor string, t time.Time) string {
	return SafeName(actor + " " + t.Format(StampLayout) + " " + base)
}

// Stamp moves path to a sanitized "<actor> <time> <name>" sibling and returns
// the new path. On failure the file is left alone, a warning is logged and
// the original path is returned together with the error.
func (s *Stamper) Stamp(path, actor string) (string, error) {
	dir, base := filepath.Split(path)
	out := filepath.Join(dir, StampedName(base, actor, s.now()))
	if err := os.Rename(path, out); err != nil {
		s.log.Warn("stamping file name failed", logx.String("from", path), logx.String("to", out), logx.Err(err))
		return path, err
	}
	return out, nil
}

// Save writes data to dir under the sanitized name and returns the path.
// An existing file of the same name is replaced.
func Save(dir, name string, data []byte) (string, error) {
	name = SafeName(filepath.Base(strings.TrimSpace(name)))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", errors.New("files: empty file name")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Cleanup deletes the given files. Missing files are logged and skipped;
// the first other failure is returned after every path has been tried.
func Cleanup(log logx.Logger, paths ...string) error {
	var first error
	for _, p := range paths {
		err := os.Remove(p)
		switch {
		case err == nil:
		case errors.Is(err, fs.ErrNotExist):
			log.Info("file does not exist, so can't delete it", logx.String("path", p))
		default:
			log.Warn("delete failed", logx.String("path", p), logx.Err(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// SessionSuffixes are the endpoint session files removed by CleanSessionFiles.
var SessionSuffixes = []string{".session", ".session-journal"}

// CleanSessionFiles removes session files directly under dir and returns
// how many were deleted.
func CleanSessionFiles(log logx.Logger, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !isSessionFile(e.Name()) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if err := os.Remove(p); err != nil {
			log.Warn("session file delete failed", logx.String("path", p), logx.Err(err))
			continue
		}
		n++
	}
	return n, nil
}

func isSessionFile(name string) bool {
	for _, suf := range SessionSuffixes {
		if strings.HasSuffix(name, suf) {
			return true
		}
	}
	return false
}

// Prune removes regular files under dir (not recursive) whose modification
// time is older than maxAge relative to now. It returns how many were removed.
func Prune(log logx.Logger, dir string, maxAge time.Duration, now time.Time) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	cutoff := now.Add(-maxAge)
	n := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if err := os.Remove(p); err != nil {
			log.Warn("prune failed", logx.String("path", p), logx.Err(err))
			continue
		}
		n++
	}
	return n, nil
}
