package transform

import (
	"sort"
	"strings"
)

// Style is the markup placed around a matched span.
type Style struct {
	Open  string
	Close string
}

// Wrap returns s surrounded by the style markup.
func (s Style) Wrap(text string) string {
	return s.Open + text + s.Close
}

// StyleTable maps style names to markup. It is immutable once built and
// safe to share across goroutines.
type StyleTable struct {
	m    map[string]Style
	html bool
}

// NewStyleTable copies styles into a new table. Keys are used verbatim.
func NewStyleTable(styles map[string]Style) StyleTable {
	m := make(map[string]Style, len(styles))
	for k, v := range styles {
		m[k] = v
	}
	return StyleTable{m: m}
}

// StyleTableFromPairs builds a table from name -> [open, close] pairs, the
// shape used in config files. A single-element pair uses the same code on
// both sides.
func StyleTableFromPairs(pairs map[string][]string) (StyleTable, error) {
	m := make(map[string]Style, len(pairs))
	for name, p := range pairs {
		if strings.TrimSpace(name) == "" {
			return StyleTable{}, &StyleError{Name: name, Reason: "empty style name"}
		}
		switch len(p) {
		case 1:
			m[name] = Style{Open: p[0], Close: p[0]}
		case 2:
			m[name] = Style{Open: p[0], Close: p[1]}
		default:
			return StyleTable{}, &StyleError{Name: name, Reason: "want 1 or 2 markup codes"}
		}
	}
	return StyleTable{m: m}, nil
}

// DefaultStyleTable returns a fresh table of Telegram HTML styles.
func DefaultStyleTable() StyleTable {
	return NewStyleTable(map[string]Style{
		"bold":      {Open: "<b>", Close: "</b>"},
		"italic":    {Open: "<i>", Close: "</i>"},
		"underline": {Open: "<u>", Close: "</u>"},
		"code":      {Open: "<code>", Close: "</code>"},
		"strike":    {Open: "<s>", Close: "</s>"},
		"spoiler":   {Open: "<tg-spoiler>", Close: "</tg-spoiler>"},
		"plain":     {},
	}).WithHTML(true)
}

// WithHTML returns a copy of t whose markup is HTML. Chain.Render escapes
// the text around HTML markup and asks for HTML parsing.
func (t StyleTable) WithHTML(on bool) StyleTable {
	t.html = on
	return t
}

func (t StyleTable) HTML() bool { return t.html }

func (t StyleTable) Lookup(name string) (Style, bool) {
	s, ok := t.m[name]
	return s, ok
}

func (t StyleTable) Len() int { return len(t.m) }

// Names returns the style names in sorted order.
func (t StyleTable) Names() []string {
	out := make([]string, 0, len(t.m))
	for k := range t.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
