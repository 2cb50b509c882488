package transform

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchLiteralEqualsContains(t *testing.T) {
	t.Parallel()
	cases := []struct{ pattern, subject string }{
		{"", ""},
		{"", "abc"},
		{"b", "abc"},
		{"abcd", "abc"},
		{"é", "café"},
		{"(", "a(b"},
		{"A", "abc"},
	}
	for _, c := range cases {
		got, err := Match(c.pattern, c.subject, false)
		require.NoError(t, err)
		require.Equal(t, strings.Contains(c.subject, c.pattern), got, "Match(%q, %q)", c.pattern, c.subject)
	}
}

func TestMatchRegex(t *testing.T) {
	t.Parallel()
	tests := []struct {
		pattern, subject string
		want             bool
	}{
		{`\d+`, "id42", true},
		{`\d+`, "none", false},
		{`^foo$`, "foo", true},
		{`(?i)HELLO`, "say hello", true},
		{`x*`, "abc", true},
		{`(?<=@)\w+`, "ping @alice", true},
	}
	for _, tt := range tests {
		got, err := Match(tt.pattern, tt.subject, true)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, "Match(%q, %q)", tt.pattern, tt.subject)
	}
}

func TestMatchMalformedRegexIsPatternError(t *testing.T) {
	t.Parallel()
	ok, err := Match(`(unclosed`, "anything", true)
	require.False(t, ok)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrPattern))

	var pe *PatternError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, `(unclosed`, pe.Pattern)
}

func TestReplace(t *testing.T) {
	t.Parallel()
	bold := NewStyleTable(map[string]Style{"bold": {Open: "**", Close: "**"}})
	tests := []struct {
		name                          string
		pattern, replacement, subject string
		regex                         bool
		styles                        StyleTable
		want                          string
	}{
		{name: "literal all", pattern: "a", replacement: "b", subject: "aaa", want: "bbb"},
		{name: "literal non overlapping", pattern: "aa", replacement: "b", subject: "aaa", want: "ba"},
		{name: "literal empty pattern", pattern: "", replacement: "X", subject: "abc", want: "abc"},
		{name: "literal ignores style keys", pattern: "ab", replacement: "bold", subject: "xaby", styles: bold, want: "xboldy"},
		{name: "style wrap", pattern: "ab", replacement: "bold", subject: "xaby", regex: true, styles: bold, want: "x**ab**y"},
		{name: "style wrap every match", pattern: `\d+`, replacement: "bold", subject: "1 and 22", regex: true, styles: bold, want: "**1** and **22**"},
		{name: "style wrap asymmetric", pattern: "hi", replacement: "tag", subject: "hi there", regex: true,
			styles: NewStyleTable(map[string]Style{"tag": {Open: "<b>", Close: "</b>"}}), want: "<b>hi</b> there"},
		{name: "backref dollar", pattern: `(\d+)`, replacement: "[$1]", subject: "id42", regex: true, want: "id[42]"},
		{name: "backref python", pattern: `(\d+)`, replacement: `[\1]`, subject: "id42", regex: true, want: "id[42]"},
		{name: "python template keeps dollars", pattern: `(\d+)`, replacement: `cost $$\1`, subject: "id 5", regex: true, want: "id cost $$5"},
		{name: "named group", pattern: `(?<n>\d+)`, replacement: `<\g<n>>`, subject: "id42", regex: true, want: "id<42>"},
		{name: "leftmost match wins", pattern: `a|ab`, replacement: "X", subject: "ab", regex: true, want: "Xb"},
		{name: "no match unchanged", pattern: `zzz`, replacement: "X", subject: "abc", regex: true, want: "abc"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := Replace(tt.pattern, tt.replacement, tt.subject, tt.regex, tt.styles)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestReplaceMalformedRegex(t *testing.T) {
	t.Parallel()
	_, err := Replace(`[a-`, "x", "abc", true, StyleTable{})
	require.ErrorIs(t, err, ErrPattern)
}

func TestResolveAction(t *testing.T) {
	t.Parallel()
	styles := DefaultStyleTable()
	require.Equal(t, ActionLiteral, ResolveAction("bold", false, styles).Kind)
	require.Equal(t, ActionStyle, ResolveAction("bold", true, styles).Kind)
	require.Equal(t, ActionTemplate, ResolveAction("$1", true, styles).Kind)
	require.Equal(t, "${1}", ResolveAction(`\1`, true, styles).Text)
}

func TestTranslateTemplate(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"plain":        "plain",
		`\1`:           "${1}",
		`\12x`:         "${12}x",
		`\g<word>!`:    "${word}!",
		`a\\b`:         `a\b`,
		`\n stays`:     `\n stays`,
		`trailing \`:   `trailing \`,
		`\g<unclosed`:  `\g<unclosed`,
		`$1 and \2 $$`: "$$1 and ${2} $$$$",
		`$1 \\ $$`:     `$1 \ $$`,
	}
	for in, want := range tests {
		require.Equal(t, want, translateTemplate(in), "translateTemplate(%q)", in)
	}
}

func TestConcurrentReplaceSharesStyleTable(t *testing.T) {
	t.Parallel()
	styles := DefaultStyleTable()
	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := Replace(`\bgo\b`, "code", "go fast, go far", true, styles)
			if err != nil {
				errs <- err
				return
			}
			if got != "<code>go</code> fast, <code>go</code> far" {
				errs <- errors.New("unexpected output: " + got)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestStyleTableFromPairs(t *testing.T) {
	t.Parallel()
	st, err := StyleTableFromPairs(map[string][]string{
		"bold": {"**"},
		"html": {"<i>", "</i>"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"bold", "html"}, st.Names())
	s, ok := st.Lookup("html")
	require.True(t, ok)
	require.Equal(t, "<i>x</i>", s.Wrap("x"))

	_, err = StyleTableFromPairs(map[string][]string{"bad": {"a", "b", "c"}})
	var se *StyleError
	require.ErrorAs(t, err, &se)
}

func TestRegexRejectsInvalidUTF8(t *testing.T) {
	t.Parallel()
	_, err := Replace("c", "X", "ab\xffcd", true, StyleTable{})
	require.ErrorIs(t, err, ErrInvalidUTF8)
	_, err = Match("c", "ab\xffcd", true)
	require.ErrorIs(t, err, ErrInvalidUTF8)

	got, err := Replace("c", "X", "ab\xffcd", false, StyleTable{})
	require.NoError(t, err)
	require.Equal(t, "ab\xffXd", got)
}

func TestDefaultStyleTableIsHTML(t *testing.T) {
	t.Parallel()
	st := DefaultStyleTable()
	require.True(t, st.HTML())
	bold, ok := st.Lookup("bold")
	require.True(t, ok)
	require.Equal(t, "<b>x</b>", bold.Wrap("x"))
	spoiler, _ := st.Lookup("spoiler")
	require.Equal(t, "<tg-spoiler>x</tg-spoiler>", spoiler.Wrap("x"))
	require.False(t, st.WithHTML(false).HTML())
}
