package transform

import (
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

// ActionKind is what a replacement string means for a given call.
type ActionKind int

const (
	ActionLiteral  ActionKind = iota // substitute the text as-is
	ActionStyle                      // wrap every match with a style
	ActionTemplate                   // regex substitution with group references
)

func (k ActionKind) String() string {
	switch k {
	case ActionStyle:
		return "style"
	case ActionTemplate:
		return "template"
	default:
		return "literal"
	}
}

// Action is the resolved form of a replacement argument.
type Action struct {
	Kind     ActionKind
	Text     string // literal text or template
	Style    Style
	StyleKey string
}

// ResolveAction decides once, up front, how replacement is to be applied.
// Style keys only take effect for regex rules.
func ResolveAction(replacement string, regex bool, styles StyleTable) Action {
	if !regex {
		return Action{Kind: ActionLiteral, Text: replacement}
	}
	if st, ok := styles.Lookup(replacement); ok {
		return Action{Kind: ActionStyle, Style: st, StyleKey: replacement}
	}
	return Action{Kind: ActionTemplate, Text: translateTemplate(replacement)}
}

// Match reports whether pattern occurs in subject, as a literal substring
// or, when regex is set, as at least one regular expression match.
func Match(pattern, subject string, regex bool) (bool, error) {
	if !regex {
		return strings.Contains(subject, pattern), nil
	}
	re, err := Compile(pattern)
	if err != nil {
		return false, err
	}
	return matchCompiled(re, pattern, subject)
}

func matchCompiled(re *regexp2.Regexp, pattern, subject string) (bool, error) {
	if !utf8.ValidString(subject) {
		return false, ErrInvalidUTF8
	}
	ok, err := re.MatchString(subject)
	if err != nil {
		return false, &PatternError{Pattern: pattern, Err: err}
	}
	return ok, nil
}

// Replace rewrites subject:
//   - literal: every non-overlapping occurrence of pattern, left to right;
//     an empty pattern leaves subject unchanged.
//   - regex with a style key: every match m becomes open+m+close.
//   - regex otherwise: substitution where replacement may reference groups.
//
// Regex rules reject subjects that are not valid UTF-8 with ErrInvalidUTF8.
func Replace(pattern, replacement, subject string, regex bool, styles StyleTable) (string, error) {
	act := ResolveAction(replacement, regex, styles)
	if act.Kind == ActionLiteral {
		return replaceLiteral(pattern, act.Text, subject), nil
	}
	re, err := Compile(pattern)
	if err != nil {
		return "", err
	}
	return replaceCompiled(re, pattern, act, subject, nil)
}

func replaceLiteral(pattern, replacement, subject string) string {
	if pattern == "" {
		return subject
	}
	return strings.ReplaceAll(subject, pattern, replacement)
}

// wrapFunc surrounds a styled match; nil means act.Style.Wrap.
type wrapFunc func(act Action, text string) string

func replaceCompiled(re *regexp2.Regexp, pattern string, act Action, subject string, wrap wrapFunc) (string, error) {
	if !utf8.ValidString(subject) {
		return "", ErrInvalidUTF8
	}
	var (
		out string
		err error
	)
	switch act.Kind {
	case ActionStyle:
		if wrap == nil {
			wrap = func(act Action, text string) string { return act.Style.Wrap(text) }
		}
		out, err = re.ReplaceFunc(subject, func(m regexp2.Match) string {
			return wrap(act, m.String())
		}, -1, -1)
	default:
		out, err = re.Replace(subject, act.Text, -1, -1)
	}
	if err != nil {
		return "", &PatternError{Pattern: pattern, Err: err}
	}
	return out, nil
}
