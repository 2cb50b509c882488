package transform

import (
	"fmt"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

// Filter gates messages by text. A message passes when it matches no
// blacklist rule and, if a whitelist is set, at least one whitelist rule.
type Filter struct {
	white *ruleSet
	black *ruleSet
}

// NewFilter compiles both lists. Only Pattern and Regex are used.
func NewFilter(whitelist, blacklist []Rule) (*Filter, error) {
	w, err := newRuleSet(whitelist)
	if err != nil {
		return nil, fmt.Errorf("whitelist: %w", err)
	}
	b, err := newRuleSet(blacklist)
	if err != nil {
		return nil, fmt.Errorf("blacklist: %w", err)
	}
	return &Filter{white: w, black: b}, nil
}

// Allow reports whether text passes the filter. A nil filter allows everything.
func (f *Filter) Allow(text string) (bool, error) {
	if f == nil {
		return true, nil
	}
	hit, err := f.black.any(text)
	if err != nil || hit {
		return false, err
	}
	if f.white.empty() {
		return true, nil
	}
	return f.white.any(text)
}

// ruleSet answers "does any rule match" with one automaton pass for the
// literal keywords and one regex evaluation per regex rule.
type ruleSet struct {
	machine      *goahocorasick.Machine
	emptyLiteral bool
	regex        []*CompiledRule
	size         int
}

func newRuleSet(rules []Rule) (*ruleSet, error) {
	rs := &ruleSet{size: len(rules)}
	literals := lo.Uniq(lo.FilterMap(rules, func(r Rule, _ int) (string, bool) {
		return r.Pattern, !r.Regex
	}))
	for _, r := range rules {
		if !r.Regex {
			continue
		}
		cr, err := r.Compile(StyleTable{})
		if err != nil {
			return nil, err
		}
		rs.regex = append(rs.regex, cr)
	}

	keywords := make([][]rune, 0, len(literals))
	for _, l := range literals {
		if l == "" {
			// "" is a substring of every string.
			rs.emptyLiteral = true
			continue
		}
		keywords = append(keywords, []rune(l))
	}
	if len(keywords) > 0 {
		m := new(goahocorasick.Machine)
		if err := m.Build(keywords); err != nil {
			return nil, fmt.Errorf("build keyword automaton: %w", err)
		}
		rs.machine = m
	}
	return rs, nil
}

func (rs *ruleSet) empty() bool { return rs == nil || rs.size == 0 }

func (rs *ruleSet) any(text string) (bool, error) {
	if rs.empty() {
		return false, nil
	}
	if rs.emptyLiteral {
		return true, nil
	}
	if rs.machine != nil && len(rs.machine.MultiPatternSearch([]rune(text), true)) > 0 {
		return true, nil
	}
	for _, cr := range rs.regex {
		ok, err := cr.Match(text)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}
