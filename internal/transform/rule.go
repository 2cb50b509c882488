package transform

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/samber/lo"
)

// Rule is one (pattern, replacement, regex) triple as authored in config.
type Rule struct {
	Pattern     string `json:"pattern" yaml:"pattern"`
	Replacement string `json:"replacement" yaml:"replacement"`
	Regex       bool   `json:"regex,omitempty" yaml:"regex,omitempty"`
}

func (r Rule) String() string {
	if r.Regex {
		return fmt.Sprintf("/%s/ -> %q", r.Pattern, r.Replacement)
	}
	return fmt.Sprintf("%q -> %q", r.Pattern, r.Replacement)
}

// CompiledRule is a Rule with its regex compiled and its action resolved.
type CompiledRule struct {
	Rule   Rule
	Action Action
	re     *regexp2.Regexp
}

// Compile validates the rule against styles.
func (r Rule) Compile(styles StyleTable) (*CompiledRule, error) {
	cr := &CompiledRule{Rule: r, Action: ResolveAction(r.Replacement, r.Regex, styles)}
	if r.Regex {
		re, err := Compile(r.Pattern)
		if err != nil {
			return nil, err
		}
		cr.re = re
	}
	return cr, nil
}

func (cr *CompiledRule) Match(subject string) (bool, error) {
	if cr.re == nil {
		return Match(cr.Rule.Pattern, subject, false)
	}
	return matchCompiled(cr.re, cr.Rule.Pattern, subject)
}

func (cr *CompiledRule) Apply(subject string) (string, error) {
	return cr.apply(subject, nil)
}

func (cr *CompiledRule) apply(subject string, wrap wrapFunc) (string, error) {
	if cr.re == nil {
		return replaceLiteral(cr.Rule.Pattern, cr.Action.Text, subject), nil
	}
	return replaceCompiled(cr.re, cr.Rule.Pattern, cr.Action, subject, wrap)
}

// Private-use runes bracket style placeholders while an HTML chain runs,
// so escaping can happen after every rule has seen the plain text.
const (
	markOpen  = '\uE000'
	markClose = '\uE001'
	markEnd   = '\uE002'
)

// Chain applies rules in order, each to the output of the previous one.
type Chain struct {
	rules []*CompiledRule

	html   bool
	marks  map[string][2]string
	unmark *strings.Replacer
}

// NewChain compiles every rule. The first invalid rule aborts with its index.
func NewChain(rules []Rule, styles StyleTable) (*Chain, error) {
	out := make([]*CompiledRule, 0, len(rules))
	for i, r := range rules {
		cr, err := r.Compile(styles)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		out = append(out, cr)
	}
	c := &Chain{rules: out, html: styles.HTML()}
	if c.html {
		c.marks = make(map[string][2]string, styles.Len())
		var pairs []string
		for i, name := range styles.Names() {
			st, _ := styles.Lookup(name)
			id := strconv.Itoa(i) + string(markEnd)
			begin, end := string(markOpen)+id, string(markClose)+id
			c.marks[name] = [2]string{begin, end}
			pairs = append(pairs, begin, st.Open, end, st.Close)
		}
		c.unmark = strings.NewReplacer(pairs...)
	}
	return c, nil
}

func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.rules)
}

// Rules returns the source rules of the chain.
func (c *Chain) Rules() []Rule {
	if c == nil {
		return nil
	}
	return lo.Map(c.rules, func(cr *CompiledRule, _ int) Rule { return cr.Rule })
}

// Apply runs subject through every rule. A nil chain is the identity.
func (c *Chain) Apply(subject string) (string, error) {
	if c == nil {
		return subject, nil
	}
	var err error
	for i, cr := range c.rules {
		subject, err = cr.Apply(subject)
		if err != nil {
			return "", fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return subject, nil
}

// Render is Apply for an endpoint that parses markup. When the style table
// is HTML and a style fired, the text around the markup is escaped and
// markup is true. Otherwise the result equals Apply.
func (c *Chain) Render(subject string) (out string, markup bool, err error) {
	if c == nil || !c.html {
		out, err = c.Apply(subject)
		return out, false, err
	}
	fired := false
	wrap := func(act Action, text string) string {
		fired = true
		m := c.marks[act.StyleKey]
		return m[0] + text + m[1]
	}
	for i, cr := range c.rules {
		subject, err = cr.apply(subject, wrap)
		if err != nil {
			return "", false, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	if !fired {
		return subject, false, nil
	}
	return c.unmark.Replace(html.EscapeString(subject)), true, nil
}
