package transform

import (
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
)

const (
	// DefaultMatchTimeout bounds a single regex evaluation.
	DefaultMatchTimeout = 250 * time.Millisecond

	maxCachedPatterns = 512
)

// patternCache memoizes compiled expressions. Compiled regexp2 values are
// safe for concurrent use, so one instance is shared by all callers.
type patternCache struct {
	mu      sync.Mutex
	timeout time.Duration
	m       map[string]*regexp2.Regexp
}

var patterns = &patternCache{timeout: DefaultMatchTimeout, m: map[string]*regexp2.Regexp{}}

func (c *patternCache) compile(pattern string) (*regexp2.Regexp, error) {
	c.mu.Lock()
	re, ok := c.m[pattern]
	c.mu.Unlock()
	if ok {
		return re, nil
	}

	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, &PatternError{Pattern: pattern, Err: err}
	}
	re.MatchTimeout = c.timeout

	c.mu.Lock()
	if len(c.m) >= maxCachedPatterns {
		// Rule sets are small; a full cache means churn, so start over.
		c.m = make(map[string]*regexp2.Regexp, maxCachedPatterns)
	}
	c.m[pattern] = re
	c.mu.Unlock()
	return re, nil
}

// Compile validates pattern and returns its compiled form.
func Compile(pattern string) (*regexp2.Regexp, error) {
	return patterns.compile(pattern)
}

// translateTemplate accepts Python-style group references (\1, \g<name>)
// alongside the native $1 / ${name} syntax. A template that uses Python
// references follows Python rules throughout, so its '$' is literal.
func translateTemplate(tmpl string) string {
	if !strings.Contains(tmpl, `\`) {
		return tmpl
	}
	out, python := rewriteTemplate(tmpl, false)
	if python {
		out, _ = rewriteTemplate(tmpl, true)
	}
	return out
}

func rewriteTemplate(tmpl string, literalDollar bool) (string, bool) {
	var (
		b      strings.Builder
		python bool
	)
	b.Grow(len(tmpl) + 8)
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if c == '$' && literalDollar {
			b.WriteString("$$")
			continue
		}
		if c != '\\' || i+1 >= len(tmpl) {
			b.WriteByte(c)
			continue
		}
		next := tmpl[i+1]
		switch {
		case next == '\\':
			b.WriteByte('\\')
			i++
		case next >= '0' && next <= '9':
			j := i + 1
			for j < len(tmpl) && j < i+3 && tmpl[j] >= '0' && tmpl[j] <= '9' {
				j++
			}
			b.WriteString("${" + tmpl[i+1:j] + "}")
			i = j - 1
			python = true
		case next == 'g' && i+2 < len(tmpl) && tmpl[i+2] == '<':
			end := strings.IndexByte(tmpl[i+3:], '>')
			if end < 0 {
				b.WriteByte(c)
				continue
			}
			b.WriteString("${" + tmpl[i+3:i+3+end] + "}")
			i = i + 3 + end
			python = true
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), python
}
