// Package transform rewrites message text.
//
// Match and Replace evaluate a pattern as a literal substring or as a
// regular expression (Perl/Python dialect, see github.com/dlclark/regexp2).
// For regex rules, a replacement naming a style in the StyleTable wraps every
// match with that style's markup; any other replacement is a substitution
// template that may reference capture groups ($1, ${name}, \1, \g<name>).
//
// Malformed or runaway expressions are reported as *PatternError, never as
// "no match".
package transform
