package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"tgrelay/internal/transform"
)

type transformOptions struct {
	pattern     string
	replacement string
	regex       bool
	match       bool
}

func transformCmd() *cobra.Command {
	var o transformOptions
	cmd := &cobra.Command{
		Use:   "transform [text...]",
		Short: "Apply rewrite rules to text",
		Long: `Rewrites the given text (or stdin) with a single --pattern rule, or with
the rules and filters from the config file when no pattern is given.
With --match only reports whether the pattern occurs.`,
		Example: `  echo "my colour" | tgrelay transform --pattern colour --replacement color
  tgrelay transform --regex --pattern '\bimportant\b' --replacement bold "very important"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransform(cmd, args, o)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.pattern, "pattern", "p", "", "literal text or regular expression to find")
	f.StringVarP(&o.replacement, "replacement", "r", "", "replacement text, template, or style name")
	f.BoolVar(&o.regex, "regex", false, "treat --pattern as a regular expression")
	f.BoolVar(&o.match, "match", false, "only report whether --pattern matches")
	return cmd
}

func inputText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\n"), nil
}

func runTransform(cmd *cobra.Command, args []string, o transformOptions) error {
	text, err := inputText(cmd, args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if o.pattern != "" {
		if o.match {
			ok, err := transform.Match(o.pattern, text, o.regex)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, ok)
			return nil
		}
		cfg, err := loadConfig(cliLogger(), true)
		if err != nil {
			return err
		}
		styles, err := cfg.Transform.StyleTable()
		if err != nil {
			return err
		}
		res, err := transform.Replace(o.pattern, o.replacement, text, o.regex, styles)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, res)
		return nil
	}

	cfg, err := loadConfig(cliLogger(), false)
	if err != nil {
		return err
	}
	chain, filter, err := cfg.Transform.Compile()
	if err != nil {
		return err
	}
	if filter != nil {
		ok, err := filter.Allow(text)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.ErrOrStderr(), "message would be filtered")
			return nil
		}
	}
	res, err := chain.Apply(text)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, res)
	return nil
}
