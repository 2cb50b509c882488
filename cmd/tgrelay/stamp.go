package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tgrelay/internal/files"
)

func stampCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "stamp <path>...",
		Short: "Rename files to \"<actor> <time> <name>\" with unsafe characters replaced",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := files.NewStamper(cliLogger())
			for _, p := range args {
				out, err := st.Stamp(p, actor)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "name of the sender")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}
