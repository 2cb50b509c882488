package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tgrelay/internal/files"
	"tgrelay/internal/janitor"
)

func cleanupCmd() *cobra.Command {
	var (
		archiveDir string
		sessionDir string
		maxAge     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "cleanup [path...]",
		Short: "Run one cleanup sweep and delete the given files",
		Long: `Prunes archived attachments older than max_age, removes session files
and deletes any paths given as arguments. Flags override the files
section of the config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := cliLogger()
			cfg, err := loadConfig(log, true)
			if err != nil {
				return err
			}
			jcfg, err := cfg.Files.Janitor()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("archive-dir") {
				jcfg.ArchiveDir = archiveDir
			}
			if cmd.Flags().Changed("session-dir") {
				jcfg.SessionDir = sessionDir
			}
			if cmd.Flags().Changed("max-age") {
				jcfg.MaxAge = maxAge
			}
			jan, err := janitor.New(jcfg, log, nil)
			if err != nil {
				return err
			}
			res, err := jan.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			if err := files.Cleanup(log, args...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d archived files, %d session files, %d paths\n", res.Pruned, res.Sessions, len(args))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&archiveDir, "archive-dir", "", "directory of archived attachments")
	f.StringVar(&sessionDir, "session-dir", "", "directory holding *.session files")
	f.DurationVar(&maxAge, "max-age", 0, "prune archived files older than this")
	return cmd
}
