package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"tgrelay/internal/config"
	logx "tgrelay/pkg/logx"
)

var (
	version    = "dev"
	configPath string
	envFiles   []string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:          "tgrelay",
		Short:        "Relay Telegram messages between chats with rewrite rules",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(envFiles...)
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "./tgrelay.yaml", "path to config (.yaml, .yml or .json)")
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before the config")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level for one-shot commands")

	root.AddCommand(serveCmd())
	root.AddCommand(sendCmd())
	root.AddCommand(transformCmd())
	root.AddCommand(stampCmd())
	root.AddCommand(cleanupCmd())
	root.AddCommand(infoCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads and validates --config. With optional set, a missing
// file yields an empty config with env overrides applied.
func loadConfig(log logx.Logger, optional bool) (*config.Config, error) {
	cfg, err := config.NewManager(configPath, log).Load()
	if err == nil {
		return cfg, nil
	}
	if !optional || !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	cfg = &config.Config{}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, config.Validate(cfg)
}

func cliLogger() logx.Logger {
	return logx.NewConsole(logLevel)
}
