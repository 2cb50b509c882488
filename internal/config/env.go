package config

import (
	"errors"
	"os"
	"strings"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// envOverrides lists the settings that may come from the environment.
// Secrets belong here rather than in the config file.
type envOverrides struct {
	Token         string `env:"TGRELAY_TOKEN"`
	APIURL        string `env:"TGRELAY_API_URL"`
	LogLevel      string `env:"TGRELAY_LOG_LEVEL"`
	MetricsAddr   string `env:"TGRELAY_METRICS_ADDR"`
	StorageDriver string `env:"TGRELAY_STORAGE_DRIVER"`
	StoragePath   string `env:"TGRELAY_STORAGE_PATH"`
	ArchiveDir    string `env:"TGRELAY_ARCHIVE_DIR"`
	IngestToken   string `env:"TGRELAY_INGEST_TOKEN"`
}

// LoadDotEnv reads KEY=VALUE pairs from the given files into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv overlays non-empty TGRELAY_* variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	var o envOverrides
	if _, err := env.UnmarshalFromEnviron(&o); err != nil {
		return err
	}
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.Telegram.Token, o.Token)
	set(&cfg.Telegram.APIURL, o.APIURL)
	set(&cfg.Logging.Level, o.LogLevel)
	set(&cfg.Metrics.Addr, o.MetricsAddr)
	set(&cfg.Files.ArchiveDir, o.ArchiveDir)
	set(&cfg.Ingest.Token, o.IngestToken)
	if strings.TrimSpace(o.StorageDriver) != "" || strings.TrimSpace(o.StoragePath) != "" {
		if cfg.Storage == nil {
			cfg.Storage = &StorageConfig{}
		}
		set(&cfg.Storage.Driver, o.StorageDriver)
		set(&cfg.Storage.Path, o.StoragePath)
	}
	return nil
}
