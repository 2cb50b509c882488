package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"tgrelay/internal/janitor"
)

var validate = validator.New()

// Validate checks struct tags, then everything that only fails at runtime:
// durations, the cron spec, style pairs and rule patterns.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return err
	}

	var errs []error
	if _, err := cfg.Telegram.Client(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.Relay.Service(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.Files.Janitor(); err != nil {
		errs = append(errs, err)
	}
	if _, err := janitor.ParseSchedule(cfg.Files.CleanupSchedule); err != nil {
		errs = append(errs, fmt.Errorf("files.cleanup_schedule: %w", err))
	}
	if st, err := cfg.StorageOptions(); err != nil {
		errs = append(errs, err)
	} else if d := strings.ToLower(strings.TrimSpace(st.Driver)); d != "" && d != "none" && strings.TrimSpace(st.Path) == "" {
		errs = append(errs, fmt.Errorf("storage.path is required for driver %q", st.Driver))
	}
	if _, _, err := cfg.Transform.Compile(); err != nil {
		errs = append(errs, fmt.Errorf("transform: %w", err))
	}
	return errors.Join(errs...)
}
