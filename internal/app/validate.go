package app

import (
	"fmt"
	"net"

	"annotated/pkg/config"
)

func validateConfig(eff config.EffectiveConfigResult) error {
	if eff.StorePath == "" {
		return fmt.Errorf("store path must not be empty")
	}
	if _, _, err := net.SplitHostPort(eff.Addr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", eff.Addr, err)
	}
	cfg := eff.Config
	if cfg.Limits.RPS < 0 || cfg.Limits.Burst < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	if cfg.Sync.Interval.Std() < 0 {
		return fmt.Errorf("sync interval must not be negative")
	}
	if cfg.Watch.PollInterval.Std() < 0 || cfg.Watch.AnnotationTimeout.Std() < 0 || cfg.Watch.DiffTimeout.Std() < 0 {
		return fmt.Errorf("watch intervals must not be negative")
	}
	return nil
}
