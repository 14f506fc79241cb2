package outcall

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds configuration for the orchestration core.
type Config struct {
	// MaxRetries is the number of retries after the initial attempt.
	// A value of N yields N+1 total attempts.
	MaxRetries int

	// OuterTimeout bounds the whole operation regardless of how many
	// attempts are consumed.
	OuterTimeout time.Duration

	// PerAttemptTimeout bounds a single provider call. It should be
	// shorter than OuterTimeout.
	PerAttemptTimeout time.Duration

	// BackoffSchedule is the ordered list of delays between attempts.
	// It must be at least MaxRetries long; attempts beyond its length
	// reuse the last delay.
	BackoffSchedule []time.Duration

	// CacheTTL is how long computed artifacts stay valid in the cache.
	CacheTTL time.Duration

	// SweepInterval is how often the correlation manager scans for
	// waiters whose deadline timer failed to fire.
	SweepInterval time.Duration

	// SweepGrace is how far past its deadline a waiter may live before
	// the sweep force-fails it.
	SweepGrace time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		OuterTimeout:      10 * time.Minute,
		PerAttemptTimeout: 2 * time.Minute,
		BackoffSchedule:   []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
		CacheTTL:          24 * time.Hour,
		SweepInterval:     30 * time.Second,
		SweepGrace:        5 * time.Second,
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must be >= 0, got %d", ErrInvalidInput, c.MaxRetries)
	}
	if c.OuterTimeout <= 0 {
		return fmt.Errorf("%w: outer timeout must be positive, got %v", ErrInvalidInput, c.OuterTimeout)
	}
	if c.PerAttemptTimeout <= 0 {
		return fmt.Errorf("%w: per-attempt timeout must be positive, got %v", ErrInvalidInput, c.PerAttemptTimeout)
	}
	if len(c.BackoffSchedule) < c.MaxRetries {
		return fmt.Errorf("%w: backoff schedule has %d entries, need at least %d",
			ErrInvalidInput, len(c.BackoffSchedule), c.MaxRetries)
	}
	return nil
}

// fileConfig mirrors Config with millisecond integer fields so TOML files
// stay plain numbers rather than Go duration strings.
type fileConfig struct {
	MaxRetries          *int    `toml:"max_retries"`
	OuterTimeoutMs      *int64  `toml:"outer_timeout_ms"`
	PerAttemptTimeoutMs *int64  `toml:"per_attempt_timeout_ms"`
	BackoffScheduleMs   []int64 `toml:"backoff_schedule_ms"`
	CacheTTLMs          *int64  `toml:"cache_ttl_ms"`
	SweepIntervalMs     *int64  `toml:"sweep_interval_ms"`
	SweepGraceMs        *int64  `toml:"sweep_grace_ms"`
}

// LoadConfig reads a TOML configuration file and overlays it on
// DefaultConfig. Fields absent from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return Config{}, fmt.Errorf("outcall: load config %q: %w", path, err)
	}

	if fc.MaxRetries != nil {
		cfg.MaxRetries = *fc.MaxRetries
	}
	if fc.OuterTimeoutMs != nil {
		cfg.OuterTimeout = time.Duration(*fc.OuterTimeoutMs) * time.Millisecond
	}
	if fc.PerAttemptTimeoutMs != nil {
		cfg.PerAttemptTimeout = time.Duration(*fc.PerAttemptTimeoutMs) * time.Millisecond
	}
	if len(fc.BackoffScheduleMs) > 0 {
		schedule := make([]time.Duration, len(fc.BackoffScheduleMs))
		for i, ms := range fc.BackoffScheduleMs {
			schedule[i] = time.Duration(ms) * time.Millisecond
		}
		cfg.BackoffSchedule = schedule
	}
	if fc.CacheTTLMs != nil {
		cfg.CacheTTL = time.Duration(*fc.CacheTTLMs) * time.Millisecond
	}
	if fc.SweepIntervalMs != nil {
		cfg.SweepInterval = time.Duration(*fc.SweepIntervalMs) * time.Millisecond
	}
	if fc.SweepGraceMs != nil {
		cfg.SweepGrace = time.Duration(*fc.SweepGraceMs) * time.Millisecond
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
