package aegis

import "time"

// Config holds configuration for the onboarding engine.
type Config struct {
	// PacingDelay is the pause between a completed step and the next one.
	PacingDelay time.Duration `mapstructure:"pacing_delay"`

	// StepTimeout bounds a single handler invocation. Zero disables it.
	StepTimeout time.Duration `mapstructure:"step_timeout"`

	// LedgerTTL is how long a terminal ledger is kept before eviction.
	// Zero keeps ledgers until deleted.
	LedgerTTL time.Duration `mapstructure:"ledger_ttl"`

	// SweepInterval is how often expired ledgers are evicted.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	// ShutdownTimeout is the maximum time to wait for runs on shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// StartRate and StartBurst limit how fast new onboardings are accepted.
	// A zero rate disables limiting.
	StartRate  float64 `mapstructure:"start_rate"`
	StartBurst int     `mapstructure:"start_burst"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PacingDelay:     2 * time.Second,
		StepTimeout:     30 * time.Second,
		LedgerTTL:       24 * time.Hour,
		SweepInterval:   time.Minute,
		ShutdownTimeout: 30 * time.Second,
		StartRate:       5,
		StartBurst:      10,
	}
}
