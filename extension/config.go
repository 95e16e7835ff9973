package extension

import "time"

// Config holds the loanbook extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.loanbook" or "loanbook" keys).
type Config struct {
	// DisableRoutes prevents HTTP route registration.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for loanbook routes (default: "/loanbook").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// Currency is the ledger currency (default: "php").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// AllowLatePayments accepts payments dated after the loan deadline.
	AllowLatePayments bool `json:"allow_late_payments" mapstructure:"allow_late_payments" yaml:"allow_late_payments"`

	// SweepInterval is how often every client is reconciled (default: 1h).
	SweepInterval time.Duration `json:"sweep_interval" mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// SweepConcurrency bounds parallel reconciliations in a sweep (default: 8).
	SweepConcurrency int `json:"sweep_concurrency" mapstructure:"sweep_concurrency" yaml:"sweep_concurrency"`

	// DisableSweeper turns the background sweeper off.
	DisableSweeper bool `json:"disable_sweeper" mapstructure:"disable_sweeper" yaml:"disable_sweeper"`

	// StatusCooldown suppresses repeated read-path reconciliation of one
	// client (default: 1m).
	StatusCooldown time.Duration `json:"status_cooldown" mapstructure:"status_cooldown" yaml:"status_cooldown"`

	// PinMaxFailures is how many wrong PINs a subject may enter before it is
	// throttled (default: 5).
	PinMaxFailures int `json:"pin_max_failures" mapstructure:"pin_max_failures" yaml:"pin_max_failures"`

	// PinWindow is the period over which PinMaxFailures attempts refill
	// (default: 15m).
	PinWindow time.Duration `json:"pin_window" mapstructure:"pin_window" yaml:"pin_window"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:         "/loanbook",
		Currency:         "php",
		SweepInterval:    time.Hour,
		SweepConcurrency: 8,
		StatusCooldown:   time.Minute,
		PinMaxFailures:   5,
		PinWindow:        15 * time.Minute,
	}
}
