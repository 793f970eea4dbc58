package extension

import "time"

// Config holds the credit ledger extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.creditledger" or
// "creditledger" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// AuditInterval is how often the engine replays the transaction log
	// and checks it against the stored balance projection (default: 5m).
	// Zero keeps the default; to disable the audit worker entirely, pass
	// creditledger.WithAuditInterval(0) through WithLedgerOption.
	AuditInterval time.Duration `json:"audit_interval" mapstructure:"audit_interval" yaml:"audit_interval"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		AuditInterval: 5 * time.Minute,
	}
}
