// Package extension provides the Forge extension adapter for the
// credit ledger.
//
// It implements the forge.Extension interface to integrate the ledger
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.creditledger" or
// "creditledger" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/creditledger"
	"github.com/xraph/creditledger/store"
	"github.com/xraph/creditledger/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "creditledger"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Append-only credit accounting ledger for AI agent billing"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the credit ledger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *creditledger.Ledger
	store      store.Store
	ledgerOpts []creditledger.Option
}

// New creates a new credit ledger Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Ledger instance.
// This is nil until Register is called.
func (e *Extension) Engine() *creditledger.Ledger { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the ledger engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	// Build ledger options from resolved config.
	opts := e.buildLedgerOpts()

	eng := creditledger.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*creditledger.Ledger, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("creditledger: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("creditledger: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildLedgerOpts constructs creditledger.Option values from the resolved config.
func (e *Extension) buildLedgerOpts() []creditledger.Option {
	opts := make([]creditledger.Option, 0, len(e.ledgerOpts)+2)

	if e.config.AuditInterval > 0 {
		opts = append(opts, creditledger.WithAuditInterval(e.config.AuditInterval))
	}
	if e.config.DisableMigrate {
		opts = append(opts, creditledger.WithSkipMigrate())
	}

	// Append any pass-through ledger options.
	opts = append(opts, e.ledgerOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("creditledger: configuration is required but not found in config files; " +
				"ensure 'extensions.creditledger' or 'creditledger' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("creditledger: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("audit_interval", e.config.AuditInterval),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.creditledger" first (namespaced pattern).
	if cm.IsSet("extensions.creditledger") {
		if err := cm.Bind("extensions.creditledger", &cfg); err == nil {
			e.Logger().Debug("creditledger: loaded config from file",
				forge.F("key", "extensions.creditledger"),
			)
			return cfg, true
		}
		e.Logger().Warn("creditledger: failed to bind extensions.creditledger config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "creditledger" key.
	if cm.IsSet("creditledger") {
		if err := cm.Bind("creditledger", &cfg); err == nil {
			e.Logger().Debug("creditledger: loaded config from file",
				forge.F("key", "creditledger"),
			)
			return cfg, true
		}
		e.Logger().Warn("creditledger: failed to bind creditledger config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.AuditInterval == 0 {
		cfg.AuditInterval = defaults.AuditInterval
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// Duration fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.AuditInterval == 0 && programmaticConfig.AuditInterval != 0 {
		yamlConfig.AuditInterval = programmaticConfig.AuditInterval
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
