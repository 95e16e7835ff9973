// Package extension provides the Forge extension adapter for loanbook.
//
// It implements the forge.Extension interface to integrate the loan engine
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.loanbook" or "loanbook" keys.
package extension

import (
	"context"
	"errors"
	"net/http"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/loanbook"
	"github.com/xraph/loanbook/api"
	"github.com/xraph/loanbook/gate"
	"github.com/xraph/loanbook/store"
	"github.com/xraph/loanbook/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "loanbook"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Micro-lending loan ledger"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the loan engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *loanbook.Engine
	server     *api.Server
	store      store.Store
	engineOpts []loanbook.Option
}

// New creates a new loanbook Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the loan engine. It is nil until Register is called.
func (e *Extension) Engine() *loanbook.Engine { return e.engine }

// Handler returns the HTTP handler for the loanbook routes, or nil when
// routes are disabled or Register has not run.
func (e *Extension) Handler() http.Handler {
	if e.server == nil {
		return nil
	}
	return e.server.Handler()
}

// Register implements [forge.Extension]. It loads configuration, builds the
// engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		e.store = memory.New()
	}

	e.engine = loanbook.New(e.store, e.buildEngineOpts()...)
	if !e.config.DisableRoutes {
		e.server = api.NewServer(e.engine, api.WithBasePath(e.config.BasePath))
	}

	if err := vessel.Provide(fapp.Container(), func() (*loanbook.Engine, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}
	if e.server == nil {
		return nil
	}
	return vessel.Provide(fapp.Container(), func() (*api.Server, error) {
		return e.server, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("loanbook: extension not initialized")
	}
	if err := e.engine.Start(ctx); err != nil {
		return err
	}
	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	defer e.MarkStopped()
	if e.engine == nil {
		return nil
	}
	return e.engine.Stop()
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("loanbook: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts turns the resolved config into engine options. Options
// passed with WithEngineOption come last and win.
func (e *Extension) buildEngineOpts() []loanbook.Option {
	cfg := e.config
	sweep := cfg.SweepInterval
	if cfg.DisableSweeper {
		sweep = 0
	}

	opts := []loanbook.Option{
		loanbook.WithCurrency(cfg.Currency),
		loanbook.WithLatePayments(cfg.AllowLatePayments),
		loanbook.WithSweepInterval(sweep),
		loanbook.WithSweepConcurrency(cfg.SweepConcurrency),
		loanbook.WithStatusCooldown(cfg.StatusCooldown),
		loanbook.WithPinPolicy(gate.Policy{MaxFailures: cfg.PinMaxFailures, Window: cfg.PinWindow}),
		loanbook.WithAutoMigrate(!cfg.DisableMigrate),
	}
	return append(opts, e.engineOpts...)
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("loanbook: configuration is required but not found in config files; " +
				"ensure 'extensions.loanbook' or 'loanbook' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("loanbook: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("currency", e.config.Currency),
		forge.F("sweep_interval", e.config.SweepInterval),
		forge.F("status_cooldown", e.config.StatusCooldown),
		forge.F("allow_late_payments", e.config.AllowLatePayments),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.loanbook", "loanbook"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("loanbook: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("loanbook: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	if cfg.SweepConcurrency == 0 {
		cfg.SweepConcurrency = defaults.SweepConcurrency
	}
	if cfg.StatusCooldown == 0 {
		cfg.StatusCooldown = defaults.StatusCooldown
	}
	if cfg.PinMaxFailures == 0 {
		cfg.PinMaxFailures = defaults.PinMaxFailures
	}
	if cfg.PinWindow == 0 {
		cfg.PinWindow = defaults.PinWindow
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps and
// programmatic bool flags override when true.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableSweeper {
		yamlConfig.DisableSweeper = true
	}
	if programmaticConfig.AllowLatePayments {
		yamlConfig.AllowLatePayments = true
	}

	if yamlConfig.BasePath == "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.Currency == "" {
		yamlConfig.Currency = programmaticConfig.Currency
	}
	if yamlConfig.SweepInterval == 0 {
		yamlConfig.SweepInterval = programmaticConfig.SweepInterval
	}
	if yamlConfig.SweepConcurrency == 0 {
		yamlConfig.SweepConcurrency = programmaticConfig.SweepConcurrency
	}
	if yamlConfig.StatusCooldown == 0 {
		yamlConfig.StatusCooldown = programmaticConfig.StatusCooldown
	}
	if yamlConfig.PinMaxFailures == 0 {
		yamlConfig.PinMaxFailures = programmaticConfig.PinMaxFailures
	}
	if yamlConfig.PinWindow == 0 {
		yamlConfig.PinWindow = programmaticConfig.PinWindow
	}

	return mergeWithDefaults(yamlConfig)
}
