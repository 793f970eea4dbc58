package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                 []OnInit
	onShutdown             []OnShutdown
	onTransactionAdmitted  []OnTransactionAdmitted
	onTransactionCompleted []OnTransactionCompleted
	onTransactionFailed    []OnTransactionFailed
	onPurchaseConfirmed    []OnPurchaseConfirmed
	onBalanceChanged       []OnBalanceChanged
	onInsufficientBalance  []OnInsufficientBalance
	onAgentRegistered      []OnAgentRegistered
	onProjectionDrift      []OnProjectionDrift
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnTransactionAdmitted); ok {
		r.onTransactionAdmitted = append(r.onTransactionAdmitted, v)
	}
	if v, ok := p.(OnTransactionCompleted); ok {
		r.onTransactionCompleted = append(r.onTransactionCompleted, v)
	}
	if v, ok := p.(OnTransactionFailed); ok {
		r.onTransactionFailed = append(r.onTransactionFailed, v)
	}
	if v, ok := p.(OnPurchaseConfirmed); ok {
		r.onPurchaseConfirmed = append(r.onPurchaseConfirmed, v)
	}
	if v, ok := p.(OnBalanceChanged); ok {
		r.onBalanceChanged = append(r.onBalanceChanged, v)
	}
	if v, ok := p.(OnInsufficientBalance); ok {
		r.onInsufficientBalance = append(r.onInsufficientBalance, v)
	}
	if v, ok := p.(OnAgentRegistered); ok {
		r.onAgentRegistered = append(r.onAgentRegistered, v)
	}
	if v, ok := p.(OnProjectionDrift); ok {
		r.onProjectionDrift = append(r.onProjectionDrift, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnTransactionAdmitted)(nil)).Elem(), "OnTransactionAdmitted")
	checkInterface(reflect.TypeOf((*OnTransactionCompleted)(nil)).Elem(), "OnTransactionCompleted")
	checkInterface(reflect.TypeOf((*OnTransactionFailed)(nil)).Elem(), "OnTransactionFailed")
	checkInterface(reflect.TypeOf((*OnPurchaseConfirmed)(nil)).Elem(), "OnPurchaseConfirmed")
	checkInterface(reflect.TypeOf((*OnBalanceChanged)(nil)).Elem(), "OnBalanceChanged")
	checkInterface(reflect.TypeOf((*OnInsufficientBalance)(nil)).Elem(), "OnInsufficientBalance")
	checkInterface(reflect.TypeOf((*OnAgentRegistered)(nil)).Elem(), "OnAgentRegistered")
	checkInterface(reflect.TypeOf((*OnProjectionDrift)(nil)).Elem(), "OnProjectionDrift")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitTransactionAdmitted emits a transaction admitted event.
func (r *Registry) EmitTransactionAdmitted(ctx context.Context, tx interface{}) {
	r.mu.RLock()
	plugins := r.onTransactionAdmitted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTransactionAdmitted(ctx, tx)
		}); err != nil {
			r.logger.Warn("plugin OnTransactionAdmitted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitTransactionCompleted emits a transaction completed event.
func (r *Registry) EmitTransactionCompleted(ctx context.Context, tx interface{}) {
	r.mu.RLock()
	plugins := r.onTransactionCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTransactionCompleted(ctx, tx)
		}); err != nil {
			r.logger.Warn("plugin OnTransactionCompleted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitTransactionFailed emits a transaction failed event.
func (r *Registry) EmitTransactionFailed(ctx context.Context, tx interface{}, reason string) {
	r.mu.RLock()
	plugins := r.onTransactionFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTransactionFailed(ctx, tx, reason)
		}); err != nil {
			r.logger.Warn("plugin OnTransactionFailed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPurchaseConfirmed emits a purchase confirmed event.
func (r *Registry) EmitPurchaseConfirmed(ctx context.Context, tx interface{}, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onPurchaseConfirmed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPurchaseConfirmed(ctx, tx, elapsed)
		}); err != nil {
			r.logger.Warn("plugin OnPurchaseConfirmed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitBalanceChanged emits a balance changed event.
func (r *Registry) EmitBalanceChanged(ctx context.Context, ownerID, creditKind string, balance int64) {
	r.mu.RLock()
	plugins := r.onBalanceChanged
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnBalanceChanged(ctx, ownerID, creditKind, balance)
		}); err != nil {
			r.logger.Warn("plugin OnBalanceChanged failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInsufficientBalance emits an insufficient balance event.
func (r *Registry) EmitInsufficientBalance(ctx context.Context, ownerID, creditKind string, requested, available int64) {
	r.mu.RLock()
	plugins := r.onInsufficientBalance
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInsufficientBalance(ctx, ownerID, creditKind, requested, available)
		}); err != nil {
			r.logger.Warn("plugin OnInsufficientBalance failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAgentRegistered emits an agent registered event.
func (r *Registry) EmitAgentRegistered(ctx context.Context, a interface{}) {
	r.mu.RLock()
	plugins := r.onAgentRegistered
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAgentRegistered(ctx, a)
		}); err != nil {
			r.logger.Warn("plugin OnAgentRegistered failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitProjectionDrift emits a projection drift event.
func (r *Registry) EmitProjectionDrift(ctx context.Context, report interface{}) {
	r.mu.RLock()
	plugins := r.onProjectionDrift
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnProjectionDrift(ctx, report)
		}); err != nil {
			r.logger.Warn("plugin OnProjectionDrift failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins must never block the accounting pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
