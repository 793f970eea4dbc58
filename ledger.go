package creditledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/creditledger/plugin"
	"github.com/xraph/creditledger/store"
)

// Ledger is the credit accounting engine. It owns the append-only
// transaction log and the derived balance projection. All mutation
// funnels through a single critical section so admission order, and
// therefore the sequence numbering, is total.
type Ledger struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	// mu serializes admission and status transitions. Reads go
	// straight to the store.
	mu sync.Mutex

	// Watermarks seeded from the log tail on Start. seq is the last
	// assigned sequence; lastTS clamps timestamps so they never
	// regress even when the wall clock does.
	seq    uint64
	lastTS time.Time

	clock       func() time.Time
	skipMigrate bool

	// Background consistency audit
	auditInterval time.Duration
	stopChan      chan struct{}
	wg            sync.WaitGroup
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:         s,
		plugins:       plugin.NewRegistry(),
		logger:        slog.Default(),
		clock:         func() time.Time { return time.Now().UTC() },
		auditInterval: 5 * time.Minute,
		stopChan:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock overrides the time source. Tests use this to make
// timestamps deterministic.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		l.clock = clock
	}
}

// WithAuditInterval sets how often the background worker replays the
// log and compares it against the stored balances. Zero disables the
// worker.
func WithAuditInterval(d time.Duration) Option {
	return func(l *Ledger) {
		l.auditInterval = d
	}
}

// WithSkipMigrate disables the store migration on Start. Use when
// migrations are managed externally.
func WithSkipMigrate() Option {
	return func(l *Ledger) {
		l.skipMigrate = true
	}
}

// Start migrates the store, seeds the sequence and timestamp
// watermarks from the log tail, and launches the consistency audit
// worker.
func (l *Ledger) Start(ctx context.Context) error {
	if !l.skipMigrate {
		if err := l.store.Migrate(ctx); err != nil {
			return err
		}
	}

	last, err := l.store.LastSeq(ctx)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.seq = last
	if last > 0 {
		if tail, tailErr := l.store.GetTransactionBySeq(ctx, last); tailErr == nil {
			l.lastTS = tail.Timestamp
		}
	}
	l.mu.Unlock()

	l.plugins.EmitInit(ctx, l)

	if l.auditInterval > 0 {
		l.wg.Add(1)
		go l.auditWorker(ctx)
	}

	l.logger.Info("credit ledger started",
		"last_seq", last,
		"audit_interval", l.auditInterval,
	)

	return nil
}

// Stop shuts down the Ledger.
func (l *Ledger) Stop() error {
	close(l.stopChan)
	l.wg.Wait()

	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)

	return l.store.Close()
}

// auditWorker periodically replays the log and compares the result
// against the stored balance projection. Divergence means the store
// lost or corrupted a projection write; the log remains the source of
// truth, so the worker reports rather than repairs.
func (l *Ledger) auditWorker(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.auditInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return

		case <-ticker.C:
			report, err := l.VerifyProjection(ctx)
			if err != nil {
				l.logger.Error("projection audit failed",
					"error", err,
				)
				continue
			}
			if len(report.Divergences) > 0 {
				l.logger.Error("projection drift detected",
					"divergences", len(report.Divergences),
					"last_seq", report.LastSeq,
				)
				l.plugins.EmitProjectionDrift(ctx, report)
				continue
			}
			l.logger.Debug("projection audit clean",
				"last_seq", report.LastSeq,
			)
		}
	}
}

// nextSeq assigns the next sequence number and a clamped timestamp.
// Callers must hold l.mu.
func (l *Ledger) nextSeq() (uint64, time.Time) {
	l.seq++
	ts := l.clock()
	if ts.Before(l.lastTS) {
		ts = l.lastTS
	}
	l.lastTS = ts
	return l.seq, ts
}
