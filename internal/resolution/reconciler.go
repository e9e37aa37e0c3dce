package resolution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/narvanalabs/playdate/internal/models"
	"github.com/narvanalabs/playdate/internal/store"
)

// CheckpointKey is the settings key holding the time of the last complete sweep.
const CheckpointKey = "resolution.checkpoint"

// Default reconciler timings.
const (
	DefaultSweepInterval = time.Minute
	DefaultSweepOverlap  = 5 * time.Minute
)

// ReconcilerConfig controls the sweep cadence. Overlap widens each sweep
// backwards past the checkpoint so rows committed late by slow transactions
// are still seen.
type ReconcilerConfig struct {
	Interval time.Duration
	Overlap  time.Duration
}

// SweepResult summarizes one reconciler pass.
type SweepResult struct {
	Since       time.Time     `json:"since"`
	Connections int           `json:"connections"`
	Accounts    int           `json:"accounts"`
	Consumed    int           `json:"consumed"`
	Invitations int           `json:"invitations"`
	Errors      []string      `json:"errors,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Reconciler replays resolution for connections and promotions recorded
// since the last checkpoint. Resolution is idempotent, so replaying a
// trigger that already ran in its own transaction changes nothing.
type Reconciler struct {
	store  store.Store
	engine *Engine
	cfg    ReconcilerConfig
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

// NewReconciler creates a reconciler.
func NewReconciler(st store.Store, engine *Engine, cfg ReconcilerConfig, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	return &Reconciler{
		store:  st,
		engine: engine,
		cfg:    cfg,
		logger: logger.With("component", "reconciler"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Checkpoint returns the stored checkpoint, or the zero time before the
// first complete sweep.
func (r *Reconciler) Checkpoint(ctx context.Context) (time.Time, error) {
	raw, err := r.store.Settings().Get(ctx, CheckpointKey)
	if err != nil {
		return time.Time{}, fmt.Errorf("loading checkpoint: %w", err)
	}
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing checkpoint %q: %w", raw, err)
	}
	return t, nil
}

// Sweep runs one pass. Each trigger is replayed in its own transaction. The
// checkpoint only advances when every trigger succeeded.
func (r *Reconciler) Sweep(ctx context.Context) (*SweepResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "resolution.Sweep")
	defer span.End()

	result, err := r.sweep(ctx)
	if result != nil {
		span.SetAttributes(
			attribute.Int("sweep.connections", result.Connections),
			attribute.Int("sweep.accounts", result.Accounts),
			attribute.Int("sweep.invitations", result.Invitations),
			attribute.Int("sweep.errors", len(result.Errors)),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (r *Reconciler) sweep(ctx context.Context) (*SweepResult, error) {
	started := r.now()

	checkpoint, err := r.Checkpoint(ctx)
	if err != nil {
		return nil, err
	}
	since := checkpoint
	if !since.IsZero() {
		since = since.Add(-r.cfg.Overlap)
	}
	result := &SweepResult{Since: since}

	conns, err := r.store.Connections().ListCreatedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	for _, c := range conns {
		out, err := r.replayConnection(ctx, c)
		if err != nil {
			r.logger.Error("replaying connection failed", "connection", c.Handle, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("connection %s: %v", c.Handle, err))
			continue
		}
		result.Connections++
		result.Consumed += out.Consumed
		result.Invitations += len(out.Invitations)
	}

	accounts, err := r.store.Accounts().ListPromotedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("listing promoted accounts: %w", err)
	}
	for _, a := range accounts {
		ev := AccountPromoted{AccountID: a.ID}
		if a.PromotedAt != nil {
			ev.PromotedAt = *a.PromotedAt
		}
		var out Outcome
		err := r.store.WithTx(ctx, func(tx store.Store) error {
			var err error
			out, err = r.engine.OnAccountPromoted(ctx, tx, ev)
			return err
		})
		if err != nil {
			r.logger.Error("replaying promotion failed", "account", a.Handle, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("account %s: %v", a.Handle, err))
			continue
		}
		result.Accounts++
		result.Consumed += out.Consumed
		result.Invitations += len(out.Invitations)
	}

	if len(result.Errors) == 0 {
		if err := r.store.Settings().Set(ctx, CheckpointKey, started.Format(time.RFC3339Nano)); err != nil {
			return result, fmt.Errorf("saving checkpoint: %w", err)
		}
	}
	result.Duration = time.Since(started)

	r.logger.Info("sweep complete",
		"since", since,
		"connections", result.Connections,
		"accounts", result.Accounts,
		"consumed", result.Consumed,
		"invitations", result.Invitations,
		"errors", len(result.Errors),
	)
	return result, nil
}

func (r *Reconciler) replayConnection(ctx context.Context, c *models.Connection) (Outcome, error) {
	var out Outcome
	err := r.store.WithTx(ctx, func(tx store.Store) error {
		low, err := tx.Children().Get(ctx, c.ChildLowID)
		if err != nil {
			return err
		}
		high, err := tx.Children().Get(ctx, c.ChildHighID)
		if err != nil {
			return err
		}
		ev := ConnectionAccepted{
			RequesterChild:   low.ID,
			TargetChild:      high.ID,
			RequesterAccount: low.AccountID,
			TargetAccount:    high.AccountID,
		}
		if c.RequestID != nil {
			ev.RequestID = *c.RequestID
		}
		out, err = r.engine.OnConnectionAccepted(ctx, tx, ev)
		return err
	})
	return out, err
}

// Run sweeps on the configured interval until ctx is cancelled or Stop is
// called. The first sweep runs immediately.
func (r *Reconciler) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.stopChan = make(chan struct{})
	stop := r.stopChan
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		if r.stopChan == stop && r.running {
			r.running = false
		}
		r.mu.Unlock()
	}()

	r.logger.Info("starting reconciler",
		"interval", r.cfg.Interval,
		"overlap", r.cfg.Overlap,
	)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.Sweep(ctx); err != nil {
			r.logger.Error("sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped by context")
			return ctx.Err()
		case <-stop:
			r.logger.Info("reconciler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Stop stops a running reconciler.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		close(r.stopChan)
		r.running = false
	}
}
