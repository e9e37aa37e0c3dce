// Package resolution turns pending invitations into real invitations when
// their prerequisite becomes true. Every entry point runs inside the
// caller's transaction so the triggering change and the invitations it
// produces commit together.
package resolution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/narvanalabs/playdate/internal/ledger"
	"github.com/narvanalabs/playdate/internal/models"
	"github.com/narvanalabs/playdate/internal/store"
)

const tracerName = "github.com/narvanalabs/playdate/internal/resolution"

// ConnectionAccepted is emitted when a connection request is accepted, or
// when the reconciler replays a connection. RequestID is zero for
// connections with no originating request.
type ConnectionAccepted struct {
	RequestID        int64
	RequesterChild   int64
	TargetChild      int64
	RequesterAccount int64
	TargetAccount    int64
}

// AccountPromoted is emitted when an account becomes real or absorbs
// skeleton accounts. PromotedAt is set on replay so that entries recorded
// after the promotion are left for their connection trigger.
type AccountPromoted struct {
	AccountID  int64
	PromotedAt time.Time
}

// Outcome summarizes one resolution pass.
type Outcome struct {
	Consumed    int
	Invitations []*models.ActivityInvitation
}

func (o *Outcome) add(other Outcome) {
	o.Consumed += other.Consumed
	o.Invitations = append(o.Invitations, other.Invitations...)
}

// Engine is the resolution engine.
type Engine struct {
	ledger *ledger.Ledger
	logger *slog.Logger
	tracer trace.Tracer
}

func hasOpen(invs []*models.ActivityInvitation) bool {
	for _, inv := range invs {
		if !inv.Status.IsTerminal() {
			return true
		}
	}
	return false
}

// NewEngine creates an engine over the given ledger.
func NewEngine(l *ledger.Ledger, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		ledger: l,
		logger: logger.With("component", "resolution"),
		tracer: otel.Tracer(tracerName),
	}
}

// Materialize issues an invitation from the pending entry to each child and
// consumes the entry. A child is skipped when it already holds a pending
// invitation for the activity copy, or belongs to the host's own family.
// Answered invitations do not block a new one.
// Calling Materialize again for the same entry is a no-op.
func (e *Engine) Materialize(ctx context.Context, tx store.Store, p *models.PendingInvitation, children []*models.Child) (Outcome, error) {
	var out Outcome

	activity, err := tx.Activities().Get(ctx, p.ActivityID)
	if err != nil {
		return out, fmt.Errorf("loading activity: %w", err)
	}

	for _, child := range children {
		if child.AccountID == activity.HostAccountID {
			continue
		}
		existing, err := tx.Invitations().FindForChild(ctx, activity.ID, child.ID)
		if err != nil {
			return out, fmt.Errorf("checking existing invitations: %w", err)
		}
		if hasOpen(existing) {
			continue
		}

		inv := &models.ActivityInvitation{
			ActivityID:       activity.ID,
			InvitedChildID:   child.ID,
			InvitedAccountID: child.AccountID,
			InviterAccountID: activity.HostAccountID,
			Status:           models.InvitationStatusPending,
			Message:          p.Message,
		}
		created, err := tx.Invitations().Create(ctx, inv)
		if err != nil {
			return out, fmt.Errorf("creating invitation: %w", err)
		}
		if created {
			inv.Activity = activity.Handle
			inv.InvitedChild = child.Handle
			out.Invitations = append(out.Invitations, inv)
		}
	}

	deleted, err := tx.Pending().Delete(ctx, p.ID)
	if err != nil {
		return out, fmt.Errorf("consuming pending invitation: %w", err)
	}
	if deleted {
		out.Consumed = 1
	}
	return out, nil
}

// OnConnectionAccepted materializes every pending entry the connection
// satisfies.
func (e *Engine) OnConnectionAccepted(ctx context.Context, tx store.Store, ev ConnectionAccepted) (Outcome, error) {
	ctx, span := e.tracer.Start(ctx, "resolution.OnConnectionAccepted", trace.WithAttributes(
		attribute.Int64("request_id", ev.RequestID),
	))
	defer span.End()

	out, err := e.resolve(ctx, tx, ledger.ConnectionTrigger{
		RequestID: ev.RequestID,
		ChildA:    ev.RequesterChild,
		ChildB:    ev.TargetChild,
		AccountA:  ev.RequesterAccount,
		AccountB:  ev.TargetAccount,
	})
	return out, e.finish(span, out, err)
}

// OnAccountPromoted materializes every pending entry keyed to the account
// or to one of its children.
func (e *Engine) OnAccountPromoted(ctx context.Context, tx store.Store, ev AccountPromoted) (Outcome, error) {
	ctx, span := e.tracer.Start(ctx, "resolution.OnAccountPromoted", trace.WithAttributes(
		attribute.Int64("account_id", ev.AccountID),
	))
	defer span.End()

	out, err := e.resolve(ctx, tx, ledger.PromotionTrigger{
		AccountID:  ev.AccountID,
		PromotedAt: ev.PromotedAt,
	})
	return out, e.finish(span, out, err)
}

func (e *Engine) resolve(ctx context.Context, tx store.Store, trigger ledger.Trigger) (Outcome, error) {
	var out Outcome

	resolutions, err := e.ledger.FindResolvable(ctx, tx, trigger)
	if err != nil {
		return out, err
	}

	for _, r := range resolutions {
		o, err := e.Materialize(ctx, tx, r.Pending, r.Children)
		if err != nil {
			return out, err
		}
		out.add(o)
	}

	if out.Consumed > 0 {
		e.logger.Info("pending invitations resolved",
			"consumed", out.Consumed,
			"invitations", len(out.Invitations),
		)
	}
	return out, nil
}

func (e *Engine) finish(span trace.Span, out Outcome, err error) error {
	span.SetAttributes(
		attribute.Int("consumed", out.Consumed),
		attribute.Int("invitations", len(out.Invitations)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
