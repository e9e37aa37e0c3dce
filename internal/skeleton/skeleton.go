// Package skeleton manages placeholder accounts for parents who have been
// referenced by contact details but have not registered, and folds them into
// the real account when the parent signs up.
package skeleton

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/narvanalabs/playdate/internal/identity"
	"github.com/narvanalabs/playdate/internal/models"
	"github.com/narvanalabs/playdate/internal/resolution"
	"github.com/narvanalabs/playdate/internal/store"
	"github.com/narvanalabs/playdate/internal/validation"
)

// Service is the skeleton account store.
type Service struct {
	store    store.Store
	engine   *resolution.Engine
	resolver *identity.Resolver
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewService creates a skeleton service. When engine is non-nil, promotion
// resolves pending invitations in the same transaction.
func NewService(st store.Store, engine *resolution.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		engine:   engine,
		resolver: identity.NewResolver(st.Handles()),
		logger:   logger.With("component", "skeleton"),
		tracer:   otel.Tracer("github.com/narvanalabs/playdate/internal/skeleton"),
	}
}

// Contact is the family a contact hint refers to. Child is nil when the
// hint names a real account none of whose children matches the child name
// exactly once.
type Contact struct {
	Account *models.Account
	Child   *models.Child
}

// ResolveContact finds the family behind a contact hint. A real account with
// a matching fingerprint wins; otherwise a skeleton is found or created.
func (s *Service) ResolveContact(ctx context.Context, tx store.Store, hint identity.Fingerprints, childName string) (*Contact, error) {
	if hint.Empty() {
		return nil, models.ErrInvalidInput
	}

	target, err := tx.Accounts().GetByFingerprint(ctx, hint.Email, hint.Phone)
	switch {
	case err == nil:
		child, err := matchChild(ctx, tx, target.ID, childName, 0)
		if err != nil && !errors.Is(err, models.ErrNotFound) && !errors.Is(err, models.ErrAmbiguousMatch) {
			return nil, err
		}
		return &Contact{Account: target, Child: child}, nil
	case !errors.Is(err, models.ErrNotFound):
		return nil, fmt.Errorf("looking up account by fingerprint: %w", err)
	}

	acc, child, err := s.FindOrCreate(ctx, tx, hint, childName)
	if err != nil {
		return nil, err
	}
	return &Contact{Account: acc, Child: child}, nil
}

// FindOrCreate returns the skeleton account for the hint together with a
// skeleton child for childName, creating either when absent. An existing
// skeleton child is reused only when exactly one matches the normalized name.
func (s *Service) FindOrCreate(ctx context.Context, tx store.Store, hint identity.Fingerprints, childName string) (*models.Account, *models.Child, error) {
	if hint.Empty() {
		return nil, nil, models.ErrInvalidInput
	}
	if err := validation.ValidateDisplayName("child_name", childName); err != nil {
		return nil, nil, err
	}

	skeletons, err := tx.Accounts().LockSkeletonsByFingerprint(ctx, hint.Email, hint.Phone)
	if err != nil {
		return nil, nil, fmt.Errorf("locking skeleton accounts: %w", err)
	}

	var acc *models.Account
	if len(skeletons) > 0 {
		acc = skeletons[0]
	} else {
		acc = &models.Account{
			EmailFingerprint: hint.Email,
			PhoneFingerprint: hint.Phone,
			IsSkeleton:       true,
		}
		if err := tx.Accounts().Create(ctx, acc); err != nil {
			return nil, nil, fmt.Errorf("creating skeleton account: %w", err)
		}
		s.logger.Info("skeleton account created", "account", acc.Handle)
	}

	child, err := matchChild(ctx, tx, acc.ID, childName, 0)
	if err == nil {
		return acc, child, nil
	}
	if !errors.Is(err, models.ErrNotFound) && !errors.Is(err, models.ErrAmbiguousMatch) {
		return nil, nil, err
	}

	child = &models.Child{
		AccountID:   acc.ID,
		DisplayName: childName,
		IsSkeleton:  true,
	}
	if err := tx.Children().Create(ctx, child); err != nil {
		return nil, nil, fmt.Errorf("creating skeleton child: %w", err)
	}
	return acc, child, nil
}

// matchChild returns the single child of the account whose normalized name
// equals name, ignoring the child with key except. It returns
// models.ErrNotFound for no match and models.ErrAmbiguousMatch for several.
func matchChild(ctx context.Context, tx store.Store, accountID int64, name string, except int64) (*models.Child, error) {
	candidates, err := matchChildren(ctx, tx, accountID, name, except)
	if err != nil {
		return nil, err
	}
	switch len(candidates) {
	case 0:
		return nil, models.ErrNotFound
	case 1:
		return candidates[0], nil
	}
	return nil, models.ErrAmbiguousMatch
}

func matchChildren(ctx context.Context, tx store.Store, accountID int64, name string, except int64) ([]*models.Child, error) {
	children, err := tx.Children().ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing children: %w", err)
	}
	want := identity.NormalizeName(name)
	var out []*models.Child
	for _, c := range children {
		if c.ID != except && identity.NormalizeName(c.DisplayName) == want {
			out = append(out, c)
		}
	}
	return out, nil
}
