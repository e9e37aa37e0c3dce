package skeleton

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/narvanalabs/playdate/internal/identity"
	"github.com/narvanalabs/playdate/internal/models"
	"github.com/narvanalabs/playdate/internal/resolution"
	"github.com/narvanalabs/playdate/internal/store"
)

// ChildMerge records a skeleton child folded into an existing real child.
type ChildMerge struct {
	From models.Handle `json:"from"`
	Into models.Handle `json:"into"`
}

// AmbiguousMatch records a skeleton child that matched several real children
// by name. It is kept as a distinct child rather than merged into any of them.
type AmbiguousMatch struct {
	Child      models.Handle   `json:"child"`
	Candidates []models.Handle `json:"candidates"`
}

// PromotionResult describes what a promotion changed.
type PromotionResult struct {
	Account   models.Handle      `json:"account"`
	Merged    []models.Handle    `json:"merged_accounts,omitempty"`
	Children  []ChildMerge       `json:"merged_children,omitempty"`
	Adopted   []models.Handle    `json:"adopted_children,omitempty"`
	Ambiguous []AmbiguousMatch   `json:"ambiguous,omitempty"`
	Outcome   resolution.Outcome `json:"-"`
}

// PromoteTx folds every skeleton matching hint into target within tx. Each
// skeleton child is merged into the one real child with the same normalized
// name, or adopted as a distinct child when there is no such unique match.
// Requests, invitations and pending entries are repointed before the empty
// skeleton is deleted, and pending invitations are resolved afterwards.
func (s *Service) PromoteTx(ctx context.Context, tx store.Store, target *models.Account, hint identity.Fingerprints) (*PromotionResult, error) {
	ctx, span := s.tracer.Start(ctx, "skeleton.Promote")
	defer span.End()

	result, err := s.promote(ctx, tx, target, hint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("merged_accounts", len(result.Merged)),
		attribute.Int("ambiguous", len(result.Ambiguous)),
	)
	return result, nil
}

func (s *Service) promote(ctx context.Context, tx store.Store, target *models.Account, hint identity.Fingerprints) (*PromotionResult, error) {
	if target == nil || target.IsSkeleton {
		return nil, models.ErrInvalidInput
	}
	result := &PromotionResult{Account: target.Handle}

	skeletons, err := tx.Accounts().LockSkeletonsByFingerprint(ctx, hint.Email, hint.Phone)
	if err != nil {
		return nil, fmt.Errorf("locking skeleton accounts: %w", err)
	}

	for _, sk := range skeletons {
		if sk.ID == target.ID {
			continue
		}
		if err := s.mergeAccount(ctx, tx, sk, target, result); err != nil {
			return nil, err
		}
		result.Merged = append(result.Merged, sk.Handle)
	}

	if len(result.Merged) > 0 {
		now := time.Now().UTC()
		target.PromotedAt = &now
		if err := tx.Accounts().Update(ctx, target); err != nil {
			return nil, fmt.Errorf("marking account promoted: %w", err)
		}
	}

	if s.engine != nil {
		out, err := s.engine.OnAccountPromoted(ctx, tx, resolution.AccountPromoted{AccountID: target.ID})
		if err != nil {
			return nil, err
		}
		result.Outcome = out
	}

	if len(result.Merged) > 0 || len(result.Ambiguous) > 0 {
		s.logger.Info("skeleton accounts promoted",
			"account", target.Handle,
			"merged", len(result.Merged),
			"merged_children", len(result.Children),
			"adopted_children", len(result.Adopted),
			"ambiguous", len(result.Ambiguous),
		)
	}
	return result, nil
}

func (s *Service) mergeAccount(ctx context.Context, tx store.Store, sk, target *models.Account, result *PromotionResult) error {
	children, err := tx.Children().ListByAccount(ctx, sk.ID)
	if err != nil {
		return fmt.Errorf("listing skeleton children: %w", err)
	}

	for _, child := range children {
		candidates, err := matchChildren(ctx, tx, target.ID, child.DisplayName, child.ID)
		if err != nil {
			return err
		}

		if len(candidates) == 1 {
			into := candidates[0]
			if err := mergeChild(ctx, tx, child.ID, into); err != nil {
				return err
			}
			result.Children = append(result.Children, ChildMerge{From: child.Handle, Into: into.Handle})
			continue
		}

		if len(candidates) > 1 {
			amb := AmbiguousMatch{Child: child.Handle}
			for _, c := range candidates {
				amb.Candidates = append(amb.Candidates, c.Handle)
			}
			result.Ambiguous = append(result.Ambiguous, amb)
			s.logger.Warn("skeleton child kept distinct",
				"child", child.Handle,
				"candidates", len(candidates),
				"error", models.ErrAmbiguousMatch,
			)
		}

		child.AccountID = target.ID
		child.IsSkeleton = false
		if err := tx.Children().Update(ctx, child); err != nil {
			return fmt.Errorf("adopting skeleton child: %w", err)
		}
		result.Adopted = append(result.Adopted, child.Handle)
	}

	if _, err := tx.Requests().RepointAccount(ctx, sk.ID, target.ID); err != nil {
		return fmt.Errorf("repointing connection requests: %w", err)
	}
	if _, err := tx.Invitations().RepointAccount(ctx, sk.ID, target.ID); err != nil {
		return fmt.Errorf("repointing invitations: %w", err)
	}
	if _, err := tx.Pending().RepointAccount(ctx, sk.ID, target.ID); err != nil {
		return fmt.Errorf("repointing pending invitations: %w", err)
	}
	if err := tx.Accounts().Delete(ctx, sk.ID); err != nil {
		return fmt.Errorf("deleting skeleton account: %w", err)
	}
	return nil
}

// mergeChild moves every reference from the skeleton child onto into, then
// deletes the skeleton child.
func mergeChild(ctx context.Context, tx store.Store, from int64, into *models.Child) error {
	if _, err := tx.Requests().RepointChild(ctx, from, into.ID, into.AccountID); err != nil {
		return fmt.Errorf("repointing connection requests: %w", err)
	}
	if _, err := tx.Invitations().RepointChild(ctx, from, into.ID, into.AccountID); err != nil {
		return fmt.Errorf("repointing invitations: %w", err)
	}
	if _, err := tx.Pending().RepointChild(ctx, from, into.ID); err != nil {
		return fmt.Errorf("repointing pending invitations: %w", err)
	}
	if err := tx.Children().Delete(ctx, from); err != nil {
		return fmt.Errorf("deleting merged skeleton child: %w", err)
	}
	return nil
}

// Promote runs PromoteTx in its own transaction for the account with the
// given handle, using the account's stored fingerprints.
func (s *Service) Promote(ctx context.Context, account models.Handle) (*PromotionResult, error) {
	id, err := s.resolver.Account(ctx, account)
	if err != nil {
		return nil, err
	}

	var result *PromotionResult
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		target, err := tx.Accounts().Get(ctx, id)
		if err != nil {
			return err
		}
		hint := identity.Fingerprints{Email: target.EmailFingerprint, Phone: target.PhoneFingerprint}
		result, err = s.PromoteTx(ctx, tx, target, hint)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
