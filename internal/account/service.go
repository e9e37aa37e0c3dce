// Package account handles parent registration and login. Registering with
// contact details that other parents have already used promotes the matching
// skeleton account, which resolves any invitations waiting on it.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/narvanalabs/playdate/internal/auth"
	"github.com/narvanalabs/playdate/internal/identity"
	"github.com/narvanalabs/playdate/internal/models"
	"github.com/narvanalabs/playdate/internal/skeleton"
	"github.com/narvanalabs/playdate/internal/store"
	"github.com/narvanalabs/playdate/internal/validation"
)

// RegisterInput is the sign-up payload.
type RegisterInput struct {
	DisplayName string   `json:"display_name"`
	Email       string   `json:"email,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Password    string   `json:"password"`
	Children    []string `json:"children,omitempty"`
}

// RegisterResult is the outcome of a registration.
type RegisterResult struct {
	Account     *models.Account              `json:"account"`
	Children    []*models.Child              `json:"children"`
	Promotion   *skeleton.PromotionResult    `json:"promotion,omitempty"`
	Invitations []*models.ActivityInvitation `json:"invitations"`
	Token       string                       `json:"token"`
}

// LoginInput identifies an account by email or phone.
type LoginInput struct {
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Password string `json:"password"`
}

// LoginResult carries the bearer token for a successful login.
type LoginResult struct {
	Account *models.Account `json:"account"`
	Token   string          `json:"token"`
}

// Service registers and authenticates parents.
type Service struct {
	store     store.Store
	skeletons *skeleton.Service
	auth      *auth.Service
	logger    *slog.Logger
}

// NewService creates an account service.
func NewService(st store.Store, skeletons *skeleton.Service, authSvc *auth.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     st,
		skeletons: skeletons,
		auth:      authSvc,
		logger:    logger.With("component", "account"),
	}
}

// Register creates a real account for the contact details in the input. The
// oldest skeleton sharing a fingerprint is promoted in place so existing
// references stay valid; further matching skeletons are merged into it. The
// whole registration, including invitation resolution, is one transaction.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	hint, err := identity.NewFingerprints(in.Email, in.Phone)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateDisplayName("display_name", in.DisplayName); err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	for _, name := range in.Children {
		if err := validation.ValidateDisplayName("children", name); err != nil {
			return nil, err
		}
	}

	hash, err := s.auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	result := &RegisterResult{}
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		*result = RegisterResult{}

		if _, err := tx.Accounts().GetByFingerprint(ctx, hint.Email, hint.Phone); err == nil {
			return models.ErrDuplicateAccount
		} else if !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("checking existing account: %w", err)
		}

		acc, err := s.claim(ctx, tx, hint, in.DisplayName, hash)
		if err != nil {
			return err
		}

		if err := s.settleChildren(ctx, tx, acc.ID, in.Children); err != nil {
			return err
		}

		promotion, err := s.skeletons.PromoteTx(ctx, tx, acc, hint)
		if err != nil {
			return err
		}

		result.Account = acc
		// Merging may have moved further children onto the account.
		result.Children, err = tx.Children().ListByAccount(ctx, acc.ID)
		if err != nil {
			return fmt.Errorf("listing children: %w", err)
		}
		result.Promotion = promotion
		result.Invitations = promotion.Outcome.Invitations
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Invitations == nil {
		result.Invitations = []*models.ActivityInvitation{}
	}
	if result.Token, err = s.auth.GenerateToken(string(result.Account.Handle)); err != nil {
		return nil, err
	}

	s.logger.Info("account registered",
		"account", result.Account.Handle,
		"promoted", result.Account.PromotedAt != nil,
		"children", len(result.Children),
		"invitations", len(result.Invitations),
	)
	return result, nil
}

// claim turns the oldest matching skeleton into the real account, or creates
// a new account when no skeleton exists.
func (s *Service) claim(ctx context.Context, tx store.Store, hint identity.Fingerprints, name, hash string) (*models.Account, error) {
	skeletons, err := tx.Accounts().LockSkeletonsByFingerprint(ctx, hint.Email, hint.Phone)
	if err != nil {
		return nil, fmt.Errorf("locking skeleton accounts: %w", err)
	}

	if len(skeletons) == 0 {
		acc := &models.Account{
			DisplayName:      name,
			EmailFingerprint: hint.Email,
			PhoneFingerprint: hint.Phone,
			PasswordHash:     hash,
		}
		if err := tx.Accounts().Create(ctx, acc); err != nil {
			return nil, fmt.Errorf("creating account: %w", err)
		}
		return acc, nil
	}

	now := time.Now().UTC()
	acc := skeletons[0]
	acc.DisplayName = name
	acc.EmailFingerprint = hint.Email
	acc.PhoneFingerprint = hint.Phone
	acc.PasswordHash = hash
	acc.IsSkeleton = false
	acc.PromotedAt = &now
	if err := tx.Accounts().Update(ctx, acc); err != nil {
		return nil, fmt.Errorf("promoting skeleton account: %w", err)
	}
	return acc, nil
}

// settleChildren reconciles the names given at sign-up with the children the
// account already has. A name matching exactly one existing child claims it;
// any other name creates a new child. Remaining skeleton children are kept as
// the family's own children.
func (s *Service) settleChildren(ctx context.Context, tx store.Store, accountID int64, names []string) error {
	existing, err := tx.Children().ListByAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("listing children: %w", err)
	}

	claimed := make(map[int64]bool)
	for _, name := range names {
		want := identity.NormalizeName(name)
		var match *models.Child
		count := 0
		for _, c := range existing {
			if !claimed[c.ID] && identity.NormalizeName(c.DisplayName) == want {
				match = c
				count++
			}
		}

		if count == 1 {
			claimed[match.ID] = true
			match.DisplayName = name
			match.IsSkeleton = false
			if err := tx.Children().Update(ctx, match); err != nil {
				return fmt.Errorf("claiming child: %w", err)
			}
			continue
		}

		child := &models.Child{AccountID: accountID, DisplayName: name}
		if err := tx.Children().Create(ctx, child); err != nil {
			return fmt.Errorf("creating child: %w", err)
		}
	}

	for _, c := range existing {
		if claimed[c.ID] || !c.IsSkeleton {
			continue
		}
		c.IsSkeleton = false
		if err := tx.Children().Update(ctx, c); err != nil {
			return fmt.Errorf("adopting child: %w", err)
		}
	}
	return nil
}

// Login checks the password of the real account matching the email or phone
// and returns a bearer token. Unknown contacts, skeletons and wrong passwords
// all report models.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	hint, err := identity.NewFingerprints(in.Email, in.Phone)
	if err != nil {
		return nil, models.ErrInvalidCredentials
	}

	acc, err := s.store.Accounts().GetByFingerprint(ctx, hint.Email, hint.Phone)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up account: %w", err)
	}
	if acc.IsSkeleton {
		return nil, models.ErrInvalidCredentials
	}
	if err := s.auth.CheckPassword(acc.PasswordHash, in.Password); err != nil {
		s.logger.Debug("login rejected", "account", acc.Handle)
		return nil, models.ErrInvalidCredentials
	}

	token, err := s.auth.GenerateToken(string(acc.Handle))
	if err != nil {
		return nil, err
	}
	return &LoginResult{Account: acc, Token: token}, nil
}

// AddChild registers another child on the caller's account.
func (s *Service) AddChild(ctx context.Context, caller int64, name string) (*models.Child, error) {
	if err := validation.ValidateDisplayName("display_name", name); err != nil {
		return nil, err
	}
	child := &models.Child{AccountID: caller, DisplayName: name}
	if err := s.store.Children().Create(ctx, child); err != nil {
		return nil, fmt.Errorf("creating child: %w", err)
	}
	return child, nil
}

// ListChildren returns the caller's children, oldest first.
func (s *Service) ListChildren(ctx context.Context, caller int64) ([]*models.Child, error) {
	children, err := s.store.Children().ListByAccount(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("listing children: %w", err)
	}
	return children, nil
}

// Get returns the caller's own account.
func (s *Service) Get(ctx context.Context, caller int64) (*models.Account, error) {
	return s.store.Accounts().Get(ctx, caller)
}
