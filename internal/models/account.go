package models

import (
	"strings"
	"time"
)

// Account is a parent identity. A skeleton account is a placeholder for a
// parent who has been referenced by contact details but has not registered.
// Promotion flips IsSkeleton in place so foreign keys stay valid.
type Account struct {
	ID               int64      `json:"-"`
	Handle           Handle     `json:"handle"`
	DisplayName      string     `json:"display_name"`
	EmailFingerprint string     `json:"-"` // normalized email, matching only
	PhoneFingerprint string     `json:"-"` // normalized phone, matching only
	PasswordHash     string     `json:"-"`
	IsSkeleton       bool       `json:"is_skeleton"`
	PromotedAt       *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Validate checks the fields required before persisting an account.
func (a *Account) Validate() error {
	if a.EmailFingerprint == "" && a.PhoneFingerprint == "" {
		return ErrInvalidInput
	}
	if !a.IsSkeleton && strings.TrimSpace(a.DisplayName) == "" {
		return ErrInvalidInput
	}
	return nil
}

// Child belongs to exactly one account.
type Child struct {
	ID          int64     `json:"-"`
	Handle      Handle    `json:"handle"`
	AccountID   int64     `json:"-"`
	DisplayName string    `json:"display_name"`
	IsSkeleton  bool      `json:"is_skeleton"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks the fields required before persisting a child.
func (c *Child) Validate() error {
	if c.AccountID == 0 || strings.TrimSpace(c.DisplayName) == "" {
		return ErrInvalidInput
	}
	return nil
}
