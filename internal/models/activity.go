package models

import (
	"strings"
	"time"
)

// Activity is one host's copy of a logical activity. Joint hosts each get
// their own copy sharing GroupHandle, with an independent invitation set.
type Activity struct {
	ID            int64     `json:"-"`
	Handle        Handle    `json:"handle"`
	GroupHandle   Handle    `json:"group_handle"`
	HostChildID   int64     `json:"-"`
	HostAccountID int64     `json:"-"`
	HostChild     Handle    `json:"host_child"`
	IsPrimary     bool      `json:"is_primary"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Location      string    `json:"location,omitempty"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// Validate checks the schedule fields shared by every host copy.
func (a *Activity) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return ErrInvalidInput
	}
	if a.StartsAt.IsZero() || a.EndsAt.Before(a.StartsAt) {
		return ErrInvalidInput
	}
	return nil
}
