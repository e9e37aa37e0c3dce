package models

import (
	"time"
)

// InvitationStatus represents the status of an activity invitation.
type InvitationStatus string

const (
	// InvitationStatusPending indicates the invited family has not responded.
	InvitationStatusPending InvitationStatus = "pending"
	// InvitationStatusAccepted indicates the invitation has been accepted.
	InvitationStatusAccepted InvitationStatus = "accepted"
	// InvitationStatusRejected indicates the invitation was declined.
	InvitationStatusRejected InvitationStatus = "rejected"
)

// IsTerminal reports whether no further transitions are allowed.
func (s InvitationStatus) IsTerminal() bool {
	return s == InvitationStatusAccepted || s == InvitationStatusRejected
}

// ActivityInvitation invites one child to one host copy of an activity.
type ActivityInvitation struct {
	ID               int64            `json:"-"`
	Handle           Handle           `json:"handle"`
	ActivityID       int64            `json:"-"`
	InvitedChildID   int64            `json:"-"`
	InvitedAccountID int64            `json:"-"`
	InviterAccountID int64            `json:"-"`
	Activity         Handle           `json:"activity"`
	InvitedChild     Handle           `json:"invited_child"`
	Status           InvitationStatus `json:"status"`
	Message          string           `json:"message,omitempty"`
	RespondedAt      *time.Time       `json:"responded_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// IsValid returns true if the invitation can still be answered.
func (i *ActivityInvitation) IsValid() bool {
	return i.Status == InvitationStatusPending
}
