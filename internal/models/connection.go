package models

import (
	"time"
)

// RequestStatus represents the state of a connection request.
type RequestStatus string

const (
	// RequestStatusPending indicates the target parent has not responded.
	RequestStatusPending RequestStatus = "pending"
	// RequestStatusAccepted indicates the request produced a Connection.
	RequestStatusAccepted RequestStatus = "accepted"
	// RequestStatusRejected indicates the target parent declined.
	RequestStatusRejected RequestStatus = "rejected"
)

// IsTerminal reports whether no further transitions are allowed.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusAccepted || s == RequestStatusRejected
}

// ConnectionRequest asks the target child's family to link with the
// requester child. The target may belong to a skeleton account.
type ConnectionRequest struct {
	ID                 int64         `json:"-"`
	Handle             Handle        `json:"handle"`
	RequesterChildID   int64         `json:"-"`
	RequesterAccountID int64         `json:"-"`
	TargetChildID      int64         `json:"-"`
	TargetAccountID    int64         `json:"-"`
	RequesterChild     Handle        `json:"requester_child"`
	TargetChild        Handle        `json:"target_child"`
	Status             RequestStatus `json:"status"`
	Message            string        `json:"message,omitempty"`
	RespondedAt        *time.Time    `json:"responded_at,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
}

// Involves reports whether the child is on either side of the request.
func (r *ConnectionRequest) Involves(childID int64) bool {
	return r.RequesterChildID == childID || r.TargetChildID == childID
}

// Connection is a symmetric link between two children. The pair is stored
// ordered (low, high) so that at most one row exists per unordered pair.
type Connection struct {
	ID          int64     `json:"-"`
	Handle      Handle    `json:"handle"`
	ChildLowID  int64     `json:"-"`
	ChildHighID int64     `json:"-"`
	ChildLow    Handle    `json:"child_a"`
	ChildHigh   Handle    `json:"child_b"`
	RequestID   *int64    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// OrderPair returns the two child keys in storage order.
func OrderPair(a, b int64) (low, high int64) {
	if a < b {
		return a, b
	}
	return b, a
}

// Involves reports whether the child is on either side of the connection.
func (c *Connection) Involves(childID int64) bool {
	return c.ChildLowID == childID || c.ChildHighID == childID
}

// Other returns the child on the opposite side from childID, or 0 when
// childID is not part of the connection.
func (c *Connection) Other(childID int64) int64 {
	switch childID {
	case c.ChildLowID:
		return c.ChildHighID
	case c.ChildHighID:
		return c.ChildLowID
	}
	return 0
}
