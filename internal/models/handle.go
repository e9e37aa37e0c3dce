// Package models provides data structures for the playdate scheduling service.
//
// Every persisted entity carries two identifiers: an internal int64 key used for
// joins inside the store, and an opaque Handle that is the only identifier ever
// serialized to clients. Internal keys are tagged `json:"-"` throughout.
package models

import (
	"github.com/google/uuid"
)

// Handle is an opaque, externally-safe identifier for an entity.
type Handle string

// NewHandle generates a fresh handle. Handles are never reused.
func NewHandle() Handle {
	return Handle(uuid.New().String())
}

// String returns the handle as a string.
func (h Handle) String() string {
	return string(h)
}

// Valid reports whether the handle is well-formed.
func (h Handle) Valid() bool {
	_, err := uuid.Parse(string(h))
	return err == nil
}

// Kind names the entity a handle refers to.
type Kind string

const (
	KindAccount           Kind = "account"
	KindChild             Kind = "child"
	KindConnectionRequest Kind = "connection_request"
	KindConnection        Kind = "connection"
	KindActivity          Kind = "activity"
	KindInvitation        Kind = "invitation"
	KindPendingInvitation Kind = "pending_invitation"
)

// Kinds lists every resolvable entity kind.
var Kinds = []Kind{
	KindAccount,
	KindChild,
	KindConnectionRequest,
	KindConnection,
	KindActivity,
	KindInvitation,
	KindPendingInvitation,
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}
