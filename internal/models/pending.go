package models

import (
	"encoding/json"
	"time"
)

// KeyKind discriminates the ResolutionKey variants in storage.
type KeyKind string

const (
	KeyKindConnectionRequest KeyKind = "connection_request"
	KeyKindChild             KeyKind = "child"
	KeyKindAccount           KeyKind = "account"
)

// ResolutionKey describes what must become true before a pending invitation
// can be materialized. It is one of ConnectionRequestKey, ChildKey or
// AccountKey.
type ResolutionKey interface {
	Kind() KeyKind
	// Target returns the handle of the referenced entity.
	Target() Handle
	resolutionKey()
}

// ConnectionRequestKey resolves when the referenced request is accepted.
type ConnectionRequestKey struct {
	RequestID int64
	Request   Handle
}

// ChildKey resolves when the referenced child exists in final form and is
// reachable from the activity host.
type ChildKey struct {
	ChildID int64
	Child   Handle
}

// AccountKey resolves against every child the account has at resolution time.
type AccountKey struct {
	AccountID int64
	Account   Handle
}

func (ConnectionRequestKey) Kind() KeyKind { return KeyKindConnectionRequest }
func (ChildKey) Kind() KeyKind             { return KeyKindChild }
func (AccountKey) Kind() KeyKind           { return KeyKindAccount }

func (k ConnectionRequestKey) Target() Handle { return k.Request }
func (k ChildKey) Target() Handle             { return k.Child }
func (k AccountKey) Target() Handle           { return k.Account }

func (ConnectionRequestKey) resolutionKey() {}
func (ChildKey) resolutionKey()             {}
func (AccountKey) resolutionKey()           {}

// PendingInvitation records an invitation intent whose target does not yet
// exist in final form. It is consumed exactly once by the resolution engine.
type PendingInvitation struct {
	ID         int64
	Handle     Handle
	ActivityID int64
	Activity   Handle
	Key        ResolutionKey
	Message    string
	CreatedAt  time.Time
}

// MarshalJSON renders the pending entry with handles only.
func (p *PendingInvitation) MarshalJSON() ([]byte, error) {
	out := struct {
		Handle    Handle    `json:"handle"`
		Activity  Handle    `json:"activity"`
		KeyKind   KeyKind   `json:"key_kind"`
		Target    Handle    `json:"target"`
		Message   string    `json:"message,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}{
		Handle:    p.Handle,
		Activity:  p.Activity,
		Message:   p.Message,
		CreatedAt: p.CreatedAt,
	}
	if p.Key != nil {
		out.KeyKind = p.Key.Kind()
		out.Target = p.Key.Target()
	}
	return json.Marshal(out)
}

// KeyColumns splits a key into its storage columns. Exactly one of the
// returned pointers is non-nil for a valid key.
func KeyColumns(key ResolutionKey) (requestID, childID, accountID *int64) {
	switch k := key.(type) {
	case ConnectionRequestKey:
		return &k.RequestID, nil, nil
	case ChildKey:
		return nil, &k.ChildID, nil
	case AccountKey:
		return nil, nil, &k.AccountID
	}
	return nil, nil, nil
}
