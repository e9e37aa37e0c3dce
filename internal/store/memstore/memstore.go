// Package memstore provides an in-memory implementation of the store
// interfaces. Transactions are serialized behind a single mutex and commit by
// swapping in a cloned state, so a failed transaction leaves no trace. It
// backs the service tests and local development.
package memstore

import (
	"context"
	"sync"

	"github.com/narvanalabs/playdate/internal/models"
	"github.com/narvanalabs/playdate/internal/store"
)

type state struct {
	nextID      int64
	accounts    map[int64]*models.Account
	children    map[int64]*models.Child
	requests    map[int64]*models.ConnectionRequest
	connections map[int64]*models.Connection
	activities  map[int64]*models.Activity
	invitations map[int64]*models.ActivityInvitation
	pending     map[int64]*models.PendingInvitation
	settings    map[string]string
}

func newState() *state {
	return &state{
		accounts:    make(map[int64]*models.Account),
		children:    make(map[int64]*models.Child),
		requests:    make(map[int64]*models.ConnectionRequest),
		connections: make(map[int64]*models.Connection),
		activities:  make(map[int64]*models.Activity),
		invitations: make(map[int64]*models.ActivityInvitation),
		pending:     make(map[int64]*models.PendingInvitation),
		settings:    make(map[string]string),
	}
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

func cloneMap[V any](m map[int64]*V) map[int64]*V {
	out := make(map[int64]*V, len(m))
	for k, v := range m {
		cp := *v
		out[k] = &cp
	}
	return out
}

func (s *state) clone() *state {
	settings := make(map[string]string, len(s.settings))
	for k, v := range s.settings {
		settings[k] = v
	}
	return &state{
		nextID:      s.nextID,
		accounts:    cloneMap(s.accounts),
		children:    cloneMap(s.children),
		requests:    cloneMap(s.requests),
		connections: cloneMap(s.connections),
		activities:  cloneMap(s.activities),
		invitations: cloneMap(s.invitations),
		pending:     cloneMap(s.pending),
		settings:    settings,
	}
}

// access runs fn against the state visible to a store handle.
type access func(fn func(*state) error) error

var (
	_ store.Store = (*Store)(nil)
	_ store.Store = (*txStore)(nil)
)

// Store is the root in-memory store.
type Store struct {
	mu   sync.Mutex
	data *state
}

// New creates an empty store.
func New() *Store {
	return &Store{data: newState()}
}

func (s *Store) access(fn func(*state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (s *Store) Handles() store.HandleStore             { return &handleStore{s.access} }
func (s *Store) Accounts() store.AccountStore           { return &accountStore{s.access} }
func (s *Store) Children() store.ChildStore             { return &childStore{s.access} }
func (s *Store) Requests() store.ConnectionRequestStore { return &requestStore{s.access} }
func (s *Store) Connections() store.ConnectionStore     { return &connectionStore{s.access} }
func (s *Store) Activities() store.ActivityStore        { return &activityStore{s.access} }
func (s *Store) Invitations() store.InvitationStore     { return &invitationStore{s.access} }
func (s *Store) Pending() store.PendingInvitationStore  { return &pendingStore{s.access} }
func (s *Store) Settings() store.SettingsStore          { return &settingsStore{s.access} }

// WithTx runs fn against a private copy of the state and publishes it only
// when fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	working := s.data.clone()
	tx := &txStore{data: working}
	if err := fn(tx); err != nil {
		return err
	}
	s.data = working
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// txStore is the transaction-scoped view handed to WithTx callbacks. The
// root mutex is already held, so access does not lock.
type txStore struct {
	data *state
}

func (t *txStore) access(fn func(*state) error) error {
	return fn(t.data)
}

func (t *txStore) Handles() store.HandleStore             { return &handleStore{t.access} }
func (t *txStore) Accounts() store.AccountStore           { return &accountStore{t.access} }
func (t *txStore) Children() store.ChildStore             { return &childStore{t.access} }
func (t *txStore) Requests() store.ConnectionRequestStore { return &requestStore{t.access} }
func (t *txStore) Connections() store.ConnectionStore     { return &connectionStore{t.access} }
func (t *txStore) Activities() store.ActivityStore        { return &activityStore{t.access} }
func (t *txStore) Invitations() store.InvitationStore     { return &invitationStore{t.access} }
func (t *txStore) Pending() store.PendingInvitationStore  { return &pendingStore{t.access} }
func (t *txStore) Settings() store.SettingsStore          { return &settingsStore{t.access} }

func (t *txStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	return fn(t)
}

func (t *txStore) Ping(ctx context.Context) error { return nil }
func (t *txStore) Close() error                   { return nil }

// handleOf returns the handle for a key of the given kind, or "" when unknown.
func (s *state) handleOf(kind models.Kind, id int64) models.Handle {
	switch kind {
	case models.KindAccount:
		if v, ok := s.accounts[id]; ok {
			return v.Handle
		}
	case models.KindChild:
		if v, ok := s.children[id]; ok {
			return v.Handle
		}
	case models.KindConnectionRequest:
		if v, ok := s.requests[id]; ok {
			return v.Handle
		}
	case models.KindConnection:
		if v, ok := s.connections[id]; ok {
			return v.Handle
		}
	case models.KindActivity:
		if v, ok := s.activities[id]; ok {
			return v.Handle
		}
	case models.KindInvitation:
		if v, ok := s.invitations[id]; ok {
			return v.Handle
		}
	case models.KindPendingInvitation:
		if v, ok := s.pending[id]; ok {
			return v.Handle
		}
	}
	return ""
}

type handleStore struct{ access access }

func (h *handleStore) Lookup(ctx context.Context, kind models.Kind, handle models.Handle) (int64, error) {
	if !handle.Valid() {
		return 0, models.ErrNotFound
	}
	var id int64
	err := h.access(func(s *state) error {
		for _, k := range s.keys(kind) {
			if s.handleOf(kind, k) == handle {
				id = k
				return nil
			}
		}
		return models.ErrNotFound
	})
	return id, err
}

func (h *handleStore) Handle(ctx context.Context, kind models.Kind, id int64) (models.Handle, error) {
	var handle models.Handle
	err := h.access(func(s *state) error {
		handle = s.handleOf(kind, id)
		if handle == "" {
			return models.ErrNotFound
		}
		return nil
	})
	return handle, err
}

func keysOf[V any](m map[int64]*V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func (s *state) keys(kind models.Kind) []int64 {
	switch kind {
	case models.KindAccount:
		return keysOf(s.accounts)
	case models.KindChild:
		return keysOf(s.children)
	case models.KindConnectionRequest:
		return keysOf(s.requests)
	case models.KindConnection:
		return keysOf(s.connections)
	case models.KindActivity:
		return keysOf(s.activities)
	case models.KindInvitation:
		return keysOf(s.invitations)
	case models.KindPendingInvitation:
		return keysOf(s.pending)
	}
	return nil
}

type settingsStore struct{ access access }

func (st *settingsStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := st.access(func(s *state) error {
		value = s.settings[key]
		return nil
	})
	return value, err
}

func (st *settingsStore) Set(ctx context.Context, key, value string) error {
	return st.access(func(s *state) error {
		s.settings[key] = value
		return nil
	})
}
