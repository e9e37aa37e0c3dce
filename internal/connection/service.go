// Package connection implements the connection request lifecycle between
// two children's families.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/narvanalabs/playdate/internal/identity"
	"github.com/narvanalabs/playdate/internal/models"
	"github.com/narvanalabs/playdate/internal/resolution"
	"github.com/narvanalabs/playdate/internal/skeleton"
	"github.com/narvanalabs/playdate/internal/store"
	"github.com/narvanalabs/playdate/internal/validation"
)

// Contact identifies a family that may not have registered yet.
type Contact struct {
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	ChildName string `json:"child_name"`
}

// RequestInput asks to connect FromChild with either a known child or a
// family reached by contact details.
type RequestInput struct {
	FromChild models.Handle `json:"from_child"`
	ToChild   models.Handle `json:"to_child,omitempty"`
	Contact   *Contact      `json:"contact,omitempty"`
	Message   string        `json:"message,omitempty"`
}

// AcceptResult is the outcome of accepting a request.
type AcceptResult struct {
	Request     *models.ConnectionRequest    `json:"request"`
	Connection  *models.Connection           `json:"connection"`
	Invitations []*models.ActivityInvitation `json:"invitations"`
}

// Service manages connection requests.
type Service struct {
	store     store.Store
	skeletons *skeleton.Service
	engine    *resolution.Engine
	resolver  *identity.Resolver
	logger    *slog.Logger
}

// NewService creates a connection service.
func NewService(st store.Store, skeletons *skeleton.Service, engine *resolution.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     st,
		skeletons: skeletons,
		engine:    engine,
		resolver:  identity.NewResolver(st.Handles()),
		logger:    logger.With("component", "connection"),
	}
}

// OwnedChild loads a child by handle, reporting models.ErrNotFound unless it
// belongs to the caller.
func OwnedChild(ctx context.Context, st store.Store, resolver *identity.Resolver, caller int64, h models.Handle) (*models.Child, error) {
	id, err := resolver.Child(ctx, h)
	if err != nil {
		return nil, err
	}
	c, err := st.Children().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.AccountID != caller {
		return nil, models.ErrNotFound
	}
	return c, nil
}

// Request creates a connection request from one of the caller's children.
// An existing pending request for the same pair, in either direction, is
// returned instead of creating a second one.
func (s *Service) Request(ctx context.Context, caller int64, in RequestInput) (*models.ConnectionRequest, error) {
	if (in.ToChild == "") == (in.Contact == nil) {
		return nil, &models.ValidationError{Field: "to_child", Message: "exactly one of to_child or contact is required"}
	}
	if err := validation.ValidateMessage(in.Message); err != nil {
		return nil, err
	}

	from, err := OwnedChild(ctx, s.store, s.resolver, caller, in.FromChild)
	if err != nil {
		return nil, err
	}

	var hint identity.Fingerprints
	if in.Contact != nil {
		if hint, err = identity.NewFingerprints(in.Contact.Email, in.Contact.Phone); err != nil {
			return nil, err
		}
	}

	var req *models.ConnectionRequest
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		var target *models.Child
		if in.Contact != nil {
			contact, err := s.skeletons.ResolveContact(ctx, tx, hint, in.Contact.ChildName)
			if err != nil {
				return err
			}
			if contact.Child == nil {
				return models.ErrNotFound
			}
			target = contact.Child
		} else {
			id, err := identity.NewResolver(tx.Handles()).Child(ctx, in.ToChild)
			if err != nil {
				return err
			}
			if target, err = tx.Children().Get(ctx, id); err != nil {
				return err
			}
		}

		var err error
		req, _, err = s.Open(ctx, tx, from, target, in.Message)
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// Open creates a pending request from one child to another within tx, or
// returns the pending request already linking them. Children of the same
// family cannot be connected, and an existing connection makes a request
// pointless.
func (s *Service) Open(ctx context.Context, tx store.Store, from, to *models.Child, message string) (*models.ConnectionRequest, bool, error) {
	if from.ID == to.ID || from.AccountID == to.AccountID {
		return nil, false, &models.ValidationError{Field: "to_child", Message: "cannot connect children of the same family"}
	}

	if _, err := tx.Connections().GetBetween(ctx, from.ID, to.ID); err == nil {
		return nil, false, models.ErrInvalidStateTransition
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, false, fmt.Errorf("checking existing connection: %w", err)
	}

	existing, err := tx.Requests().FindPending(ctx, from.ID, to.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, false, fmt.Errorf("checking pending requests: %w", err)
	}

	req := &models.ConnectionRequest{
		RequesterChildID:   from.ID,
		RequesterAccountID: from.AccountID,
		TargetChildID:      to.ID,
		TargetAccountID:    to.AccountID,
		Status:             models.RequestStatusPending,
		Message:            message,
	}
	if err := tx.Requests().Create(ctx, req); err != nil {
		return nil, false, fmt.Errorf("creating connection request: %w", err)
	}
	req.RequesterChild = from.Handle
	req.TargetChild = to.Handle

	s.logger.Info("connection request created",
		"request", req.Handle,
		"skeleton_target", to.IsSkeleton,
	)
	return req, true, nil
}

// Accept accepts a pending request addressed to the caller's family. The
// connection, the status change and every invitation the connection
// unlocks commit together.
func (s *Service) Accept(ctx context.Context, caller int64, request models.Handle) (*AcceptResult, error) {
	id, err := s.resolver.Request(ctx, request)
	if err != nil {
		return nil, err
	}

	var result *AcceptResult
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		req, err := s.lockAddressed(ctx, tx, caller, id)
		if err != nil {
			return err
		}

		conn, _, err := tx.Connections().GetOrCreate(ctx, req.RequesterChildID, req.TargetChildID, &req.ID)
		if err != nil {
			return fmt.Errorf("creating connection: %w", err)
		}

		now := time.Now().UTC()
		if err := tx.Requests().UpdateStatus(ctx, req.ID, models.RequestStatusAccepted, now); err != nil {
			return err
		}
		req.Status = models.RequestStatusAccepted
		req.RespondedAt = &now

		out, err := s.engine.OnConnectionAccepted(ctx, tx, resolution.ConnectionAccepted{
			RequestID:        req.ID,
			RequesterChild:   req.RequesterChildID,
			TargetChild:      req.TargetChildID,
			RequesterAccount: req.RequesterAccountID,
			TargetAccount:    req.TargetAccountID,
		})
		if err != nil {
			return err
		}

		result = &AcceptResult{Request: req, Connection: conn, Invitations: out.Invitations}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("connection request accepted",
		"request", request,
		"connection", result.Connection.Handle,
		"invitations", len(result.Invitations),
	)
	return result, nil
}

// Reject rejects a pending request addressed to the caller's family.
// Pending invitations keyed to the request are left in place.
func (s *Service) Reject(ctx context.Context, caller int64, request models.Handle) (*models.ConnectionRequest, error) {
	id, err := s.resolver.Request(ctx, request)
	if err != nil {
		return nil, err
	}

	var req *models.ConnectionRequest
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		req, err = s.lockAddressed(ctx, tx, caller, id)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.Requests().UpdateStatus(ctx, req.ID, models.RequestStatusRejected, now); err != nil {
			return err
		}
		req.Status = models.RequestStatusRejected
		req.RespondedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("connection request rejected", "request", request)
	return req, nil
}

// lockAddressed locks a request and checks that the caller is its target
// and that it is still pending.
func (s *Service) lockAddressed(ctx context.Context, tx store.Store, caller, id int64) (*models.ConnectionRequest, error) {
	req, err := tx.Requests().GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.TargetAccountID != caller {
		return nil, models.ErrNotFound
	}
	if req.Status != models.RequestStatusPending {
		return nil, models.ErrInvalidStateTransition
	}
	return req, nil
}

// ListConnections returns the connections of one of the caller's children.
func (s *Service) ListConnections(ctx context.Context, caller int64, child models.Handle) ([]*models.Connection, error) {
	c, err := OwnedChild(ctx, s.store, s.resolver, caller, child)
	if err != nil {
		return nil, err
	}
	conns, err := s.store.Connections().ListByChild(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	return conns, nil
}

// ListRequests returns the requests sent or received by one of the
// caller's children.
func (s *Service) ListRequests(ctx context.Context, caller int64, child models.Handle) ([]*models.ConnectionRequest, error) {
	c, err := OwnedChild(ctx, s.store, s.resolver, caller, child)
	if err != nil {
		return nil, err
	}
	reqs, err := s.store.Requests().ListByChild(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("listing connection requests: %w", err)
	}
	return reqs, nil
}
