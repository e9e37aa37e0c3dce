// Package activity creates activities with their joint-host copies and
// routes each invitee through the connections of each host.
package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/narvanalabs/playdate/internal/connection"
	"github.com/narvanalabs/playdate/internal/identity"
	"github.com/narvanalabs/playdate/internal/ledger"
	"github.com/narvanalabs/playdate/internal/models"
	"github.com/narvanalabs/playdate/internal/skeleton"
	"github.com/narvanalabs/playdate/internal/store"
	"github.com/narvanalabs/playdate/internal/validation"
)

// Invitee names one invitation target. Exactly one field is set.
type Invitee struct {
	Child   models.Handle       `json:"child,omitempty"`
	Account models.Handle       `json:"account,omitempty"`
	Contact *connection.Contact `json:"contact,omitempty"`
}

// CreateInput describes a new activity.
type CreateInput struct {
	HostChild   models.Handle   `json:"host_child"`
	JointHosts  []models.Handle `json:"joint_hosts,omitempty"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Location    string          `json:"location,omitempty"`
	StartsAt    time.Time       `json:"starts_at"`
	EndsAt      time.Time       `json:"ends_at"`
	Message     string          `json:"message,omitempty"`
	Invitees    []Invitee       `json:"invitees,omitempty"`
}

// CreateResult lists everything activity creation produced. The primary
// copy comes first in Activities.
type CreateResult struct {
	Activities  []*models.Activity           `json:"activities"`
	Invitations []*models.ActivityInvitation `json:"invitations"`
	Pending     []*models.PendingInvitation  `json:"pending"`
	Requests    []*models.ConnectionRequest  `json:"requests,omitempty"`
}

// Service manages activities and their invitations.
type Service struct {
	store       store.Store
	ledger      *ledger.Ledger
	skeletons   *skeleton.Service
	connections *connection.Service
	resolver    *identity.Resolver
	logger      *slog.Logger
}

// NewService creates an activity service.
func NewService(st store.Store, l *ledger.Ledger, skeletons *skeleton.Service, connections *connection.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       st,
		ledger:      l,
		skeletons:   skeletons,
		connections: connections,
		resolver:    identity.NewResolver(st.Handles()),
		logger:      logger.With("component", "activity"),
	}
}

// target is an invitee after handle and contact resolution.
type target struct {
	child   *models.Child
	account int64
	// request is set for families reached by contact that have not
	// registered; it was opened from the primary host.
	request *models.ConnectionRequest
}

// Create stores one activity copy per host and issues, per host copy, a
// direct invitation to every invitee connected to that host. Invitees
// awaiting a request with that host get a request-keyed pending entry on that
// copy. Everyone else is recorded once, on the primary copy.
func (s *Service) Create(ctx context.Context, caller int64, in CreateInput) (*CreateResult, error) {
	if err := validation.ValidateSchedule(in.Title, in.StartsAt, in.EndsAt); err != nil {
		return nil, err
	}
	if err := validation.ValidateMessage(in.Message); err != nil {
		return nil, err
	}
	if len(in.JointHosts) > validation.MaxJointHosts {
		return nil, &models.ValidationError{Field: "joint_hosts", Message: "too many joint hosts"}
	}

	primary, err := connection.OwnedChild(ctx, s.store, s.resolver, caller, in.HostChild)
	if err != nil {
		return nil, err
	}

	hints := make([]identity.Fingerprints, len(in.Invitees))
	for i, inv := range in.Invitees {
		set := 0
		for _, ok := range []bool{inv.Child != "", inv.Account != "", inv.Contact != nil} {
			if ok {
				set++
			}
		}
		if set != 1 {
			return nil, &models.ValidationError{Field: "invitees", Message: "each invitee needs exactly one of child, account or contact"}
		}
		if inv.Contact != nil {
			if hints[i], err = identity.NewFingerprints(inv.Contact.Email, inv.Contact.Phone); err != nil {
				return nil, err
			}
		}
	}

	result := &CreateResult{}
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		// A retried transaction starts over.
		*result = CreateResult{}

		hosts, err := s.hosts(ctx, tx, caller, primary, in.JointHosts)
		if err != nil {
			return err
		}

		targets := make([]target, 0, len(in.Invitees))
		for i, inv := range in.Invitees {
			t, err := s.resolveInvitee(ctx, tx, primary, inv, hints[i])
			if err != nil {
				return err
			}
			if t.request != nil {
				result.Requests = append(result.Requests, t.request)
			}
			targets = append(targets, t)
		}

		group := models.NewHandle()
		for i, host := range hosts {
			a := &models.Activity{
				GroupHandle:   group,
				HostChildID:   host.ID,
				HostAccountID: host.AccountID,
				HostChild:     host.Handle,
				IsPrimary:     i == 0,
				Title:         in.Title,
				Description:   in.Description,
				Location:      in.Location,
				StartsAt:      in.StartsAt,
				EndsAt:        in.EndsAt,
			}
			if err := tx.Activities().Create(ctx, a); err != nil {
				return fmt.Errorf("creating activity copy: %w", err)
			}
			result.Activities = append(result.Activities, a)

			for _, t := range targets {
				if err := s.route(ctx, tx, a, host, t, in.Message, result); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("activity created",
		"group", result.Activities[0].GroupHandle,
		"hosts", len(result.Activities),
		"invitations", len(result.Invitations),
		"pending", len(result.Pending),
	)
	return result, nil
}

// hosts returns the primary host followed by each joint host. A joint host
// must belong to the caller or be connected to the primary host.
func (s *Service) hosts(ctx context.Context, tx store.Store, caller int64, primary *models.Child, joint []models.Handle) ([]*models.Child, error) {
	resolver := identity.NewResolver(tx.Handles())
	hosts := []*models.Child{primary}
	seen := map[int64]bool{primary.ID: true}
	for _, h := range joint {
		id, err := resolver.Child(ctx, h)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, &models.ValidationError{Field: "joint_hosts", Message: "duplicate host"}
		}
		seen[id] = true

		c, err := tx.Children().Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if c.AccountID != caller {
			if _, err := tx.Connections().GetBetween(ctx, primary.ID, c.ID); err != nil {
				return nil, err
			}
		}
		hosts = append(hosts, c)
	}
	return hosts, nil
}

func (s *Service) resolveInvitee(ctx context.Context, tx store.Store, primary *models.Child, inv Invitee, hint identity.Fingerprints) (target, error) {
	resolver := identity.NewResolver(tx.Handles())
	switch {
	case inv.Child != "":
		id, err := resolver.Child(ctx, inv.Child)
		if err != nil {
			return target{}, err
		}
		c, err := tx.Children().Get(ctx, id)
		if err != nil {
			return target{}, err
		}
		return target{child: c, account: c.AccountID}, nil

	case inv.Account != "":
		id, err := resolver.Account(ctx, inv.Account)
		if err != nil {
			return target{}, err
		}
		return target{account: id}, nil
	}

	contact, err := s.skeletons.ResolveContact(ctx, tx, hint, inv.Contact.ChildName)
	if err != nil {
		return target{}, err
	}
	t := target{child: contact.Child, account: contact.Account.ID}
	if !contact.Account.IsSkeleton || contact.Account.ID == primary.AccountID {
		return t, nil
	}

	req, _, err := s.connections.Open(ctx, tx, primary, contact.Child, "")
	if err != nil {
		return target{}, err
	}
	t.request = req
	return t, nil
}

// route decides, for one host copy, how a target is invited.
func (s *Service) route(ctx context.Context, tx store.Store, a *models.Activity, host *models.Child, t target, message string, result *CreateResult) error {
	if t.account == host.AccountID {
		return nil
	}

	if t.request != nil {
		if !a.IsPrimary {
			return nil
		}
		return s.record(ctx, tx, a, models.ConnectionRequestKey{RequestID: t.request.ID}, message, result)
	}

	if t.child != nil {
		return s.routeChild(ctx, tx, a, host, t.child, message, result)
	}
	return s.routeAccount(ctx, tx, a, host, t.account, message, result)
}

func (s *Service) routeChild(ctx context.Context, tx store.Store, a *models.Activity, host, child *models.Child, message string, result *CreateResult) error {
	connected, err := isConnected(ctx, tx, host.ID, child.ID)
	if err != nil {
		return err
	}
	if connected {
		return s.invite(ctx, tx, a, child, message, result)
	}

	req, err := tx.Requests().FindPending(ctx, host.ID, child.ID)
	switch {
	case err == nil:
		return s.record(ctx, tx, a, models.ConnectionRequestKey{RequestID: req.ID}, message, result)
	case !errors.Is(err, models.ErrNotFound):
		return fmt.Errorf("checking pending requests: %w", err)
	}

	if !a.IsPrimary {
		return nil
	}
	return s.record(ctx, tx, a, models.ChildKey{ChildID: child.ID}, message, result)
}

func (s *Service) routeAccount(ctx context.Context, tx store.Store, a *models.Activity, host *models.Child, accountID int64, message string, result *CreateResult) error {
	children, err := tx.Children().ListByAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("listing invited family: %w", err)
	}

	invited := 0
	for _, c := range children {
		connected, err := isConnected(ctx, tx, host.ID, c.ID)
		if err != nil {
			return err
		}
		if !connected {
			continue
		}
		if err := s.invite(ctx, tx, a, c, message, result); err != nil {
			return err
		}
		invited++
	}

	if invited > 0 || !a.IsPrimary {
		return nil
	}
	return s.record(ctx, tx, a, models.AccountKey{AccountID: accountID}, message, result)
}

func (s *Service) invite(ctx context.Context, tx store.Store, a *models.Activity, child *models.Child, message string, result *CreateResult) error {
	inv := &models.ActivityInvitation{
		ActivityID:       a.ID,
		InvitedChildID:   child.ID,
		InvitedAccountID: child.AccountID,
		InviterAccountID: a.HostAccountID,
		Status:           models.InvitationStatusPending,
		Message:          message,
	}
	created, err := tx.Invitations().Create(ctx, inv)
	if err != nil {
		return fmt.Errorf("creating invitation: %w", err)
	}
	if created {
		inv.Activity = a.Handle
		inv.InvitedChild = child.Handle
		result.Invitations = append(result.Invitations, inv)
	}
	return nil
}

func (s *Service) record(ctx context.Context, tx store.Store, a *models.Activity, key models.ResolutionKey, message string, result *CreateResult) error {
	p, err := s.ledger.Record(ctx, tx, a.ID, key, message)
	if err != nil {
		return err
	}
	p.Activity = a.Handle
	result.Pending = append(result.Pending, p)
	return nil
}

func isConnected(ctx context.Context, tx store.Store, a, b int64) (bool, error) {
	_, err := tx.Connections().GetBetween(ctx, a, b)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("checking connection: %w", err)
}
