// Copyright 2025 James Ross

// Package access implements the access-control lifecycle: the user
// status state machine, TTL activation/extension, and the pre-expiry
// warning sweep.
package access

import (
	"context"
	"fmt"
	"time"

	"github.com/adaspeas/deliveryd/internal/messenger"
	"github.com/adaspeas/deliveryd/internal/obs"
	"github.com/adaspeas/deliveryd/internal/store"
	"go.uber.org/zap"
)

// ErrDenied is returned by EnsureActive when a non-admin user may not
// proceed, wrapping a status-specific user-facing message.
type ErrDenied struct {
	Status  string
	Message string
}

func (e *ErrDenied) Error() string { return e.Message }

type Controller struct {
	store      *store.Store
	msgr       messenger.Driver
	enabled    bool
	ttlDays    int
	warnBefore time.Duration
	adminIDs   map[int64]bool
	log        *zap.Logger
}

func New(s *store.Store, msgr messenger.Driver, enabled bool, ttlDays int, warnBefore time.Duration, adminIDs []int64, log *zap.Logger) *Controller {
	set := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		set[id] = true
	}
	return &Controller{store: s, msgr: msgr, enabled: enabled, ttlDays: ttlDays, warnBefore: warnBefore, adminIDs: set, log: log}
}

func (c *Controller) IsAdmin(externalID int64) bool { return c.adminIDs[externalID] }

// EnsureActive is the gate the chat surface calls before any catalog
// read/write. It opportunistically runs the expiry sweep, then denies
// non-admin users whose status is not active.
func (c *Controller) EnsureActive(ctx context.Context, externalID int64) error {
	if !c.enabled || c.IsAdmin(externalID) {
		return nil
	}
	if _, err := c.store.ExpireUsers(ctx); err != nil {
		return fmt.Errorf("expire users: %w", err)
	}
	u, err := c.store.FetchUser(ctx, externalID)
	if err != nil {
		return err
	}
	if u.Status == store.StatusActive {
		return nil
	}
	return &ErrDenied{Status: u.Status, Message: denialMessage(u.Status)}
}

func denialMessage(status string) string {
	switch status {
	case store.StatusPending:
		return "Your access request is pending admin approval."
	case store.StatusBlocked:
		return "Your access has been blocked. Contact an admin if you believe this is a mistake."
	case store.StatusExpired:
		return "Your access has expired. Use the request command to ask for renewal."
	default:
		return "You don't have access yet. Use the request command to ask for it."
	}
}

// RequestAccess moves a guest to pending.
func (c *Controller) RequestAccess(ctx context.Context, externalID int64) error {
	u, err := c.store.FetchUser(ctx, externalID)
	if err != nil {
		return err
	}
	if u.Status != store.StatusGuest {
		return nil
	}
	return c.store.SetUserStatus(ctx, u.ID, store.StatusPending, nil)
}

// Activate grants ttlDays of access, falling back to the controller's
// default when ttlDays <= 0.
func (c *Controller) Activate(ctx context.Context, userID int64, ttlDays int) error {
	if ttlDays <= 0 {
		ttlDays = c.ttlDays
	}
	return c.store.ActivateUser(ctx, userID, ttlDays)
}

func (c *Controller) Extend(ctx context.Context, userID int64, addDays int) error {
	return c.store.ExtendUser(ctx, userID, addDays)
}

func (c *Controller) Block(ctx context.Context, userID int64) error {
	return c.store.SetUserStatus(ctx, userID, store.StatusBlocked, nil)
}

// SweepOnce expires due users then warns users approaching expiry,
// fanning out to the user and the admin set. It stamps warned_at after a
// successful send so a transient messenger error does not cost the user
// their one warning for this grant.
func (c *Controller) SweepOnce(ctx context.Context) error {
	expired, err := c.store.ExpireUsers(ctx)
	if err != nil {
		return fmt.Errorf("expire users: %w", err)
	}
	obs.AccessExpirations.Add(float64(expired))

	pending, err := c.store.UsersPendingWarning(ctx, c.warnBefore)
	if err != nil {
		return fmt.Errorf("list pending warnings: %w", err)
	}
	for _, u := range pending {
		if err := c.warnUser(ctx, u); err != nil {
			if c.log != nil {
				c.log.Warn("warning send failed", zap.Int64("user_id", u.ID), zap.Error(err))
			}
			continue
		}
		obs.AccessWarningsSent.Inc()
	}
	return nil
}

func (c *Controller) warnUser(ctx context.Context, u *store.User) error {
	text := fmt.Sprintf("Your access expires soon (at %s). Ask an admin to extend it if you still need it.", u.ExpiresAt.Time.Format(time.RFC3339))
	if err := c.msgr.SendText(ctx, u.ExternalUserID, text); err != nil {
		return err
	}
	for admin := range c.adminIDs {
		adminText := fmt.Sprintf("User %d's access expires at %s.", u.ExternalUserID, u.ExpiresAt.Time.Format(time.RFC3339))
		_ = c.msgr.SendText(ctx, admin, adminText) // best-effort fan-out
	}
	return c.store.MarkWarned(ctx, u.ID)
}
