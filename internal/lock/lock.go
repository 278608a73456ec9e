// Package lock coordinates the single-holder lock that staff take on a case
// before acting on it. The lock itself lives in the verification API; this
// package only decides when to take it and who holds it.
package lock

import (
	"context"

	"go.uber.org/zap"

	"github.com/landreg/verification-server/internal/models"
)

// Backend is the subset of the verification API the coordinator needs
type Backend interface {
	GetItem(ctx context.Context, itemID string) (*models.Case, error)
	Lock(ctx context.Context, itemID, staffID string) error
	Unlock(ctx context.Context, itemID string) error
}

// Coordinator takes, releases and checks case locks
type Coordinator struct {
	backend Backend
	logger  *zap.SugaredLogger
}

// NewCoordinator creates a new lock coordinator
func NewCoordinator(backend Backend, logger *zap.SugaredLogger) *Coordinator {
	return &Coordinator{backend: backend, logger: logger}
}

// Handle locks an unlocked case to the viewer. It returns "" when the viewer
// holds the lock (including one just taken) and the holder's staff id when
// somebody else does.
func (c *Coordinator) Handle(ctx context.Context, item *models.Case, viewer string) (string, error) {
	holder := item.StaffID
	switch {
	case holder == nil:
		c.logger.Infow("Locking worklist item", "case_id", item.CaseID, "staff_id", viewer)
		if err := c.backend.Lock(ctx, item.CaseID.String(), viewer); err != nil {
			return "", err
		}
		return "", nil
	case *holder == viewer:
		return "", nil
	default:
		return *holder, nil
	}
}

// CheckCorrectLockUser fetches the case afresh and reports whether user may
// act on it: true when the case is unlocked or locked to user.
func (c *Coordinator) CheckCorrectLockUser(ctx context.Context, itemID, user string) (bool, error) {
	item, err := c.backend.GetItem(ctx, itemID)
	if err != nil {
		return false, err
	}
	if item.StaffID == nil {
		return true, nil
	}
	return *item.StaffID == user, nil
}

// Lock transfers the case lock to staffID
func (c *Coordinator) Lock(ctx context.Context, itemID, staffID string) error {
	if err := c.backend.Lock(ctx, itemID, staffID); err != nil {
		return err
	}
	c.logger.Infow("Worklist item lock transferred", "case_id", itemID, "staff_id", staffID)
	return nil
}

// Unlock releases the case lock whoever holds it
func (c *Coordinator) Unlock(ctx context.Context, itemID string) error {
	if err := c.backend.Unlock(ctx, itemID); err != nil {
		return err
	}
	c.logger.Infow("Worklist item unlocked", "case_id", itemID)
	return nil
}
