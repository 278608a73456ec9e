package lock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/landreg/verification-server/internal/models"
)

type lockCall struct {
	itemID  string
	staffID string
}

type fakeBackend struct {
	item    *models.Case
	getErr  error
	lockErr error
	locks   []lockCall
	unlocks []string
}

func (f *fakeBackend) GetItem(_ context.Context, _ string) (*models.Case, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.item, nil
}

func (f *fakeBackend) Lock(_ context.Context, itemID, staffID string) error {
	if f.lockErr != nil {
		return f.lockErr
	}
	f.locks = append(f.locks, lockCall{itemID: itemID, staffID: staffID})
	return nil
}

func (f *fakeBackend) Unlock(_ context.Context, itemID string) error {
	f.unlocks = append(f.unlocks, itemID)
	return nil
}

func strPtr(s string) *string { return &s }

func newCoordinator(t *testing.T, backend *fakeBackend) *Coordinator {
	return NewCoordinator(backend, zaptest.NewLogger(t).Sugar())
}

func TestHandleLocksUnlockedCase(t *testing.T) {
	backend := &fakeBackend{}
	c := newCoordinator(t, backend)

	holder, err := c.Handle(context.Background(), &models.Case{CaseID: "7", Status: models.StatusPending}, "LRTM101")
	require.NoError(t, err)

	assert.Empty(t, holder)
	assert.Equal(t, []lockCall{{itemID: "7", staffID: "LRTM101"}}, backend.locks)
}

func TestHandleOwnLock(t *testing.T) {
	backend := &fakeBackend{}
	c := newCoordinator(t, backend)

	holder, err := c.Handle(context.Background(), &models.Case{CaseID: "7", StaffID: strPtr("LRTM101")}, "LRTM101")
	require.NoError(t, err)

	assert.Empty(t, holder)
	assert.Empty(t, backend.locks)
}

func TestHandleLockedToSomeoneElse(t *testing.T) {
	backend := &fakeBackend{}
	c := newCoordinator(t, backend)

	holder, err := c.Handle(context.Background(), &models.Case{CaseID: "7", StaffID: strPtr("LRTM202")}, "LRTM101")
	require.NoError(t, err)

	assert.Equal(t, "LRTM202", holder)
	assert.Empty(t, backend.locks)
}

func TestHandlePropagatesLockFailure(t *testing.T) {
	backend := &fakeBackend{lockErr: errors.New("boom")}
	c := newCoordinator(t, backend)

	_, err := c.Handle(context.Background(), &models.Case{CaseID: "7"}, "LRTM101")
	assert.EqualError(t, err, "boom")
}

func TestCheckCorrectLockUser(t *testing.T) {
	tests := []struct {
		name     string
		staffID  *string
		user     string
		expected bool
	}{
		{name: "unlocked", staffID: nil, user: "LRTM101", expected: true},
		{name: "locked to user", staffID: strPtr("LRTM101"), user: "LRTM101", expected: true},
		{name: "locked to another user", staffID: strPtr("LRTM202"), user: "LRTM101", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{item: &models.Case{CaseID: "7", StaffID: tt.staffID}}
			ok, err := newCoordinator(t, backend).CheckCorrectLockUser(context.Background(), "7", tt.user)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
		})
	}
}

func TestCheckCorrectLockUserPropagatesError(t *testing.T) {
	backend := &fakeBackend{getErr: errors.New("unreachable")}

	ok, err := newCoordinator(t, backend).CheckCorrectLockUser(context.Background(), "7", "LRTM101")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestLockAndUnlock(t *testing.T) {
	backend := &fakeBackend{}
	c := newCoordinator(t, backend)

	require.NoError(t, c.Lock(context.Background(), "7", "LRTM101"))
	require.NoError(t, c.Unlock(context.Background(), "7"))

	assert.Equal(t, []lockCall{{itemID: "7", staffID: "LRTM101"}}, backend.locks)
	assert.Equal(t, []string{"7"}, backend.unlocks)
}
