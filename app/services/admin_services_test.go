package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/app/repositories"
	"github.com/darcho/darcho/pkg/event"
	"github.com/darcho/darcho/pkg/session"
)

func TestApproveFarmer(t *testing.T) {
	f := newFixture(t)
	svc := NewAdminService()
	pending := f.user(models.RoleFarmer, models.StatusPending)

	var approved []models.User
	event.Listen(event.FarmerApproved, func(_ context.Context, p any) error {
		approved = append(approved, p.(models.User))
		return nil
	})

	u, err := svc.ApproveFarmer(f.ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, u.Status)
	require.Len(t, approved, 1)
	assert.Equal(t, pending.ID, approved[0].ID)

	_, err = svc.ApproveFarmer(f.ctx, pending.ID)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = svc.ApproveFarmer(f.ctx, f.buyer().ID)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.ApproveFarmer(f.ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSuspendRevokesSessionsAndActivateRestores(t *testing.T) {
	f := newFixture(t)
	svc := NewAdminService()
	admin := f.admin()
	buyer := f.buyer()

	rec, err := session.Create(f.ctx, buyer.ID, buyer.Role, session.Meta{}, time.Hour)
	require.NoError(t, err)

	u, err := svc.Suspend(f.ctx, admin.ID, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuspended, u.Status)
	_, err = session.Find(f.ctx, rec.ID)
	assert.Error(t, err)

	u, err = svc.Activate(f.ctx, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, u.Status)
}

func TestAdminCannotSuspendSelf(t *testing.T) {
	f := newFixture(t)
	admin := f.admin()
	_, err := NewAdminService().Suspend(f.ctx, admin.ID, admin.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestActivateDoesNotApprovePendingFarmers(t *testing.T) {
	f := newFixture(t)
	pending := f.user(models.RoleFarmer, models.StatusPending)
	_, err := NewAdminService().Activate(f.ctx, pending.ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestListUsersFilters(t *testing.T) {
	f := newFixture(t)
	svc := NewAdminService()
	f.user(models.RoleFarmer, models.StatusPending)
	f.farmer("Guji")
	f.buyer()

	users, page, err := svc.ListUsers(f.ctx, repositories.UserFilter{Role: models.RoleFarmer, Status: models.StatusPending}, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
	require.Len(t, users, 1)
	assert.Equal(t, models.StatusPending, users[0].Status)

	_, _, err = svc.ListUsers(f.ctx, repositories.UserFilter{Role: "wizard"}, 1, 20)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateAdmin(t *testing.T) {
	f := newFixture(t)
	svc := NewAdminService()
	u, err := svc.CreateAdmin(f.ctx, AdminInput{Name: "Ops", Email: " Ops@Darcho.test ", Password: "long-enough"})
	require.NoError(t, err)
	assert.Equal(t, "ops@darcho.test", u.Email)
	assert.Equal(t, models.RoleAdmin, u.Role)
	assert.Equal(t, models.StatusActive, u.Status)

	_, err = svc.CreateAdmin(f.ctx, AdminInput{Name: "Ops", Email: "OPS@darcho.test", Password: "long-enough"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateAdmin(f.ctx, AdminInput{Name: "Ops", Email: "not an email", Password: "long-enough"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "email")
}
