package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/pkg/auth"
	"github.com/darcho/darcho/pkg/session"
)

var meta = session.Meta{IP: "127.0.0.1", UserAgent: "test"}

func registerBuyer(t *testing.T, f *fixture, email string) models.User {
	t.Helper()
	u, err := NewAuthService().Register(f.ctx, RegisterInput{
		Name:         "Sara",
		Email:        email,
		Password:     "secret-pass",
		Role:         models.RoleBuyer,
		BuyerProfile: BuyerProfile{CompanyName: "Addis Roasters", BuyerType: models.BuyerRoaster},
	})
	require.NoError(t, err)
	return u
}

func TestRegisterFarmerStartsPending(t *testing.T) {
	f := newFixture(t)
	u, err := NewAuthService().Register(f.ctx, RegisterInput{
		Name:        "Abebe",
		Email:       "Abebe@Farm.ET ",
		Password:    "secret-pass",
		Role:        models.RoleFarmer,
		FarmProfile: FarmProfile{FarmName: "Kochere", Region: "Yirgacheffe", PayoutAccount: "1000123"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, u.Status)
	assert.Equal(t, "abebe@farm.et", u.Email)
	require.NotNil(t, u.Farmer)
	assert.Equal(t, "Kochere", u.Farmer.FarmName)
	assert.NotEqual(t, "secret-pass", u.Password)

	me, err := NewAuthService().Me(f.ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, me.Farmer)
	assert.Equal(t, "1000123", string(me.Farmer.PayoutAccount))
}

func TestRegisterRejectsDuplicatesAndAdmins(t *testing.T) {
	f := newFixture(t)
	registerBuyer(t, f, "sara@darcho.test")

	_, err := NewAuthService().Register(f.ctx, RegisterInput{
		Name: "Other", Email: "SARA@darcho.test", Password: "secret-pass", Role: models.RoleBuyer,
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "email")

	_, err = NewAuthService().Register(f.ctx, RegisterInput{
		Name: "Root", Email: "root@darcho.test", Password: "secret-pass", Role: models.RoleAdmin,
	})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "role")
}

func TestLoginRefreshLogout(t *testing.T) {
	f := newFixture(t)
	u := registerBuyer(t, f, "sara@darcho.test")
	svc := NewAuthService()

	_, err := svc.Login(f.ctx, "sara@darcho.test", "wrong-pass", meta)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = svc.Login(f.ctx, "nobody@darcho.test", "secret-pass", meta)
	assert.ErrorIs(t, err, ErrUnauthorized)

	res, err := svc.Login(f.ctx, " Sara@darcho.test", "secret-pass", meta)
	require.NoError(t, err)
	assert.Equal(t, u.ID, res.User.ID)
	require.NotNil(t, res.Tokens)

	claims, err := auth.Parse(res.Tokens.AccessToken, auth.TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, claims.SessionID())
	_, err = session.Find(f.ctx, res.SessionID)
	require.NoError(t, err)

	refreshed, err := svc.Refresh(f.ctx, res.Tokens.RefreshToken, meta)
	require.NoError(t, err)
	assert.NotEqual(t, res.SessionID, refreshed.SessionID)

	_, err = svc.Refresh(f.ctx, res.Tokens.RefreshToken, meta)
	assert.ErrorIs(t, err, ErrUnauthorized, "a refresh token works once")

	_, err = svc.Refresh(f.ctx, refreshed.Tokens.AccessToken, meta)
	assert.ErrorIs(t, err, ErrUnauthorized, "access tokens cannot refresh")

	require.NoError(t, svc.Logout(f.ctx, refreshed.SessionID))
	_, err = session.Find(f.ctx, refreshed.SessionID)
	assert.Error(t, err)
}

func TestSuspendedUserCannotLogin(t *testing.T) {
	f := newFixture(t)
	u := registerBuyer(t, f, "sara@darcho.test")
	admin := f.admin()

	_, err := NewAdminService().Suspend(f.ctx, admin.ID, u.ID)
	require.NoError(t, err)

	_, err = NewAuthService().Login(f.ctx, "sara@darcho.test", "secret-pass", meta)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	f := newFixture(t)
	u := registerBuyer(t, f, "sara@darcho.test")
	svc := NewAuthService()

	res, err := svc.Login(f.ctx, "sara@darcho.test", "secret-pass", meta)
	require.NoError(t, err)

	err = svc.ChangePassword(f.ctx, u.ID, PasswordInput{CurrentPassword: "nope-nope", NewPassword: "new-secret-pass"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "current_password")

	require.NoError(t, svc.ChangePassword(f.ctx, u.ID, PasswordInput{CurrentPassword: "secret-pass", NewPassword: "new-secret-pass"}))
	_, err = session.Find(f.ctx, res.SessionID)
	assert.Error(t, err)

	_, err = svc.Login(f.ctx, "sara@darcho.test", "secret-pass", meta)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = svc.Login(f.ctx, "sara@darcho.test", "new-secret-pass", meta)
	assert.NoError(t, err)
}

func TestUpdateProfileOnlyTouchesOwnRole(t *testing.T) {
	f := newFixture(t)
	u := registerBuyer(t, f, "sara@darcho.test")

	name, country, farm := "Sara T.", "Kenya", "Ignored Farm"
	got, err := NewAuthService().UpdateProfile(f.ctx, u.ID, ProfileInput{Name: &name, Country: &country, FarmName: &farm})
	require.NoError(t, err)
	assert.Equal(t, "Sara T.", got.Name)
	require.NotNil(t, got.Buyer)
	assert.Equal(t, "Kenya", got.Buyer.Country)
	assert.Equal(t, "Addis Roasters", got.Buyer.CompanyName)
	assert.Nil(t, got.Farmer)
}
