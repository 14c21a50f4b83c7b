package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/app/repositories"
	"github.com/darcho/darcho/config"
	"github.com/darcho/darcho/pkg/auth"
	"github.com/darcho/darcho/pkg/crypt"
	"github.com/darcho/darcho/pkg/logger"
	"github.com/darcho/darcho/pkg/orm"
	"github.com/darcho/darcho/pkg/session"
)

type AuthService struct {
	users *repositories.UserRepository
}

func NewAuthService() *AuthService {
	return &AuthService{users: repositories.NewUserRepository()}
}

// RegisterInput creates a farmer or buyer account. Profile fields for the
// other role are ignored.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,notblank,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"required,oneof=farmer buyer"`

	FarmProfile
	BuyerProfile
}

// FarmProfile is the farmer-editable part of models.Farmer.
type FarmProfile struct {
	FarmName       string  `json:"farm_name" validate:"omitempty,max=255"`
	Region         string  `json:"region" validate:"omitempty,max=64"`
	Zone           string  `json:"zone" validate:"omitempty,max=64"`
	AltitudeM      int     `json:"altitude_m" validate:"gte=0,lte=4000"`
	FarmSizeHa     float64 `json:"farm_size_ha" validate:"gte=0"`
	Certifications string  `json:"certifications" validate:"omitempty,max=255"`
	Bio            string  `json:"bio" validate:"omitempty,max=5000"`
	PayoutAccount  string  `json:"payout_account" validate:"omitempty,max=64"`
}

// BuyerProfile is the buyer-editable part of models.Buyer.
type BuyerProfile struct {
	CompanyName string `json:"company_name" validate:"omitempty,max=255"`
	BuyerType   string `json:"buyer_type" validate:"omitempty,oneof=roaster importer exporter retailer cafe"`
	Country     string `json:"country" validate:"omitempty,max=64"`
	Address     string `json:"address" validate:"omitempty,max=1000"`
}

// ProfileInput is a partial update of the caller's account.
type ProfileInput struct {
	Name  *string `json:"name" validate:"omitempty,notblank,max=255"`
	Phone *string `json:"phone" validate:"omitempty,max=32"`

	FarmName       *string  `json:"farm_name" validate:"omitempty,max=255"`
	Region         *string  `json:"region" validate:"omitempty,max=64"`
	Zone           *string  `json:"zone" validate:"omitempty,max=64"`
	AltitudeM      *int     `json:"altitude_m" validate:"omitempty,gte=0,lte=4000"`
	FarmSizeHa     *float64 `json:"farm_size_ha" validate:"omitempty,gte=0"`
	Certifications *string  `json:"certifications" validate:"omitempty,max=255"`
	Bio            *string  `json:"bio" validate:"omitempty,max=5000"`
	PayoutAccount  *string  `json:"payout_account" validate:"omitempty,max=64"`

	CompanyName *string `json:"company_name" validate:"omitempty,max=255"`
	BuyerType   *string `json:"buyer_type" validate:"omitempty,oneof=roaster importer exporter retailer cafe"`
	Country     *string `json:"country" validate:"omitempty,max=64"`
	Address     *string `json:"address" validate:"omitempty,max=1000"`
}

type PasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72,nefield=CurrentPassword"`
}

// AuthResult is returned by Login and Refresh.
type AuthResult struct {
	User      models.User `json:"user"`
	Tokens    *auth.Pair  `json:"tokens"`
	SessionID string      `json:"-"`
}

// Register creates the user and its profile in one transaction. Farmers
// start pending until an admin approves them.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (models.User, error) {
	in.Email = normalizeEmail(in.Email)
	if err := check(in); err != nil {
		return models.User{}, err
	}
	email := in.Email

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Name:     strings.TrimSpace(in.Name),
		Email:    email,
		Phone:    in.Phone,
		Password: hash,
		Role:     in.Role,
		Status:   models.StatusActive,
	}
	if in.Role == models.RoleFarmer {
		user.Status = models.StatusPending
	}

	err = orm.Transaction(ctx, func(ctx context.Context) error {
		taken, err := s.users.EmailTaken(ctx, email)
		if err != nil {
			return err
		}
		if taken {
			return fieldError("email", "The email has already been taken.")
		}
		if err := s.users.Create(ctx, &user); err != nil {
			if orm.IsDuplicate(err) {
				return fieldError("email", "The email has already been taken.")
			}
			return err
		}

		switch in.Role {
		case models.RoleFarmer:
			f := in.FarmProfile
			user.Farmer = &models.Farmer{
				UserID:         user.ID,
				FarmName:       f.FarmName,
				Region:         f.Region,
				Zone:           f.Zone,
				AltitudeM:      f.AltitudeM,
				FarmSizeHa:     f.FarmSizeHa,
				Certifications: f.Certifications,
				Bio:            f.Bio,
				PayoutAccount:  crypt.Secret(f.PayoutAccount),
			}
			return s.users.CreateFarmer(ctx, user.Farmer)
		default:
			b := in.BuyerProfile
			user.Buyer = &models.Buyer{
				UserID:      user.ID,
				CompanyName: b.CompanyName,
				BuyerType:   b.BuyerType,
				Country:     b.Country,
				Address:     b.Address,
			}
			return s.users.CreateBuyer(ctx, user.Buyer)
		}
	})
	if err != nil {
		return models.User{}, err
	}

	logger.WithCtx(ctx).Info("auth: user registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// Login checks credentials and opens a session.
func (s *AuthService) Login(ctx context.Context, email, password string, meta session.Meta) (*AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if orm.IsNotFound(err) {
			return nil, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
		}
		return nil, err
	}
	if !auth.CheckPassword(user.Password, password) {
		return nil, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}
	if user.Status == models.StatusSuspended {
		return nil, fmt.Errorf("%w: account suspended", ErrForbidden)
	}

	res, err := s.openSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user.LastLoginAt = &now
	if _, err := orm.DB(ctx).Model(&models.User{}).Where("id = ?", user.ID).Update("last_login_at", now); err != nil {
		logger.WithCtx(ctx).Warn("auth: last_login_at not saved", "user_id", user.ID, "error", err)
	}

	full, err := s.users.FindWithProfile(ctx, user.ID)
	if err == nil {
		res.User = full
	}
	logger.WithCtx(ctx).Info("auth: login", "user_id", user.ID, "session_id", res.SessionID)
	return res, nil
}

func (s *AuthService) openSession(ctx context.Context, user models.User, meta session.Meta) (*AuthResult, error) {
	rec, err := session.Create(ctx, user.ID, user.Role, meta, config.RefreshTokenTTL())
	if err != nil {
		return nil, err
	}
	pair, err := auth.IssuePair(user.ID, user.Role, rec.ID)
	if err != nil {
		_ = session.Revoke(ctx, rec.ID)
		return nil, err
	}
	return &AuthResult{User: user, Tokens: pair, SessionID: rec.ID}, nil
}

// Refresh exchanges a refresh token for a new pair. The old session is
// revoked, so a refresh token works once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta session.Meta) (*AuthResult, error) {
	claims, err := auth.Parse(refreshToken, auth.TypeRefresh)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	rec, err := session.Find(ctx, claims.SessionID())
	if err != nil || rec.UserID != claims.UserID {
		return nil, fmt.Errorf("%w: session expired", ErrUnauthorized)
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: session expired", ErrUnauthorized)
	}
	if user.Status == models.StatusSuspended {
		_ = session.Revoke(ctx, rec.ID)
		return nil, fmt.Errorf("%w: account suspended", ErrForbidden)
	}

	if err := session.Revoke(ctx, rec.ID); err != nil {
		return nil, err
	}
	return s.openSession(ctx, user, meta)
}

// Logout revokes the session the caller authenticated with.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	return session.Revoke(ctx, sessionID)
}

// Me returns the caller with its profile.
func (s *AuthService) Me(ctx context.Context, userID uint) (models.User, error) {
	user, err := s.users.FindWithProfile(ctx, userID)
	return user, notFound(err, "user")
}

// UpdateProfile applies the non-nil fields that belong to the caller's role.
func (s *AuthService) UpdateProfile(ctx context.Context, userID uint, in ProfileInput) (models.User, error) {
	if err := check(in); err != nil {
		return models.User{}, err
	}

	err := orm.Transaction(ctx, func(ctx context.Context) error {
		user, err := s.users.FindWithProfile(ctx, userID)
		if err != nil {
			return notFound(err, "user")
		}
		if in.Name != nil {
			user.Name = strings.TrimSpace(*in.Name)
		}
		if in.Phone != nil {
			user.Phone = *in.Phone
		}
		if err := s.users.Update(ctx, &user); err != nil {
			return err
		}

		switch {
		case user.Role == models.RoleFarmer && user.Farmer != nil:
			applyFarm(user.Farmer, in)
			return s.users.SaveFarmer(ctx, user.Farmer)
		case user.Role == models.RoleBuyer && user.Buyer != nil:
			applyBuyer(user.Buyer, in)
			return s.users.SaveBuyer(ctx, user.Buyer)
		}
		return nil
	})
	if err != nil {
		return models.User{}, err
	}
	return s.Me(ctx, userID)
}

func applyFarm(f *models.Farmer, in ProfileInput) {
	setString(&f.FarmName, in.FarmName)
	setString(&f.Region, in.Region)
	setString(&f.Zone, in.Zone)
	setString(&f.Certifications, in.Certifications)
	setString(&f.Bio, in.Bio)
	if in.AltitudeM != nil {
		f.AltitudeM = *in.AltitudeM
	}
	if in.FarmSizeHa != nil {
		f.FarmSizeHa = *in.FarmSizeHa
	}
	if in.PayoutAccount != nil {
		f.PayoutAccount = crypt.Secret(*in.PayoutAccount)
	}
}

func applyBuyer(b *models.Buyer, in ProfileInput) {
	setString(&b.CompanyName, in.CompanyName)
	setString(&b.BuyerType, in.BuyerType)
	setString(&b.Country, in.Country)
	setString(&b.Address, in.Address)
}

// normalizeEmail is the stored form of an address: trimmed and lower-cased.
func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// ChangePassword replaces the password and signs the user out everywhere.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, in PasswordInput) error {
	if err := check(in); err != nil {
		return err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return notFound(err, "user")
	}
	if !auth.CheckPassword(user.Password, in.CurrentPassword) {
		return fieldError("current_password", "The current password is incorrect.")
	}

	hash, err := auth.HashPassword(in.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if _, err := orm.DB(ctx).Model(&models.User{}).Where("id = ?", userID).Update("password", hash); err != nil {
		return err
	}

	n, err := session.RevokeAll(ctx, userID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return err
	}
	logger.WithCtx(ctx).Info("auth: password changed", "user_id", userID, "sessions_revoked", n)
	return nil
}
