package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/app/repositories"
	"github.com/darcho/darcho/pkg/auth"
	"github.com/darcho/darcho/pkg/event"
	"github.com/darcho/darcho/pkg/logger"
	"github.com/darcho/darcho/pkg/orm"
	"github.com/darcho/darcho/pkg/session"
)

// AdminService is account moderation. Order and product moderation go
// through OrderService.ListAll and ProductService.Remove.
type AdminService struct {
	users *repositories.UserRepository
}

func NewAdminService() *AdminService {
	return &AdminService{users: repositories.NewUserRepository()}
}

type AdminInput struct {
	Name     string `json:"name" validate:"required,notblank,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func (s *AdminService) ListUsers(ctx context.Context, f repositories.UserFilter, page, limit int) ([]models.User, orm.Pagination, error) {
	if f.Role != "" && f.Role != models.RoleFarmer && f.Role != models.RoleBuyer && f.Role != models.RoleAdmin {
		return nil, orm.Pagination{}, fieldError("role", "The selected role is invalid.")
	}
	if f.Status != "" && f.Status != models.StatusActive && f.Status != models.StatusPending && f.Status != models.StatusSuspended {
		return nil, orm.Pagination{}, fieldError("status", "The selected status is invalid.")
	}
	return s.users.List(ctx, f, page, limit)
}

// ApproveFarmer activates a pending farmer.
func (s *AdminService) ApproveFarmer(ctx context.Context, id uint) (models.User, error) {
	user, err := s.users.FindWithProfile(ctx, id)
	if err != nil {
		return models.User{}, notFound(err, "user")
	}
	if user.Role != models.RoleFarmer {
		return models.User{}, fmt.Errorf("%w: user %d is not a farmer", ErrInvalidInput, id)
	}
	if user.Status != models.StatusPending {
		return models.User{}, fmt.Errorf("%w: farmer is %s, not pending", ErrConflict, user.Status)
	}
	if _, err := s.users.SetStatus(ctx, id, models.StatusActive); err != nil {
		return models.User{}, err
	}
	user.Status = models.StatusActive

	event.Fire(ctx, event.FarmerApproved, user)
	logger.WithCtx(ctx).Info("admin: farmer approved", "user_id", id)
	return user, nil
}

// Suspend blocks an account and ends every session it has.
func (s *AdminService) Suspend(ctx context.Context, adminID, id uint) (models.User, error) {
	if adminID == id {
		return models.User{}, fmt.Errorf("%w: you cannot suspend yourself", ErrForbidden)
	}
	user, err := s.users.FindWithProfile(ctx, id)
	if err != nil {
		return models.User{}, notFound(err, "user")
	}
	if user.Status == models.StatusSuspended {
		return user, nil
	}
	if _, err := s.users.SetStatus(ctx, id, models.StatusSuspended); err != nil {
		return models.User{}, err
	}
	user.Status = models.StatusSuspended

	revoked, err := session.RevokeAll(ctx, id)
	if err != nil {
		return user, fmt.Errorf("revoke sessions: %w", err)
	}
	logger.WithCtx(ctx).Info("admin: user suspended", "user_id", id, "by", adminID, "sessions_revoked", revoked)
	return user, nil
}

// Activate lifts a suspension. Pending farmers go through ApproveFarmer.
func (s *AdminService) Activate(ctx context.Context, id uint) (models.User, error) {
	user, err := s.users.FindWithProfile(ctx, id)
	if err != nil {
		return models.User{}, notFound(err, "user")
	}
	switch user.Status {
	case models.StatusActive:
		return user, nil
	case models.StatusPending:
		return models.User{}, fmt.Errorf("%w: pending farmers must be approved", ErrConflict)
	}
	if _, err := s.users.SetStatus(ctx, id, models.StatusActive); err != nil {
		return models.User{}, err
	}
	user.Status = models.StatusActive
	logger.WithCtx(ctx).Info("admin: user activated", "user_id", id)
	return user, nil
}

// CreateAdmin adds an active admin account.
func (s *AdminService) CreateAdmin(ctx context.Context, in AdminInput) (models.User, error) {
	in.Email = normalizeEmail(in.Email)
	if err := check(in); err != nil {
		return models.User{}, err
	}
	email := in.Email
	taken, err := s.users.EmailTaken(ctx, email)
	if err != nil {
		return models.User{}, err
	}
	if taken {
		return models.User{}, fieldError("email", "The email has already been taken.")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := models.User{
		Name:     strings.TrimSpace(in.Name),
		Email:    email,
		Password: hash,
		Role:     models.RoleAdmin,
		Status:   models.StatusActive,
	}
	if err := s.users.Create(ctx, &user); err != nil {
		if orm.IsDuplicate(err) {
			return models.User{}, fieldError("email", "The email has already been taken.")
		}
		return models.User{}, err
	}
	return user, nil
}
