package repositories

import (
	"context"
	"strings"

	"gorm.io/gorm/clause"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/pkg/orm"
)

// UserRepository handles database operations for users and their profiles.
type UserRepository struct{}

func NewUserRepository() *UserRepository {
	return &UserRepository{}
}

// UserFilter narrows ListUsers. Empty fields match everything.
type UserFilter struct {
	Role   string
	Status string
	Q      string
}

// FindByEmail looks up a user by address, case-insensitively.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := orm.DB(ctx).Model(&models.User{}).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user)
	return user, err
}

// FindByID looks up a user by primary key.
func (r *UserRepository) FindByID(ctx context.Context, id uint) (models.User, error) {
	var user models.User
	err := orm.DB(ctx).Model(&models.User{}).Where("id = ?", id).First(&user)
	return user, err
}

// LockForUpdate locks the user row for the rest of the transaction.
// Checkout uses it to serialise one buyer's concurrent requests.
func (r *UserRepository) LockForUpdate(ctx context.Context, id uint) error {
	var u models.User
	return orm.DB(ctx).Model(&models.User{}).ForUpdate().Select("id").Where("id = ?", id).First(&u)
}

// FindWithProfile loads the user with its farmer or buyer profile.
func (r *UserRepository) FindWithProfile(ctx context.Context, id uint) (models.User, error) {
	var user models.User
	err := orm.DB(ctx).Model(&models.User{}).
		Preload("Farmer").
		Preload("Buyer").
		Where("id = ?", id).
		First(&user)
	return user, err
}

// FindMany loads users by id, keyed by id.
func (r *UserRepository) FindMany(ctx context.Context, ids []uint) (map[uint]models.User, error) {
	out := make(map[uint]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := orm.DB(ctx).Model(&models.User{}).Where("id IN ?", ids).Get(&users); err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (r *UserRepository) EmailTaken(ctx context.Context, email string) (bool, error) {
	return orm.DB(ctx).Model(&models.User{}).Unscoped().
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		Exists()
}

// Create persists a new user record.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return orm.DB(ctx).Create(user)
}

// Update persists changes to an existing user, leaving profiles alone.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	return orm.Conn(ctx).Omit(clause.Associations).Save(user).Error
}

// SetStatus changes the account status and reports whether a row changed.
func (r *UserRepository) SetStatus(ctx context.Context, id uint, status string) (bool, error) {
	n, err := orm.DB(ctx).Model(&models.User{}).Where("id = ?", id).Update("status", status)
	return n > 0, err
}

func (r *UserRepository) CreateFarmer(ctx context.Context, f *models.Farmer) error {
	return orm.DB(ctx).Create(f)
}

func (r *UserRepository) CreateBuyer(ctx context.Context, b *models.Buyer) error {
	return orm.DB(ctx).Create(b)
}

func (r *UserRepository) SaveFarmer(ctx context.Context, f *models.Farmer) error {
	return orm.DB(ctx).Save(f)
}

func (r *UserRepository) SaveBuyer(ctx context.Context, b *models.Buyer) error {
	return orm.DB(ctx).Save(b)
}

// List returns a page of users matching f, newest first.
func (r *UserRepository) List(ctx context.Context, f UserFilter, page, limit int) ([]models.User, orm.Pagination, error) {
	q := orm.DB(ctx).Model(&models.User{}).Preload("Farmer").Preload("Buyer")
	if f.Role != "" {
		q = q.Where("role = ?", f.Role)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Q != "" {
		like := "%" + strings.ToLower(f.Q) + "%"
		q = q.Where("(LOWER(name) LIKE ? OR email LIKE ?)", like, like)
	}

	users := []models.User{}
	p, err := q.Order("id DESC").Paginate(page, limit, &users)
	return users, p, err
}

// FarmersInRegion lists active farmer profiles, optionally for one region.
func (r *UserRepository) FarmersInRegion(ctx context.Context, region string, limit int) ([]models.Farmer, error) {
	q := orm.DB(ctx).Model(&models.Farmer{}).
		Joins("JOIN users ON users.id = farmers.user_id AND users.deleted_at IS NULL").
		Where("users.status = ?", models.StatusActive)
	if region != "" {
		q = q.Where("farmers.region = ?", region)
	}
	farmers := []models.Farmer{}
	err := q.Order("farmers.id").Limit(limit).Get(&farmers)
	return farmers, err
}

// RoleStatusCount is one cell of the users-by-role-and-status table.
type RoleStatusCount struct {
	Role   string `json:"role"`
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// CountByRoleStatus counts users per role and status.
func (r *UserRepository) CountByRoleStatus(ctx context.Context) ([]RoleStatusCount, error) {
	rows := []RoleStatusCount{}
	err := orm.DB(ctx).Model(&models.User{}).
		Select("role, status, COUNT(*) AS count").
		Group("role, status").
		Order("role").
		Scan(&rows)
	return rows, err
}
