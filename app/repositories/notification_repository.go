package repositories

import (
	"context"
	"time"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/pkg/notification"
	"github.com/darcho/darcho/pkg/orm"
)

// NotificationRepository is the in-app inbox. It is also the
// notification.Store behind the "database" channel.
type NotificationRepository struct{}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{}
}

var _ notification.Store = (*NotificationRepository)(nil)

// Save writes an inbox row and returns it for broadcasting.
func (r *NotificationRepository) Save(ctx context.Context, userID uint, d notification.DatabaseData) (any, error) {
	n := &models.Notification{
		UserID:  userID,
		Type:    d.Type,
		Message: d.Message,
		Data:    models.JSONMap(d.Data),
	}
	if err := orm.DB(ctx).Create(n); err != nil {
		return nil, err
	}
	return n, nil
}

// List returns a page of the user's notifications, newest first.
func (r *NotificationRepository) List(ctx context.Context, userID uint, unreadOnly bool, page, limit int) ([]models.Notification, orm.Pagination, error) {
	q := orm.DB(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	items := []models.Notification{}
	p, err := q.Order("id DESC").Paginate(page, limit, &items)
	return items, p, err
}

// MarkRead stamps one notification. It reports false when the id is not the
// user's or was already read.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id uint, at time.Time) (bool, error) {
	n, err := orm.DB(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ? AND read_at IS NULL", id, userID).
		Update("read_at", at)
	return n > 0, err
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID uint, at time.Time) (int64, error) {
	return orm.DB(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", at)
}

func (r *NotificationRepository) Exists(ctx context.Context, userID, id uint) (bool, error) {
	return orm.DB(ctx).Model(&models.Notification{}).Where("id = ? AND user_id = ?", id, userID).Exists()
}

func (r *NotificationRepository) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	return orm.DB(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count()
}
