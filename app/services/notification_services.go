package services

import (
	"context"
	"fmt"
	"time"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/app/repositories"
	"github.com/darcho/darcho/pkg/orm"
)

type NotificationService struct {
	inbox *repositories.NotificationRepository
}

func NewNotificationService() *NotificationService {
	return &NotificationService{inbox: repositories.NewNotificationRepository()}
}

func (s *NotificationService) List(ctx context.Context, userID uint, unreadOnly bool, page, limit int) ([]models.Notification, orm.Pagination, error) {
	return s.inbox.List(ctx, userID, unreadOnly, page, limit)
}

// MarkRead marks one notification read. Marking an already read one is fine;
// someone else's is not found.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) error {
	changed, err := s.inbox.MarkRead(ctx, userID, id, time.Now())
	if err != nil || changed {
		return err
	}
	exists, err := s.inbox.Exists(ctx, userID, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: notification", ErrNotFound)
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	return s.inbox.MarkAllRead(ctx, userID, time.Now())
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	return s.inbox.UnreadCount(ctx, userID)
}
