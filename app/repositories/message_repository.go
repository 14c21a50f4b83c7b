package repositories

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/pkg/orm"
)

// MessageRepository handles chat messages.
type MessageRepository struct{}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{}
}

func (r *MessageRepository) Create(ctx context.Context, m *models.Message) error {
	return orm.DB(ctx).Create(m)
}

// Conversation returns a page of messages between a and b, newest first.
func (r *MessageRepository) Conversation(ctx context.Context, a, b uint, page, limit int) ([]models.Message, orm.Pagination, error) {
	msgs := []models.Message{}
	p, err := orm.DB(ctx).Model(&models.Message{}).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)", a, b, b, a).
		Order("id DESC").
		Paginate(page, limit, &msgs)
	return msgs, p, err
}

// MarkRead stamps read_at on unread messages from other to user.
func (r *MessageRepository) MarkRead(ctx context.Context, userID, otherID uint, at time.Time) (int64, error) {
	return orm.DB(ctx).Model(&models.Message{}).
		Where("recipient_id = ? AND sender_id = ? AND read_at IS NULL", userID, otherID).
		Update("read_at", at)
}

// ThreadRow is one counterpart of a user's conversations.
type ThreadRow struct {
	OtherID uint
	LastID  uint
	Unread  int64
}

// counterpart is the other party of a message, as a SQL expression. The id
// is inlined so SELECT and GROUP BY carry the identical expression, which
// postgres and sqlserver require when grouping by a computed column.
func counterpart(userID uint) string {
	return fmt.Sprintf("CASE WHEN sender_id = %d THEN recipient_id ELSE sender_id END", userID)
}

func threadsQuery(ctx context.Context, userID uint) *gorm.DB {
	other := counterpart(userID)
	return orm.DB(ctx).Model(&models.Message{}).
		Select(other+" AS other_id, MAX(id) AS last_id, "+
			"SUM(CASE WHEN recipient_id = ? AND read_at IS NULL THEN 1 ELSE 0 END) AS unread",
			userID).
		Where("sender_id = ? OR recipient_id = ?", userID, userID).
		Raw().
		Group(other).
		Order("last_id DESC")
}

// Threads summarises the user's conversations, most recent first.
func (r *MessageRepository) Threads(ctx context.Context, userID uint) ([]ThreadRow, error) {
	var rows []ThreadRow
	err := threadsQuery(ctx, userID).Scan(&rows).Error
	return rows, err
}

// FindMany loads messages by id, keyed by id.
func (r *MessageRepository) FindMany(ctx context.Context, ids []uint) (map[uint]models.Message, error) {
	out := make(map[uint]models.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var msgs []models.Message
	if err := orm.DB(ctx).Model(&models.Message{}).Where("id IN ?", ids).Get(&msgs); err != nil {
		return nil, err
	}
	for _, m := range msgs {
		out[m.ID] = m
	}
	return out, nil
}

// UnreadCount is the number of unread messages addressed to user.
func (r *MessageRepository) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	return orm.DB(ctx).Model(&models.Message{}).
		Where("recipient_id = ? AND read_at IS NULL", userID).
		Count()
}
