package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/app/repositories"
	"github.com/darcho/darcho/pkg/event"
	"github.com/darcho/darcho/pkg/logger"
	"github.com/darcho/darcho/pkg/metrics"
	"github.com/darcho/darcho/pkg/notification"
	"github.com/darcho/darcho/pkg/orm"
)

type ChatService struct {
	messages *repositories.MessageRepository
	users    *repositories.UserRepository
	products *repositories.ProductRepository
	push     notification.Broadcaster
}

// NewChatService pushes new messages through push, which may be nil.
func NewChatService(push notification.Broadcaster) *ChatService {
	return &ChatService{
		messages: repositories.NewMessageRepository(),
		users:    repositories.NewUserRepository(),
		products: repositories.NewProductRepository(),
		push:     push,
	}
}

type MessageInput struct {
	Body      string `json:"body" validate:"required,notblank,max=2000"`
	ProductID *uint  `json:"product_id" validate:"omitempty,gt=0"`
}

// Participant is the public view of the other side of a thread.
type Participant struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type Thread struct {
	With        Participant    `json:"with"`
	LastMessage models.Message `json:"last_message"`
	Unread      int64          `json:"unread"`
}

// mayMessage reports whether two roles can talk. Admins talk to anyone;
// everyone else only across the buyer/farmer line.
func mayMessage(from, to string) bool {
	if from == models.RoleAdmin || to == models.RoleAdmin {
		return true
	}
	return (from == models.RoleBuyer && to == models.RoleFarmer) ||
		(from == models.RoleFarmer && to == models.RoleBuyer)
}

// Send stores a message and pushes it to the recipient's open sockets.
func (s *ChatService) Send(ctx context.Context, senderID, recipientID uint, in MessageInput) (models.Message, error) {
	if err := check(in); err != nil {
		return models.Message{}, err
	}
	if senderID == recipientID {
		return models.Message{}, fmt.Errorf("%w: you cannot message yourself", ErrInvalidInput)
	}

	sender, err := s.users.FindByID(ctx, senderID)
	if err != nil {
		return models.Message{}, notFound(err, "sender")
	}
	if sender.Status == models.StatusSuspended {
		return models.Message{}, fmt.Errorf("%w: account suspended", ErrForbidden)
	}
	recipient, err := s.users.FindByID(ctx, recipientID)
	if err != nil {
		return models.Message{}, notFound(err, "recipient")
	}
	if !recipient.IsActive() {
		return models.Message{}, fmt.Errorf("%w: %s is not accepting messages", ErrConflict, recipient.Name)
	}
	if !mayMessage(sender.Role, recipient.Role) {
		return models.Message{}, fmt.Errorf("%w: a %s cannot message a %s", ErrForbidden, sender.Role, recipient.Role)
	}
	if in.ProductID != nil {
		if _, err := s.products.Find(ctx, *in.ProductID); err != nil {
			return models.Message{}, notFound(err, "product")
		}
	}

	msg := models.Message{
		SenderID:    senderID,
		RecipientID: recipientID,
		ProductID:   in.ProductID,
		Body:        strings.TrimSpace(in.Body),
	}
	if err := s.messages.Create(ctx, &msg); err != nil {
		return models.Message{}, err
	}

	metrics.MessagesSent.Inc()
	event.Fire(ctx, event.MessageSent, msg)
	if s.push != nil {
		n := s.push.SendToUser(recipientID, notification.Frame{Type: "message", Data: msg})
		logger.WithCtx(ctx).Debug("chat: message pushed", "message_id", msg.ID, "sockets", n)
	}
	return msg, nil
}

// Threads lists one entry per counterpart, most recent first.
func (s *ChatService) Threads(ctx context.Context, userID uint) ([]Thread, error) {
	rows, err := s.messages.Threads(ctx, userID)
	if err != nil {
		return nil, err
	}
	threads := make([]Thread, 0, len(rows))
	if len(rows) == 0 {
		return threads, nil
	}

	userIDs := make([]uint, len(rows))
	msgIDs := make([]uint, len(rows))
	for i, row := range rows {
		userIDs[i], msgIDs[i] = row.OtherID, row.LastID
	}
	users, err := s.users.FindMany(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.FindMany(ctx, msgIDs)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		u := users[row.OtherID]
		threads = append(threads, Thread{
			With:        Participant{ID: row.OtherID, Name: u.Name, Role: u.Role},
			LastMessage: msgs[row.LastID],
			Unread:      row.Unread,
		})
	}
	return threads, nil
}

// Conversation pages the messages between two users, newest first.
func (s *ChatService) Conversation(ctx context.Context, userID, otherID uint, page, limit int) ([]models.Message, orm.Pagination, error) {
	if _, err := s.users.FindByID(ctx, otherID); err != nil {
		return nil, orm.Pagination{}, notFound(err, "user")
	}
	return s.messages.Conversation(ctx, userID, otherID, page, limit)
}

// MarkRead marks everything other sent to user as read.
func (s *ChatService) MarkRead(ctx context.Context, userID, otherID uint) (int64, error) {
	return s.messages.MarkRead(ctx, userID, otherID, time.Now())
}

// Unread is the user's unread message count.
func (s *ChatService) Unread(ctx context.Context, userID uint) (int64, error) {
	return s.messages.UnreadCount(ctx, userID)
}
