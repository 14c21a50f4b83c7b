// Package notification fans a notification out over the channels it asks
// for: "database" (in-app inbox), "broadcast" (live websocket push) and
// "mail".
//
//	type OrderShipped struct{ Order models.Order }
//	func (n OrderShipped) Via() []string { return []string{"database", "broadcast", "mail"} }
//	func (n OrderShipped) ToDatabase() notification.DatabaseData { ... }
//	func (n OrderShipped) ToMail() notification.MailData { ... }
//
//	notification.Send(ctx, notification.Recipient{UserID: 7, Email: "b@x.et"}, OrderShipped{o})
package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/darcho/darcho/pkg/logger"
	"github.com/darcho/darcho/pkg/mail"
)

const (
	ChannelDatabase  = "database"
	ChannelBroadcast = "broadcast"
	ChannelMail      = "mail"
)

// Recipient is who a notification is for.
type Recipient struct {
	UserID uint
	Email  string
}

// DatabaseData is the row written to the user's inbox.
type DatabaseData struct {
	Type    string
	Message string
	Data    map[string]any
}

// MailData is an email rendition of the notification.
type MailData struct {
	Subject string
	HTML    string
}

// Notification is the interface every notification satisfies.
type Notification interface {
	Via() []string
}

// Databaseable notifications can be stored in the inbox.
type Databaseable interface {
	ToDatabase() DatabaseData
}

// Mailable notifications can be emailed.
type Mailable interface {
	ToMail() MailData
}

// Store persists an inbox entry and returns what should be broadcast.
type Store interface {
	Save(ctx context.Context, userID uint, d DatabaseData) (any, error)
}

// Broadcaster pushes a frame to a user's open sockets.
type Broadcaster interface {
	SendToUser(userID uint, frame any) int
}

var (
	mu          sync.RWMutex
	store       Store
	broadcaster Broadcaster
)

// UseStore installs the inbox store.
func UseStore(s Store) {
	mu.Lock()
	defer mu.Unlock()
	store = s
}

// UseBroadcaster installs the live push target.
func UseBroadcaster(b Broadcaster) {
	mu.Lock()
	defer mu.Unlock()
	broadcaster = b
}

// Frame is what the websocket client receives for a notification.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Send delivers n over every channel it lists. Channel failures are
// collected; mail being disabled is not a failure.
func Send(ctx context.Context, to Recipient, n Notification) error {
	mu.RLock()
	s, b := store, broadcaster
	mu.RUnlock()

	var (
		errs   []error
		stored any
	)
	channels := n.Via()

	for _, ch := range channels {
		switch ch {
		case ChannelDatabase:
			d, ok := n.(Databaseable)
			if !ok {
				errs = append(errs, fmt.Errorf("notification: %T is not Databaseable", n))
				continue
			}
			if s == nil {
				continue
			}
			row, err := s.Save(ctx, to.UserID, d.ToDatabase())
			if err != nil {
				errs = append(errs, fmt.Errorf("notification: store: %w", err))
				continue
			}
			stored = row

		case ChannelBroadcast:
			if b == nil {
				continue
			}
			payload := stored
			if payload == nil {
				if d, ok := n.(Databaseable); ok {
					payload = d.ToDatabase()
				}
			}
			b.SendToUser(to.UserID, Frame{Type: "notification", Data: payload})

		case ChannelMail:
			m, ok := n.(Mailable)
			if !ok {
				errs = append(errs, fmt.Errorf("notification: %T is not Mailable", n))
				continue
			}
			if to.Email == "" {
				continue
			}
			md := m.ToMail()
			err := mail.To(to.Email).Subject(md.Subject).HTML(md.HTML).Send(ctx)
			if errors.Is(err, mail.ErrDisabled) {
				logger.WithCtx(ctx).Debug("notification: mail disabled, skipped", "user_id", to.UserID)
				continue
			}
			if err != nil {
				errs = append(errs, err)
			}

		default:
			errs = append(errs, fmt.Errorf("notification: unknown channel %q", ch))
		}
	}
	return errors.Join(errs...)
}
