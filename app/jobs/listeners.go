package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/app/repositories"
	"github.com/darcho/darcho/app/services"
	"github.com/darcho/darcho/pkg/event"
	"github.com/darcho/darcho/pkg/notification"
	"github.com/darcho/darcho/pkg/queue"
)

// Pusher is the live side of notifications, normally the websocket hub.
type Pusher interface {
	notification.Broadcaster
	Online(userID uint) bool
}

// Register installs the notification store and push target, the queue job
// types and the event listeners. push may be nil.
func Register(push Pusher) {
	notification.UseStore(repositories.NewNotificationRepository())
	if push != nil {
		notification.UseBroadcaster(push)
	}
	queue.Register(NotifyUser{}.JobName(), func() queue.Job { return &NotifyUser{} })

	event.Listen(event.OrderPlaced, onOrderPlaced)
	event.Listen(event.OrderStatusChanged, onOrderStatusChanged)
	event.Listen(event.FarmerApproved, onFarmerApproved)
	event.Listen(event.MessageSent, func(ctx context.Context, payload any) error {
		msg, ok := payload.(models.Message)
		if !ok {
			return unexpected(event.MessageSent, payload)
		}
		// The chat frame already reached anyone online.
		if push != nil && push.Online(msg.RecipientID) {
			return nil
		}
		return queue.Dispatch(ctx, &NotifyUser{
			UserID:  msg.RecipientID,
			Type:    event.MessageSent,
			Message: "You have a new message.",
			Data:    map[string]any{"message_id": msg.ID, "sender_id": msg.SenderID},
		})
	})
}

func unexpected(name string, payload any) error {
	return fmt.Errorf("jobs: %s: unexpected payload %T", name, payload)
}

func orderData(o models.Order) map[string]any {
	return map[string]any{
		"order_id":     o.ID,
		"reference":    o.Reference,
		"checkout_ref": o.CheckoutRef,
		"status":       o.Status,
		"total_amount": o.TotalAmount,
	}
}

func onOrderPlaced(ctx context.Context, payload any) error {
	o, ok := payload.(models.Order)
	if !ok {
		return unexpected(event.OrderPlaced, payload)
	}
	err := queue.Dispatch(ctx, &NotifyUser{
		UserID:  o.FarmerID,
		Type:    event.OrderPlaced,
		Message: fmt.Sprintf("New order %s for %.2f (%d item(s)).", o.Reference, o.TotalAmount, len(o.Items)),
		Data:    orderData(o),
		Subject: "New order " + o.Reference,
	})
	if err != nil {
		return err
	}
	return queue.Dispatch(ctx, &NotifyUser{
		UserID:  o.BuyerID,
		Type:    event.OrderPlaced,
		Message: fmt.Sprintf("Your order %s was placed and is awaiting confirmation.", o.Reference),
		Data:    orderData(o),
	})
}

// onOrderStatusChanged tells whoever did not make the change. Expiry has
// no actor and tells both sides.
func onOrderStatusChanged(ctx context.Context, payload any) error {
	ch, ok := payload.(services.OrderStatusChange)
	if !ok {
		return unexpected(event.OrderStatusChanged, payload)
	}
	o := ch.Order

	msg := fmt.Sprintf("Order %s is now %s.", o.Reference, ch.To)
	if ch.To == models.OrderCancelled && o.CancelledReason != "" {
		msg = fmt.Sprintf("Order %s was cancelled: %s.", o.Reference, strings.TrimSuffix(o.CancelledReason, "."))
	}

	var targets []uint
	switch ch.ActorID {
	case o.FarmerID:
		targets = []uint{o.BuyerID}
	case o.BuyerID:
		targets = []uint{o.FarmerID}
	default:
		targets = []uint{o.BuyerID, o.FarmerID}
	}
	for _, id := range targets {
		err := queue.Dispatch(ctx, &NotifyUser{
			UserID:  id,
			Type:    event.OrderStatusChanged,
			Message: msg,
			Data:    orderData(o),
			Subject: fmt.Sprintf("Order %s: %s", o.Reference, ch.To),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func onFarmerApproved(ctx context.Context, payload any) error {
	u, ok := payload.(models.User)
	if !ok {
		return unexpected(event.FarmerApproved, payload)
	}
	return queue.Dispatch(ctx, &NotifyUser{
		UserID:  u.ID,
		Type:    event.FarmerApproved,
		Message: "Your farm account was approved. You can now list coffee.",
		Subject: "Welcome to Darcho",
	})
}
