package services

import "github.com/darcho/darcho/app/models"

// Event payloads. event.OrderPlaced carries a models.Order, event.MessageSent
// a models.Message and event.FarmerApproved a models.User.

// OrderStatusChange is the payload of event.OrderStatusChanged.
type OrderStatusChange struct {
	Order   models.Order
	From    string
	To      string
	ActorID uint
}
