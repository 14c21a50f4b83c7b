package controllers

import (
	"github.com/darcho/darcho/app/services"
	"github.com/darcho/darcho/pkg/ctx"
)

type NotificationController struct {
	service *services.NotificationService
}

func NewNotificationController() *NotificationController {
	return &NotificationController{service: services.NewNotificationService()}
}

// Index lists the inbox; ?unread=true keeps only unread entries.
func (nc *NotificationController) Index(c *ctx.Context) {
	page, limit := c.Page()
	items, p, err := nc.service.List(c.Context(), c.UserID(), c.QueryBool("unread"), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Paginated(items, p)
}

func (nc *NotificationController) MarkRead(c *ctx.Context) {
	nid, ok := id(c, "id")
	if !ok {
		return
	}
	if err := nc.service.MarkRead(c.Context(), c.UserID(), nid); err != nil {
		respondError(c, err)
		return
	}
	c.Message("Notification marked as read")
}

func (nc *NotificationController) MarkAllRead(c *ctx.Context) {
	n, err := nc.service.MarkAllRead(c.Context(), c.UserID())
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(map[string]int64{"marked": n})
}
