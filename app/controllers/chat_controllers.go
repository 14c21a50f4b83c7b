package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/darcho/darcho/app/services"
	"github.com/darcho/darcho/pkg/ctx"
	"github.com/darcho/darcho/pkg/logger"
	"github.com/darcho/darcho/pkg/middleware"
	"github.com/darcho/darcho/pkg/sse"
	"github.com/darcho/darcho/pkg/ws"
)

const sseHeartbeat = 25 * time.Second

type ChatController struct {
	service *services.ChatService
	hub     *ws.Hub
}

// NewChatController wires inbound socket frames on hub to the chat service.
func NewChatController(hub *ws.Hub) *ChatController {
	cc := &ChatController{service: services.NewChatService(hub), hub: hub}
	hub.OnMessage = cc.onFrame
	return cc
}

// inboundFrame is what a client writes on /ws/chat.
type inboundFrame struct {
	To        uint   `json:"to"`
	Body      string `json:"body"`
	ProductID *uint  `json:"product_id"`
}

func (cc *ChatController) onFrame(ctx context.Context, c *ws.Client, data []byte) {
	var in inboundFrame
	if err := json.Unmarshal(data, &in); err != nil || in.To == 0 {
		c.Send(ws.ErrorFrame(`frames must look like {"to":id,"body":"..."}`))
		return
	}
	msg, err := cc.service.Send(ctx, c.UserID(), in.To, services.MessageInput{Body: in.Body, ProductID: in.ProductID})
	if err != nil {
		c.Send(ws.ErrorFrame(frameError(ctx, err)))
		return
	}
	// Echo to every tab of the sender.
	cc.hub.SendToUser(c.UserID(), ws.Frame{Type: "message", Data: msg})
}

func frameError(ctx context.Context, err error) string {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		fields := make([]string, 0, len(verr.Fields))
		for f := range verr.Fields {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		return verr.Fields[fields[0]]
	}
	for _, known := range []error{
		services.ErrNotFound, services.ErrForbidden, services.ErrConflict, services.ErrInvalidInput,
	} {
		if errors.Is(err, known) {
			return err.Error()
		}
	}
	logger.WithCtx(ctx).Error("chat: send failed", "error", err)
	return "message could not be sent"
}

// Socket upgrades GET /ws/chat. It is a plain handler because the upgrade
// needs the raw ResponseWriter.
func (cc *ChatController) Socket(w http.ResponseWriter, r *http.Request) {
	cc.hub.Serve(w, r, middleware.UserIDFromCtx(r.Context()))
}

// Events streams the same frames as the socket over Server-Sent Events.
func (cc *ChatController) Events(w http.ResponseWriter, r *http.Request) {
	frames, cancel := cc.hub.Subscribe(middleware.UserIDFromCtx(r.Context()))
	defer cancel()
	if err := sse.Pipe(w, r, frames, sseHeartbeat); err != nil {
		logger.WithCtx(r.Context()).Debug("sse: stream ended", "error", err)
	}
}

func (cc *ChatController) Threads(c *ctx.Context) {
	threads, err := cc.service.Threads(c.Context(), c.UserID())
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(threads)
}

func (cc *ChatController) Conversation(c *ctx.Context) {
	other, ok := id(c, "userID")
	if !ok {
		return
	}
	page, limit := c.Page()
	msgs, p, err := cc.service.Conversation(c.Context(), c.UserID(), other, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Paginated(msgs, p)
}

func (cc *ChatController) Send(c *ctx.Context) {
	other, ok := id(c, "userID")
	if !ok {
		return
	}
	var in services.MessageInput
	if !c.BindJSON(&in) {
		return
	}
	msg, err := cc.service.Send(c.Context(), c.UserID(), other, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Created(msg)
}

func (cc *ChatController) MarkRead(c *ctx.Context) {
	other, ok := id(c, "userID")
	if !ok {
		return
	}
	n, err := cc.service.MarkRead(c.Context(), c.UserID(), other)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(map[string]int64{"marked": n})
}
