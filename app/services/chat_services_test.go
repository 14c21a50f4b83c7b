package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/pkg/notification"
)

type recordingPush struct {
	mu     sync.Mutex
	frames map[uint][]notification.Frame
}

func (p *recordingPush) SendToUser(userID uint, frame any) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frames == nil {
		p.frames = map[uint][]notification.Frame{}
	}
	p.frames[userID] = append(p.frames[userID], frame.(notification.Frame))
	return 1
}

func TestChatSendPushesToRecipient(t *testing.T) {
	f := newFixture(t)
	farmer := f.farmer("Guji")
	buyer := f.buyer()
	p := f.product(farmer.ID, 100, 10, 1)
	push := &recordingPush{}
	svc := NewChatService(push)

	msg, err := svc.Send(f.ctx, buyer.ID, farmer.ID, MessageInput{Body: "  Is the lot still available?  ", ProductID: &p.ID})
	require.NoError(t, err)
	assert.Equal(t, "Is the lot still available?", msg.Body)
	assert.Equal(t, p.ID, *msg.ProductID)

	require.Len(t, push.frames[farmer.ID], 1)
	assert.Equal(t, "message", push.frames[farmer.ID][0].Type)
	assert.Empty(t, push.frames[buyer.ID])
}

func TestChatSendRules(t *testing.T) {
	f := newFixture(t)
	farmer := f.farmer("Guji")
	buyer, other := f.buyer(), f.buyer()
	admin := f.admin()
	suspended := f.user(models.RoleFarmer, models.StatusSuspended)
	svc := NewChatService(nil)
	hi := MessageInput{Body: "hello"}

	_, err := svc.Send(f.ctx, buyer.ID, buyer.ID, hi)
	assert.ErrorIs(t, err, ErrInvalidInput, "self")

	_, err = svc.Send(f.ctx, buyer.ID, other.ID, hi)
	assert.ErrorIs(t, err, ErrForbidden, "buyer to buyer")

	_, err = svc.Send(f.ctx, buyer.ID, suspended.ID, hi)
	assert.ErrorIs(t, err, ErrConflict, "inactive recipient")

	_, err = svc.Send(f.ctx, buyer.ID, 9999, hi)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Send(f.ctx, suspended.ID, buyer.ID, hi)
	assert.ErrorIs(t, err, ErrForbidden, "suspended sender with a socket still open")
	var stored int64
	f.db.Model(&models.Message{}).Where("sender_id = ?", suspended.ID).Count(&stored)
	assert.Zero(t, stored)

	_, err = svc.Send(f.ctx, buyer.ID, farmer.ID, MessageInput{Body: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput, "blank body")

	missing := uint(9999)
	_, err = svc.Send(f.ctx, buyer.ID, farmer.ID, MessageInput{Body: "hi", ProductID: &missing})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Send(f.ctx, admin.ID, other.ID, hi)
	assert.NoError(t, err, "admins talk to anyone")
	_, err = svc.Send(f.ctx, farmer.ID, admin.ID, hi)
	assert.NoError(t, err)
}

func TestChatThreadsAndRead(t *testing.T) {
	f := newFixture(t)
	farmer := f.farmer("Guji")
	a, b := f.buyer(), f.buyer()
	svc := NewChatService(nil)

	for _, body := range []string{"one", "two"} {
		_, err := svc.Send(f.ctx, a.ID, farmer.ID, MessageInput{Body: body})
		require.NoError(t, err)
	}
	_, err := svc.Send(f.ctx, b.ID, farmer.ID, MessageInput{Body: "three"})
	require.NoError(t, err)
	_, err = svc.Send(f.ctx, farmer.ID, a.ID, MessageInput{Body: "reply"})
	require.NoError(t, err)

	unread, err := svc.Unread(f.ctx, farmer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), unread)

	threads, err := svc.Threads(f.ctx, farmer.ID)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	byUser := map[uint]Thread{}
	for _, th := range threads {
		byUser[th.With.ID] = th
	}
	assert.Equal(t, "reply", byUser[a.ID].LastMessage.Body)
	assert.Equal(t, int64(2), byUser[a.ID].Unread)
	assert.Equal(t, "three", byUser[b.ID].LastMessage.Body)
	assert.Equal(t, models.RoleBuyer, byUser[b.ID].With.Role)

	n, err := svc.MarkRead(f.ctx, farmer.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	unread, err = svc.Unread(f.ctx, farmer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	msgs, page, err := svc.Conversation(f.ctx, farmer.ID, a.ID, 1, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, "reply", msgs[0].Body, "newest first")

	_, _, err = svc.Conversation(f.ctx, farmer.ID, 9999, 1, 10)
	assert.ErrorIs(t, err, ErrNotFound)
}
