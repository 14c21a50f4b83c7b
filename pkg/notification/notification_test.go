package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darcho/darcho/config"
)

type memStore struct{ saved []DatabaseData }

func (m *memStore) Save(_ context.Context, userID uint, d DatabaseData) (any, error) {
	m.saved = append(m.saved, d)
	return map[string]any{"id": len(m.saved), "user_id": userID, "type": d.Type}, nil
}

type failingStore struct{}

func (failingStore) Save(context.Context, uint, DatabaseData) (any, error) {
	return nil, errors.New("db down")
}

type pushRecorder struct {
	user   uint
	frames []any
}

func (p *pushRecorder) SendToUser(userID uint, frame any) int {
	p.user = userID
	p.frames = append(p.frames, frame)
	return 1
}

type shipped struct{ ref string }

func (shipped) Via() []string { return []string{ChannelDatabase, ChannelBroadcast, ChannelMail} }
func (s shipped) ToDatabase() DatabaseData {
	return DatabaseData{Type: "order.shipped", Message: "Order " + s.ref + " shipped", Data: map[string]any{"reference": s.ref}}
}
func (s shipped) ToMail() MailData { return MailData{Subject: "Shipped", HTML: "<p>" + s.ref + "</p>"} }

type textOnly struct{}

func (textOnly) Via() []string { return []string{ChannelMail} }

func TestSendStoresAndBroadcasts(t *testing.T) {
	config.Set("MAIL_HOST", "")
	st := &memStore{}
	push := &pushRecorder{}
	UseStore(st)
	UseBroadcaster(push)
	t.Cleanup(func() { UseStore(nil); UseBroadcaster(nil) })

	err := Send(context.Background(), Recipient{UserID: 4, Email: "b@example.com"}, shipped{ref: "DRC-1"})
	require.NoError(t, err, "disabled mail is not an error")

	require.Len(t, st.saved, 1)
	assert.Equal(t, "order.shipped", st.saved[0].Type)

	require.Len(t, push.frames, 1)
	assert.Equal(t, uint(4), push.user)
	frame := push.frames[0].(Frame)
	assert.Equal(t, "notification", frame.Type)
	assert.Equal(t, 1, frame.Data.(map[string]any)["id"])
}

func TestSendCollectsErrors(t *testing.T) {
	UseStore(failingStore{})
	t.Cleanup(func() { UseStore(nil) })

	err := Send(context.Background(), Recipient{UserID: 1}, shipped{ref: "x"})
	assert.ErrorContains(t, err, "db down")

	err = Send(context.Background(), Recipient{UserID: 1, Email: "a@b.c"}, textOnly{})
	assert.ErrorContains(t, err, "not Mailable")
}
