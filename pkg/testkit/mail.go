package testkit

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/darcho/darcho/config"
	"github.com/darcho/darcho/pkg/mail"
)

// Mail is a testify mock standing in for SMTP. FakeMail accepts every
// delivery; a test wanting failures replaces ExpectedCalls.
type Mail struct {
	mock.Mock

	mu   sync.Mutex
	sent []Sent
}

// Sent is one captured message.
type Sent struct {
	To  []string
	Raw string
}

// Deliver implements mail.Transport.
func (m *Mail) Deliver(_ context.Context, _ mail.SMTP, from string, to []string, raw []byte) error {
	m.mu.Lock()
	m.sent = append(m.sent, Sent{To: to, Raw: string(raw)})
	m.mu.Unlock()
	return m.Called(from, to).Error(0)
}

// Sent returns what has been delivered so far.
func (m *Mail) Sent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sent(nil), m.sent...)
}

// SentTo returns the messages addressed to addr.
func (m *Mail) SentTo(addr string) []Sent {
	var out []Sent
	for _, s := range m.Sent() {
		for _, to := range s.To {
			if strings.EqualFold(to, addr) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// FakeMail enables mail with a mock transport for the rest of the test.
func FakeMail(t testing.TB) *Mail {
	t.Helper()
	m := &Mail{}
	m.On("Deliver", mock.Anything, mock.Anything).Return(nil).Maybe()

	config.Set("MAIL_HOST", "smtp.darcho.test")
	mail.UseTransport(m)
	t.Cleanup(func() {
		config.Set("MAIL_HOST", "")
		mail.UseTransport(nil)
	})
	return m
}
