// Package mail sends transactional email over SMTP.
//
// Mail is optional: with MAIL_HOST unset, Send returns ErrDisabled and the
// caller carries on.
//
//	err := mail.To(user.Email).
//	    Subject("Your order DRC-20260301-ab12cd34 was shipped").
//	    Render(orderShippedTmpl, data).
//	    Send(ctx)
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/darcho/darcho/config"
)

// ErrDisabled means MAIL_HOST is not configured.
var ErrDisabled = errors.New("mail: MAIL_HOST not configured")

// SMTP holds connection settings.
type SMTP struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

func settings() SMTP {
	return SMTP{
		Host:     config.Get("MAIL_HOST", ""),
		Port:     config.Get("MAIL_PORT", "587"),
		Username: config.Get("MAIL_USERNAME", ""),
		Password: config.Get("MAIL_PASSWORD", ""),
		From:     config.Get("MAIL_FROM", "no-reply@darcho.et"),
		FromName: config.Get("MAIL_FROM_NAME", "Darcho"),
	}
}

// Enabled reports whether mail can be sent.
func Enabled() bool { return config.Get("MAIL_HOST", "") != "" }

// Transport delivers a fully built message.
type Transport interface {
	Deliver(ctx context.Context, cfg SMTP, from string, to []string, raw []byte) error
}

var (
	transportMu sync.RWMutex
	transport   Transport = smtpTransport{}
)

// UseTransport swaps the delivery mechanism. Tests install a recorder; nil
// restores SMTP.
func UseTransport(t Transport) {
	if t == nil {
		t = smtpTransport{}
	}
	transportMu.Lock()
	defer transportMu.Unlock()
	transport = t
}

func currentTransport() Transport {
	transportMu.RLock()
	defer transportMu.RUnlock()
	return transport
}

// Message is a fluent builder for an email.
type Message struct {
	to      []string
	subject string
	body    string
	isHTML  bool
	err     error
}

// To starts a message to addresses.
func To(addresses ...string) *Message {
	return &Message{to: addresses}
}

func (m *Message) Subject(s string) *Message {
	m.subject = s
	return m
}

// HTML sets an HTML body.
func (m *Message) HTML(body string) *Message {
	m.body, m.isHTML = body, true
	return m
}

// Text sets a plain-text body.
func (m *Message) Text(body string) *Message {
	m.body, m.isHTML = body, false
	return m
}

// Render executes tmpl with data as the HTML body.
func (m *Message) Render(tmpl *template.Template, data any) *Message {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		m.err = fmt.Errorf("mail: render %s: %w", tmpl.Name(), err)
		return m
	}
	return m.HTML(buf.String())
}

// Send delivers the message.
func (m *Message) Send(ctx context.Context) error {
	if m.err != nil {
		return m.err
	}
	cfg := settings()
	if cfg.Host == "" {
		return ErrDisabled
	}
	if len(m.to) == 0 {
		return errors.New("mail: no recipients")
	}
	return currentTransport().Deliver(ctx, cfg, cfg.From, m.to, m.build(cfg))
}

func (m *Message) build(cfg SMTP) []byte {
	contentType := "text/plain"
	if m.isHTML {
		contentType = "text/html"
	}

	var b strings.Builder
	b.WriteString("From: " + mime.QEncoding.Encode("utf-8", cfg.FromName) + " <" + cfg.From + ">\r\n")
	b.WriteString("To: " + strings.Join(m.to, ", ") + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", m.subject) + "\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString(fmt.Sprintf("Content-Type: %s; charset=\"UTF-8\"\r\n", contentType))
	b.WriteString("\r\n")
	b.WriteString(m.body)
	return []byte(b.String())
}

// ─── SMTP transport ──────────────────────────────────────────────────────────

type smtpTransport struct{}

func (smtpTransport) Deliver(ctx context.Context, cfg SMTP, from string, to []string, raw []byte) error {
	addr := net.JoinHostPort(cfg.Host, cfg.Port)
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	var conn net.Conn
	var err error
	if cfg.Port == "465" {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: cfg.Host})
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("mail: dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("mail: handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok && cfg.Port != "465" {
		if err := client.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
			return fmt.Errorf("mail: starttls: %w", err)
		}
	}
	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("mail: auth: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("mail: rcpt %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
