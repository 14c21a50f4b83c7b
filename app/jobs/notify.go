// Package jobs turns domain events into queued notification jobs and
// registers the scheduled maintenance tasks.
package jobs

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/darcho/darcho/app/repositories"
	"github.com/darcho/darcho/pkg/logger"
	"github.com/darcho/darcho/pkg/notification"
	"github.com/darcho/darcho/pkg/orm"
)

var mailTmpl = template.Must(template.New("notification").Parse(`<!doctype html>
<html><body style="font-family:sans-serif">
<p>Hello {{.Name}},</p>
<p>{{.Message}}</p>
<p style="color:#888">Darcho coffee marketplace</p>
</body></html>`))

// NotifyUser delivers one notification to a user's inbox and open sockets.
// A non-empty Subject also sends it by mail.
type NotifyUser struct {
	UserID  uint           `json:"user_id"`
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	Subject string         `json:"subject,omitempty"`

	name string
}

func (NotifyUser) JobName() string { return "notify-user" }

func (j *NotifyUser) Handle(ctx context.Context) error {
	user, err := repositories.NewUserRepository().FindByID(ctx, j.UserID)
	if orm.IsNotFound(err) {
		logger.WithCtx(ctx).Warn("jobs: notification for missing user dropped", "user_id", j.UserID, "type", j.Type)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load user %d: %w", j.UserID, err)
	}
	j.name = user.Name
	return notification.Send(ctx, notification.Recipient{UserID: user.ID, Email: user.Email}, j)
}

func (j *NotifyUser) Via() []string {
	via := []string{notification.ChannelDatabase, notification.ChannelBroadcast}
	if j.Subject != "" {
		via = append(via, notification.ChannelMail)
	}
	return via
}

func (j *NotifyUser) ToDatabase() notification.DatabaseData {
	return notification.DatabaseData{Type: j.Type, Message: j.Message, Data: j.Data}
}

func (j *NotifyUser) ToMail() notification.MailData {
	var buf bytes.Buffer
	if err := mailTmpl.Execute(&buf, map[string]string{"Name": j.name, "Message": j.Message}); err != nil {
		logger.Error("jobs: render mail", "type", j.Type, "error", err)
		return notification.MailData{Subject: j.Subject, HTML: template.HTMLEscapeString(j.Message)}
	}
	return notification.MailData{Subject: j.Subject, HTML: buf.String()}
}
