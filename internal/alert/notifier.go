package alert

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"gorm.io/datatypes"

	"homesentry/internal/observability"
	"homesentry/internal/realtime"
	"homesentry/internal/store"
)

// Alert is a candidate notification. Dedup decisions happen at the call
// sites (content signature, offline cooldown, the security monitor's
// notified flag); by the time Raise runs the alert is considered novel.
type Alert struct {
	Type     string
	Title    string
	Message  string
	Severity string
	Location string
	Metadata map[string]any
}

type Sender interface {
	SendAlert(to, userName, subject, message string) error
}

type Broadcaster interface {
	Broadcast(ev realtime.Event)
}

type Notifier struct {
	repo *store.Repo
	mail Sender
	hub  Broadcaster
}

func NewNotifier(repo *store.Repo, mail Sender, hub Broadcaster) *Notifier {
	return &Notifier{repo: repo, mail: mail, hub: hub}
}

// Raise persists the notification, pushes it to live viewers and emails every
// eligible recipient. Email failure never rolls back the stored row: the
// in-app alert is the primary channel, email is best effort.
func (n *Notifier) Raise(ctx context.Context, a Alert) {
	var meta datatypes.JSON
	if len(a.Metadata) > 0 {
		if b, err := json.Marshal(a.Metadata); err == nil {
			meta = datatypes.JSON(b)
		}
	}

	row := &store.Notification{
		Type:     a.Type,
		Title:    a.Title,
		Message:  a.Message,
		Severity: a.Severity,
		Location: a.Location,
		Metadata: meta,
	}
	if err := n.repo.CreateNotification(ctx, row); err != nil {
		slog.Error("notification save failed", "type", a.Type, "location", a.Location, "error", err)
		return
	}
	observability.AlertsRaised.WithLabelValues(a.Type).Inc()

	if n.hub != nil {
		n.hub.Broadcast(realtime.Event{Type: realtime.EventNotification, Room: a.Location, Data: row})
	}

	recipients, err := n.repo.NotificationRecipients(ctx)
	if err != nil {
		slog.Error("recipient lookup failed", "error", err)
		return
	}
	if len(recipients) == 0 || n.mail == nil {
		return
	}

	sent := false
	for _, u := range recipients {
		to := strings.TrimSpace(u.Email)
		if to == "" {
			continue
		}
		name := strings.TrimSpace(u.Name)
		if name == "" {
			name = "bạn"
		}
		if err := n.mail.SendAlert(to, name, a.Title, a.Message); err != nil {
			slog.Error("alert email failed", "to", to, "type", a.Type, "error", err)
			continue
		}
		sent = true
	}
	if sent {
		if err := n.repo.MarkNotificationEmailSent(ctx, row.ID); err != nil {
			slog.Error("mark email sent failed", "notification_id", row.ID, "error", err)
		}
	}
}
