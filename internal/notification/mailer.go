package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/unclebandit/attestation-service/internal/queue"
)

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers rendered messages. Real delivery lives outside this service.
type Mailer interface {
	Deliver(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	Log *zap.Logger
}

func (m *LogMailer) Deliver(ctx context.Context, msg Message) error {
	m.Log.Info("email", zap.String("to", msg.To), zap.String("subject", msg.Subject), zap.String("body", msg.Body))
	return nil
}

var templates = map[Kind]struct{ subject, body string }{
	KindCampaignLaunch: {
		"Asset attestation required: {campaign}",
		"Hi {name},\n\nThe asset attestation campaign \"{campaign}\" has started. {description}\nPlease review the assets assigned to you: {link}",
	},
	KindReminder: {
		"Reminder: asset attestation pending for {campaign}",
		"Hi {name},\n\nYour attestation for \"{campaign}\" is still open after {days} days. Please complete it: {link}",
	},
	KindEscalation: {
		"Escalation: {employee} has not completed {campaign}",
		"Hi {name},\n\n{employee} ({employee_email}) has not completed the asset attestation \"{campaign}\" after {days} days. Please follow up.",
	},
	KindInvite: {
		"Register to attest your assets for {campaign}",
		"Hi {name},\n\nYou hold assets covered by the attestation campaign \"{campaign}\". Register here to complete it: {link}",
	},
	KindCompletion: {
		"{employee} completed {campaign}",
		"Hi {name},\n\n{employee} ({employee_email}) completed their attestation for \"{campaign}\".",
	},
}

// RenderTemplate replaces {key} placeholders.
func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

// Render builds the message for a notification.
func Render(n Notification) (Message, error) {
	tpl, ok := templates[n.Kind]
	if !ok {
		return Message{}, fmt.Errorf("unknown notification kind %q", n.Kind)
	}
	name := n.RecipientName
	if name == "" {
		name = "there"
	}
	data := map[string]string{
		"name":           name,
		"campaign":       n.CampaignName,
		"description":    n.Description,
		"link":           n.Link,
		"days":           strconv.Itoa(n.DaysElapsed),
		"employee":       n.EmployeeName,
		"employee_email": n.EmployeeEmail,
	}
	return Message{
		To:      n.To,
		Subject: RenderTemplate(tpl.subject, data),
		Body:    strings.TrimSpace(RenderTemplate(tpl.body, data)),
	}, nil
}

// StartEmailSubscriber renders and delivers every notification published on topic.
func StartEmailSubscriber(q queue.Queue, topic string, mailer Mailer, log *zap.Logger) error {
	return q.Subscribe(topic, func(payload []byte) error {
		var n Notification
		if err := json.Unmarshal(payload, &n); err != nil {
			log.Warn("invalid notification payload", zap.Error(err))
			return nil // no retry
		}
		msg, err := Render(n)
		if err != nil {
			log.Warn("cannot render notification", zap.Error(err))
			return nil
		}
		if err := mailer.Deliver(context.Background(), msg); err != nil {
			log.Warn("failed to deliver email", zap.String("kind", string(n.Kind)), zap.Error(err))
			return err // retry
		}
		return nil
	})
}
