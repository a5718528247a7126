package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/attestation-service/internal/errors"
	"github.com/unclebandit/attestation-service/internal/metrics"
	"github.com/unclebandit/attestation-service/internal/queue"
)

type Kind string

const (
	KindCampaignLaunch Kind = "campaign_launch"
	KindReminder       Kind = "reminder"
	KindEscalation     Kind = "escalation"
	KindInvite         Kind = "registration_invite"
	KindCompletion     Kind = "attestation_complete"
)

// Notification is the job published for the mail worker.
type Notification struct {
	Kind          Kind   `json:"kind"`
	To            string `json:"to"`
	RecipientName string `json:"recipient_name"`
	CampaignID    int64  `json:"campaign_id"`
	CampaignName  string `json:"campaign_name"`
	Description   string `json:"description,omitempty"`
	RecordID      int64  `json:"record_id,omitempty"`
	EmployeeName  string `json:"employee_name,omitempty"`
	EmployeeEmail string `json:"employee_email,omitempty"`
	DaysElapsed   int    `json:"days_elapsed,omitempty"`
	Link          string `json:"link,omitempty"`
}

// Dispatcher sends notifications. Callers treat every error as best-effort.
type Dispatcher interface {
	Send(ctx context.Context, n Notification) error
}

// QueueDispatcher hands notifications to the mail worker through a queue.
type QueueDispatcher struct {
	Queue   queue.Queue
	Topic   string
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

func (d *QueueDispatcher) Send(ctx context.Context, n Notification) error {
	if n.To == "" {
		return d.fail(n, appErrors.NewValidation("to", "recipient email is required"))
	}
	if err := ctx.Err(); err != nil {
		return d.fail(n, err)
	}
	body, err := json.Marshal(n)
	if err != nil {
		return d.fail(n, fmt.Errorf("encode notification: %w", err))
	}
	if err := d.Queue.Publish(d.Topic, body); err != nil {
		return d.fail(n, appErrors.NewDependency("email queue", err))
	}
	d.Metrics.Notifications.WithLabelValues(string(n.Kind), "queued").Inc()
	return nil
}

func (d *QueueDispatcher) fail(n Notification, err error) error {
	d.Metrics.Notifications.WithLabelValues(string(n.Kind), "failed").Inc()
	d.Log.Warn("notification not queued", zap.String("kind", string(n.Kind)),
		zap.Int64("campaign_id", n.CampaignID), zap.Error(err))
	return err
}

var _ Dispatcher = (*QueueDispatcher)(nil)
