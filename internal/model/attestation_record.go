// internal/model/attestation_record.go
package model

import "time"

const (
	RecordStatusPending    = "pending"
	RecordStatusInProgress = "in_progress"
	RecordStatusCompleted  = "completed"
)

type AttestationRecord struct {
	ID               int64      `db:"id" json:"id"`
	CampaignID       int64      `db:"campaign_id" json:"campaign_id"`
	UserID           int64      `db:"user_id" json:"user_id"`
	Status           string     `db:"status" json:"status"` // pending, in_progress, completed
	StartedAt        *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ReminderSentAt   *time.Time `db:"reminder_sent_at" json:"reminder_sent_at,omitempty"`
	EscalationSentAt *time.Time `db:"escalation_sent_at" json:"escalation_sent_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}
