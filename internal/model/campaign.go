// internal/model/campaign.go
package model

import (
	"time"

	"github.com/lib/pq"
)

const (
	CampaignStatusDraft     = "draft"
	CampaignStatusActive    = "active"
	CampaignStatusCompleted = "completed"
	CampaignStatusCancelled = "cancelled"
)

const (
	TargetAll       = "all"
	TargetSelected  = "selected"
	TargetCompanies = "companies"
)

type Campaign struct {
	ID               int64         `db:"id" json:"id"`
	Name             string        `db:"name" json:"name"`
	Description      string        `db:"description" json:"description"`
	StartDate        time.Time     `db:"start_date" json:"start_date"`
	EndDate          *time.Time    `db:"end_date" json:"end_date,omitempty"`
	Status           string        `db:"status" json:"status"`
	ReminderDays     int           `db:"reminder_days" json:"reminder_days"`
	EscalationDays   int           `db:"escalation_days" json:"escalation_days"`
	TargetType       string        `db:"target_type" json:"target_type"`
	TargetUserIDs    pq.Int64Array `db:"target_user_ids" json:"target_user_ids,omitempty"`
	TargetCompanyIDs pq.Int64Array `db:"target_company_ids" json:"target_company_ids,omitempty"`
	CreatedBy        string        `db:"created_by" json:"created_by"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        *time.Time    `db:"updated_at" json:"updated_at,omitempty"`
}

// CampaignPatch carries the fields an administrator may change. Nil fields are left alone.
type CampaignPatch struct {
	Name             *string    `json:"name,omitempty"`
	Description      *string    `json:"description,omitempty"`
	StartDate        *time.Time `json:"start_date,omitempty"`
	EndDate          *time.Time `json:"end_date,omitempty"`
	ReminderDays     *int       `json:"reminder_days,omitempty"`
	EscalationDays   *int       `json:"escalation_days,omitempty"`
	TargetType       *string    `json:"target_type,omitempty"`
	TargetUserIDs    []int64    `json:"target_user_ids,omitempty"`
	TargetCompanyIDs []int64    `json:"target_company_ids,omitempty"`
}
