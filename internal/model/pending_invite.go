// internal/model/pending_invite.go
package model

import "time"

type PendingInvite struct {
	ID                int64      `db:"id" json:"id"`
	CampaignID        int64      `db:"campaign_id" json:"campaign_id"`
	EmployeeEmail     string     `db:"employee_email" json:"employee_email"`
	EmployeeFirstName string     `db:"employee_first_name" json:"employee_first_name"`
	EmployeeLastName  string     `db:"employee_last_name" json:"employee_last_name"`
	InviteToken       string     `db:"invite_token" json:"-"`
	InviteSentAt      *time.Time `db:"invite_sent_at" json:"invite_sent_at,omitempty"`
	RegisteredAt      *time.Time `db:"registered_at" json:"registered_at,omitempty"`
	ConvertedRecordID *int64     `db:"converted_record_id" json:"converted_record_id,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}

// Pending reports whether the invite has not been converted yet.
func (i *PendingInvite) Pending() bool {
	return i.RegisteredAt == nil
}
