package service

import (
	"time"

	"github.com/unclebandit/attestation-service/internal/model"
)

const day = 24 * time.Hour

// OverdueStatus is derived on every read and never stored.
type OverdueStatus struct {
	DaysElapsed int  `json:"days_elapsed"`
	DaysLate    int  `json:"days_late"`
	IsOverdue   bool `json:"is_overdue"`
}

// DaysElapsed counts whole days since the campaign start date, never negative.
func DaysElapsed(c *model.Campaign, now time.Time) int {
	d := now.Sub(c.StartDate)
	if d < 0 {
		return 0
	}
	return int(d / day)
}

func ComputeOverdue(rec *model.AttestationRecord, c *model.Campaign, now time.Time) OverdueStatus {
	elapsed := DaysElapsed(c, now)
	late := elapsed - c.EscalationDays
	if late < 0 {
		late = 0
	}
	return OverdueStatus{
		DaysElapsed: elapsed,
		DaysLate:    late,
		IsOverdue:   rec.Status != model.RecordStatusCompleted && late > 0,
	}
}
