package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/unclebandit/attestation-service/internal/model"
)

// AuditSink is the append-only audit trail.
type AuditSink interface {
	Log(ctx context.Context, entry *model.AuditEntry) error
}

type AuditRepository struct {
	DB *sql.DB
}

func (r *AuditRepository) Log(ctx context.Context, e *model.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	return r.DB.QueryRowContext(ctx, `
		INSERT INTO audit_logs (action, entity_type, entity_id, entity_label, details, actor_email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, e.Action, e.EntityType, e.EntityID, e.EntityLabel, e.Details, e.ActorEmail, e.CreatedAt).Scan(&e.ID)
}

var _ AuditSink = (*AuditRepository)(nil)
