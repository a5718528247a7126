package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/attestation-service/internal/errors"
	"github.com/unclebandit/attestation-service/internal/model"
	"github.com/unclebandit/attestation-service/internal/repository"
)

// Actor is the authenticated caller as established by the auth boundary.
type Actor struct {
	UserID int64
	Email  string
	Role   string
}

func (a Actor) IsAdmin() bool {
	return a.Role == model.RoleAdmin
}

func clock(now func() time.Time) time.Time {
	if now == nil {
		return time.Now().UTC()
	}
	return now().UTC()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// writeAudit records an audit entry. A failing sink is logged for operators and
// never fails the operation being recorded.
func writeAudit(ctx context.Context, sink repository.AuditSink, log *zap.Logger, e model.AuditEntry) {
	if sink == nil {
		return
	}
	if err := sink.Log(ctx, &e); err != nil {
		log.Error("audit write failed", zap.String("action", e.Action), zap.String("entity_type", e.EntityType),
			zap.Int64("entity_id", e.EntityID), zap.Error(appErrors.NewDependency("audit", err)))
	}
}
