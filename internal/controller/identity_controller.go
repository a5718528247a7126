package controller

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/unclebandit/attestation-service/internal/service"
)

type InviteConverter interface {
	ConvertInvites(ctx context.Context, userID int64, email string) (*service.BatchResult[int64], error)
}

// IdentityController receives provisioning callbacks from the identity system.
type IdentityController struct {
	Invites InviteConverter
	Log     *zap.Logger
}

// FirstLogin converts the pending invites of a newly registered user.
func (c *IdentityController) FirstLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID int64  `json:"user_id"`
		Email  string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		WriteError(w, c.Log, err)
		return
	}

	result, err := c.Invites.ConvertInvites(r.Context(), body.UserID, body.Email)
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"user_id":   body.UserID,
		"converted": result.SucceededCount(),
		"results":   result,
	})
}
