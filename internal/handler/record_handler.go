package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/unclebandit/attestation-service/internal/controller"
	"github.com/unclebandit/attestation-service/internal/model"
	"github.com/unclebandit/attestation-service/internal/service"
)

type RecordReader interface {
	ListMyAttestations(ctx context.Context, actor service.Actor) ([]service.MyAttestation, error)
	GetRecordDetails(ctx context.Context, actor service.Actor, recordID int64) (*service.RecordDetails, error)
}

type TokenLookup interface {
	LookupToken(ctx context.Context, token string) (*model.PendingInvite, *model.Campaign, error)
}

// RecordHandler serves the end-user reads.
type RecordHandler struct {
	Records RecordReader
	Invites TokenLookup
	Log     *zap.Logger
}

func (h *RecordHandler) MyAttestationsHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := controller.ActorFrom(r.Context())
	mine, err := h.Records.ListMyAttestations(r.Context(), actor)
	if err != nil {
		controller.WriteError(w, h.Log, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, map[string]interface{}{"data": mine})
}

func (h *RecordHandler) GetRecordHandler(w http.ResponseWriter, r *http.Request) {
	id, err := controller.ParseID(r, "id")
	if err != nil {
		controller.WriteError(w, h.Log, err)
		return
	}
	actor, _ := controller.ActorFrom(r.Context())

	details, err := h.Records.GetRecordDetails(r.Context(), actor, id)
	if err != nil {
		controller.WriteError(w, h.Log, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, details)
}

// InviteTokenHandler lets the registration page show which campaign an invite belongs to.
func (h *RecordHandler) InviteTokenHandler(w http.ResponseWriter, r *http.Request) {
	inv, c, err := h.Invites.LookupToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		controller.WriteError(w, h.Log, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"email":         inv.EmployeeEmail,
		"first_name":    inv.EmployeeFirstName,
		"last_name":     inv.EmployeeLastName,
		"campaign_id":   c.ID,
		"campaign_name": c.Name,
	})
}
