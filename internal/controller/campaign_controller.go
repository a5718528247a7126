// internal/controller/campaign_controller.go
package controller

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/unclebandit/attestation-service/internal/model"
	"github.com/unclebandit/attestation-service/internal/service"
)

// CampaignManager is the campaign lifecycle the admin API drives.
type CampaignManager interface {
	CreateCampaign(ctx context.Context, actor service.Actor, in service.CreateCampaignInput) (*model.Campaign, error)
	UpdateCampaign(ctx context.Context, actor service.Actor, id int64, p model.CampaignPatch) (*model.Campaign, error)
	StartCampaign(ctx context.Context, actor service.Actor, id int64) (*service.StartResult, error)
	CancelCampaign(ctx context.Context, actor service.Actor, id int64) (*model.Campaign, error)
	CompleteCampaign(ctx context.Context, actor service.Actor, id int64) (*model.Campaign, error)
	DeleteCampaign(ctx context.Context, actor service.Actor, id int64) error
}

// Nudger sends reminders and escalations.
type Nudger interface {
	RemindRecord(ctx context.Context, actor service.Actor, recordID int64) error
	EscalateRecord(ctx context.Context, actor service.Actor, recordID int64) error
	BulkRemind(ctx context.Context, actor service.Actor, campaignID int64) (*service.BatchResult[int64], error)
	BulkEscalate(ctx context.Context, actor service.Actor, campaignID int64) (*service.BatchResult[int64], error)
}

type InviteResender interface {
	ResendInvite(ctx context.Context, actor service.Actor, campaignID, inviteID int64) (*model.PendingInvite, error)
}

// CampaignController serves the administrative write endpoints.
type CampaignController struct {
	Campaigns CampaignManager
	Nudges    Nudger
	Invites   InviteResender
	Log       *zap.Logger
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body service.CreateCampaignInput
	if err := decodeBody(r, &body); err != nil {
		WriteError(w, c.Log, err)
		return
	}

	campaign, err := c.Campaigns.CreateCampaign(r.Context(), actor(r), body)
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	WriteJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r, "id")
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	var patch model.CampaignPatch
	if err := decodeBody(r, &patch); err != nil {
		WriteError(w, c.Log, err)
		return
	}

	campaign, err := c.Campaigns.UpdateCampaign(r.Context(), actor(r), id, patch)
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) StartCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r, "id")
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}

	result, err := c.Campaigns.StartCampaign(r.Context(), actor(r), id)
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (c *CampaignController) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	c.transition(w, r, c.Campaigns.CancelCampaign)
}

func (c *CampaignController) CompleteCampaign(w http.ResponseWriter, r *http.Request) {
	c.transition(w, r, c.Campaigns.CompleteCampaign)
}

func (c *CampaignController) transition(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, service.Actor, int64) (*model.Campaign, error)) {
	id, err := ParseID(r, "id")
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	campaign, err := fn(r.Context(), actor(r), id)
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r, "id")
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	if err := c.Campaigns.DeleteCampaign(r.Context(), actor(r), id); err != nil {
		WriteError(w, c.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *CampaignController) RemindRecord(w http.ResponseWriter, r *http.Request) {
	c.nudge(w, r, c.Nudges.RemindRecord)
}

func (c *CampaignController) EscalateRecord(w http.ResponseWriter, r *http.Request) {
	c.nudge(w, r, c.Nudges.EscalateRecord)
}

func (c *CampaignController) nudge(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, service.Actor, int64) error) {
	id, err := ParseID(r, "id")
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	if err := fn(r.Context(), actor(r), id); err != nil {
		WriteError(w, c.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"record_id": id, "sent": true})
}

func (c *CampaignController) BulkRemind(w http.ResponseWriter, r *http.Request) {
	c.bulk(w, r, c.Nudges.BulkRemind)
}

func (c *CampaignController) BulkEscalate(w http.ResponseWriter, r *http.Request) {
	c.bulk(w, r, c.Nudges.BulkEscalate)
}

func (c *CampaignController) bulk(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, service.Actor, int64) (*service.BatchResult[int64], error)) {
	id, err := ParseID(r, "id")
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	result, err := fn(r.Context(), actor(r), id)
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"campaign_id": id,
		"sent":        result.SucceededCount(),
		"failed":      result.FailedCount(),
		"results":     result,
	})
}

func (c *CampaignController) ResendInvite(w http.ResponseWriter, r *http.Request) {
	campaignID, err := ParseID(r, "id")
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	inviteID, err := ParseID(r, "inviteId")
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}

	inv, err := c.Invites.ResendInvite(r.Context(), actor(r), campaignID, inviteID)
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, inv)
}
