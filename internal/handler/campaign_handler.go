// internal/handler/campaign_handler.go
package handler

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/unclebandit/attestation-service/internal/controller"
	"github.com/unclebandit/attestation-service/internal/model"
	"github.com/unclebandit/attestation-service/internal/service"
)

type CampaignReader interface {
	ListCampaigns(ctx context.Context, page, pageSize int, status string) ([]model.Campaign, map[string]int, error)
	GetCampaignDetailsWithStats(ctx context.Context, id int64) (*service.CampaignDetails, error)
}

type CampaignRecordReader interface {
	ListCampaignRecords(ctx context.Context, campaignID int64) ([]service.RecordView, error)
}

type InviteReader interface {
	ListInvites(ctx context.Context, campaignID int64) ([]*model.PendingInvite, error)
}

// CampaignHandler holds the dependencies for the admin dashboard reads
type CampaignHandler struct {
	Campaigns CampaignReader
	Records   CampaignRecordReader
	Invites   InviteReader
	Log       *zap.Logger
}

// ListCampaignsHandler returns a paginated list of campaigns
func (h *CampaignHandler) ListCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	pageStr := r.URL.Query().Get("page")
	pageSizeStr := r.URL.Query().Get("page_size")
	page := 1
	pageSize := 20

	if pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}
	if pageSizeStr != "" {
		if ps, err := strconv.Atoi(pageSizeStr); err == nil && ps > 0 {
			pageSize = ps
		}
	}
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := h.Campaigns.ListCampaigns(r.Context(), page, pageSize, status)
	if err != nil {
		controller.WriteError(w, h.Log, err)
		return
	}

	controller.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

// GetCampaignHandlerWithStats returns the campaign dashboard
func (h *CampaignHandler) GetCampaignHandlerWithStats(w http.ResponseWriter, r *http.Request) {
	id, err := controller.ParseID(r, "id")
	if err != nil {
		controller.WriteError(w, h.Log, err)
		return
	}

	details, err := h.Campaigns.GetCampaignDetailsWithStats(r.Context(), id)
	if err != nil {
		controller.WriteError(w, h.Log, err)
		return
	}
	h.Log.Debug("campaign dashboard", zap.Int64("campaign_id", id), zap.Any("stats", details.Stats))

	controller.WriteJSON(w, http.StatusOK, details)
}

func (h *CampaignHandler) ListRecordsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := controller.ParseID(r, "id")
	if err != nil {
		controller.WriteError(w, h.Log, err)
		return
	}

	records, err := h.Records.ListCampaignRecords(r.Context(), id)
	if err != nil {
		controller.WriteError(w, h.Log, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, map[string]interface{}{"data": records})
}

func (h *CampaignHandler) ListInvitesHandler(w http.ResponseWriter, r *http.Request) {
	id, err := controller.ParseID(r, "id")
	if err != nil {
		controller.WriteError(w, h.Log, err)
		return
	}

	invites, err := h.Invites.ListInvites(r.Context(), id)
	if err != nil {
		controller.WriteError(w, h.Log, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, map[string]interface{}{"data": invites})
}
