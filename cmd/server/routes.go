package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/unclebandit/attestation-service/internal/controller"
	"github.com/unclebandit/attestation-service/internal/handler"
)

type routes struct {
	campaigns *controller.CampaignController
	records   *controller.RecordController
	identity  *controller.IdentityController
	dashboard *handler.CampaignHandler
	views     *handler.RecordHandler
	metrics   http.Handler
	hookToken string
	log       *zap.Logger
}

func newRouter(rt routes) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(rt.log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		controller.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if rt.metrics != nil {
		r.Handle("/metrics", rt.metrics)
	}

	// Registration page, before the owner has an account
	r.Get("/invites/{token}", rt.views.InviteTokenHandler)

	r.With(controller.ServiceToken(rt.hookToken)).
		Post("/internal/identity/first-login", rt.identity.FirstLogin)

	r.Group(func(r chi.Router) {
		r.Use(controller.Identity)

		// End user
		r.Get("/me/attestations", rt.views.MyAttestationsHandler)
		r.Get("/records/{id}", rt.views.GetRecordHandler)
		r.Post("/records/{id}/assets/{assetId}/attest", rt.records.AttestAsset)
		r.Post("/records/{id}/new-assets", rt.records.AddNewAsset)
		r.Post("/records/{id}/complete", rt.records.Complete)

		// Admin
		r.Group(func(r chi.Router) {
			r.Use(controller.RequireAdmin)

			r.Post("/campaigns", rt.campaigns.CreateCampaign)
			r.Get("/campaigns", rt.dashboard.ListCampaignsHandler)
			r.Get("/campaigns/{id}", rt.dashboard.GetCampaignHandlerWithStats)
			r.Patch("/campaigns/{id}", rt.campaigns.UpdateCampaign)
			r.Delete("/campaigns/{id}", rt.campaigns.DeleteCampaign)
			r.Post("/campaigns/{id}/start", rt.campaigns.StartCampaign)
			r.Post("/campaigns/{id}/cancel", rt.campaigns.CancelCampaign)
			r.Post("/campaigns/{id}/complete", rt.campaigns.CompleteCampaign)
			r.Get("/campaigns/{id}/records", rt.dashboard.ListRecordsHandler)
			r.Get("/campaigns/{id}/invites", rt.dashboard.ListInvitesHandler)
			r.Post("/campaigns/{id}/invites/{inviteId}/resend", rt.campaigns.ResendInvite)
			r.Post("/campaigns/{id}/remind", rt.campaigns.BulkRemind)
			r.Post("/campaigns/{id}/escalate", rt.campaigns.BulkEscalate)
			r.Post("/records/{id}/remind", rt.campaigns.RemindRecord)
			r.Post("/records/{id}/escalate", rt.campaigns.EscalateRecord)
		})
	})
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
