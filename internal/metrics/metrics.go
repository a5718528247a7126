package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the attestation counters. Construct with New.
type Metrics struct {
	CampaignsStarted  prometheus.Counter
	RecordsCreated    prometheus.Counter
	InvitesCreated    prometheus.Counter
	InviteConversions prometheus.Counter
	Notifications     *prometheus.CounterVec
	Promotions        *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CampaignsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attestation", Name: "campaigns_started_total",
			Help: "Campaigns moved from draft to active.",
		}),
		RecordsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attestation", Name: "records_created_total",
			Help: "Attestation records created at activation or invite conversion.",
		}),
		InvitesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attestation", Name: "invites_created_total",
			Help: "Pending invites created for unregistered asset owners.",
		}),
		InviteConversions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attestation", Name: "invite_conversions_total",
			Help: "Pending invites converted into records at first login.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attestation", Name: "notifications_total",
			Help: "Notification dispatch attempts by kind and result.",
		}, []string{"kind", "result"}),
		Promotions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attestation", Name: "new_asset_promotions_total",
			Help: "Staged new asset promotions by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.CampaignsStarted, m.RecordsCreated, m.InvitesCreated, m.InviteConversions,
		m.Notifications, m.Promotions)
	return m
}

// NewUnregistered is for tests and tools that do not expose /metrics.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
