package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Counters are created eagerly so packages can use them before (or without)
// registration, e.g. in tests.
var (
	LoginSuccessTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sso_logins_success_total",
		Help: "Total number of successful logins.",
	}, []string{"service", "method"})
	LoginFailureTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sso_logins_failure_total",
		Help: "Total number of failed logins.",
	}, []string{"service", "reason"})
	ArtifactsIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sso_authorization_codes_issued_total",
		Help: "Total number of authorization codes issued.",
	})
	TokensCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sso_tokens_created_total",
		Help: "Total number of token responses issued.",
	})
	KeyRingEntriesCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sso_keyring_entries_created_total",
		Help: "Total number of key ring entries created by this process.",
	}, []string{"ring"})
	AuditEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sso_audit_events_total",
		Help: "Audit events raised, by type and name.",
	}, []string{"type", "name"})
	UserRegisteredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sso_users_registered_total",
		Help: "Total number of users registered.",
	})
)

// InitCustomMetrics registers the custom Prometheus metrics.
// It should be called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return
	}

	collectors := map[string]prometheus.Collector{
		"LoginSuccessTotal":          LoginSuccessTotal,
		"LoginFailureTotal":          LoginFailureTotal,
		"ArtifactsIssuedTotal":       ArtifactsIssuedTotal,
		"TokensCreatedTotal":         TokensCreatedTotal,
		"KeyRingEntriesCreatedTotal": KeyRingEntriesCreatedTotal,
		"AuditEventsTotal":           AuditEventsTotal,
		"UserRegisteredTotal":        UserRegisteredTotal,
	}
	for name, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msgf("Failed to register %s metric", name)
		}
	}

	log.Info().Msg("Custom Prometheus metrics registered.")
}
