package audit

import (
	"context"

	"github.com/pilab-dev/ssobridge/internal/metrics"
)

// MetricsSink counts events by type and name.
type MetricsSink struct{}

func (MetricsSink) Raise(_ context.Context, e Event) {
	metrics.AuditEventsTotal.WithLabelValues(string(e.Type), e.Name).Inc()
}
