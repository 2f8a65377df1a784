package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/pilab-dev/ssobridge/internal/audit"
	"github.com/pilab-dev/ssobridge/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologSink_WritesAuditLine(t *testing.T) {
	var buf bytes.Buffer
	sink := audit.NewZerologSink(&buf, "idp")

	sink.Raise(context.Background(), audit.Event{
		Type:     audit.Success,
		Name:     audit.UserLoginSuccess,
		Subject:  "42",
		Username: "alice",
		ClientID: "web",
	})

	var line struct {
		AuditEvent audit.Event `json:"audit_event"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))

	assert.Equal(t, audit.Success, line.AuditEvent.Type)
	assert.Equal(t, "user_login_success", line.AuditEvent.Name)
	assert.Equal(t, "idp", line.AuditEvent.Service)
	assert.Equal(t, "alice", line.AuditEvent.Username)
	assert.False(t, line.AuditEvent.Timestamp.IsZero())
}

func TestMulti_FansOut(t *testing.T) {
	var a, b audit.Recorder
	m := audit.Multi{&a, nil, &b}

	m.Raise(context.Background(), audit.Event{Type: audit.Failure, Name: audit.UserLoginFailure})

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Named(audit.UserLoginFailure), 1)

	a.Reset()
	assert.Empty(t, a.Events())
}

func TestMetricsSink_Counts(t *testing.T) {
	counter := metrics.AuditEventsTotal.WithLabelValues("error", audit.InvalidClient)
	before := testutil.ToFloat64(counter)

	audit.MetricsSink{}.Raise(context.Background(), audit.Event{Type: audit.Error, Name: audit.InvalidClient})

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
