package audit

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ZerologSink writes every event as a JSON audit line.
type ZerologSink struct {
	logger  zerolog.Logger
	service string
	now     func() time.Time
}

// NewZerologSink writes audit lines to w, tagging them with the service name.
func NewZerologSink(w io.Writer, service string) *ZerologSink {
	return &ZerologSink{
		logger:  zerolog.New(w).With().Timestamp().Logger(),
		service: service,
		now:     time.Now,
	}
}

func (s *ZerologSink) Raise(_ context.Context, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}
	if e.Service == "" {
		e.Service = s.service
	}

	entry, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal audit event to JSON")
		s.logger.Log().
			Str("type", string(e.Type)).
			Str("name", e.Name).
			Str("subject", e.Subject).
			Msg("Audit Log (fallback)")
		return
	}

	s.logger.Log().RawJSON("audit_event", entry).Msg("")
}
