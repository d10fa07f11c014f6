package outbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// CurrentEnvelopeVersion is written by Emit when the event does not pin one.
const CurrentEnvelopeVersion = 1

// ActorRef is the user behind a transition. Sweeps and scheduled jobs emit
// with a nil actor.
type ActorRef struct {
	UserID int64  `json:"userId"`
	Role   string `json:"role,omitempty"`
}

// PayloadEnvelope wraps every outbox_events payload.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// IsSystem reports whether no user caused the event.
func (e PayloadEnvelope) IsSystem() bool {
	return e.Actor == nil
}

// DecodeEnvelope parses a stored payload and rejects envelopes the relay
// cannot publish: unknown versions, a missing event id, or empty data.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version < 1 || env.Version > CurrentEnvelopeVersion {
		return env, fmt.Errorf("unsupported envelope version %d", env.Version)
	}
	if env.EventID == "" {
		return env, fmt.Errorf("envelope missing eventId")
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return env, fmt.Errorf("envelope missing data")
	}
	env.Data = data
	return env, nil
}
