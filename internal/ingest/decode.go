package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"smart-parking-backend/internal/metric"
	"smart-parking-backend/internal/model"
	"smart-parking-backend/internal/parse"
)

// Event is a validated sensor message.
type Event struct {
	SpotID int
	City   string
	Status string
}

// statusEnvelope is the structured payload variant; sensors may publish
// either a bare status string or {"status": "..."}.
type statusEnvelope struct {
	Status string `json:"status"`
}

// Decoder validates raw sensor messages against the configured city set and
// the status enumeration.
type Decoder struct {
	cities map[string]struct{}
}

// NewDecoder builds a decoder accepting the given cities.
func NewDecoder(cities []string) *Decoder {
	set := make(map[string]struct{}, len(cities))
	for _, c := range cities {
		set[c] = struct{}{}
	}
	return &Decoder{cities: set}
}

// Decode parses and validates one raw message. Any failure is a rejection;
// the caller logs it and the message has no further effect.
func (d *Decoder) Decode(topic string, payload []byte) (Event, error) {
	parsed, err := parse.ParseTopic(topic)
	if err != nil {
		metric.MessagesRejected.WithLabelValues("topic").Inc()
		return Event{}, err
	}

	if _, ok := d.cities[parsed.City]; !ok {
		metric.MessagesRejected.WithLabelValues("city").Inc()
		return Event{}, fmt.Errorf("unsupported city %q", parsed.City)
	}

	status := strings.TrimSpace(string(payload))
	if strings.HasPrefix(status, "{") {
		var env statusEnvelope
		if err := json.Unmarshal([]byte(status), &env); err == nil {
			if s := strings.TrimSpace(env.Status); s != "" {
				status = s
			}
		}
	}

	if !model.ValidStatus(status) {
		metric.MessagesRejected.WithLabelValues("status").Inc()
		return Event{}, fmt.Errorf("invalid status %q", status)
	}

	return Event{SpotID: parsed.SpotID, City: parsed.City, Status: status}, nil
}
