package elastic_client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventTypeApplied  EventType = "applied"
	EventTypeRejected EventType = "rejected"
	EventTypeDeleted  EventType = "deleted"
)

// Event is one engine decision recorded for later analysis
type Event struct {
	Type         EventType
	Timestamp    time.Time
	DisruptionID string
	ImpactID     string `json:",omitempty"`
	Target       string `json:",omitempty"`
	Reason       string `json:",omitempty"`

	AffectedTrips int `json:",omitempty"`
	Impacts       int `json:",omitempty"`
}

// IndexName buckets events into weekly indexes
func IndexName(timestamp time.Time) string {
	yearNumber, weekNumber := timestamp.ISOWeek()
	return fmt.Sprintf("disruption-events-%d-%d", yearNumber, weekNumber)
}

func IndexEvent(event *Event) {
	if Client == nil {
		return
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode event")
		return
	}

	IndexRequest(IndexName(event.Timestamp), bytes.NewReader(eventJSON))
}
