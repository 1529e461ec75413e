package disruptiontracker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/travigo/disruptions/pkg/ctdf"
)

type EventType string

const (
	EventTypeApply  EventType = "apply"
	EventTypeDelete EventType = "delete"
	EventTypeFeed   EventType = "feed"
)

type FeedFormat string

const (
	FeedFormatGTFSRealtime FeedFormat = "gtfs-realtime"
	FeedFormatSiriSX       FeedFormat = "siri-sx"
)

// Event is one message on the disruption queue
type Event struct {
	Type       EventType
	Source     string
	ReceivedAt time.Time

	// Set for apply
	Disruption *ctdf.Disruption `json:",omitempty"`
	// Set for delete
	DisruptionID string `json:",omitempty"`

	// Set for feed, the raw body fetched from the source
	Format  FeedFormat `json:",omitempty"`
	Payload []byte     `json:",omitempty"`
}

func (e *Event) MarshalBinary() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEvent parses a queue payload, rejecting events missing what their type needs
func DecodeEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}

	switch event.Type {
	case EventTypeApply:
		if event.Disruption == nil || event.Disruption.ID == "" {
			return nil, fmt.Errorf("apply event without disruption")
		}
	case EventTypeDelete:
		if event.DisruptionID == "" {
			return nil, fmt.Errorf("delete event without disruption id")
		}
	case EventTypeFeed:
		if len(event.Payload) == 0 {
			return nil, fmt.Errorf("feed event without payload")
		}
	default:
		return nil, fmt.Errorf("unknown event type %q", event.Type)
	}

	return &event, nil
}
