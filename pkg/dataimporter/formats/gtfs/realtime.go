package gtfs

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/rs/zerolog/log"
	"github.com/travigo/disruptions/pkg/ctdf"
	"github.com/travigo/disruptions/pkg/util"
	"google.golang.org/protobuf/proto"
)

// Realtime decodes the service alerts of a GTFS-RT feed into disruptions
type Realtime struct {
	// Source prefixes every disruption id so alerts from different feeds never collide
	Source string

	// Production bounds active periods left open by the feed
	Production ctdf.Period

	reader io.Reader
}

// Alerts is the result of decoding one feed message
type Alerts struct {
	Timestamp   time.Time
	Disruptions []*ctdf.Disruption
	Deleted     []string
}

func (r *Realtime) ParseFile(reader io.Reader) error {
	r.reader = reader

	return nil
}

func (r *Realtime) Decode() (*Alerts, error) {
	if r.reader == nil {
		return nil, fmt.Errorf("no feed to decode")
	}

	body, err := io.ReadAll(r.reader)
	if err != nil {
		return nil, err
	}

	return r.DecodeBytes(body)
}

func (r *Realtime) DecodeBytes(body []byte) (*Alerts, error) {
	feed := gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed parsing GTFS-RT protobuf: %w", err)
	}

	alerts := &Alerts{}
	if timestamp := feed.GetHeader().GetTimestamp(); timestamp != 0 {
		alerts.Timestamp = time.Unix(int64(timestamp), 0).UTC()
	}

	ignored := 0
	for _, entity := range feed.GetEntity() {
		if entity.GetAlert() == nil {
			ignored++
			continue
		}

		id := r.disruptionID(entity.GetId())
		if entity.GetIsDeleted() {
			alerts.Deleted = append(alerts.Deleted, id)
			continue
		}

		disruption, err := r.alertDisruption(id, entity.GetAlert(), alerts.Timestamp)
		if err != nil {
			log.Warn().Err(err).Str("disruption", id).Msg("Skipping service alert")
			continue
		}
		alerts.Disruptions = append(alerts.Disruptions, disruption)
	}

	log.Info().
		Str("source", r.Source).
		Int("alerts", len(alerts.Disruptions)).
		Int("deleted", len(alerts.Deleted)).
		Int("ignored", ignored).
		Msg("Decoded GTFS-RT feed")

	return alerts, nil
}

func (r *Realtime) disruptionID(entityID string) string {
	if r.Source == "" {
		return entityID
	}
	return fmt.Sprintf("%s:%s", r.Source, entityID)
}

func (r *Realtime) alertDisruption(id string, alert *gtfs.Alert, timestamp time.Time) (*ctdf.Disruption, error) {
	targets := informedTargets(alert.GetInformedEntity())
	if len(targets) == 0 {
		return nil, fmt.Errorf("alert informs no entity")
	}

	periods := r.activePeriods(alert.GetActivePeriod())

	effect := alertEffect(alert.GetEffect())
	cause := alert.GetCause().String()

	disruption := &ctdf.Disruption{
		ID:          id,
		Contributor: r.Source,
		Cause: &ctdf.Cause{
			ID:      fmt.Sprintf("cause:%s", strings.ToLower(cause)),
			Wording: humanise(cause),
		},
		PublicationWindow: publicationWindow(periods, timestamp),
		Impacts: []*ctdf.Impact{
			{
				ID: fmt.Sprintf("%s:impact", id),
				Severity: &ctdf.Severity{
					ID:      fmt.Sprintf("severity:%s", strings.ToLower(string(effect))),
					Wording: humanise(string(effect)),
					Effect:  effect,
				},
				Targets:            targets,
				ApplicationWindows: []ctdf.ApplicationWindow{{Periods: periods}},
				Messages:           alertMessages(alert),
			},
		},
		CreatedAt: timestamp,
		UpdatedAt: timestamp,
	}

	return disruption, nil
}

// activePeriods closes open bounds on the production period
func (r *Realtime) activePeriods(timeRanges []*gtfs.TimeRange) []ctdf.Period {
	var periods []ctdf.Period

	for _, timeRange := range timeRanges {
		period := ctdf.Period{Start: r.Production.Start, End: r.Production.End}
		if timeRange.GetStart() != 0 {
			period.Start = time.Unix(int64(timeRange.GetStart()), 0).UTC()
		}
		if timeRange.GetEnd() != 0 {
			period.End = time.Unix(int64(timeRange.GetEnd()), 0).UTC()
		}
		periods = append(periods, period)
	}

	if len(periods) == 0 {
		periods = append(periods, r.Production)
	}

	return periods
}

func publicationWindow(periods []ctdf.Period, timestamp time.Time) ctdf.Period {
	var window ctdf.Period

	for _, period := range periods {
		if window.Start.IsZero() || period.Start.Before(window.Start) {
			window.Start = period.Start
		}
		if period.End.After(window.End) {
			window.End = period.End
		}
	}

	if !timestamp.IsZero() && (window.Start.IsZero() || timestamp.Before(window.Start)) {
		window.Start = timestamp
	}

	return window
}

func informedTargets(entities []*gtfs.EntitySelector) ctdf.Targets {
	var targets ctdf.Targets

	for _, entity := range entities {
		switch {
		case entity.GetTrip().GetTripId() != "":
			targets = append(targets, ctdf.TripRef{URI: entity.GetTrip().GetTripId()})
		case entity.GetStopId() != "":
			targets = append(targets, ctdf.StopPointRef{URI: entity.GetStopId()})
		case entity.GetRouteId() != "":
			targets = append(targets, ctdf.LineRef{URI: entity.GetRouteId()})
		case entity.GetAgencyId() != "":
			targets = append(targets, ctdf.NetworkRef{URI: entity.GetAgencyId()})
		}
	}

	seen := map[string]bool{}
	util.InPlaceFilter((*[]ctdf.PtObjRef)(&targets), func(target ctdf.PtObjRef) bool {
		key := target.Key().String()
		if seen[key] {
			return false
		}
		seen[key] = true
		return true
	})

	return targets
}

func alertEffect(effect gtfs.Alert_Effect) ctdf.Effect {
	switch effect {
	case gtfs.Alert_NO_SERVICE:
		return ctdf.EffectNoService
	case gtfs.Alert_REDUCED_SERVICE:
		return ctdf.EffectReducedService
	case gtfs.Alert_SIGNIFICANT_DELAYS:
		return ctdf.EffectSignificantDelays
	case gtfs.Alert_DETOUR:
		return ctdf.EffectDetour
	case gtfs.Alert_ADDITIONAL_SERVICE:
		return ctdf.EffectAdditionalService
	case gtfs.Alert_MODIFIED_SERVICE:
		return ctdf.EffectModifiedService
	case gtfs.Alert_STOP_MOVED:
		return ctdf.EffectStopMoved
	case gtfs.Alert_OTHER_EFFECT:
		return ctdf.EffectOtherEffect
	default:
		return ctdf.EffectUnknownEffect
	}
}

func alertMessages(alert *gtfs.Alert) []ctdf.Message {
	var messages []ctdf.Message

	for _, translation := range alert.GetHeaderText().GetTranslation() {
		messages = append(messages, ctdf.Message{Text: translation.GetText(), Channel: channel("title", translation.GetLanguage())})
	}
	for _, translation := range alert.GetDescriptionText().GetTranslation() {
		messages = append(messages, ctdf.Message{Text: translation.GetText(), Channel: channel("description", translation.GetLanguage())})
	}

	return messages
}

func channel(kind string, language string) string {
	if language == "" {
		return kind
	}
	return fmt.Sprintf("%s:%s", kind, language)
}

// humanise turns NO_SERVICE into "No service"
func humanise(value string) string {
	words := strings.ToLower(strings.ReplaceAll(value, "_", " "))
	if words == "" {
		return words
	}
	return strings.ToUpper(words[:1]) + words[1:]
}
