package siri_sx

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/disruptions/pkg/ctdf"
	"golang.org/x/net/html/charset"
)

const progressClosed = "closed"

type SiriSX struct {
	// Source prefixes every disruption id
	Source string

	// Production bounds validity periods left open by the producer
	Production ctdf.Period

	reader io.Reader
}

// Situations is the result of decoding one SIRI-SX delivery
type Situations struct {
	Disruptions []*ctdf.Disruption
	Closed      []string
}

func (s *SiriSX) ParseFile(reader io.Reader) error {
	s.reader = reader

	return nil
}

func (s *SiriSX) Decode() (*Situations, error) {
	if s.reader == nil {
		return nil, fmt.Errorf("no delivery to decode")
	}

	situations := &Situations{}
	var retrievedRecords int64

	d := xml.NewDecoder(s.reader)
	d.CharsetReader = charset.NewReaderLabel
	for {
		tok, err := d.Token()
		if err == io.EOF {
			// EOF means we're done.
			break
		} else if err != nil {
			return nil, fmt.Errorf("error decoding token: %w", err)
		}

		switch ty := tok.(type) {
		case xml.StartElement:
			if ty.Name.Local == "PtSituationElement" {
				var situationElement SituationElement

				if err = d.DecodeElement(&situationElement, &ty); err != nil {
					return nil, fmt.Errorf("error decoding situation: %w", err)
				}
				retrievedRecords += 1

				id := s.disruptionID(situationElement.SituationNumber)
				if strings.EqualFold(situationElement.Progress, progressClosed) {
					situations.Closed = append(situations.Closed, id)
					continue
				}

				disruption, err := s.situationDisruption(id, &situationElement)
				if err != nil {
					log.Warn().Err(err).Str("disruption", id).Msg("Skipping situation")
					continue
				}
				situations.Disruptions = append(situations.Disruptions, disruption)
			}
		}
	}

	log.Info().
		Int64("retrieved", retrievedRecords).
		Int("open", len(situations.Disruptions)).
		Int("closed", len(situations.Closed)).
		Msg("Parsed latest Siri-SX response")

	return situations, nil
}

func (s *SiriSX) disruptionID(situationNumber string) string {
	if s.Source == "" {
		return situationNumber
	}
	return fmt.Sprintf("%s:%s", s.Source, situationNumber)
}

func (s *SiriSX) situationDisruption(id string, situation *SituationElement) (*ctdf.Disruption, error) {
	if situation.SituationNumber == "" {
		return nil, fmt.Errorf("situation has no number")
	}

	var periods []ctdf.Period
	for _, validityPeriod := range situation.ValidityPeriod {
		period, err := s.period(validityPeriod)
		if err != nil {
			return nil, err
		}
		periods = append(periods, period)
	}
	if len(periods) == 0 {
		periods = append(periods, s.Production)
	}

	publication, err := s.period(situation.PublicationWindow)
	if err != nil {
		return nil, err
	}
	if situation.PublicationWindow.StartTime == "" {
		publication.Start = periods[0].Start
	}
	if situation.PublicationWindow.EndTime == "" {
		publication.End = time.Time{}
	}

	versionedAt, _ := time.Parse(time.RFC3339, situation.VersionedAtTime)
	createdAt, _ := time.Parse(time.RFC3339, situation.CreationTime)

	reason := situation.Reason()
	disruption := &ctdf.Disruption{
		ID:          id,
		Reference:   situation.Summary,
		Contributor: situation.ParticipantRef,
		Cause: &ctdf.Cause{
			ID:       fmt.Sprintf("cause:%s", reason),
			Wording:  reason,
			Category: causeCategory(situation),
		},
		PublicationWindow: publication,
		CreatedAt:         createdAt,
		UpdatedAt:         versionedAt,
	}

	for index, consequence := range situation.Consequence {
		targets := consequenceTargets(consequence)
		if len(targets) == 0 {
			continue
		}

		effect := conditionEffect(consequence.Condition)
		impact := &ctdf.Impact{
			ID: fmt.Sprintf("%s:impact:%d", id, index),
			Severity: &ctdf.Severity{
				ID:      fmt.Sprintf("severity:%s:%s", strings.ToLower(consequence.Severity), strings.ToLower(string(effect))),
				Wording: consequence.Severity,
				Effect:  effect,
			},
			Targets:            targets,
			ApplicationWindows: []ctdf.ApplicationWindow{{Periods: periods}},
		}

		if situation.Summary != "" {
			impact.Messages = append(impact.Messages, ctdf.Message{Text: situation.Summary, Channel: "title"})
		}
		if situation.Description != "" {
			impact.Messages = append(impact.Messages, ctdf.Message{Text: situation.Description, Channel: "description"})
		}
		if consequence.Advice != "" {
			impact.Messages = append(impact.Messages, ctdf.Message{Text: consequence.Advice, Channel: "advice"})
		}

		disruption.Impacts = append(disruption.Impacts, impact)
	}

	if len(disruption.Impacts) == 0 {
		return nil, fmt.Errorf("situation affects nothing")
	}

	return disruption, nil
}

func (s *SiriSX) period(timePeriod TimePeriod) (ctdf.Period, error) {
	period := ctdf.Period{Start: s.Production.Start, End: s.Production.End}

	if timePeriod.StartTime != "" {
		start, err := time.Parse(time.RFC3339, timePeriod.StartTime)
		if err != nil {
			return period, fmt.Errorf("invalid start time: %w", err)
		}
		period.Start = start
	}
	if timePeriod.EndTime != "" {
		end, err := time.Parse(time.RFC3339, timePeriod.EndTime)
		if err != nil {
			return period, fmt.Errorf("invalid end time: %w", err)
		}
		period.End = end
	}

	return period, nil
}

func consequenceTargets(consequence Consequence) ctdf.Targets {
	var targets ctdf.Targets

	for _, network := range consequence.AffectedNetworks {
		if len(network.AffectedLine) == 0 && network.NetworkRef != "" {
			targets = append(targets, ctdf.NetworkRef{URI: network.NetworkRef})
		}
		for _, line := range network.AffectedLine {
			if line.LineRef != "" {
				targets = append(targets, ctdf.LineRef{URI: line.LineRef})
			}
		}
	}
	for _, stopPoint := range consequence.AffectedStopPoints {
		if stopPoint.StopPointRef != "" {
			targets = append(targets, ctdf.StopPointRef{URI: stopPoint.StopPointRef})
		}
	}
	for _, journey := range consequence.AffectedVehicleJourneys {
		ref := journey.DatedVehicleJourneyRef
		if ref == "" {
			ref = journey.VehicleJourneyRef
		}
		if ref != "" {
			targets = append(targets, ctdf.TripRef{URI: ref})
		}
	}

	return targets
}

func conditionEffect(condition string) ctdf.Effect {
	switch condition {
	case "noService", "cancelled", "suspended":
		return ctdf.EffectNoService
	case "reducedService", "limitedOperation", "intermittentService":
		return ctdf.EffectReducedService
	case "delayed", "disruption", "severeDelays":
		return ctdf.EffectSignificantDelays
	case "diverted":
		return ctdf.EffectDetour
	case "stopMoved":
		return ctdf.EffectStopMoved
	case "additionalService", "extendedService":
		return ctdf.EffectAdditionalService
	case "alteredService", "changeOfPlatform", "notStopping":
		return ctdf.EffectModifiedService
	case "unknown", "":
		return ctdf.EffectUnknownEffect
	default:
		return ctdf.EffectOtherEffect
	}
}

func causeCategory(situation *SituationElement) string {
	if situation.Planned {
		return "planned"
	}
	return "unplanned"
}
