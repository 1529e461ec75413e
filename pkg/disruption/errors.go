package disruption

import (
	"errors"
	"fmt"
)

var (
	ErrTargetUnresolved         = errors.New("target could not be resolved")
	ErrMalformedSection         = errors.New("section is missing its line, start or end")
	ErrEmptyRouteSet            = errors.New("section resolves to no routes")
	ErrNotPublishable           = errors.New("publication window does not overlap the production period")
	ErrInvalidApplicationWindow = errors.New("invalid application window")
	ErrUnknownDisruption        = errors.New("unknown disruption")
)

type RejectionKind string

const (
	RejectionTargetUnresolved         RejectionKind = "target_unresolved"
	RejectionMalformedSection         RejectionKind = "malformed_section"
	RejectionEmptyRouteSet            RejectionKind = "empty_route_set"
	RejectionNotPublishable           RejectionKind = "not_publishable"
	RejectionInvalidApplicationWindow RejectionKind = "invalid_application_window"
)

// RejectionError describes a part of a disruption that was dropped
type RejectionError struct {
	Kind         RejectionKind
	DisruptionID string
	ImpactID     string
	Target       string
	Err          error
}

func (e *RejectionError) Error() string {
	switch {
	case e.Target != "":
		return fmt.Sprintf("disruption %s impact %s target %s: %s", e.DisruptionID, e.ImpactID, e.Target, e.Err)
	case e.ImpactID != "":
		return fmt.Sprintf("disruption %s impact %s: %s", e.DisruptionID, e.ImpactID, e.Err)
	default:
		return fmt.Sprintf("disruption %s: %s", e.DisruptionID, e.Err)
	}
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}

func rejectionKind(err error) RejectionKind {
	switch {
	case errors.Is(err, ErrMalformedSection):
		return RejectionMalformedSection
	case errors.Is(err, ErrEmptyRouteSet):
		return RejectionEmptyRouteSet
	case errors.Is(err, ErrNotPublishable):
		return RejectionNotPublishable
	case errors.Is(err, ErrInvalidApplicationWindow):
		return RejectionInvalidApplicationWindow
	default:
		return RejectionTargetUnresolved
	}
}
