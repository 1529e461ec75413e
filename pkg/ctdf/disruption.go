package ctdf

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"golang.org/x/exp/slices"
)

type Effect string

const (
	EffectNoService         Effect = "NO_SERVICE"
	EffectReducedService    Effect = "REDUCED_SERVICE"
	EffectSignificantDelays Effect = "SIGNIFICANT_DELAYS"
	EffectDetour            Effect = "DETOUR"
	EffectAdditionalService Effect = "ADDITIONAL_SERVICE"
	EffectModifiedService   Effect = "MODIFIED_SERVICE"
	EffectOtherEffect       Effect = "OTHER_EFFECT"
	EffectUnknownEffect     Effect = "UNKNOWN_EFFECT"
	EffectStopMoved         Effect = "STOP_MOVED"
)

// Mutates reports whether the effect changes which trips run
func (e Effect) Mutates() bool {
	switch e {
	case EffectNoService, EffectReducedService, EffectDetour, EffectModifiedService:
		return true
	default:
		return false
	}
}

type Severity struct {
	ID       string `json:"id" yaml:"id" groups:"basic"`
	Wording  string `json:"wording" yaml:"wording" groups:"basic"`
	Color    string `json:"color,omitempty" yaml:"color,omitempty" groups:"basic"`
	Priority int    `json:"priority" yaml:"priority" groups:"detailed"`
	Effect   Effect `json:"effect" yaml:"effect" groups:"basic"`
}

type Cause struct {
	ID       string `json:"id" yaml:"id" groups:"basic"`
	Wording  string `json:"wording" yaml:"wording" groups:"basic"`
	Category string `json:"category,omitempty" yaml:"category,omitempty" groups:"detailed"`
}

type Tag struct {
	ID   string `json:"id" yaml:"id" groups:"basic"`
	Name string `json:"name" yaml:"name" groups:"basic"`
}

type Message struct {
	Text    string `json:"text" yaml:"text" groups:"basic"`
	Channel string `json:"channel,omitempty" yaml:"channel,omitempty" groups:"basic"`
}

type Impact struct {
	ID                 string              `json:"id" yaml:"id" groups:"basic"`
	Severity           *Severity           `json:"severity" yaml:"severity" groups:"basic"`
	Targets            Targets             `json:"targets" yaml:"targets" groups:"basic"`
	ApplicationWindows []ApplicationWindow `json:"application_windows" yaml:"application_windows" groups:"basic"`
	Messages           []Message           `json:"messages,omitempty" yaml:"messages,omitempty" groups:"basic"`
}

func (i *Impact) Effect() Effect {
	if i.Severity == nil {
		return EffectUnknownEffect
	}
	return i.Severity.Effect
}

// LocalActivity is the union of every window's activity on day
func (i *Impact) LocalActivity(calendar Calendar, day ServiceDay) []TimeInterval {
	var intervals []TimeInterval
	for index := range i.ApplicationWindows {
		intervals = append(intervals, i.ApplicationWindows[index].LocalActivity(calendar, day)...)
	}
	return MergeIntervals(intervals)
}

type ImpactStatus string

const (
	ImpactStatusPast   ImpactStatus = "past"
	ImpactStatusActive ImpactStatus = "active"
	ImpactStatusFuture ImpactStatus = "future"
)

// Status is active while a window is in force and future while one has yet to end
func (i *Impact) Status(calendar Calendar, now time.Time) ImpactStatus {
	future := false
	for index := range i.ApplicationWindows {
		window := &i.ApplicationWindows[index]

		for _, period := range window.Periods {
			if period.Contains(now) {
				return ImpactStatusActive
			}
		}
		if window.Pattern != nil {
			day := calendar.DayOf(now)
			local := now.In(calendar.location())
			seconds := int(local.Sub(calendar.Midnight(day)).Seconds())
			for _, interval := range window.LocalActivity(calendar, day) {
				if seconds >= interval.Begin && seconds < interval.End {
					return ImpactStatusActive
				}
			}
		}

		_, end := window.Bounds(calendar)
		if end.After(now) {
			future = true
		}
	}

	if future {
		return ImpactStatusFuture
	}
	return ImpactStatusPast
}

type Disruption struct {
	ID          string `json:"id" yaml:"id" groups:"basic"`
	Reference   string `json:"reference,omitempty" yaml:"reference,omitempty" groups:"basic"`
	Contributor string `json:"contributor,omitempty" yaml:"contributor,omitempty" groups:"detailed"`

	Cause *Cause `json:"cause,omitempty" yaml:"cause,omitempty" groups:"basic"`
	Tags  []*Tag `json:"tags,omitempty" yaml:"tags,omitempty" groups:"basic"`

	PublicationWindow Period `json:"publication_window" yaml:"publication_window" groups:"basic"`

	Impacts []*Impact `json:"impacts" yaml:"impacts" groups:"basic"`

	CreatedAt time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty" groups:"detailed"`
	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty" groups:"detailed"`
}

// IsPublishable checks the publication window against the production period.
// An unset publication end means open ended.
func (d *Disruption) IsPublishable(production Period) bool {
	publication := d.PublicationWindow

	if publication.Start.IsZero() {
		return false
	}
	if publication.Start.After(production.End) {
		return false
	}
	if !publication.End.IsZero() {
		if publication.Start.After(publication.End) {
			return false
		}
		if publication.End.Before(production.Start) {
			return false
		}
	}

	return true
}

// Clone copies the disruption and the impacts, causes, tags and severities it
// points to. Targets and windows are shared as they are never written once set.
func (d *Disruption) Clone() *Disruption {
	copied := *d

	if d.Cause != nil {
		cause := *d.Cause
		copied.Cause = &cause
	}

	copied.Tags = slices.Clone(d.Tags)
	for i, tag := range d.Tags {
		if tag != nil {
			tagCopy := *tag
			copied.Tags[i] = &tagCopy
		}
	}

	copied.Impacts = slices.Clone(d.Impacts)
	for i, impact := range d.Impacts {
		if impact != nil {
			copied.Impacts[i] = impact.Clone()
		}
	}

	return &copied
}

func (i *Impact) Clone() *Impact {
	copied := *i
	if i.Severity != nil {
		severity := *i.Severity
		copied.Severity = &severity
	}
	copied.Targets = slices.Clone(i.Targets)
	copied.ApplicationWindows = slices.Clone(i.ApplicationWindows)
	copied.Messages = slices.Clone(i.Messages)
	return &copied
}

// ContentHash identifies the disruption content, ignoring its timestamps
func (d *Disruption) ContentHash() (string, error) {
	content := *d
	content.CreatedAt = time.Time{}
	content.UpdatedAt = time.Time{}

	encoded, err := json.Marshal(content)
	if err != nil {
		return "", err
	}

	hash := sha256.Sum256(encoded)
	return hex.EncodeToString(hash[:]), nil
}
