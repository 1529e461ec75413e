package ctdf

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

type PtObjKind string

const (
	PtObjNetwork     PtObjKind = "network"
	PtObjLine        PtObjKind = "line"
	PtObjRoute       PtObjKind = "route"
	PtObjStopArea    PtObjKind = "stop_area"
	PtObjStopPoint   PtObjKind = "stop_point"
	PtObjLineSection PtObjKind = "line_section"
	PtObjRailSection PtObjKind = "rail_section"
	PtObjTrip        PtObjKind = "trip"
)

// PtObjRef is a disruption target. The set of implementations is closed.
type PtObjRef interface {
	Kind() PtObjKind
	Key() PtObjKey
	isPtObjRef()
}

// PtObjKey identifies a PT object for the impact side index
type PtObjKey struct {
	Kind PtObjKind
	URI  string
}

func (k PtObjKey) String() string {
	return fmt.Sprintf("%s:%s", k.Kind, k.URI)
}

type NetworkRef struct{ URI string }
type LineRef struct{ URI string }
type RouteRef struct{ URI string }
type StopAreaRef struct{ URI string }
type StopPointRef struct{ URI string }
type TripRef struct{ URI string }

// LineSectionRef covers the stops of Line between the Start and End stop areas inclusive
type LineSectionRef struct {
	Line   string
	Start  string
	End    string
	Routes []string
}

type BlockedStopArea struct {
	URI   string `json:"uri" yaml:"uri"`
	Order int    `json:"order" yaml:"order"`
}

// RailSectionRef names the blocked stop areas explicitly
type RailSectionRef struct {
	Line    string
	Start   string
	End     string
	Blocked []BlockedStopArea
	Routes  []string
}

func (NetworkRef) Kind() PtObjKind     { return PtObjNetwork }
func (LineRef) Kind() PtObjKind        { return PtObjLine }
func (RouteRef) Kind() PtObjKind       { return PtObjRoute }
func (StopAreaRef) Kind() PtObjKind    { return PtObjStopArea }
func (StopPointRef) Kind() PtObjKind   { return PtObjStopPoint }
func (TripRef) Kind() PtObjKind        { return PtObjTrip }
func (LineSectionRef) Kind() PtObjKind { return PtObjLineSection }
func (RailSectionRef) Kind() PtObjKind { return PtObjRailSection }

func (r NetworkRef) Key() PtObjKey   { return PtObjKey{PtObjNetwork, r.URI} }
func (r LineRef) Key() PtObjKey      { return PtObjKey{PtObjLine, r.URI} }
func (r RouteRef) Key() PtObjKey     { return PtObjKey{PtObjRoute, r.URI} }
func (r StopAreaRef) Key() PtObjKey  { return PtObjKey{PtObjStopArea, r.URI} }
func (r StopPointRef) Key() PtObjKey { return PtObjKey{PtObjStopPoint, r.URI} }
func (r TripRef) Key() PtObjKey      { return PtObjKey{PtObjTrip, r.URI} }

// Sections are indexed against their line
func (r LineSectionRef) Key() PtObjKey { return PtObjKey{PtObjLine, r.Line} }
func (r RailSectionRef) Key() PtObjKey { return PtObjKey{PtObjLine, r.Line} }

func (NetworkRef) isPtObjRef()     {}
func (LineRef) isPtObjRef()        {}
func (RouteRef) isPtObjRef()       {}
func (StopAreaRef) isPtObjRef()    {}
func (StopPointRef) isPtObjRef()   {}
func (TripRef) isPtObjRef()        {}
func (LineSectionRef) isPtObjRef() {}
func (RailSectionRef) isPtObjRef() {}

// PtObject is the flat document form of a target
type PtObject struct {
	Type    PtObjKind         `json:"type" yaml:"type"`
	URI     string            `json:"uri,omitempty" yaml:"uri,omitempty"`
	Line    string            `json:"line,omitempty" yaml:"line,omitempty"`
	Start   string            `json:"start,omitempty" yaml:"start,omitempty"`
	End     string            `json:"end,omitempty" yaml:"end,omitempty"`
	Routes  []string          `json:"routes,omitempty" yaml:"routes,omitempty"`
	Blocked []BlockedStopArea `json:"blocked,omitempty" yaml:"blocked,omitempty"`
}

func (o PtObject) Ref() (PtObjRef, error) {
	switch o.Type {
	case PtObjNetwork:
		return NetworkRef{URI: o.URI}, nil
	case PtObjLine:
		return LineRef{URI: o.URI}, nil
	case PtObjRoute:
		return RouteRef{URI: o.URI}, nil
	case PtObjStopArea:
		return StopAreaRef{URI: o.URI}, nil
	case PtObjStopPoint:
		return StopPointRef{URI: o.URI}, nil
	case PtObjTrip:
		return TripRef{URI: o.URI}, nil
	case PtObjLineSection:
		return LineSectionRef{Line: o.Line, Start: o.Start, End: o.End, Routes: o.Routes}, nil
	case PtObjRailSection:
		return RailSectionRef{Line: o.Line, Start: o.Start, End: o.End, Blocked: o.Blocked, Routes: o.Routes}, nil
	default:
		return nil, fmt.Errorf("unknown pt object type %q", o.Type)
	}
}

func NewPtObject(ref PtObjRef) PtObject {
	switch r := ref.(type) {
	case LineSectionRef:
		return PtObject{Type: PtObjLineSection, Line: r.Line, Start: r.Start, End: r.End, Routes: r.Routes}
	case RailSectionRef:
		return PtObject{Type: PtObjRailSection, Line: r.Line, Start: r.Start, End: r.End, Blocked: r.Blocked, Routes: r.Routes}
	default:
		return PtObject{Type: ref.Kind(), URI: ref.Key().URI}
	}
}

// Targets is a list of targets that encodes as PtObject documents
type Targets []PtObjRef

func (t Targets) objects() []PtObject {
	objects := make([]PtObject, 0, len(t))
	for _, ref := range t {
		objects = append(objects, NewPtObject(ref))
	}
	return objects
}

func (t *Targets) fromObjects(objects []PtObject) error {
	refs := make(Targets, 0, len(objects))
	for _, object := range objects {
		ref, err := object.Ref()
		if err != nil {
			return err
		}
		refs = append(refs, ref)
	}
	*t = refs
	return nil
}

func (t Targets) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.objects())
}

func (t *Targets) UnmarshalJSON(data []byte) error {
	var objects []PtObject
	if err := json.Unmarshal(data, &objects); err != nil {
		return err
	}
	return t.fromObjects(objects)
}

func (t Targets) MarshalYAML() (interface{}, error) {
	return t.objects(), nil
}

func (t *Targets) UnmarshalYAML(value *yaml.Node) error {
	var objects []PtObject
	if err := value.Decode(&objects); err != nil {
		return err
	}
	return t.fromObjects(objects)
}
