package transforms

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/travigo/disruptions/pkg/ctdf"
	"gopkg.in/yaml.v3"
)

// Rewrite replaces the Prefix of every target identifier of Kind, or of every kind when Kind is empty
type Rewrite struct {
	Kind        ctdf.PtObjKind `yaml:"kind"`
	Prefix      string         `yaml:"prefix"`
	Replacement string         `yaml:"replacement"`
}

type document struct {
	Transforms []*TransformDefinition `yaml:"transforms"`
	Rewrites   []Rewrite              `yaml:"rewrites"`
}

type Client struct {
	definitions []*TransformDefinition
	rewrites    []Rewrite
}

func NewClient(definitions []*TransformDefinition, rewrites []Rewrite) *Client {
	return &Client{definitions: definitions, rewrites: rewrites}
}

// SetupClient loads the rules file at path, an empty path gives a client that changes nothing
func SetupClient(path string) (*Client, error) {
	if path == "" {
		return &Client{}, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseClient(file)
}

func ParseClient(reader io.Reader) (*Client, error) {
	var rules document
	if err := yaml.NewDecoder(reader).Decode(&rules); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode transforms: %w", err)
	}

	log.Info().Int("transforms", len(rules.Transforms)).Int("rewrites", len(rules.Rewrites)).Msg("Loaded transforms")

	return NewClient(rules.Transforms, rules.Rewrites), nil
}

// Apply rewrites the target identifiers of the disruption then runs the field transforms over it
func (c *Client) Apply(disruption *ctdf.Disruption) {
	if c == nil || disruption == nil {
		return
	}

	if len(c.rewrites) > 0 {
		for _, impact := range disruption.Impacts {
			for i, target := range impact.Targets {
				impact.Targets[i] = c.rewriteTarget(target)
			}
		}
	}

	c.Transform(disruption, 3)
}

func (c *Client) rewriteTarget(target ctdf.PtObjRef) ctdf.PtObjRef {
	object := ctdf.NewPtObject(target)

	switch object.Type {
	case ctdf.PtObjLineSection, ctdf.PtObjRailSection:
		object.Line = c.rewrite(ctdf.PtObjLine, object.Line)
		object.Start = c.rewrite(ctdf.PtObjStopArea, object.Start)
		object.End = c.rewrite(ctdf.PtObjStopArea, object.End)
		if len(object.Routes) > 0 {
			routes := make([]string, len(object.Routes))
			for i, route := range object.Routes {
				routes[i] = c.rewrite(ctdf.PtObjRoute, route)
			}
			object.Routes = routes
		}
		if len(object.Blocked) > 0 {
			blocked := make([]ctdf.BlockedStopArea, len(object.Blocked))
			for i, stopArea := range object.Blocked {
				blocked[i] = ctdf.BlockedStopArea{URI: c.rewrite(ctdf.PtObjStopArea, stopArea.URI), Order: stopArea.Order}
			}
			object.Blocked = blocked
		}
	default:
		object.URI = c.rewrite(object.Type, object.URI)
	}

	rewritten, err := object.Ref()
	if err != nil {
		return target
	}
	return rewritten
}

func (c *Client) rewrite(kind ctdf.PtObjKind, uri string) string {
	for _, rewrite := range c.rewrites {
		if rewrite.Kind != "" && rewrite.Kind != kind {
			continue
		}
		if strings.HasPrefix(uri, rewrite.Prefix) {
			return rewrite.Replacement + strings.TrimPrefix(uri, rewrite.Prefix)
		}
	}
	return uri
}
