package disruptionfile

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/travigo/disruptions/pkg/ctdf"
	"gopkg.in/yaml.v3"
)

// Document is a hand written batch of disruptions to apply and ids to delete
type Document struct {
	Disruptions []*ctdf.Disruption `json:"disruptions" yaml:"disruptions"`
	Delete      []string           `json:"delete,omitempty" yaml:"delete,omitempty"`
}

// ReadFile decodes the document at path, picking JSON or YAML from the extension
func ReadFile(path string) (*Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(file)
	case ".yaml", ".yml":
		return ParseYAML(file)
	default:
		return nil, fmt.Errorf("unsupported disruption file extension %q", filepath.Ext(path))
	}
}

func ParseJSON(reader io.Reader) (*Document, error) {
	var document Document
	if err := json.NewDecoder(reader).Decode(&document); err != nil {
		return nil, fmt.Errorf("failed to decode disruption document: %w", err)
	}
	return &document, document.normalise()
}

func ParseYAML(reader io.Reader) (*Document, error) {
	var document Document
	if err := yaml.NewDecoder(reader).Decode(&document); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode disruption document: %w", err)
	}
	return &document, document.normalise()
}

func (d *Document) normalise() error {
	seen := map[string]bool{}

	for index, disruption := range d.Disruptions {
		if disruption == nil || disruption.ID == "" {
			return fmt.Errorf("disruption %d has no id", index)
		}
		if seen[disruption.ID] {
			return fmt.Errorf("disruption %s is listed twice", disruption.ID)
		}
		seen[disruption.ID] = true

		for impactIndex, impact := range disruption.Impacts {
			if impact == nil {
				return fmt.Errorf("disruption %s impact %d is empty", disruption.ID, impactIndex)
			}
			if impact.ID == "" {
				if len(disruption.Impacts) == 1 {
					impact.ID = fmt.Sprintf("%s:impact", disruption.ID)
				} else {
					impact.ID = fmt.Sprintf("%s:impact:%d", disruption.ID, impactIndex)
				}
			}
		}
	}

	for _, id := range d.Delete {
		if seen[id] {
			return fmt.Errorf("disruption %s is both applied and deleted", id)
		}
	}

	return nil
}
