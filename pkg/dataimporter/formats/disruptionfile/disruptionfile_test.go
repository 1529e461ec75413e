package disruptionfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/disruptions/pkg/ctdf"
)

const testYAML = `
disruptions:
  - id: works-1
    cause:
      id: cause:works
      wording: Engineering works
    publication_window:
      start: 2024-01-01T00:00:00Z
    impacts:
      - severity:
          id: severity:no_service
          effect: NO_SERVICE
        targets:
          - type: rail_section
            line: line:A
            start: stop_area:1
            end: stop_area:3
            blocked:
              - uri: stop_area:2
                order: 1
        application_windows:
          - pattern:
              start_date: 2024-01-01T00:00:00Z
              end_date: 2024-01-31T00:00:00Z
              week_days: [false, false, false, false, false, true, true]
              time_slots:
                - begin: "23:00"
                  end: "05:00"
      - severity:
          id: severity:detour
          effect: DETOUR
        targets:
          - type: line
            uri: line:B
delete:
  - works-0
`

func TestParseYAML(t *testing.T) {
	document, err := ParseYAML(strings.NewReader(testYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"works-0"}, document.Delete)
	require.Len(t, document.Disruptions, 1)

	disruption := document.Disruptions[0]
	assert.Equal(t, "works-1", disruption.ID)
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), disruption.PublicationWindow.Start)

	require.Len(t, disruption.Impacts, 2)
	assert.Equal(t, "works-1:impact:0", disruption.Impacts[0].ID)
	assert.Equal(t, "works-1:impact:1", disruption.Impacts[1].ID)
	assert.Equal(t, ctdf.Targets{
		ctdf.RailSectionRef{
			Line:    "line:A",
			Start:   "stop_area:1",
			End:     "stop_area:3",
			Blocked: []ctdf.BlockedStopArea{{URI: "stop_area:2", Order: 1}},
		},
	}, disruption.Impacts[0].Targets)

	pattern := disruption.Impacts[0].ApplicationWindows[0].Pattern
	require.NotNil(t, pattern)
	assert.True(t, pattern.WeekDays[5])
	assert.Equal(t, []ctdf.TimeSlot{{Begin: "23:00", End: "05:00"}}, pattern.TimeSlots)
}

func TestParseJSON(t *testing.T) {
	document, err := ParseJSON(strings.NewReader(`{
		"disruptions": [{
			"id": "d1",
			"publication_window": {"start": "2024-01-01T00:00:00Z", "end": "0001-01-01T00:00:00Z"},
			"impacts": [{"targets": [{"type": "trip", "uri": "vj:1"}], "application_windows": []}]
		}]
	}`))
	require.NoError(t, err)

	require.Len(t, document.Disruptions, 1)
	assert.Equal(t, "d1:impact", document.Disruptions[0].Impacts[0].ID)
	assert.Equal(t, ctdf.Targets{ctdf.TripRef{URI: "vj:1"}}, document.Disruptions[0].Impacts[0].Targets)
}

func TestDocumentValidation(t *testing.T) {
	tests := map[string]string{
		"missing id":       "disruptions:\n  - impacts: []\n",
		"duplicate id":     "disruptions:\n  - id: a\n  - id: a\n",
		"apply and delete": "disruptions:\n  - id: a\ndelete: [a]\n",
		"unknown target":   "disruptions:\n  - id: a\n    impacts:\n      - targets:\n          - type: vehicle\n",
		"not a document":   "disruptions: 5\n",
	}

	for name, document := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseYAML(strings.NewReader(document))
			assert.Error(t, err)
		})
	}
}

func TestReadFile(t *testing.T) {
	directory := t.TempDir()

	yamlPath := filepath.Join(directory, "works.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(testYAML), 0o644))
	document, err := ReadFile(yamlPath)
	require.NoError(t, err)
	assert.Len(t, document.Disruptions, 1)

	textPath := filepath.Join(directory, "works.txt")
	require.NoError(t, os.WriteFile(textPath, []byte(testYAML), 0o644))
	_, err = ReadFile(textPath)
	assert.Error(t, err)

	_, err = ReadFile(filepath.Join(directory, "missing.yaml"))
	assert.Error(t, err)
}
