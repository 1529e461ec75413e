package transforms

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/disruptions/pkg/ctdf"
)

const testRules = `
transforms:
  - type: ctdf.Severity
    match:
      Effect: NO_SERVICE
    data:
      Color: "#D42E12"
      Priority: 1
  - type: ctdf.Cause
    match:
      ID: cause:construction
    data:
      Category: planned
  - type: ctdf.Severity
    match:
      Effect: NO_SERVICE
    data:
      Priority: not-a-number
rewrites:
  - kind: stop_point
    prefix: "GB:"
    replacement: "stop_point:"
  - kind: stop_area
    prefix: "GB:"
    replacement: "stop_area:"
  - prefix: "feed:"
    replacement: ""
`

func testDisruption() *ctdf.Disruption {
	return &ctdf.Disruption{
		ID:          "d1",
		Contributor: "feed",
		Cause:       &ctdf.Cause{ID: "cause:construction"},
		Tags:        []*ctdf.Tag{{ID: "tag:works"}},
		Impacts: []*ctdf.Impact{
			{
				ID:       "d1:impact",
				Severity: &ctdf.Severity{ID: "severity:no_service", Effect: ctdf.EffectNoService},
				Targets: ctdf.Targets{
					ctdf.StopPointRef{URI: "GB:1"},
					ctdf.LineRef{URI: "feed:A"},
					ctdf.RailSectionRef{
						Line:    "feed:A",
						Start:   "GB:1",
						End:     "GB:5",
						Blocked: []ctdf.BlockedStopArea{{URI: "GB:3", Order: 1}},
					},
				},
			},
			{
				ID:       "d1:impact:2",
				Severity: &ctdf.Severity{ID: "severity:detour", Effect: ctdf.EffectDetour},
				Targets:  ctdf.Targets{ctdf.TripRef{URI: "vj:1"}},
			},
		},
	}
}

func TestClientApply(t *testing.T) {
	client, err := ParseClient(strings.NewReader(testRules))
	require.NoError(t, err)

	disruption := testDisruption()
	client.Apply(disruption)

	noService := disruption.Impacts[0].Severity
	assert.Equal(t, "#D42E12", noService.Color)
	assert.Equal(t, 1, noService.Priority)
	assert.Equal(t, "", disruption.Impacts[1].Severity.Color)
	assert.Equal(t, "planned", disruption.Cause.Category)

	assert.Equal(t, ctdf.Targets{
		ctdf.StopPointRef{URI: "stop_point:1"},
		ctdf.LineRef{URI: "A"},
		ctdf.RailSectionRef{
			Line:    "A",
			Start:   "stop_area:1",
			End:     "stop_area:5",
			Blocked: []ctdf.BlockedStopArea{{URI: "stop_area:3", Order: 1}},
		},
	}, disruption.Impacts[0].Targets)
	assert.Equal(t, ctdf.Targets{ctdf.TripRef{URI: "vj:1"}}, disruption.Impacts[1].Targets)
}

func TestEmptyClientChangesNothing(t *testing.T) {
	client, err := SetupClient("")
	require.NoError(t, err)

	disruption := testDisruption()
	client.Apply(disruption)
	assert.Equal(t, testDisruption(), disruption)

	var missing *Client
	missing.Apply(disruption)
}

func TestParseClientRejectsInvalidYAML(t *testing.T) {
	_, err := ParseClient(strings.NewReader("transforms: {"))
	assert.Error(t, err)
}

func TestFilter(t *testing.T) {
	tests := []struct {
		expression string
		expected   bool
	}{
		{"", true},
		{`Contributor == "feed"`, true},
		{`Contributor != "feed"`, false},
		{`"NO_SERVICE" in Effects && Impacts == 2`, true},
		{`"stop_point:GB:1" in Targets`, true},
		{`Cause startsWith "cause:" && "tag:works" in Tags`, true},
		{`len(Effects) > 2`, false},
	}

	for _, test := range tests {
		t.Run(test.expression, func(t *testing.T) {
			filter, err := NewFilter(test.expression)
			require.NoError(t, err)

			accepted, err := filter.Accept(testDisruption())
			require.NoError(t, err)
			assert.Equal(t, test.expected, accepted)
		})
	}
}

func TestFilterRejectsInvalidExpressions(t *testing.T) {
	_, err := NewFilter(`Unknown == 1`)
	assert.Error(t, err)

	_, err = NewFilter(`Impacts + 1`)
	assert.Error(t, err)
}
