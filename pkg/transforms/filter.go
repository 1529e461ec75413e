package transforms

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/travigo/disruptions/pkg/ctdf"
	"github.com/travigo/disruptions/pkg/util"
)

// FilterEnvironment is what an acceptance expression can see of a disruption
type FilterEnvironment struct {
	ID          string
	Contributor string
	Cause       string
	Tags        []string
	Effects     []string
	Targets     []string
	Impacts     int
}

func NewFilterEnvironment(disruption *ctdf.Disruption) FilterEnvironment {
	environment := FilterEnvironment{
		ID:          disruption.ID,
		Contributor: disruption.Contributor,
		Impacts:     len(disruption.Impacts),
	}
	if disruption.Cause != nil {
		environment.Cause = disruption.Cause.ID
	}
	for _, tag := range disruption.Tags {
		environment.Tags = append(environment.Tags, tag.ID)
	}

	var effects []string
	var targets []string
	for _, impact := range disruption.Impacts {
		effects = append(effects, string(impact.Effect()))
		for _, target := range impact.Targets {
			targets = append(targets, target.Key().String())
		}
	}
	environment.Effects = util.RemoveDuplicateStrings(effects, nil)
	environment.Targets = util.RemoveDuplicateStrings(targets, nil)

	return environment
}

// Filter decides which incoming disruptions the engine accepts
type Filter struct {
	expression string
	program    *vm.Program
}

// NewFilter compiles expression, an empty expression accepts everything
func NewFilter(expression string) (*Filter, error) {
	filter := &Filter{expression: expression}
	if expression == "" {
		return filter, nil
	}

	program, err := expr.Compile(expression, expr.Env(FilterEnvironment{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", expression, err)
	}
	filter.program = program

	return filter, nil
}

func (f *Filter) Accept(disruption *ctdf.Disruption) (bool, error) {
	if f == nil || f.program == nil {
		return true, nil
	}

	output, err := expr.Run(f.program, NewFilterEnvironment(disruption))
	if err != nil {
		return false, fmt.Errorf("filter %q: %w", f.expression, err)
	}

	accepted, _ := output.(bool)
	return accepted, nil
}
