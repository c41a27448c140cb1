package expansion

import (
	"strings"

	"github.com/tiger/robomaker-sim-launcher/api/launcher"
	"github.com/tiger/robomaker-sim-launcher/internal/config"
)

// Job is one concrete simulation job request built from a template.
type Job struct {
	TemplateIndex int
	Scenario      string
	Params        launcher.SimulationJobParams
}

// MissingScenario records a template reference absent from the scenario table.
type MissingScenario struct {
	TemplateIndex int
	Scenario      string
}

// Result is the outcome of expanding every template of a launch.
// IsValid is sticky: one missing scenario invalidates the whole run.
type Result struct {
	Jobs    []Job
	IsValid bool
	Missing []MissingScenario
}

// Params returns the concrete job requests in expansion order.
func (r Result) Params() []launcher.SimulationJobParams {
	out := make([]launcher.SimulationJobParams, 0, len(r.Jobs))
	for _, job := range r.Jobs {
		out = append(out, job.Params)
	}
	return out
}

// Expander builds concrete job requests from templates and a scenario table.
type Expander struct {
	defaults config.Defaults
}

// NewExpander captures the process defaults once.
func NewExpander(defaults config.Defaults) Expander {
	defaults.Subnets = append([]string(nil), defaults.Subnets...)
	return Expander{defaults: defaults}
}

// Expand fans every template out into one job per known scenario. Unknown
// scenarios are recorded and skipped; remaining scenarios are still expanded.
// Templates and scenarios are never modified.
func (e Expander) Expand(templates []launcher.SimulationTemplate, scenarios launcher.ScenarioTable) Result {
	result := Result{IsValid: true}
	for i, tmpl := range templates {
		for _, name := range tmpl.Scenarios {
			scenario, ok := scenarios[name]
			if !ok {
				result.IsValid = false
				result.Missing = append(result.Missing, MissingScenario{TemplateIndex: i, Scenario: name})
				continue
			}
			result.Jobs = append(result.Jobs, Job{
				TemplateIndex: i,
				Scenario:      name,
				Params:        e.build(tmpl.Params, name, scenario),
			})
		}
	}
	return result
}

func (e Expander) build(tmpl launcher.SimulationJobParams, name string, scenario launcher.Scenario) launcher.SimulationJobParams {
	params := tmpl.Clone()

	tags := launcher.CloneStringMap(params.Tags)
	if tags == nil {
		tags = make(map[string]string, 1)
	}
	tags[launcher.TagScenario] = name
	params.Tags = tags

	for i := range params.RobotApplications {
		app := &params.RobotApplications[i]
		app.LaunchConfig.EnvironmentVariables = launcher.CloneStringMap(scenario.RobotEnvironmentVariables)
		if isBlank(app.Application) && e.defaults.RobotAppARN != "" {
			app.Application = e.defaults.RobotAppARN
		}
	}
	for i := range params.SimulationApplications {
		app := &params.SimulationApplications[i]
		app.LaunchConfig.EnvironmentVariables = launcher.CloneStringMap(scenario.SimEnvironmentVariables)
		if isBlank(app.Application) && e.defaults.SimulationAppARN != "" {
			app.Application = e.defaults.SimulationAppARN
		}
	}

	if e.defaults.S3Bucket != "" {
		if params.OutputLocation == nil {
			params.OutputLocation = &launcher.OutputLocation{}
		}
		if isBlank(params.OutputLocation.S3Bucket) {
			params.OutputLocation.S3Bucket = e.defaults.S3Bucket
		}
	}
	if isBlank(params.IAMRole) && e.defaults.IAMRole != "" {
		params.IAMRole = e.defaults.IAMRole
	}

	// VPC defaults only extend a template that already asks for a VPC.
	if params.VPCConfig != nil {
		if e.defaults.SecurityGroup != "" {
			params.VPCConfig.SecurityGroups = appendMissing(params.VPCConfig.SecurityGroups, e.defaults.SecurityGroup)
		}
		for _, subnet := range e.defaults.Subnets {
			params.VPCConfig.Subnets = appendMissing(params.VPCConfig.Subnets, subnet)
		}
	}
	return params
}

func appendMissing(values []string, v string) []string {
	for _, existing := range values {
		if existing == v {
			return values
		}
	}
	return append(values, v)
}

func isBlank(v string) bool {
	return strings.TrimSpace(v) == ""
}
