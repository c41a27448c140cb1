package expansion

import (
	"reflect"
	"testing"

	"github.com/tiger/robomaker-sim-launcher/api/launcher"
	"github.com/tiger/robomaker-sim-launcher/internal/config"
)

func baseTemplate(scenarios ...string) launcher.SimulationTemplate {
	return launcher.SimulationTemplate{
		Scenarios: scenarios,
		Params: launcher.SimulationJobParams{
			MaxJobDurationInSeconds: 600,
			IAMRole:                 "",
			OutputLocation:          &launcher.OutputLocation{S3Bucket: " "},
			RobotApplications: []launcher.RobotApplicationConfig{{
				Application:  "",
				LaunchConfig: launcher.LaunchConfig{PackageName: "nav", LaunchFile: "nav.launch", EnvironmentVariables: map[string]string{"TEMPLATE": "robot"}},
			}},
			SimulationApplications: []launcher.SimulationApplicationConfig{{
				Application:  "",
				LaunchConfig: launcher.LaunchConfig{PackageName: "world", LaunchFile: "world.launch"},
			}},
		},
	}
}

func testScenarios() launcher.ScenarioTable {
	return launcher.ScenarioTable{
		"nav_test": {
			RobotEnvironmentVariables: map[string]string{"ROBOT_GOAL": "dock"},
			SimEnvironmentVariables:   map[string]string{"WORLD": "warehouse"},
		},
		"obstacle_test": {
			RobotEnvironmentVariables: map[string]string{"ROBOT_GOAL": "avoid"},
			SimEnvironmentVariables:   map[string]string{"WORLD": "maze"},
		},
	}
}

func TestExpandInjectsScenarioEnvironment(t *testing.T) {
	t.Parallel()

	result := NewExpander(config.Defaults{}).Expand([]launcher.SimulationTemplate{baseTemplate("nav_test", "obstacle_test")}, testScenarios())
	if !result.IsValid || len(result.Missing) != 0 {
		t.Fatalf("expected valid expansion, got %+v", result)
	}
	if len(result.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(result.Jobs))
	}

	nav := result.Jobs[0].Params
	if nav.Tags[launcher.TagScenario] != "nav_test" {
		t.Fatalf("expected Scenario tag nav_test, got %+v", nav.Tags)
	}
	if !reflect.DeepEqual(nav.RobotApplications[0].LaunchConfig.EnvironmentVariables, map[string]string{"ROBOT_GOAL": "dock"}) {
		t.Fatalf("expected robot env replaced by scenario, got %+v", nav.RobotApplications[0].LaunchConfig.EnvironmentVariables)
	}
	if !reflect.DeepEqual(nav.SimulationApplications[0].LaunchConfig.EnvironmentVariables, map[string]string{"WORLD": "warehouse"}) {
		t.Fatalf("expected sim env replaced by scenario, got %+v", nav.SimulationApplications[0].LaunchConfig.EnvironmentVariables)
	}
	if nav.RobotApplications[0].LaunchConfig.PackageName != "nav" {
		t.Fatalf("expected launch config fields preserved")
	}
}

func TestExpandIsolatesScenarios(t *testing.T) {
	t.Parallel()

	templates := []launcher.SimulationTemplate{baseTemplate("nav_test", "obstacle_test")}
	scenarios := testScenarios()
	result := NewExpander(config.Defaults{S3Bucket: "bucket", Subnets: []string{"subnet-1"}}).Expand(templates, scenarios)

	nav := result.Jobs[0].Params
	obstacle := result.Jobs[1].Params
	if obstacle.RobotApplications[0].LaunchConfig.EnvironmentVariables["ROBOT_GOAL"] != "avoid" {
		t.Fatalf("obstacle job received foreign robot env: %+v", obstacle.RobotApplications[0].LaunchConfig.EnvironmentVariables)
	}
	if obstacle.SimulationApplications[0].LaunchConfig.EnvironmentVariables["WORLD"] != "maze" {
		t.Fatalf("obstacle job received foreign sim env: %+v", obstacle.SimulationApplications[0].LaunchConfig.EnvironmentVariables)
	}

	nav.RobotApplications[0].LaunchConfig.EnvironmentVariables["ROBOT_GOAL"] = "mutated"
	nav.Tags["extra"] = "x"
	if obstacle.RobotApplications[0].LaunchConfig.EnvironmentVariables["ROBOT_GOAL"] != "avoid" || obstacle.Tags["extra"] != "" {
		t.Fatalf("jobs share state")
	}
	if scenarios["nav_test"].RobotEnvironmentVariables["ROBOT_GOAL"] != "dock" {
		t.Fatalf("job mutation leaked into scenario table")
	}

	tmpl := templates[0].Params
	if tmpl.Tags != nil {
		t.Fatalf("template tags were mutated: %+v", tmpl.Tags)
	}
	if !reflect.DeepEqual(tmpl.RobotApplications[0].LaunchConfig.EnvironmentVariables, map[string]string{"TEMPLATE": "robot"}) {
		t.Fatalf("template robot env was mutated: %+v", tmpl.RobotApplications[0].LaunchConfig.EnvironmentVariables)
	}
	if tmpl.OutputLocation.S3Bucket != " " || tmpl.RobotApplications[0].Application != "" {
		t.Fatalf("template defaults were written in place: %+v", tmpl)
	}
}

func TestExpandMarksMissingScenarioInvalid(t *testing.T) {
	t.Parallel()

	templates := []launcher.SimulationTemplate{
		baseTemplate("unknown_scenario"),
		baseTemplate("nav_test", "also_missing", "obstacle_test"),
	}
	result := NewExpander(config.Defaults{}).Expand(templates, testScenarios())
	if result.IsValid {
		t.Fatalf("expected invalid expansion")
	}
	expectedMissing := []MissingScenario{
		{TemplateIndex: 0, Scenario: "unknown_scenario"},
		{TemplateIndex: 1, Scenario: "also_missing"},
	}
	if !reflect.DeepEqual(result.Missing, expectedMissing) {
		t.Fatalf("expected missing %+v, got %+v", expectedMissing, result.Missing)
	}
	if len(result.Jobs) != 2 || result.Jobs[0].Scenario != "nav_test" || result.Jobs[1].Scenario != "obstacle_test" {
		t.Fatalf("expected valid scenarios still expanded, got %+v", result.Jobs)
	}
	for _, job := range result.Jobs {
		if job.Scenario == "unknown_scenario" || job.Scenario == "also_missing" {
			t.Fatalf("job created for missing scenario %q", job.Scenario)
		}
	}
}

func TestExpandAppliesDefaultsOnlyToBlankFields(t *testing.T) {
	t.Parallel()

	defaults := config.Defaults{
		S3Bucket:         "default-bucket",
		IAMRole:          "default-role",
		RobotAppARN:      "default-robot",
		SimulationAppARN: "default-sim",
	}

	blank := baseTemplate("nav_test")
	blank.Params.OutputLocation = nil
	explicit := baseTemplate("nav_test")
	explicit.Params.OutputLocation = &launcher.OutputLocation{S3Bucket: "team-bucket", S3Prefix: "runs"}
	explicit.Params.IAMRole = "team-role"
	explicit.Params.RobotApplications[0].Application = "team-robot"
	explicit.Params.SimulationApplications[0].Application = "team-sim"

	result := NewExpander(defaults).Expand([]launcher.SimulationTemplate{blank, explicit}, testScenarios())
	filled := result.Jobs[0].Params
	if filled.OutputLocation == nil || filled.OutputLocation.S3Bucket != "default-bucket" {
		t.Fatalf("expected default bucket, got %+v", filled.OutputLocation)
	}
	if filled.IAMRole != "default-role" || filled.RobotApplications[0].Application != "default-robot" || filled.SimulationApplications[0].Application != "default-sim" {
		t.Fatalf("expected defaults applied, got %+v", filled)
	}

	kept := result.Jobs[1].Params
	if kept.OutputLocation.S3Bucket != "team-bucket" || kept.OutputLocation.S3Prefix != "runs" {
		t.Fatalf("explicit output location overwritten: %+v", kept.OutputLocation)
	}
	if kept.IAMRole != "team-role" || kept.RobotApplications[0].Application != "team-robot" || kept.SimulationApplications[0].Application != "team-sim" {
		t.Fatalf("explicit values overwritten: %+v", kept)
	}
}

func TestExpandWithoutDefaultsLeavesBlankFields(t *testing.T) {
	t.Parallel()

	tmpl := baseTemplate("nav_test")
	tmpl.Params.OutputLocation = nil
	result := NewExpander(config.Defaults{}).Expand([]launcher.SimulationTemplate{tmpl}, testScenarios())
	params := result.Jobs[0].Params
	if params.OutputLocation != nil || params.IAMRole != "" || params.RobotApplications[0].Application != "" {
		t.Fatalf("expected blank fields left as-is, got %+v", params)
	}
}

func TestExpandVPCDefaultsUseSetUnion(t *testing.T) {
	t.Parallel()

	defaults := config.Defaults{SecurityGroup: "sg-default", Subnets: []string{"subnet-a", "subnet-b"}}

	withVPC := baseTemplate("nav_test")
	withVPC.Params.VPCConfig = &launcher.VPCConfig{
		Subnets:        []string{"subnet-a", "subnet-team"},
		SecurityGroups: []string{"sg-team"},
	}
	alreadyPresent := baseTemplate("nav_test")
	alreadyPresent.Params.VPCConfig = &launcher.VPCConfig{
		Subnets:        []string{"subnet-b", "subnet-a"},
		SecurityGroups: []string{"sg-default"},
	}
	noVPC := baseTemplate("nav_test")

	result := NewExpander(defaults).Expand([]launcher.SimulationTemplate{withVPC, alreadyPresent, noVPC}, testScenarios())

	first := result.Jobs[0].Params.VPCConfig
	if !reflect.DeepEqual(first.Subnets, []string{"subnet-a", "subnet-team", "subnet-b"}) {
		t.Fatalf("unexpected subnets: %+v", first.Subnets)
	}
	if !reflect.DeepEqual(first.SecurityGroups, []string{"sg-team", "sg-default"}) {
		t.Fatalf("unexpected security groups: %+v", first.SecurityGroups)
	}

	second := result.Jobs[1].Params.VPCConfig
	if !reflect.DeepEqual(second.Subnets, []string{"subnet-b", "subnet-a"}) || !reflect.DeepEqual(second.SecurityGroups, []string{"sg-default"}) {
		t.Fatalf("expected no duplicates, got %+v", second)
	}

	if result.Jobs[2].Params.VPCConfig != nil {
		t.Fatalf("expected no vpc config synthesized for template without one")
	}
	if !reflect.DeepEqual(withVPC.Params.VPCConfig.Subnets, []string{"subnet-a", "subnet-team"}) {
		t.Fatalf("template vpc mutated: %+v", withVPC.Params.VPCConfig)
	}
}

func TestExpandIsIdempotent(t *testing.T) {
	t.Parallel()

	templates := []launcher.SimulationTemplate{baseTemplate("nav_test", "obstacle_test")}
	templates[0].Params.VPCConfig = &launcher.VPCConfig{Subnets: []string{"subnet-x"}}
	expander := NewExpander(config.Defaults{S3Bucket: "b", SecurityGroup: "sg", Subnets: []string{"subnet-1"}})

	first := expander.Expand(templates, testScenarios())
	second := expander.Expand(templates, testScenarios())
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected repeated expansion to be identical:\n%+v\n%+v", first, second)
	}
	if len(first.Params()) != 2 {
		t.Fatalf("expected 2 params, got %d", len(first.Params()))
	}
}
