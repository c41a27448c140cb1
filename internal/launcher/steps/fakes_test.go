package steps

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/tiger/robomaker-sim-launcher/api/launcher"
	"github.com/tiger/robomaker-sim-launcher/internal/config"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/contracts"
)

type fakeExecution struct {
	mu sync.Mutex

	submitArn string
	submitErr error
	submitted []contracts.BatchRequest

	descriptions  []contracts.BatchDescription
	describeErr   error
	describeCalls int

	jobs          map[string]launcher.JobResult
	jobsErr       error
	describedJobs [][]string

	createArns  []string
	createErrs  []error
	createdJobs []launcher.SimulationJobParams
}

func (f *fakeExecution) SubmitBatch(_ context.Context, req contracts.BatchRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	return f.submitArn, f.submitErr
}

func (f *fakeExecution) DescribeBatch(_ context.Context, arn string) (contracts.BatchDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.describeCalls++
	if f.describeErr != nil {
		return contracts.BatchDescription{}, f.describeErr
	}
	if len(f.descriptions) == 0 {
		return contracts.BatchDescription{Arn: arn, Status: "Running"}, nil
	}
	desc := f.descriptions[0]
	if len(f.descriptions) > 1 {
		f.descriptions = f.descriptions[1:]
	}
	desc.Arn = arn
	return desc, nil
}

func (f *fakeExecution) DescribeJobs(_ context.Context, arns []string) ([]launcher.JobResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.describedJobs = append(f.describedJobs, append([]string(nil), arns...))
	if f.jobsErr != nil {
		return nil, f.jobsErr
	}
	out := make([]launcher.JobResult, 0, len(arns))
	for _, arn := range arns {
		job, ok := f.jobs[arn]
		if !ok {
			job = launcher.JobResult{Arn: arn, Status: "Completed", Tags: map[string]string{}}
		}
		out = append(out, job)
	}
	return out, nil
}

func (f *fakeExecution) CreateJob(_ context.Context, params launcher.SimulationJobParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.createdJobs)
	f.createdJobs = append(f.createdJobs, params)
	var err error
	if i < len(f.createErrs) {
		err = f.createErrs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(f.createArns) {
		return f.createArns[i], nil
	}
	return "arn:job/created", nil
}

type report struct {
	jobID   string
	message string
	success bool
}

type fakePipeline struct {
	mu      sync.Mutex
	reports []report
	err     error
}

func (f *fakePipeline) ReportSuccess(_ context.Context, jobID, summary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, report{jobID: jobID, message: summary, success: true})
	return f.err
}

func (f *fakePipeline) ReportFailure(_ context.Context, jobID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, report{jobID: jobID, message: message})
	return f.err
}

type fakeWorkflow struct {
	calls []struct{ arn, name, input string }
	err   error
}

func (f *fakeWorkflow) StartExecution(_ context.Context, stateMachineArn, name, input string) (string, error) {
	f.calls = append(f.calls, struct{ arn, name, input string }{stateMachineArn, name, input})
	if f.err != nil {
		return "", f.err
	}
	return stateMachineArn + ":" + name, nil
}

type fakeArtifacts struct {
	objects map[string][]byte
}

func (f *fakeArtifacts) Open(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	raw, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func testConfig() config.Config {
	return config.Config{
		Region: "us-east-1",
		Defaults: config.Defaults{
			S3Bucket:         "default-bucket",
			IAMRole:          "arn:aws:iam::1:role/default",
			RobotAppARN:      "arn:robot-app",
			SimulationAppARN: "arn:sim-app",
		},
		Batch:                       config.BatchPolicy{MaxConcurrency: 2, TimeoutSeconds: 800},
		StateMachineARN:             "arn:aws:states:us-east-1:1:stateMachine:sim",
		ScenarioDefinitionsFilename: "scenarios.json",
	}
}

func template(scenarios ...string) launcher.SimulationTemplate {
	return launcher.SimulationTemplate{
		Scenarios: scenarios,
		Params: launcher.SimulationJobParams{
			MaxJobDurationInSeconds: 600,
			RobotApplications: []launcher.RobotApplicationConfig{
				{LaunchConfig: launcher.LaunchConfig{PackageName: "nav", LaunchFile: "nav.launch"}},
			},
			SimulationApplications: []launcher.SimulationApplicationConfig{
				{LaunchConfig: launcher.LaunchConfig{PackageName: "world", LaunchFile: "world.launch"}},
			},
		},
	}
}

func scenarioTable(names ...string) launcher.ScenarioTable {
	table := launcher.ScenarioTable{}
	for _, name := range names {
		table[name] = launcher.Scenario{
			RobotEnvironmentVariables: map[string]string{"SCENARIO": name},
			SimEnvironmentVariables:   map[string]string{"WORLD": name + "_world"},
		}
	}
	return table
}
