package launcher

import (
	"fmt"
	"strconv"
	"strings"
)

// Wire values shared by every pipeline step.
const (
	// LauncherTagValue identifies batches started by this launcher.
	LauncherTagValue = "cicd_pipeline"
	// TagLauncher and TagPipelineJobID are the batch tag keys.
	TagLauncher      = "launcher"
	TagPipelineJobID = "codePipelineJobId"
	// TagScenario is set on every concrete simulation job.
	TagScenario = "Scenario"
	// FailedMarker is the tag value a simulation writes when its tests fail.
	FailedMarker = "Failed"
)

// Human-readable causes and verdict messages reported to the pipeline.
const (
	CauseScenarioNotDefined = "Scenario not defined."
	MessageNoResults        = "No results."
	MessageExecutionError   = "There was an error in the execution of one or more of your simulations."
	MessageTestsFailed      = "One or more tests failed in simulation."
	// MessageSimulationsFailed is the Failure Reporter's return value.
	MessageSimulationsFailed = "Simulations failed."
)

// Scenario holds the environment overrides for one named test scenario.
type Scenario struct {
	RobotEnvironmentVariables map[string]string `json:"robotEnvironmentVariables"`
	SimEnvironmentVariables   map[string]string `json:"simEnvironmentVariables"`
}

// ScenarioTable maps unique scenario names to their overrides.
type ScenarioTable map[string]Scenario

// SimulationTemplate fans out into one job per referenced scenario.
type SimulationTemplate struct {
	Scenarios []string            `json:"scenarios"`
	Params    SimulationJobParams `json:"params"`
}

// LaunchInput is the Submitter payload, produced by the pipeline trigger.
type LaunchInput struct {
	PipelineJobID string               `json:"codePipelineJobId"`
	Scenarios     ScenarioTable        `json:"scenarios"`
	Simulations   []SimulationTemplate `json:"simulations"`
}

// Validate checks the fields every Submitter invocation needs. A template with
// no scenario references is legal and expands to zero jobs.
func (in LaunchInput) Validate() error {
	if strings.TrimSpace(in.PipelineJobID) == "" {
		return fmt.Errorf("codePipelineJobId is required")
	}
	return nil
}

// StepError mirrors the Step Functions error object ({"Error", "Cause"}).
type StepError struct {
	Error string `json:"Error,omitempty"`
	Cause string `json:"Cause"`
}

// BatchState is the payload passed between Submitter, Poller and Aggregator.
type BatchState struct {
	IsValid        bool        `json:"isValid"`
	IsDone         bool        `json:"isDone"`
	BatchSimJobArn *string     `json:"batchSimJobArn"`
	Status         BatchStatus `json:"status,omitempty"`
	Arns           []string    `json:"arns"`
	PipelineJobID  string      `json:"codePipelineJobId"`
	Error          *StepError  `json:"error,omitempty"`
}

// BatchArn returns the batch handle or "" when none was produced.
func (s BatchState) BatchArn() string {
	if s.BatchSimJobArn == nil {
		return ""
	}
	return strings.TrimSpace(*s.BatchSimJobArn)
}

// Verdict is the terminal payload reported to the pipeline.
type Verdict struct {
	Message        string  `json:"message"`
	BatchSimJobArn *string `json:"batchSimJobArn"`
	PipelineJobID  string  `json:"codePipelineJobId"`
}

// FailureInput is the error-branch payload of the state machine.
type FailureInput struct {
	PipelineJobID string    `json:"codePipelineJobId"`
	Error         StepError `json:"error"`
}

// Validate requires a job id to report against.
func (f FailureInput) Validate() error {
	if strings.TrimSpace(f.PipelineJobID) == "" {
		return fmt.Errorf("codePipelineJobId is required")
	}
	return nil
}

// SequentialInput drives the direct launcher, which skips the batch API.
type SequentialInput struct {
	WaitSeconds Seconds              `json:"wait"`
	Scenarios   ScenarioTable        `json:"scenarios"`
	Simulations []SimulationTemplate `json:"simulations"`
}

// Validate rejects negative waits.
func (in SequentialInput) Validate() error {
	if in.WaitSeconds < 0 {
		return fmt.Errorf("wait must be >=0")
	}
	return nil
}

// Seconds is a whole number of seconds. It decodes from a JSON number or a
// numeric string such as "5".
type Seconds int

func (s *Seconds) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("expected whole seconds, got %s", data)
	}
	*s = Seconds(v)
	return nil
}

// SequentialResult summarizes a direct launch.
type SequentialResult struct {
	NumLaunched int      `json:"numLaunched"`
	NumFailed   int      `json:"numFailed"`
	Arns        []string `json:"arns"`
}

// JobResult is a described simulation job: its handle and tag set.
type JobResult struct {
	Arn    string            `json:"arn"`
	Status string            `json:"status,omitempty"`
	Tags   map[string]string `json:"tags"`
}

// TestsFailed reports whether any tag carries the failed marker.
func (j JobResult) TestsFailed() bool {
	for _, v := range j.Tags {
		if v == FailedMarker {
			return true
		}
	}
	return false
}

// PassedMessage renders the success summary for n examined jobs.
func PassedMessage(n int) string {
	return fmt.Sprintf("%d simulations successfully passed tests.", n)
}

// StringPtr returns nil for blank values so optional handles marshal as null.
func StringPtr(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}
