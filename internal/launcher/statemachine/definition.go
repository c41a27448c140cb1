// Package statemachine describes the launch workflow: the Amazon States
// Language definition run by Step Functions and an in-process driver that
// walks the same states.
package statemachine

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// State names shared by the rendered definition and the local driver.
const (
	StateSubmit        = "Submit"
	StateIsValid       = "IsValid"
	StateWait          = "WaitForBatch"
	StatePoll          = "Poll"
	StateIsDone        = "IsDone"
	StateSummarize     = "Summarize"
	StateReportFailure = "ReportFailure"
	StateFailed        = "SimulationsFailed"
)

// DefaultWaitSeconds is the pause between two polls of the same batch.
const DefaultWaitSeconds = 60

const catchAll = "States.ALL"

// Format selects the rendered document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat normalizes a format flag. Empty means JSON.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported definition format %q", raw)
	}
}

// DefinitionConfig binds the workflow states to deployed functions.
type DefinitionConfig struct {
	Comment        string
	SubmitARN      string
	PollARN        string
	SummarizeARN   string
	FailureARN     string
	WaitSeconds    int
	TimeoutSeconds int
}

// Validate requires every function ARN and a positive wait.
func (c DefinitionConfig) Validate() error {
	for name, arn := range map[string]string{
		"submit":    c.SubmitARN,
		"poll":      c.PollARN,
		"summarize": c.SummarizeARN,
		"failure":   c.FailureARN,
	} {
		if strings.TrimSpace(arn) == "" {
			return fmt.Errorf("%s function arn is required", name)
		}
	}
	if c.WaitSeconds < 1 {
		return fmt.Errorf("wait seconds must be >=1")
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout seconds must be >=0")
	}
	return nil
}

// Definition is the subset of the States Language used by the workflow.
type Definition struct {
	Comment        string           `json:"Comment,omitempty" yaml:"Comment,omitempty"`
	StartAt        string           `json:"StartAt" yaml:"StartAt"`
	TimeoutSeconds int              `json:"TimeoutSeconds,omitempty" yaml:"TimeoutSeconds,omitempty"`
	States         map[string]State `json:"States" yaml:"States"`
}

// State is one ASL state. Only the fields of the used state types are present.
type State struct {
	Type     string       `json:"Type" yaml:"Type"`
	Resource string       `json:"Resource,omitempty" yaml:"Resource,omitempty"`
	Seconds  int          `json:"Seconds,omitempty" yaml:"Seconds,omitempty"`
	Choices  []ChoiceRule `json:"Choices,omitempty" yaml:"Choices,omitempty"`
	Default  string       `json:"Default,omitempty" yaml:"Default,omitempty"`
	Catch    []CatchRule  `json:"Catch,omitempty" yaml:"Catch,omitempty"`
	Next     string       `json:"Next,omitempty" yaml:"Next,omitempty"`
	End      bool         `json:"End,omitempty" yaml:"End,omitempty"`
	Error    string       `json:"Error,omitempty" yaml:"Error,omitempty"`
	Cause    string       `json:"Cause,omitempty" yaml:"Cause,omitempty"`
}

// ChoiceRule branches on a boolean field of the state payload.
type ChoiceRule struct {
	Variable      string `json:"Variable" yaml:"Variable"`
	BooleanEquals bool   `json:"BooleanEquals" yaml:"BooleanEquals"`
	Next          string `json:"Next" yaml:"Next"`
}

// CatchRule routes matching task errors to another state.
type CatchRule struct {
	ErrorEquals []string `json:"ErrorEquals" yaml:"ErrorEquals"`
	ResultPath  string   `json:"ResultPath,omitempty" yaml:"ResultPath,omitempty"`
	Next        string   `json:"Next" yaml:"Next"`
}

// NewDefinition builds the workflow: Submit, then IsValid, then the
// Wait/Poll/IsDone loop, then Summarize. Task errors and invalid runs end in
// ReportFailure.
func NewDefinition(cfg DefinitionConfig) (Definition, error) {
	if err := cfg.Validate(); err != nil {
		return Definition{}, err
	}
	catch := []CatchRule{{ErrorEquals: []string{catchAll}, ResultPath: "$.error", Next: StateReportFailure}}

	return Definition{
		Comment:        cfg.Comment,
		StartAt:        StateSubmit,
		TimeoutSeconds: cfg.TimeoutSeconds,
		States: map[string]State{
			StateSubmit: {Type: "Task", Resource: cfg.SubmitARN, Catch: catch, Next: StateIsValid},
			StateIsValid: {
				Type:    "Choice",
				Choices: []ChoiceRule{{Variable: "$.isValid", BooleanEquals: true, Next: StateWait}},
				Default: StateReportFailure,
			},
			StateWait: {Type: "Wait", Seconds: cfg.WaitSeconds, Next: StatePoll},
			StatePoll: {Type: "Task", Resource: cfg.PollARN, Catch: catch, Next: StateIsDone},
			StateIsDone: {
				Type:    "Choice",
				Choices: []ChoiceRule{{Variable: "$.isDone", BooleanEquals: true, Next: StateSummarize}},
				Default: StateWait,
			},
			StateSummarize:     {Type: "Task", Resource: cfg.SummarizeARN, Catch: catch, End: true},
			StateReportFailure: {Type: "Task", Resource: cfg.FailureARN, Next: StateFailed},
			StateFailed:        {Type: "Fail", Error: "SimulationsFailed", Cause: "Simulations failed."},
		},
	}, nil
}

// Render encodes the definition in format.
func Render(cfg DefinitionConfig, format Format) ([]byte, error) {
	def, err := NewDefinition(cfg)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatYAML:
		return yaml.Marshal(def)
	case FormatJSON, "":
		return json.MarshalIndent(def, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported definition format %q", format)
	}
}
