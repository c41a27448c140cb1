package steps

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/tiger/robomaker-sim-launcher/internal/config"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/contracts"
	"github.com/tiger/robomaker-sim-launcher/internal/observability/telemetry"
	telemetrycontext "github.com/tiger/robomaker-sim-launcher/internal/observability/telemetry/context"
	"github.com/tiger/robomaker-sim-launcher/internal/tooling/validation"
)

// MaxArtifactBytes bounds the build artifact read into memory.
const MaxArtifactBytes = 256 << 20

// TriggerResult is returned to the pipeline action invoker.
type TriggerResult struct {
	PipelineJobID string `json:"codePipelineJobId"`
	ExecutionArn  string `json:"executionArn,omitempty"`
	ExecutionName string `json:"executionName,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Trigger starts one workflow execution per pipeline job from the scenario
// definitions shipped in the job's input artifact.
type Trigger struct {
	artifacts       contracts.ArtifactStore
	workflow        contracts.WorkflowStarter
	pipeline        contracts.PipelineReporter
	stateMachineArn string
	filename        string
	emitter         telemetry.Emitter
	newName         func() string
}

// NewTrigger starts workflow executions from pipeline artifacts.
func NewTrigger(cfg config.Config, artifacts contracts.ArtifactStore, workflow contracts.WorkflowStarter, pipeline contracts.PipelineReporter, emitter telemetry.Emitter) *Trigger {
	return &Trigger{
		artifacts:       artifacts,
		workflow:        workflow,
		pipeline:        pipeline,
		stateMachineArn: cfg.StateMachineARN,
		filename:        cfg.ScenarioDefinitionsFilename,
		emitter:         emitter,
		newName:         uuid.NewString,
	}
}

// Handle starts the workflow. Any failure is reported to the pipeline as JobFailed
// and returned in the result; only a failed failure report is an error.
func (t *Trigger) Handle(ctx context.Context, event events.CodePipelineJobEvent) (TriggerResult, error) {
	jobID := strings.TrimSpace(event.CodePipelineJob.ID)
	span := telemetry.StartStep(t.emitter, StepTrigger, telemetrycontext.Resolve(ctx, telemetry.Correlation{PipelineJobID: jobID, EmittedBy: "trigger"}))
	result := TriggerResult{PipelineJobID: jobID}
	if jobID == "" {
		span.End("invalid_input")
		return result, contracts.NewError(contracts.KindInvalidInput, "CodePipeline.job id is required", nil)
	}

	input, err := t.launchInput(ctx, jobID, event.CodePipelineJob.Data.InputArtifacts)
	if err == nil {
		name := t.newName()
		var arn string
		arn, err = t.workflow.StartExecution(ctx, t.stateMachineArn, name, string(input))
		if err == nil {
			result.ExecutionArn, result.ExecutionName = arn, name
			span.Log("info", "execution_started", "workflow execution started", map[string]string{"execution_arn": arn})
			span.End("ok")
			return result, nil
		}
		err = fmt.Errorf("start execution: %w", err)
	}

	result.Error = err.Error()
	span.Log("error", "trigger_failed", result.Error, nil)
	if reportErr := t.pipeline.ReportFailure(ctx, jobID, result.Error); reportErr != nil {
		span.End("report_failure")
		return result, contracts.NewError(contracts.KindReportFailure, "report pipeline failure failed", reportErr)
	}
	span.End("failure_reported")
	return result, nil
}

func (t *Trigger) launchInput(ctx context.Context, jobID string, artifacts []events.CodePipelineInputArtifact) ([]byte, error) {
	if len(artifacts) == 0 {
		return nil, contracts.NewError(contracts.KindArtifactFailure, "pipeline job has no input artifact", nil)
	}
	location := artifacts[0].Location.S3Location
	archive, err := t.readArtifact(ctx, location.BucketName, location.ObjectKey)
	if err != nil {
		return nil, err
	}
	raw, err := FindDocument(archive, t.filename)
	if err != nil {
		return nil, err
	}
	doc, err := validation.DecodeDocument(t.filename, raw)
	if err != nil {
		return nil, contracts.NewError(contracts.KindInvalidInput, "decode scenario definitions", err)
	}
	input, err := validation.WithPipelineJobID(doc, jobID)
	if err != nil {
		return nil, contracts.NewError(contracts.KindInvalidInput, "decode scenario definitions", err)
	}
	if err := validation.ValidateDocument(input, validation.KindLaunch, validation.ValidationModeRelaxed); err != nil {
		return nil, contracts.NewError(contracts.KindInvalidInput, "invalid scenario definitions", err)
	}
	return input, nil
}

func (t *Trigger) readArtifact(ctx context.Context, bucket, key string) ([]byte, error) {
	rc, err := t.artifacts.Open(ctx, bucket, key)
	if err != nil {
		return nil, contracts.NewError(contracts.KindArtifactFailure, "open input artifact", err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(io.LimitReader(rc, MaxArtifactBytes+1))
	if err != nil {
		return nil, contracts.NewError(contracts.KindArtifactFailure, "read input artifact", err)
	}
	if len(raw) > MaxArtifactBytes {
		return nil, contracts.NewError(contracts.KindArtifactFailure, fmt.Sprintf("input artifact exceeds %d bytes", MaxArtifactBytes), nil)
	}
	return raw, nil
}

// FindDocument returns the archive entry whose name equals filename.
func FindDocument(archive []byte, filename string) ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, contracts.NewError(contracts.KindArtifactFailure, "input artifact is not a zip archive", err)
	}
	for _, file := range reader.File {
		if file.Name != filename {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, contracts.NewError(contracts.KindArtifactFailure, "open "+filename, err)
		}
		defer rc.Close()
		raw, err := io.ReadAll(io.LimitReader(rc, MaxArtifactBytes))
		if err != nil {
			return nil, contracts.NewError(contracts.KindArtifactFailure, "read "+filename, err)
		}
		return raw, nil
	}
	return nil, contracts.NewError(contracts.KindArtifactFailure, fmt.Sprintf("%s not found in input artifact", filename), nil)
}
