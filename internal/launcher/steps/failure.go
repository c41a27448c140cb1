package steps

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/tiger/robomaker-sim-launcher/api/launcher"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/contracts"
	"github.com/tiger/robomaker-sim-launcher/internal/observability/telemetry"
	telemetrycontext "github.com/tiger/robomaker-sim-launcher/internal/observability/telemetry/context"
)

// FailureReporter is the error sink of the workflow: every failed step ends here.
type FailureReporter struct {
	pipeline contracts.PipelineReporter
	emitter  telemetry.Emitter
}

// NewFailureReporter reports step failures to pipeline as JobFailed.
func NewFailureReporter(pipeline contracts.PipelineReporter, emitter telemetry.Emitter) *FailureReporter {
	return &FailureReporter{pipeline: pipeline, emitter: emitter}
}

// Report sends one JobFailed result carrying the upstream cause.
func (f *FailureReporter) Report(ctx context.Context, in launcher.FailureInput) (string, error) {
	span := telemetry.StartStep(f.emitter, StepFail, telemetrycontext.Resolve(ctx, telemetry.Correlation{PipelineJobID: in.PipelineJobID, EmittedBy: "failure_reporter"}))
	if err := in.Validate(); err != nil {
		span.End("invalid_input")
		return "", contracts.NewError(contracts.KindInvalidInput, "invalid failure input", err)
	}

	message := FailureMessage(in.Error)
	if err := f.pipeline.ReportFailure(ctx, in.PipelineJobID, message); err != nil {
		span.Log("error", "report_failure_failed", err.Error(), nil)
		span.End("report_failure")
		return "", contracts.NewError(contracts.KindReportFailure, "report pipeline failure failed", err)
	}
	span.Metric(telemetry.MetricVerdicts, 1, "count", map[string]string{"verdict": "failure", "kind": in.Error.Error})
	span.Log("info", "failure_reported", message, map[string]string{"error": in.Error.Error})
	span.End("reported")
	return launcher.MessageSimulationsFailed, nil
}

// FailureMessage renders the human-readable cause of a step error. Lambda error
// documents ({"errorMessage": ...}) are unwrapped; an empty cause falls back to the error name.
func FailureMessage(stepErr launcher.StepError) string {
	cause := strings.TrimSpace(stepErr.Cause)
	if strings.HasPrefix(cause, "{") {
		var doc struct {
			ErrorMessage string `json:"errorMessage"`
		}
		if err := json.Unmarshal([]byte(cause), &doc); err == nil && strings.TrimSpace(doc.ErrorMessage) != "" {
			cause = strings.TrimSpace(doc.ErrorMessage)
		}
	}
	if cause == "" {
		cause = strings.TrimSpace(stepErr.Error)
	}
	if cause == "" {
		cause = launcher.MessageSimulationsFailed
	}
	return cause
}

// StepErrorFrom converts a handler error into the payload the error branch receives.
func StepErrorFrom(err error) launcher.StepError {
	var typed *contracts.Error
	if errors.As(err, &typed) {
		return launcher.StepError{Error: string(typed.Kind), Cause: typed.Error()}
	}
	return launcher.StepError{Error: "Error", Cause: err.Error()}
}
