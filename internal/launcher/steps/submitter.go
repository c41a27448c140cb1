// Package steps implements the stateless handlers of the simulation launch workflow.
package steps

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tiger/robomaker-sim-launcher/api/launcher"
	"github.com/tiger/robomaker-sim-launcher/internal/config"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/contracts"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/expansion"
	"github.com/tiger/robomaker-sim-launcher/internal/observability/telemetry"
	telemetrycontext "github.com/tiger/robomaker-sim-launcher/internal/observability/telemetry/context"
)

// Step names used in telemetry correlation.
const (
	StepSubmit     = "submit"
	StepPoll       = "poll"
	StepSummarize  = "summarize"
	StepFail       = "report_failure"
	StepTrigger    = "trigger"
	StepSequential = "sequential"
)

// Submitter expands a launch into concrete jobs and submits them as one batch.
type Submitter struct {
	expander  expansion.Expander
	execution contracts.ExecutionService
	policy    config.BatchPolicy
	emitter   telemetry.Emitter
}

// NewSubmitter binds the process config to an execution service. A nil emitter uses the default.
func NewSubmitter(cfg config.Config, execution contracts.ExecutionService, emitter telemetry.Emitter) *Submitter {
	return &Submitter{
		expander:  expansion.NewExpander(cfg.Defaults),
		execution: execution,
		policy:    cfg.Batch,
		emitter:   emitter,
	}
}

// BatchToken derives the batch idempotency token from the pipeline job id.
func BatchToken(pipelineJobID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:simlauncher:batch:"+pipelineJobID)).String()
}

// Submit issues at most one batch submission. Unknown scenarios flag the run
// invalid but the remaining jobs are still submitted.
func (s *Submitter) Submit(ctx context.Context, in launcher.LaunchInput) (launcher.BatchState, error) {
	span := telemetry.StartStep(s.emitter, StepSubmit, telemetrycontext.Resolve(ctx, telemetry.Correlation{PipelineJobID: in.PipelineJobID, EmittedBy: "submitter"}))
	if err := in.Validate(); err != nil {
		span.End("invalid_input")
		return launcher.BatchState{}, contracts.NewError(contracts.KindInvalidInput, "invalid launch input", err)
	}

	result := s.expander.Expand(in.Simulations, in.Scenarios)
	span.Metric(telemetry.MetricJobsExpanded, float64(len(result.Jobs)), "count", nil)

	state := launcher.BatchState{
		IsValid:       result.IsValid,
		IsDone:        false,
		PipelineJobID: in.PipelineJobID,
	}
	if !result.IsValid {
		names := make([]string, 0, len(result.Missing))
		for _, missing := range result.Missing {
			names = append(names, missing.Scenario)
		}
		span.Metric(telemetry.MetricMissingScenarios, float64(len(result.Missing)), "count", nil)
		span.Log("warn", "scenario_not_defined", launcher.CauseScenarioNotDefined, map[string]string{"scenarios": strings.Join(names, ",")})
		state.Error = &launcher.StepError{
			Error: string(contracts.KindInvalidScenarioReference),
			Cause: launcher.CauseScenarioNotDefined,
		}
	}

	if len(result.Jobs) == 0 {
		if !result.IsValid {
			span.End("invalid_no_jobs")
			return state, nil
		}
		span.End("no_jobs")
		return launcher.BatchState{}, contracts.NewError(contracts.KindSubmissionFailure, "no simulation jobs to submit", nil)
	}

	arn, err := s.execution.SubmitBatch(ctx, contracts.BatchRequest{
		Jobs:               result.Params(),
		Policy:             s.policy,
		ClientRequestToken: BatchToken(in.PipelineJobID),
		Tags: map[string]string{
			launcher.TagLauncher:      launcher.LauncherTagValue,
			launcher.TagPipelineJobID: in.PipelineJobID,
		},
	})
	if err != nil {
		span.Log("error", "batch_submit_failed", err.Error(), nil)
		span.End("submission_failure")
		return launcher.BatchState{}, contracts.NewError(contracts.KindSubmissionFailure, "batch submission failed", err)
	}
	if strings.TrimSpace(arn) == "" {
		span.End("submission_failure")
		return launcher.BatchState{}, contracts.NewError(contracts.KindSubmissionFailure, "batch submission returned no batch arn", nil)
	}

	state.BatchSimJobArn = &arn
	span.SetBatchArn(arn)
	span.Metric(telemetry.MetricBatchesSubmitted, 1, "count", nil)
	span.Log("info", "batch_submitted", "simulation batch submitted", map[string]string{"jobs": strconv.Itoa(len(result.Jobs))})
	span.End("ok")
	return state, nil
}
