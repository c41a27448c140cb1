package steps

import (
	"context"
	"strconv"

	"github.com/tiger/robomaker-sim-launcher/api/launcher"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/contracts"
	"github.com/tiger/robomaker-sim-launcher/internal/observability/telemetry"
	telemetrycontext "github.com/tiger/robomaker-sim-launcher/internal/observability/telemetry/context"
)

// Poller reads the batch status once per invocation. It never waits or retries.
type Poller struct {
	execution contracts.ExecutionService
	emitter   telemetry.Emitter
}

// NewPoller queries batch status through execution. A nil emitter uses the default.
func NewPoller(execution contracts.ExecutionService, emitter telemetry.Emitter) *Poller {
	return &Poller{execution: execution, emitter: emitter}
}

// Poll issues one describe call and normalizes the raw status. Without a batch
// handle it returns terminal Failed and makes no call.
func (p *Poller) Poll(ctx context.Context, in launcher.BatchState) (launcher.BatchState, error) {
	span := telemetry.StartStep(p.emitter, StepPoll, telemetrycontext.Resolve(ctx, telemetry.Correlation{
		PipelineJobID: in.PipelineJobID,
		BatchArn:      in.BatchArn(),
		EmittedBy:     "poller",
	}))
	span.Metric(telemetry.MetricPolls, 1, "count", nil)

	out := launcher.BatchState{
		IsValid:        in.IsValid,
		IsDone:         false,
		BatchSimJobArn: in.BatchSimJobArn,
		Status:         launcher.StatusInProgress,
		PipelineJobID:  in.PipelineJobID,
		Error:          in.Error,
	}

	arn := in.BatchArn()
	if arn == "" {
		out.IsDone = true
		out.Status = launcher.StatusFailed
		if out.Error == nil {
			out.Error = &launcher.StepError{
				Error: string(contracts.KindMissingBatchHandle),
				Cause: "no batch was submitted",
			}
		}
		span.Log("warn", "missing_batch_handle", "no batch handle to poll", nil)
		span.End("missing_batch_handle")
		return out, nil
	}

	desc, err := p.execution.DescribeBatch(ctx, arn)
	if err != nil {
		span.Log("error", "describe_batch_failed", err.Error(), nil)
		span.End("describe_failure")
		return launcher.BatchState{}, contracts.NewError(contracts.KindDescribeFailure, "describe simulation batch failed", err)
	}

	next := launcher.NormalizeBatchStatus(desc.Status, desc.FailedRequestCount)
	arns := desc.CreatedJobArns
	if err := launcher.ValidateTransition(in.Status, next); err != nil {
		// A terminal status is never revisited; keep the earlier verdict.
		span.Log("warn", "status_regression_ignored", err.Error(), map[string]string{"raw_status": desc.Status})
		next, arns = in.Status, in.Arns
	}
	out.Status = next
	out.IsDone = next.Terminal()
	if next == launcher.StatusSuccess {
		out.Arns = append([]string{}, arns...)
	}

	span.Log("info", "batch_polled", "batch status polled", map[string]string{
		"raw_status":      desc.Status,
		"status":          string(next),
		"failed_requests": strconv.Itoa(desc.FailedRequestCount),
	})
	span.End(string(next))
	return out, nil
}
