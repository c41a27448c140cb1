package steps

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/tiger/robomaker-sim-launcher/api/launcher"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/contracts"
	"github.com/tiger/robomaker-sim-launcher/internal/observability/telemetry"
	telemetrycontext "github.com/tiger/robomaker-sim-launcher/internal/observability/telemetry/context"
)

// DescribeChunkSize is the number of job handles described per call.
const DescribeChunkSize = 100

// Aggregator turns a finished batch into exactly one pipeline verdict.
type Aggregator struct {
	execution contracts.ExecutionService
	pipeline  contracts.PipelineReporter
	emitter   telemetry.Emitter
}

// NewAggregator reads job tags from execution and reports verdicts to pipeline.
func NewAggregator(execution contracts.ExecutionService, pipeline contracts.PipelineReporter, emitter telemetry.Emitter) *Aggregator {
	return &Aggregator{execution: execution, pipeline: pipeline, emitter: emitter}
}

// Summarize reports failure for any non-Success batch, failure on the first job
// carrying the Failed tag value, and success otherwise.
func (a *Aggregator) Summarize(ctx context.Context, in launcher.BatchState) (launcher.Verdict, error) {
	span := telemetry.StartStep(a.emitter, StepSummarize, telemetrycontext.Resolve(ctx, telemetry.Correlation{
		PipelineJobID: in.PipelineJobID,
		BatchArn:      in.BatchArn(),
		EmittedBy:     "aggregator",
	}))
	verdict := launcher.Verdict{
		Message:        launcher.MessageNoResults,
		BatchSimJobArn: in.BatchSimJobArn,
		PipelineJobID:  in.PipelineJobID,
	}
	if in.PipelineJobID == "" {
		span.End("invalid_input")
		return verdict, contracts.NewError(contracts.KindInvalidInput, "codePipelineJobId is required", nil)
	}

	if in.Status != launcher.StatusSuccess {
		verdict.Message = launcher.MessageExecutionError
		return verdict, a.fail(ctx, span, verdict, contracts.KindBatchExecutionFailure)
	}

	examined := 0
	for start := 0; start < len(in.Arns); start += DescribeChunkSize {
		end := min(start+DescribeChunkSize, len(in.Arns))
		jobs, err := a.execution.DescribeJobs(ctx, in.Arns[start:end])
		if err != nil {
			span.Log("error", "describe_jobs_failed", err.Error(), nil)
			span.End("describe_failure")
			return verdict, contracts.NewError(contracts.KindDescribeFailure, "describe simulation jobs failed", err)
		}
		for _, job := range jobs {
			examined++
			if job.TestsFailed() {
				span.Metric(telemetry.MetricJobsExamined, float64(examined), "count", nil)
				span.Log("info", "test_failure_found", "simulation job reported failed tests", map[string]string{"job_arn": job.Arn})
				verdict.Message = launcher.MessageTestsFailed
				return verdict, a.fail(ctx, span, verdict, contracts.KindTestAssertionFailure)
			}
		}
	}
	span.Metric(telemetry.MetricJobsExamined, float64(examined), "count", nil)

	verdict.Message = launcher.PassedMessage(len(in.Arns))
	summary, err := json.Marshal(verdict)
	if err != nil {
		span.End("encode_failure")
		return verdict, err
	}
	if err := a.pipeline.ReportSuccess(ctx, in.PipelineJobID, string(summary)); err != nil {
		span.End("report_failure")
		return verdict, contracts.NewError(contracts.KindReportFailure, "report pipeline success failed", err)
	}
	span.Metric(telemetry.MetricVerdicts, 1, "count", map[string]string{"verdict": "success"})
	span.Log("info", "verdict_reported", verdict.Message, map[string]string{"jobs": strconv.Itoa(len(in.Arns))})
	span.End("success")
	return verdict, nil
}

func (a *Aggregator) fail(ctx context.Context, span *telemetry.StepSpan, verdict launcher.Verdict, kind contracts.Kind) error {
	if err := a.pipeline.ReportFailure(ctx, verdict.PipelineJobID, verdict.Message); err != nil {
		span.End("report_failure")
		return contracts.NewError(contracts.KindReportFailure, "report pipeline failure failed", err)
	}
	span.Metric(telemetry.MetricVerdicts, 1, "count", map[string]string{"verdict": "failure", "kind": string(kind)})
	span.Log("info", "verdict_reported", verdict.Message, map[string]string{"kind": string(kind)})
	span.End("failure")
	return nil
}
