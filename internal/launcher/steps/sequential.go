package steps

import (
	"context"
	"strconv"
	"time"

	"github.com/tiger/robomaker-sim-launcher/api/launcher"
	"github.com/tiger/robomaker-sim-launcher/internal/config"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/contracts"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/expansion"
	"github.com/tiger/robomaker-sim-launcher/internal/observability/telemetry"
	telemetrycontext "github.com/tiger/robomaker-sim-launcher/internal/observability/telemetry/context"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the context-aware SleepFunc used outside tests.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SequentialLauncher creates jobs one at a time without the batch API,
// pausing between creations to stay under the service rate limits.
type SequentialLauncher struct {
	expander  expansion.Expander
	execution contracts.ExecutionService
	emitter   telemetry.Emitter
	sleep     SleepFunc
}

// NewSequentialLauncher creates jobs one at a time through execution.
func NewSequentialLauncher(cfg config.Config, execution contracts.ExecutionService, emitter telemetry.Emitter) *SequentialLauncher {
	return &SequentialLauncher{
		expander:  expansion.NewExpander(cfg.Defaults),
		execution: execution,
		emitter:   emitter,
		sleep:     Sleep,
	}
}

// Launch creates every expanded job. Creation errors and unknown scenarios are
// counted as failed; the launch continues. Cancellation returns the partial result.
func (l *SequentialLauncher) Launch(ctx context.Context, in launcher.SequentialInput) (launcher.SequentialResult, error) {
	span := telemetry.StartStep(l.emitter, StepSequential, telemetrycontext.Resolve(ctx, telemetry.Correlation{EmittedBy: "sequential_launcher"}))
	out := launcher.SequentialResult{Arns: []string{}}
	if err := in.Validate(); err != nil {
		span.End("invalid_input")
		return out, contracts.NewError(contracts.KindInvalidInput, "invalid sequential input", err)
	}

	result := l.expander.Expand(in.Simulations, in.Scenarios)
	out.NumFailed = len(result.Missing)
	for _, missing := range result.Missing {
		span.Log("warn", "scenario_not_defined", launcher.CauseScenarioNotDefined, map[string]string{"scenario": missing.Scenario})
	}
	span.Metric(telemetry.MetricJobsExpanded, float64(len(result.Jobs)), "count", nil)

	wait := time.Duration(in.WaitSeconds) * time.Second
	for i, job := range result.Jobs {
		if i > 0 {
			if err := l.sleep(ctx, wait); err != nil {
				span.End("cancelled")
				return out, err
			}
		}
		arn, err := l.execution.CreateJob(ctx, job.Params)
		if err != nil || arn == "" {
			out.NumFailed++
			msg := "create returned no job arn"
			if err != nil {
				msg = err.Error()
			}
			span.Log("error", "create_job_failed", msg, map[string]string{"scenario": job.Scenario})
			continue
		}
		out.NumLaunched++
		out.Arns = append(out.Arns, arn)
		span.Log("info", "job_created", "simulation job created", map[string]string{"scenario": job.Scenario, "job_arn": arn})
	}

	span.Log("info", "sequential_launch_done", "sequential launch finished", map[string]string{
		"launched": strconv.Itoa(out.NumLaunched),
		"failed":   strconv.Itoa(out.NumFailed),
	})
	span.End("ok")
	return out, nil
}
