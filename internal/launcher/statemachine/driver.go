package statemachine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/tiger/robomaker-sim-launcher/api/launcher"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/contracts"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/steps"
	"github.com/tiger/robomaker-sim-launcher/internal/observability/telemetry"
)

// DefaultMaxPolls bounds the local poll loop.
const DefaultMaxPolls = 120

// Submitter is the first task of the workflow.
type Submitter interface {
	Submit(ctx context.Context, in launcher.LaunchInput) (launcher.BatchState, error)
}

type Poller interface {
	Poll(ctx context.Context, in launcher.BatchState) (launcher.BatchState, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, in launcher.BatchState) (launcher.Verdict, error)
}

type FailureSink interface {
	Report(ctx context.Context, in launcher.FailureInput) (string, error)
}

// DriverConfig controls the local poll loop.
type DriverConfig struct {
	Wait     time.Duration
	MaxPolls int
	Sleep    steps.SleepFunc
}

func (c DriverConfig) withDefaults() DriverConfig {
	if c.Wait <= 0 {
		c.Wait = DefaultWaitSeconds * time.Second
	}
	if c.MaxPolls < 1 {
		c.MaxPolls = DefaultMaxPolls
	}
	if c.Sleep == nil {
		c.Sleep = steps.Sleep
	}
	return c
}

// Outcome is the terminal result of one local run. Exactly one of Verdict and
// Failure is set once the pipeline has been told.
type Outcome struct {
	State    launcher.BatchState    `json:"state"`
	Verdict  *launcher.Verdict      `json:"verdict,omitempty"`
	Failure  *launcher.FailureInput `json:"failure,omitempty"`
	Polls    int                    `json:"polls"`
	Statuses []launcher.BatchStatus `json:"statuses,omitempty"`
	Trace    []string               `json:"trace"`
}

// Succeeded reports whether the pipeline received a success verdict.
func (o Outcome) Succeeded() bool {
	return o.Verdict != nil && o.State.Status == launcher.StatusSuccess && o.Verdict.Message != launcher.MessageTestsFailed
}

// Driver runs the workflow in process, walking the same states as the
// rendered definition.
type Driver struct {
	submitter  Submitter
	poller     Poller
	summarizer Summarizer
	failures   FailureSink
	cfg        DriverConfig
	emitter    telemetry.Emitter
}

func NewDriver(submitter Submitter, poller Poller, summarizer Summarizer, failures FailureSink, cfg DriverConfig, emitter telemetry.Emitter) *Driver {
	if emitter == nil {
		emitter = telemetry.DefaultEmitter()
	}
	return &Driver{
		submitter:  submitter,
		poller:     poller,
		summarizer: summarizer,
		failures:   failures,
		cfg:        cfg.withDefaults(),
		emitter:    emitter,
	}
}

// Run submits one batch and drives it to a single pipeline verdict. The
// returned error is non-nil only when no verdict could be delivered.
func (d *Driver) Run(ctx context.Context, in launcher.LaunchInput) (Outcome, error) {
	var out Outcome
	correlation := telemetry.Correlation{PipelineJobID: in.PipelineJobID, EmittedBy: "driver"}

	out.Trace = append(out.Trace, StateSubmit)
	state, err := d.submitter.Submit(ctx, in)
	if err != nil {
		return d.fail(ctx, out, in.PipelineJobID, steps.StepErrorFrom(err), correlation)
	}
	out.State = state
	correlation.BatchArn = state.BatchArn()

	out.Trace = append(out.Trace, StateIsValid)
	if !state.IsValid {
		stepErr := launcher.StepError{Error: string(contracts.KindInvalidScenarioReference), Cause: launcher.CauseScenarioNotDefined}
		if state.Error != nil {
			stepErr = *state.Error
		}
		return d.fail(ctx, out, state.PipelineJobID, stepErr, correlation)
	}

	for !state.IsDone {
		if out.Polls >= d.cfg.MaxPolls {
			return d.fail(ctx, out, state.PipelineJobID, launcher.StepError{
				Error: string(contracts.KindPollAttemptsExhausted),
				Cause: fmt.Sprintf("batch still %s after %d polls", state.Status, out.Polls),
			}, correlation)
		}

		out.Trace = append(out.Trace, StateWait)
		if err := d.cfg.Sleep(ctx, d.cfg.Wait); err != nil {
			return out, err
		}

		out.Trace = append(out.Trace, StatePoll)
		out.Polls++
		correlation.PollAttempt = int64(out.Polls)
		next, err := d.poller.Poll(ctx, state)
		if err != nil {
			return d.fail(ctx, out, state.PipelineJobID, steps.StepErrorFrom(err), correlation)
		}
		if err := launcher.ValidateTransition(state.Status, next.Status); err != nil {
			return d.fail(ctx, out, state.PipelineJobID, launcher.StepError{
				Error: string(contracts.KindBatchExecutionFailure),
				Cause: err.Error(),
			}, correlation)
		}
		state = next
		out.State = state
		out.Statuses = append(out.Statuses, state.Status)
		d.emitter.EmitLog("batch_polled", "debug", "poll attempt finished", map[string]string{
			"status": string(state.Status),
			"done":   strconv.FormatBool(state.IsDone),
		}, correlation)

		out.Trace = append(out.Trace, StateIsDone)
	}

	out.Trace = append(out.Trace, StateSummarize)
	verdict, err := d.summarizer.Summarize(ctx, state)
	if err != nil {
		return d.fail(ctx, out, state.PipelineJobID, steps.StepErrorFrom(err), correlation)
	}
	out.Verdict = &verdict
	d.emitter.EmitLog("run_finished", "info", verdict.Message, map[string]string{
		"polls":  strconv.Itoa(out.Polls),
		"status": string(state.Status),
	}, correlation)
	return out, nil
}

func (d *Driver) fail(ctx context.Context, out Outcome, jobID string, stepErr launcher.StepError, correlation telemetry.Correlation) (Outcome, error) {
	out.Trace = append(out.Trace, StateReportFailure)
	failure := launcher.FailureInput{PipelineJobID: jobID, Error: stepErr}
	d.emitter.EmitLog("run_failed", "warn", stepErr.Cause, map[string]string{"error": stepErr.Error}, correlation)
	if _, err := d.failures.Report(ctx, failure); err != nil {
		return out, fmt.Errorf("report failure for %s: %w", stepErr.Error, err)
	}
	out.Failure = &failure
	out.Trace = append(out.Trace, StateFailed)
	return out, nil
}
