package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/tiger/robomaker-sim-launcher/api/launcher"
	"github.com/tiger/robomaker-sim-launcher/internal/config"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/bootstrap"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/contracts"
)

type stubExecution struct {
	describes int
}

func (s *stubExecution) SubmitBatch(context.Context, contracts.BatchRequest) (string, error) {
	return "arn:batch/lambda", nil
}

func (s *stubExecution) DescribeBatch(_ context.Context, arn string) (contracts.BatchDescription, error) {
	s.describes++
	return contracts.BatchDescription{Arn: arn, Status: "Running"}, nil
}

func (s *stubExecution) DescribeJobs(context.Context, []string) ([]launcher.JobResult, error) {
	return nil, nil
}

func (s *stubExecution) CreateJob(context.Context, launcher.SimulationJobParams) (string, error) {
	return "arn:job/1", nil
}

type stubPipeline struct {
	failures []string
}

func (s *stubPipeline) ReportSuccess(context.Context, string, string) error {
	return nil
}

func (s *stubPipeline) ReportFailure(_ context.Context, _ string, message string) error {
	s.failures = append(s.failures, message)
	return nil
}

func testFunction(t *testing.T, name string, exec *stubExecution, pipeline *stubPipeline) *function {
	t.Helper()
	cfg := config.Config{
		Region:          "us-east-1",
		Batch:           config.BatchPolicy{MaxConcurrency: 2, TimeoutSeconds: 800},
		StateMachineARN: "arn:aws:states:us-east-1:1:stateMachine:sim",
	}
	fn, err := newFunctionWithServices(name, cfg, bootstrap.Services{Execution: exec, Pipeline: pipeline, ArtifactBackend: "stub"}, io.Discard)
	if err != nil {
		t.Fatalf("unexpected function error: %v", err)
	}
	return fn
}

func TestSubmitHandler(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"codePipelineJobId":"job-1","scenarios":{"a":{"robotEnvironmentVariables":{"K":"V"}}},"simulations":[{"scenarios":["a"],"params":{}}]}`)
	out, err := testFunction(t, " Submit ", &stubExecution{}, &stubPipeline{}).Invoke(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected invoke error: %v", err)
	}
	var state launcher.BatchState
	if err := json.Unmarshal(out, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.BatchArn() != "arn:batch/lambda" || !state.IsValid || state.IsDone {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestPollHandlerWithoutBatchHandle(t *testing.T) {
	t.Parallel()

	exec := &stubExecution{}
	out, err := testFunction(t, HandlerPoll, exec, &stubPipeline{}).Invoke(context.Background(), []byte(`{"codePipelineJobId":"job","isValid":false,"isDone":false,"batchSimJobArn":null}`))
	if err != nil {
		t.Fatalf("unexpected invoke error: %v", err)
	}
	if !bytes.Contains(out, []byte(`"isDone":true`)) || !bytes.Contains(out, []byte(`"status":"Failed"`)) || exec.describes != 0 {
		t.Fatalf("unexpected poll output %s (describes=%d)", out, exec.describes)
	}
}

func TestFailHandlerReturnsMessage(t *testing.T) {
	t.Parallel()

	pipeline := &stubPipeline{}
	out, err := testFunction(t, HandlerFail, &stubExecution{}, pipeline).Invoke(context.Background(), []byte(`{"codePipelineJobId":"job","error":{"Error":"States.TaskFailed","Cause":"{\"errorMessage\":\"boom\"}"}}`))
	if err != nil {
		t.Fatalf("unexpected invoke error: %v", err)
	}
	if string(bytes.TrimSpace(out)) != `"Simulations failed."` || len(pipeline.failures) != 1 || pipeline.failures[0] != "boom" {
		t.Fatalf("unexpected fail output %s %+v", out, pipeline.failures)
	}
}

func TestHandlerErrorsSurface(t *testing.T) {
	t.Parallel()

	_, err := testFunction(t, HandlerSummarize, &stubExecution{}, &stubPipeline{}).Invoke(context.Background(), []byte(`{"status":"Success"}`))
	if err == nil || !strings.Contains(err.Error(), "codePipelineJobId") {
		t.Fatalf("expected missing job id error, got %v", err)
	}

	_, err = testFunction(t, HandlerTrigger, &stubExecution{}, &stubPipeline{}).Invoke(context.Background(), []byte(`{}`))
	if err == nil {
		t.Fatalf("expected trigger without workflow services to fail")
	}
}

func TestNewFunctionRejectsUnknownHandler(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	if _, err := newFunctionWithServices("launch", cfg, bootstrap.Services{}, io.Discard); err == nil {
		t.Fatalf("expected unknown handler to be rejected")
	}
	if _, err := newFunctionWithServices("", cfg, bootstrap.Services{}, io.Discard); err == nil {
		t.Fatalf("expected empty handler to be rejected")
	}
	if _, err := newFunctionWithServices(HandlerTrigger, cfg, bootstrap.Services{}, io.Discard); err == nil {
		t.Fatalf("expected trigger without a state machine to be rejected")
	}
}
