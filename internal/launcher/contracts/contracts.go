package contracts

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tiger/robomaker-sim-launcher/api/launcher"
	"github.com/tiger/robomaker-sim-launcher/internal/config"
)

// BatchRequest is one managed batch submission.
type BatchRequest struct {
	Jobs               []launcher.SimulationJobParams
	Policy             config.BatchPolicy
	ClientRequestToken string
	Tags               map[string]string
}

// Validate enforces submission preconditions.
func (r BatchRequest) Validate() error {
	if len(r.Jobs) == 0 {
		return fmt.Errorf("batch requires at least one simulation job")
	}
	if err := r.Policy.Validate(); err != nil {
		return err
	}
	if len(r.ClientRequestToken) > 64 {
		return fmt.Errorf("client request token must be <=64 characters")
	}
	return nil
}

// BatchDescription is the raw batch status as reported by the execution service.
type BatchDescription struct {
	Arn                string
	Status             string
	CreatedJobArns     []string
	FailedRequestCount int
}

// ExecutionService runs simulation jobs.
type ExecutionService interface {
	SubmitBatch(ctx context.Context, req BatchRequest) (string, error)
	DescribeBatch(ctx context.Context, batchArn string) (BatchDescription, error)
	DescribeJobs(ctx context.Context, jobArns []string) ([]launcher.JobResult, error)
	CreateJob(ctx context.Context, params launcher.SimulationJobParams) (string, error)
}

// PipelineReporter delivers the terminal verdict of a pipeline job.
type PipelineReporter interface {
	ReportSuccess(ctx context.Context, jobID, summary string) error
	ReportFailure(ctx context.Context, jobID, message string) error
}

// WorkflowStarter starts one execution of the orchestration state machine.
type WorkflowStarter interface {
	StartExecution(ctx context.Context, stateMachineArn, name, input string) (string, error)
}

// ArtifactStore opens build artifacts written by the pipeline.
type ArtifactStore interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// FailureClass is the normalized service-failure taxonomy used by adapters.
type FailureClass string

const (
	FailureTimeout        FailureClass = "timeout"
	FailureThrottled      FailureClass = "throttled"
	FailureClient         FailureClass = "client_error"
	FailureServer         FailureClass = "server_error"
	FailureTransport      FailureClass = "transport_error"
	FailureCancelled      FailureClass = "cancelled"
	FailureNotFound       FailureClass = "not_found"
	FailureInvalidRequest FailureClass = "invalid_request"
)

// ServiceError is returned by adapters for failed collaborator calls.
type ServiceError struct {
	Service   string
	Operation string
	Class     FailureClass
	Code      string
	Retryable bool
	Err       error
}

func (e *ServiceError) Error() string {
	code := ""
	if e.Code != "" {
		code = " " + e.Code
	}
	return fmt.Sprintf("%s %s failed (%s%s): %v", e.Service, e.Operation, e.Class, code, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Kind is the orchestration error taxonomy. Every kind ends in one pipeline failure report.
type Kind string

const (
	KindInvalidScenarioReference Kind = "InvalidScenarioReference"
	KindSubmissionFailure        Kind = "SubmissionFailure"
	KindMissingBatchHandle       Kind = "MissingBatchHandle"
	KindBatchExecutionFailure    Kind = "BatchExecutionFailure"
	KindTestAssertionFailure     Kind = "TestAssertionFailure"
	KindInvalidInput             Kind = "InvalidInput"
	KindDescribeFailure          Kind = "DescribeFailure"
	KindReportFailure            Kind = "ReportFailure"
	KindArtifactFailure          Kind = "ArtifactFailure"
	KindPollAttemptsExhausted    Kind = "PollAttemptsExhausted"
)

// Error carries a kind and the human-readable cause reported to the pipeline.
type Error struct {
	Kind  Kind
	Cause string
	Err   error
}

// NewError builds a typed orchestration error.
func NewError(kind Kind, cause string, err error) *Error {
	return &Error{Kind: kind, Cause: strings.TrimSpace(cause), Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Cause
	case e.Cause == "":
		return e.Err.Error()
	default:
		return e.Cause + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}
