package robomaker

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/robomaker"
	"github.com/aws/aws-sdk-go-v2/service/robomaker/types"
	"github.com/aws/smithy-go"
	"github.com/tiger/robomaker-sim-launcher/api/launcher"
	"github.com/tiger/robomaker-sim-launcher/internal/config"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/contracts"
)

type fakeSimulationClient struct {
	started   []*robomaker.StartSimulationJobBatchInput
	described []*robomaker.DescribeSimulationJobBatchInput
	jobs      []*robomaker.BatchDescribeSimulationJobInput
	created   []*robomaker.CreateSimulationJobInput

	startOut    *robomaker.StartSimulationJobBatchOutput
	describeOut *robomaker.DescribeSimulationJobBatchOutput
	jobsOut     *robomaker.BatchDescribeSimulationJobOutput
	createOut   *robomaker.CreateSimulationJobOutput
	err         error
}

func (f *fakeSimulationClient) StartSimulationJobBatch(ctx context.Context, params *robomaker.StartSimulationJobBatchInput, optFns ...func(*robomaker.Options)) (*robomaker.StartSimulationJobBatchOutput, error) {
	f.started = append(f.started, params)
	if f.err != nil {
		return nil, f.err
	}
	return f.startOut, nil
}

func (f *fakeSimulationClient) DescribeSimulationJobBatch(ctx context.Context, params *robomaker.DescribeSimulationJobBatchInput, optFns ...func(*robomaker.Options)) (*robomaker.DescribeSimulationJobBatchOutput, error) {
	f.described = append(f.described, params)
	if f.err != nil {
		return nil, f.err
	}
	return f.describeOut, nil
}

func (f *fakeSimulationClient) BatchDescribeSimulationJob(ctx context.Context, params *robomaker.BatchDescribeSimulationJobInput, optFns ...func(*robomaker.Options)) (*robomaker.BatchDescribeSimulationJobOutput, error) {
	f.jobs = append(f.jobs, params)
	if f.err != nil {
		return nil, f.err
	}
	return f.jobsOut, nil
}

func (f *fakeSimulationClient) CreateSimulationJob(ctx context.Context, params *robomaker.CreateSimulationJobInput, optFns ...func(*robomaker.Options)) (*robomaker.CreateSimulationJobOutput, error) {
	f.created = append(f.created, params)
	if f.err != nil {
		return nil, f.err
	}
	return f.createOut, nil
}

func newTestAdapter(t *testing.T, client *fakeSimulationClient) *Adapter {
	t.Helper()

	adapter, err := NewAdapterWithClient(Config{Region: "us-west-2"}, client)
	if err != nil {
		t.Fatalf("unexpected adapter error: %v", err)
	}
	return adapter
}

func TestSubmitBatchMapsPolicyTagsAndJobs(t *testing.T) {
	t.Parallel()

	client := &fakeSimulationClient{
		startOut: &robomaker.StartSimulationJobBatchOutput{Arn: aws.String("arn:aws:robomaker:us-west-2:1:simulation-job-batch/b1")},
	}
	adapter := newTestAdapter(t, client)

	units := int32(15)
	arn, err := adapter.SubmitBatch(context.Background(), contracts.BatchRequest{
		Jobs: []launcher.SimulationJobParams{{
			ClientRequestToken:      "per-job",
			IAMRole:                 "role",
			MaxJobDurationInSeconds: 600,
			OutputLocation:          &launcher.OutputLocation{S3Bucket: "bucket"},
			VPCConfig:               &launcher.VPCConfig{Subnets: []string{"subnet-1"}, AssignPublicIP: aws.Bool(true)},
			Compute:                 &launcher.Compute{SimulationUnitLimit: &units},
			Tags:                    map[string]string{"Scenario": "nav_test"},
			RobotApplications: []launcher.RobotApplicationConfig{{
				Application: "arn:robot-app",
				LaunchConfig: launcher.LaunchConfig{
					PackageName:          "nav",
					LaunchFile:           "nav.launch",
					EnvironmentVariables: map[string]string{"ROUTE": "loop"},
				},
			}},
			SimulationApplications: []launcher.SimulationApplicationConfig{{
				Application:  "arn:sim-app",
				LaunchConfig: launcher.LaunchConfig{PackageName: "world"},
				WorldConfigs: []launcher.WorldConfig{{World: "arn:world/1"}},
			}},
		}},
		Policy:             config.BatchPolicy{MaxConcurrency: 2, TimeoutSeconds: 800},
		ClientRequestToken: "token-1",
		Tags:               map[string]string{"launcher": "cicd_pipeline", "codePipelineJobId": "job-1"},
	})
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	if arn != "arn:aws:robomaker:us-west-2:1:simulation-job-batch/b1" {
		t.Fatalf("unexpected batch arn %q", arn)
	}
	if len(client.started) != 1 {
		t.Fatalf("expected exactly one batch submission call, got %d", len(client.started))
	}
	in := client.started[0]
	if aws.ToInt32(in.BatchPolicy.MaxConcurrency) != 2 || aws.ToInt64(in.BatchPolicy.TimeoutInSeconds) != 800 {
		t.Fatalf("unexpected batch policy %+v", in.BatchPolicy)
	}
	if aws.ToString(in.ClientRequestToken) != "token-1" || in.Tags["launcher"] != "cicd_pipeline" || in.Tags["codePipelineJobId"] != "job-1" {
		t.Fatalf("unexpected batch token or tags: %q %v", aws.ToString(in.ClientRequestToken), in.Tags)
	}
	if len(in.CreateSimulationJobRequests) != 1 {
		t.Fatalf("expected one job request, got %d", len(in.CreateSimulationJobRequests))
	}
	job := in.CreateSimulationJobRequests[0]
	if aws.ToString(job.IamRole) != "role" || job.MaxJobDurationInSeconds != 600 || job.Tags["Scenario"] != "nav_test" {
		t.Fatalf("unexpected job request %+v", job)
	}
	if aws.ToString(job.OutputLocation.S3Bucket) != "bucket" || job.OutputLocation.S3Prefix != nil {
		t.Fatalf("unexpected output location %+v", job.OutputLocation)
	}
	if !job.VpcConfig.AssignPublicIp || len(job.VpcConfig.Subnets) != 1 || aws.ToInt32(job.Compute.SimulationUnitLimit) != 15 {
		t.Fatalf("unexpected vpc or compute %+v %+v", job.VpcConfig, job.Compute)
	}
	robot := job.RobotApplications[0]
	if aws.ToString(robot.Application) != "arn:robot-app" || aws.ToString(robot.LaunchConfig.LaunchFile) != "nav.launch" || robot.LaunchConfig.EnvironmentVariables["ROUTE"] != "loop" {
		t.Fatalf("unexpected robot application %+v", robot)
	}
	sim := job.SimulationApplications[0]
	if len(sim.WorldConfigs) != 1 || aws.ToString(sim.WorldConfigs[0].World) != "arn:world/1" {
		t.Fatalf("unexpected world configs %+v", sim.WorldConfigs)
	}
}

func TestSubmitBatchRejectsEmptyBatchWithoutCalling(t *testing.T) {
	t.Parallel()

	client := &fakeSimulationClient{}
	adapter := newTestAdapter(t, client)
	_, err := adapter.SubmitBatch(context.Background(), contracts.BatchRequest{Policy: config.BatchPolicy{MaxConcurrency: 2, TimeoutSeconds: 800}})
	if err == nil {
		t.Fatalf("expected empty batch to fail")
	}
	if len(client.started) != 0 {
		t.Fatalf("expected no service call, got %d", len(client.started))
	}
}

func TestSubmitBatchRequiresBatchArn(t *testing.T) {
	t.Parallel()

	client := &fakeSimulationClient{startOut: &robomaker.StartSimulationJobBatchOutput{}}
	adapter := newTestAdapter(t, client)
	_, err := adapter.SubmitBatch(context.Background(), contracts.BatchRequest{
		Jobs:   []launcher.SimulationJobParams{{IAMRole: "role", MaxJobDurationInSeconds: 60}},
		Policy: config.BatchPolicy{MaxConcurrency: 2, TimeoutSeconds: 800},
	})
	var svcErr *contracts.ServiceError
	if !errors.As(err, &svcErr) || svcErr.Operation != "StartSimulationJobBatch" {
		t.Fatalf("expected classified missing-arn error, got %v", err)
	}
}

func TestDescribeBatchMapsCreatedAndFailedRequests(t *testing.T) {
	t.Parallel()

	client := &fakeSimulationClient{
		describeOut: &robomaker.DescribeSimulationJobBatchOutput{
			Arn:    aws.String("arn:batch/1"),
			Status: types.SimulationJobBatchStatusCompleted,
			CreatedRequests: []types.SimulationJobSummary{
				{Arn: aws.String("arn:job/1")},
				{Arn: aws.String("arn:job/2")},
			},
			FailedRequests: []types.FailedCreateSimulationJobRequest{{FailureCode: types.SimulationJobErrorCodeInternalServiceError}},
		},
	}
	adapter := newTestAdapter(t, client)

	desc, err := adapter.DescribeBatch(context.Background(), "arn:batch/1")
	if err != nil {
		t.Fatalf("unexpected describe error: %v", err)
	}
	if desc.Arn != "arn:batch/1" || desc.Status != "Completed" || desc.FailedRequestCount != 1 {
		t.Fatalf("unexpected description %+v", desc)
	}
	if len(desc.CreatedJobArns) != 2 || desc.CreatedJobArns[0] != "arn:job/1" || desc.CreatedJobArns[1] != "arn:job/2" {
		t.Fatalf("expected service order of created jobs, got %v", desc.CreatedJobArns)
	}
	if aws.ToString(client.described[0].Batch) != "arn:batch/1" {
		t.Fatalf("unexpected describe input %+v", client.described[0])
	}
}

func TestDescribeJobsReturnsTags(t *testing.T) {
	t.Parallel()

	client := &fakeSimulationClient{
		jobsOut: &robomaker.BatchDescribeSimulationJobOutput{
			Jobs: []types.SimulationJob{
				{Arn: aws.String("arn:job/1"), Status: types.SimulationJobStatusCompleted, Tags: map[string]string{"Scenario": "nav_test"}},
				{Arn: aws.String("arn:job/2"), Status: types.SimulationJobStatusCompleted, Tags: map[string]string{"UnitTest": "Failed"}},
			},
		},
	}
	adapter := newTestAdapter(t, client)

	jobs, err := adapter.DescribeJobs(context.Background(), []string{"arn:job/1", "arn:job/2"})
	if err != nil {
		t.Fatalf("unexpected describe error: %v", err)
	}
	if len(jobs) != 2 || jobs[0].Arn != "arn:job/1" || jobs[0].TestsFailed() || !jobs[1].TestsFailed() {
		t.Fatalf("unexpected jobs %+v", jobs)
	}
	if len(client.jobs[0].Jobs) != 2 {
		t.Fatalf("expected both arns in one call, got %v", client.jobs[0].Jobs)
	}
}

func TestDescribeJobsEnforcesLimitAndUnprocessed(t *testing.T) {
	t.Parallel()

	client := &fakeSimulationClient{
		jobsOut: &robomaker.BatchDescribeSimulationJobOutput{UnprocessedJobs: []string{"arn:job/9"}},
	}
	adapter := newTestAdapter(t, client)

	tooMany := make([]string, MaxDescribeJobs+1)
	if _, err := adapter.DescribeJobs(context.Background(), tooMany); err == nil {
		t.Fatalf("expected describe limit error")
	}
	if len(client.jobs) != 0 {
		t.Fatalf("expected no call over the limit")
	}
	if _, err := adapter.DescribeJobs(context.Background(), []string{"arn:job/9"}); err == nil {
		t.Fatalf("expected unprocessed jobs to fail")
	}
}

func TestServiceErrorsAreClassified(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   error
		class contracts.FailureClass
	}{
		{name: "throttled", err: &smithy.GenericAPIError{Code: "ThrottlingException", Fault: smithy.FaultClient}, class: contracts.FailureThrottled},
		{name: "not_found", err: &types.ResourceNotFoundException{Message: aws.String("no batch")}, class: contracts.FailureNotFound},
		{name: "invalid", err: &types.InvalidParameterException{Message: aws.String("bad role")}, class: contracts.FailureInvalidRequest},
		{name: "server", err: &types.InternalServerException{Message: aws.String("boom")}, class: contracts.FailureServer},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			adapter := newTestAdapter(t, &fakeSimulationClient{err: tc.err})
			_, err := adapter.DescribeBatch(context.Background(), "arn:batch/1")
			var svcErr *contracts.ServiceError
			if !errors.As(err, &svcErr) {
				t.Fatalf("expected service error, got %v", err)
			}
			if svcErr.Class != tc.class || svcErr.Operation != "DescribeSimulationJobBatch" {
				t.Fatalf("expected %s, got %+v", tc.class, svcErr)
			}
		})
	}
}

func TestCreateJobKeepsClientToken(t *testing.T) {
	t.Parallel()

	client := &fakeSimulationClient{createOut: &robomaker.CreateSimulationJobOutput{Arn: aws.String("arn:job/42")}}
	adapter := newTestAdapter(t, client)
	arn, err := adapter.CreateJob(context.Background(), launcher.SimulationJobParams{
		ClientRequestToken:      "token-42",
		IAMRole:                 "role",
		MaxJobDurationInSeconds: 60,
		FailureBehavior:         "Fail",
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	in := client.created[0]
	if arn != "arn:job/42" || aws.ToString(in.IamRole) != "role" || aws.ToString(in.ClientRequestToken) != "token-42" {
		t.Fatalf("unexpected create call arn=%q input=%+v", arn, in)
	}
	if in.FailureBehavior != types.FailureBehaviorFail || in.MaxJobDurationInSeconds != 60 {
		t.Fatalf("unexpected create input %+v", in)
	}
}

func TestNewAdapterValidatesEndpoint(t *testing.T) {
	t.Parallel()

	adapter, err := NewAdapter(Config{})
	if err != nil {
		t.Fatalf("unexpected adapter error: %v", err)
	}
	if adapter.cfg.Region != "us-east-1" || adapter.cfg.Endpoint != "" {
		t.Fatalf("unexpected defaults %+v", adapter.cfg)
	}
	if _, err := NewAdapter(Config{Endpoint: "robomaker.local"}); err == nil {
		t.Fatalf("expected scheme-less endpoint to fail")
	}
}
