package robomaker

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/robomaker"
	"github.com/aws/aws-sdk-go-v2/service/robomaker/types"
	"github.com/tiger/robomaker-sim-launcher/api/launcher"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/contracts"
	"github.com/tiger/robomaker-sim-launcher/providers/common/awserr"
)

const (
	ServiceName = "robomaker"

	// MaxDescribeJobs is the BatchDescribeSimulationJob limit per call.
	MaxDescribeJobs = 100

	// EnvEndpoint overrides the regional RoboMaker endpoint.
	EnvEndpoint = "SIMLAUNCHER_ROBOMAKER_ENDPOINT"
)

type simulationClient interface {
	StartSimulationJobBatch(ctx context.Context, params *robomaker.StartSimulationJobBatchInput, optFns ...func(*robomaker.Options)) (*robomaker.StartSimulationJobBatchOutput, error)
	DescribeSimulationJobBatch(ctx context.Context, params *robomaker.DescribeSimulationJobBatchInput, optFns ...func(*robomaker.Options)) (*robomaker.DescribeSimulationJobBatchOutput, error)
	BatchDescribeSimulationJob(ctx context.Context, params *robomaker.BatchDescribeSimulationJobInput, optFns ...func(*robomaker.Options)) (*robomaker.BatchDescribeSimulationJobOutput, error)
	CreateSimulationJob(ctx context.Context, params *robomaker.CreateSimulationJobInput, optFns ...func(*robomaker.Options)) (*robomaker.CreateSimulationJobOutput, error)
}

type Config struct {
	Region   string
	Endpoint string
	Timeout  time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Region:   defaultString(os.Getenv("AWS_REGION"), "us-east-1"),
		Endpoint: strings.TrimSpace(os.Getenv(EnvEndpoint)),
		Timeout:  30 * time.Second,
	}
}

// Adapter implements contracts.ExecutionService against RoboMaker.
type Adapter struct {
	mu     sync.Mutex
	client simulationClient
	cfg    Config
}

var _ contracts.ExecutionService = (*Adapter)(nil)

func NewAdapter(cfg Config) (*Adapter, error) {
	return NewAdapterWithClient(cfg, nil)
}

// NewAdapterWithClient builds an adapter around client; nil resolves a RoboMaker
// client from the default AWS config chain on first use.
func NewAdapterWithClient(cfg Config, client simulationClient) (*Adapter, error) {
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if cfg.Endpoint != "" && !strings.HasPrefix(cfg.Endpoint, "http://") && !strings.HasPrefix(cfg.Endpoint, "https://") {
		return nil, fmt.Errorf("robomaker endpoint must include http(s) scheme")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Adapter{client: client, cfg: cfg}, nil
}

func NewAdapterFromEnv() (*Adapter, error) {
	return NewAdapter(ConfigFromEnv())
}

// SubmitBatch starts one simulation job batch.
func (a *Adapter) SubmitBatch(ctx context.Context, req contracts.BatchRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	client, err := a.resolveClient(ctx)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	requests := make([]types.SimulationJobRequest, len(req.Jobs))
	for i, job := range req.Jobs {
		requests[i] = jobRequest(job)
	}
	in := &robomaker.StartSimulationJobBatchInput{
		BatchPolicy: &types.BatchPolicy{
			MaxConcurrency:   aws.Int32(req.Policy.MaxConcurrency),
			TimeoutInSeconds: aws.Int64(req.Policy.TimeoutSeconds),
		},
		CreateSimulationJobRequests: requests,
		Tags:                        launcher.CloneStringMap(req.Tags),
	}
	if req.ClientRequestToken != "" {
		in.ClientRequestToken = aws.String(req.ClientRequestToken)
	}
	out, err := client.StartSimulationJobBatch(ctx, in)
	if err != nil {
		return "", awserr.Classify(ServiceName, "StartSimulationJobBatch", err)
	}
	arn := strings.TrimSpace(aws.ToString(out.Arn))
	if arn == "" {
		return "", awserr.Classify(ServiceName, "StartSimulationJobBatch", fmt.Errorf("response carried no batch arn"))
	}
	return arn, nil
}

// DescribeBatch returns the raw status, created job arns and failed request count.
func (a *Adapter) DescribeBatch(ctx context.Context, batchArn string) (contracts.BatchDescription, error) {
	if strings.TrimSpace(batchArn) == "" {
		return contracts.BatchDescription{}, fmt.Errorf("batch arn is required")
	}
	client, err := a.resolveClient(ctx)
	if err != nil {
		return contracts.BatchDescription{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	out, err := client.DescribeSimulationJobBatch(ctx, &robomaker.DescribeSimulationJobBatchInput{Batch: aws.String(batchArn)})
	if err != nil {
		return contracts.BatchDescription{}, awserr.Classify(ServiceName, "DescribeSimulationJobBatch", err)
	}
	desc := contracts.BatchDescription{
		Arn:                aws.ToString(out.Arn),
		Status:             string(out.Status),
		FailedRequestCount: len(out.FailedRequests),
	}
	for _, created := range out.CreatedRequests {
		if arn := aws.ToString(created.Arn); arn != "" {
			desc.CreatedJobArns = append(desc.CreatedJobArns, arn)
		}
	}
	return desc, nil
}

// DescribeJobs describes at most MaxDescribeJobs simulation jobs in one call.
func (a *Adapter) DescribeJobs(ctx context.Context, jobArns []string) ([]launcher.JobResult, error) {
	if len(jobArns) == 0 {
		return nil, nil
	}
	if len(jobArns) > MaxDescribeJobs {
		return nil, fmt.Errorf("at most %d jobs per describe call, got %d", MaxDescribeJobs, len(jobArns))
	}
	client, err := a.resolveClient(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	out, err := client.BatchDescribeSimulationJob(ctx, &robomaker.BatchDescribeSimulationJobInput{Jobs: append([]string(nil), jobArns...)})
	if err != nil {
		return nil, awserr.Classify(ServiceName, "BatchDescribeSimulationJob", err)
	}
	if len(out.UnprocessedJobs) > 0 {
		return nil, awserr.Classify(ServiceName, "BatchDescribeSimulationJob",
			fmt.Errorf("%d jobs were not processed: %s", len(out.UnprocessedJobs), strings.Join(out.UnprocessedJobs, ", ")))
	}
	jobs := make([]launcher.JobResult, 0, len(out.Jobs))
	for _, job := range out.Jobs {
		jobs = append(jobs, launcher.JobResult{
			Arn:    aws.ToString(job.Arn),
			Status: string(job.Status),
			Tags:   launcher.CloneStringMap(job.Tags),
		})
	}
	return jobs, nil
}

// CreateJob creates one simulation job outside any batch.
func (a *Adapter) CreateJob(ctx context.Context, params launcher.SimulationJobParams) (string, error) {
	client, err := a.resolveClient(ctx)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	out, err := client.CreateSimulationJob(ctx, createJobInput(params))
	if err != nil {
		return "", awserr.Classify(ServiceName, "CreateSimulationJob", err)
	}
	return aws.ToString(out.Arn), nil
}

func defaultString(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(v)
}

func (a *Adapter) resolveClient(ctx context.Context) (simulationClient, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(a.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	endpoint := a.cfg.Endpoint
	a.client = robomaker.NewFromConfig(awsCfg, func(o *robomaker.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return a.client, nil
}
