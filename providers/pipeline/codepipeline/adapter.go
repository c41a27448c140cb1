package codepipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline/types"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/contracts"
	"github.com/tiger/robomaker-sim-launcher/providers/common/awserr"
)

const (
	ServiceName = "codepipeline"

	// MaxFailureMessageLength is the FailureDetails.message limit.
	MaxFailureMessageLength = 5000
	// MaxSummaryLength is the ExecutionDetails.summary limit.
	MaxSummaryLength = 2048
)

type jobResultClient interface {
	PutJobSuccessResult(ctx context.Context, params *codepipeline.PutJobSuccessResultInput, optFns ...func(*codepipeline.Options)) (*codepipeline.PutJobSuccessResultOutput, error)
	PutJobFailureResult(ctx context.Context, params *codepipeline.PutJobFailureResultInput, optFns ...func(*codepipeline.Options)) (*codepipeline.PutJobFailureResultOutput, error)
}

type Config struct {
	Region  string
	Timeout time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Region:  defaultString(os.Getenv("AWS_REGION"), "us-east-1"),
		Timeout: 15 * time.Second,
	}
}

// Adapter implements contracts.PipelineReporter against CodePipeline job results.
type Adapter struct {
	mu     sync.Mutex
	client jobResultClient
	cfg    Config
}

var _ contracts.PipelineReporter = (*Adapter)(nil)

func NewAdapter(cfg Config) (*Adapter, error) {
	return NewAdapterWithClient(cfg, nil)
}

func NewAdapterWithClient(cfg Config, client jobResultClient) (*Adapter, error) {
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Adapter{client: client, cfg: cfg}, nil
}

func NewAdapterFromEnv() (*Adapter, error) {
	return NewAdapter(ConfigFromEnv())
}

// ReportSuccess marks the job succeeded with summary as its execution details.
func (a *Adapter) ReportSuccess(ctx context.Context, jobID, summary string) error {
	if strings.TrimSpace(jobID) == "" {
		return fmt.Errorf("pipeline job id is required")
	}
	client, err := a.resolveClient(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	_, err = client.PutJobSuccessResult(ctx, &codepipeline.PutJobSuccessResultInput{
		JobId: aws.String(jobID),
		ExecutionDetails: &types.ExecutionDetails{
			Summary: aws.String(Truncate(summary, MaxSummaryLength)),
		},
	})
	return awserr.Classify(ServiceName, "PutJobSuccessResult", err)
}

// ReportFailure marks the job failed with type JobFailed.
func (a *Adapter) ReportFailure(ctx context.Context, jobID, message string) error {
	if strings.TrimSpace(jobID) == "" {
		return fmt.Errorf("pipeline job id is required")
	}
	client, err := a.resolveClient(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	_, err = client.PutJobFailureResult(ctx, &codepipeline.PutJobFailureResultInput{
		JobId: aws.String(jobID),
		FailureDetails: &types.FailureDetails{
			Type:    types.FailureTypeJobFailed,
			Message: aws.String(Truncate(message, MaxFailureMessageLength)),
		},
	})
	return awserr.Classify(ServiceName, "PutJobFailureResult", err)
}

// Truncate cuts s to at most limit characters.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

func defaultString(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(v)
}

func (a *Adapter) resolveClient(ctx context.Context) (jobResultClient, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(a.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	a.client = codepipeline.NewFromConfig(awsCfg)
	return a.client, nil
}
