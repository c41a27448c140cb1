package stepfunctions

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/contracts"
	"github.com/tiger/robomaker-sim-launcher/providers/common/awserr"
)

const (
	ServiceName = "states"

	// MaxExecutionNameLength is the StartExecution name limit.
	MaxExecutionNameLength = 80
)

type executionClient interface {
	StartExecution(ctx context.Context, params *sfn.StartExecutionInput, optFns ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error)
}

type Config struct {
	Region  string
	Timeout time.Duration
}

func ConfigFromEnv() Config {
	region := strings.TrimSpace(os.Getenv("AWS_REGION"))
	if region == "" {
		region = "us-east-1"
	}
	return Config{Region: region, Timeout: 15 * time.Second}
}

// Adapter implements contracts.WorkflowStarter against Step Functions.
type Adapter struct {
	mu     sync.Mutex
	client executionClient
	cfg    Config
}

var _ contracts.WorkflowStarter = (*Adapter)(nil)

func NewAdapter(cfg Config) (*Adapter, error) {
	return NewAdapterWithClient(cfg, nil)
}

func NewAdapterWithClient(cfg Config, client executionClient) (*Adapter, error) {
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

// StartExecution starts stateMachineArn with input and returns the execution arn.
func (a *Adapter) StartExecution(ctx context.Context, stateMachineArn, name, input string) (string, error) {
	if strings.TrimSpace(stateMachineArn) == "" {
		return "", fmt.Errorf("state machine arn is required")
	}
	if len(name) > MaxExecutionNameLength {
		return "", fmt.Errorf("execution name must be <=%d characters", MaxExecutionNameLength)
	}
	client, err := a.resolveClient(ctx)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	in := &sfn.StartExecutionInput{
		StateMachineArn: aws.String(stateMachineArn),
		Input:           aws.String(input),
	}
	if name != "" {
		in.Name = aws.String(name)
	}
	out, err := client.StartExecution(ctx, in)
	if err != nil {
		return "", awserr.Classify(ServiceName, "StartExecution", err)
	}
	return aws.ToString(out.ExecutionArn), nil
}

func (a *Adapter) resolveClient(ctx context.Context) (executionClient, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(a.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	a.client = sfn.NewFromConfig(awsCfg)
	return a.client, nil
}
