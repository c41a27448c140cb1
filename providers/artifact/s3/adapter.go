package s3

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/contracts"
	"github.com/tiger/robomaker-sim-launcher/providers/common/awserr"
)

const ServiceName = "s3"

type objectClient interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Config struct {
	Region string
}

func ConfigFromEnv() Config {
	region := strings.TrimSpace(os.Getenv("AWS_REGION"))
	if region == "" {
		region = "us-east-1"
	}
	return Config{Region: region}
}

// Adapter implements contracts.ArtifactStore against S3.
type Adapter struct {
	mu     sync.Mutex
	client objectClient
	cfg    Config
}

var _ contracts.ArtifactStore = (*Adapter)(nil)

func NewAdapter(cfg Config) (*Adapter, error) {
	return NewAdapterWithClient(cfg, nil)
}

func NewAdapterWithClient(cfg Config, client objectClient) (*Adapter, error) {
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	return &Adapter{client: client, cfg: cfg}, nil
}

func NewAdapterFromEnv() (*Adapter, error) {
	return NewAdapter(ConfigFromEnv())
}

// Open streams bucket/key. The caller closes the reader.
func (a *Adapter) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if strings.TrimSpace(bucket) == "" || strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("artifact bucket and key are required")
	}
	client, err := a.resolveClient(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, awserr.Classify(ServiceName, "GetObject", err)
	}
	if out == nil || out.Body == nil {
		return nil, awserr.Classify(ServiceName, "GetObject", fmt.Errorf("empty object body for s3://%s/%s", bucket, key))
	}
	return out.Body, nil
}

func (a *Adapter) resolveClient(ctx context.Context) (objectClient, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(a.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	a.client = s3.NewFromConfig(awsCfg)
	return a.client, nil
}
