package minio

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/contracts"
)

const (
	ServiceName = "minio"

	EnvEndpoint  = "SIMLAUNCHER_ARTIFACT_ENDPOINT"
	EnvAccessKey = "SIMLAUNCHER_ARTIFACT_ACCESS_KEY"
	EnvSecretKey = "SIMLAUNCHER_ARTIFACT_SECRET_KEY"
	EnvUseSSL    = "SIMLAUNCHER_ARTIFACT_USE_SSL"
)

// Config addresses an S3-compatible object store.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Endpoint:  strings.TrimSpace(os.Getenv(EnvEndpoint)),
		AccessKey: strings.TrimSpace(os.Getenv(EnvAccessKey)),
		SecretKey: strings.TrimSpace(os.Getenv(EnvSecretKey)),
		Region:    strings.TrimSpace(os.Getenv("AWS_REGION")),
	}
	if raw := strings.TrimSpace(os.Getenv(EnvUseSSL)); raw != "" {
		useSSL, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%s parse error: %w", EnvUseSSL, err)
		}
		cfg.UseSSL = useSSL
	}
	return cfg, nil
}

// Validate normalizes a scheme-qualified endpoint into host:port plus UseSSL.
func (c *Config) Validate() error {
	endpoint := strings.TrimSpace(c.Endpoint)
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint, c.UseSSL = strings.TrimPrefix(endpoint, "https://"), true
	case strings.HasPrefix(endpoint, "http://"):
		endpoint, c.UseSSL = strings.TrimPrefix(endpoint, "http://"), false
	}
	c.Endpoint = strings.TrimRight(endpoint, "/")
	if c.Endpoint == "" {
		return fmt.Errorf("artifact endpoint is required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("artifact access key and secret key are required")
	}
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	return nil
}

// Adapter implements contracts.ArtifactStore against MinIO or any S3-compatible endpoint.
type Adapter struct {
	mu     sync.Mutex
	client *minio.Client
	cfg    Config
}

var _ contracts.ArtifactStore = (*Adapter)(nil)

func NewAdapter(cfg Config) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg}, nil
}

func NewAdapterFromEnv() (*Adapter, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewAdapter(cfg)
}

// Configured reports whether the environment selects an S3-compatible endpoint.
func Configured() bool {
	return strings.TrimSpace(os.Getenv(EnvEndpoint)) != ""
}

// Open streams bucket/key. The object is stat'ed first so a missing key fails here, not on Read.
func (a *Adapter) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if strings.TrimSpace(bucket) == "" || strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("artifact bucket and key are required")
	}
	client, err := a.resolveClient()
	if err != nil {
		return nil, err
	}
	obj, err := client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify("GetObject", err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, classify("GetObject", err)
	}
	return obj, nil
}

func classify(operation string, err error) error {
	out := &contracts.ServiceError{Service: ServiceName, Operation: operation, Err: err}
	resp := minio.ToErrorResponse(err)
	out.Code = resp.Code
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == http.StatusNotFound:
		out.Class = contracts.FailureNotFound
	case resp.Code == "SlowDown" || resp.StatusCode == http.StatusServiceUnavailable:
		out.Class, out.Retryable = contracts.FailureThrottled, true
	case resp.StatusCode >= 400 && resp.StatusCode <= 499:
		out.Class = contracts.FailureClient
	case resp.StatusCode >= 500:
		out.Class, out.Retryable = contracts.FailureServer, true
	default:
		out.Class, out.Retryable = contracts.FailureTransport, true
	}
	return out
}

func (a *Adapter) resolveClient() (*minio.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}
	client, err := minio.New(a.cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(a.cfg.AccessKey, a.cfg.SecretKey, ""),
		Secure:    a.cfg.UseSSL,
		Region:    a.cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	a.client = client
	return a.client, nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
