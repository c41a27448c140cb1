package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	// EnvS3Bucket is the default simulation output bucket.
	EnvS3Bucket = "S3_BUCKET"
	// EnvIAMRole is the default simulation job role.
	EnvIAMRole = "IAM_ROLE"
	// EnvSecurityGroup is appended to template VPC security groups.
	EnvSecurityGroup = "SECURITY_GROUP"
	// EnvSubnet1 and EnvSubnet2 are appended to template VPC subnets.
	EnvSubnet1 = "SUBNET_1"
	EnvSubnet2 = "SUBNET_2"
	// EnvRobotAppARN and EnvSimulationAppARN fill blank application ARNs.
	EnvRobotAppARN      = "ROBOT_APP_ARN"
	EnvSimulationAppARN = "SIMULATION_APP_ARN"
	// EnvStateMachineARN is the workflow started by the pipeline trigger.
	EnvStateMachineARN = "STATE_MACHINE_ARN"
	// EnvScenarioDefinitionsFilename names the launch document inside the build artifact.
	EnvScenarioDefinitionsFilename = "SCENARIO_DEFINITIONS_FILENAME"
	// EnvBatchMaxConcurrency overrides the batch policy concurrency.
	EnvBatchMaxConcurrency = "SIM_BATCH_MAX_CONCURRENCY"
	// EnvBatchTimeoutSeconds overrides the batch policy timeout.
	EnvBatchTimeoutSeconds = "SIM_BATCH_TIMEOUT_SECONDS"
	// EnvRegion selects the AWS region.
	EnvRegion = "AWS_REGION"
)

const (
	DefaultMaxConcurrency              = 2
	DefaultTimeoutSeconds              = 800
	DefaultScenarioDefinitionsFilename = "scenarios.json"
	DefaultRegion                      = "us-east-1"
)

// Defaults are the process-wide template defaults. Blank means "no default".
type Defaults struct {
	S3Bucket         string
	IAMRole          string
	SecurityGroup    string
	Subnets          []string
	RobotAppARN      string
	SimulationAppARN string
}

// BatchPolicy bounds concurrency and runtime of one submitted batch.
type BatchPolicy struct {
	MaxConcurrency int32
	TimeoutSeconds int64
}

// Validate enforces positive policy values.
func (p BatchPolicy) Validate() error {
	if p.MaxConcurrency < 1 {
		return fmt.Errorf("batch max concurrency must be >=1")
	}
	if p.TimeoutSeconds < 1 {
		return fmt.Errorf("batch timeout must be >=1 second")
	}
	return nil
}

// Config is built once at process start and passed by value afterwards.
type Config struct {
	Region                      string
	Defaults                    Defaults
	Batch                       BatchPolicy
	StateMachineARN             string
	ScenarioDefinitionsFilename string
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(string) (string, bool)

// FromEnv reads the configuration from the process environment.
func FromEnv() (Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup reads the configuration through lookup.
func FromLookup(lookup LookupFunc) (Config, error) {
	get := func(key string) string {
		v, ok := lookup(key)
		if !ok {
			return ""
		}
		return strings.TrimSpace(v)
	}

	cfg := Config{
		Region: defaultString(get(EnvRegion), DefaultRegion),
		Defaults: Defaults{
			S3Bucket:         get(EnvS3Bucket),
			IAMRole:          get(EnvIAMRole),
			SecurityGroup:    get(EnvSecurityGroup),
			RobotAppARN:      get(EnvRobotAppARN),
			SimulationAppARN: get(EnvSimulationAppARN),
		},
		Batch: BatchPolicy{
			MaxConcurrency: DefaultMaxConcurrency,
			TimeoutSeconds: DefaultTimeoutSeconds,
		},
		StateMachineARN:             get(EnvStateMachineARN),
		ScenarioDefinitionsFilename: defaultString(get(EnvScenarioDefinitionsFilename), DefaultScenarioDefinitionsFilename),
	}
	for _, key := range []string{EnvSubnet1, EnvSubnet2} {
		if subnet := get(key); subnet != "" {
			cfg.Defaults.Subnets = append(cfg.Defaults.Subnets, subnet)
		}
	}

	if raw := get(EnvBatchMaxConcurrency); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || v < 1 {
			return Config{}, fmt.Errorf("%s must be integer >=1", EnvBatchMaxConcurrency)
		}
		cfg.Batch.MaxConcurrency = int32(v)
	}
	if raw := get(EnvBatchTimeoutSeconds); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 1 {
			return Config{}, fmt.Errorf("%s must be integer >=1", EnvBatchTimeoutSeconds)
		}
		cfg.Batch.TimeoutSeconds = v
	}
	return cfg, nil
}

func defaultString(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
