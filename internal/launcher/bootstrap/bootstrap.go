package bootstrap

import (
	"fmt"

	"github.com/tiger/robomaker-sim-launcher/internal/config"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/contracts"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/statemachine"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/steps"
	"github.com/tiger/robomaker-sim-launcher/internal/observability/telemetry"
	artifactminio "github.com/tiger/robomaker-sim-launcher/providers/artifact/minio"
	artifacts3 "github.com/tiger/robomaker-sim-launcher/providers/artifact/s3"
	"github.com/tiger/robomaker-sim-launcher/providers/execution/robomaker"
	"github.com/tiger/robomaker-sim-launcher/providers/pipeline/codepipeline"
	"github.com/tiger/robomaker-sim-launcher/providers/workflow/stepfunctions"
)

// Services contains the initialized collaborator adapters.
type Services struct {
	Execution contracts.ExecutionService
	Pipeline  contracts.PipelineReporter
	Workflow  contracts.WorkflowStarter
	Artifacts contracts.ArtifactStore

	// ArtifactBackend names the artifact store implementation in use.
	ArtifactBackend string
}

// BuildServices creates every adapter from the environment. AWS credentials
// are resolved lazily on first use. The artifact store is MinIO when its
// endpoint is configured, S3 otherwise.
func BuildServices() (Services, error) {
	execution, err := robomaker.NewAdapterFromEnv()
	if err != nil {
		return Services{}, fmt.Errorf("%s adapter: %w", robomaker.ServiceName, err)
	}
	pipeline, err := codepipeline.NewAdapterFromEnv()
	if err != nil {
		return Services{}, fmt.Errorf("%s adapter: %w", codepipeline.ServiceName, err)
	}
	workflow, err := stepfunctions.NewAdapterFromEnv()
	if err != nil {
		return Services{}, fmt.Errorf("%s adapter: %w", stepfunctions.ServiceName, err)
	}

	services := Services{Execution: execution, Pipeline: pipeline, Workflow: workflow}
	if artifactminio.Configured() {
		store, err := artifactminio.NewAdapterFromEnv()
		if err != nil {
			return Services{}, fmt.Errorf("%s adapter: %w", artifactminio.ServiceName, err)
		}
		services.Artifacts, services.ArtifactBackend = store, artifactminio.ServiceName
	} else {
		store, err := artifacts3.NewAdapterFromEnv()
		if err != nil {
			return Services{}, fmt.Errorf("%s adapter: %w", artifacts3.ServiceName, err)
		}
		services.Artifacts, services.ArtifactBackend = store, artifacts3.ServiceName
	}
	return services, nil
}

// Handlers holds every step handler bound to one set of services.
type Handlers struct {
	Submitter  *steps.Submitter
	Poller     *steps.Poller
	Aggregator *steps.Aggregator
	Failures   *steps.FailureReporter
	Trigger    *steps.Trigger
	Sequential *steps.SequentialLauncher
}

// BuildHandlers wires the step handlers. A nil emitter uses the default.
func BuildHandlers(cfg config.Config, services Services, emitter telemetry.Emitter) (Handlers, error) {
	if services.Execution == nil || services.Pipeline == nil {
		return Handlers{}, fmt.Errorf("execution and pipeline services are required")
	}
	handlers := Handlers{
		Submitter:  steps.NewSubmitter(cfg, services.Execution, emitter),
		Poller:     steps.NewPoller(services.Execution, emitter),
		Aggregator: steps.NewAggregator(services.Execution, services.Pipeline, emitter),
		Failures:   steps.NewFailureReporter(services.Pipeline, emitter),
		Sequential: steps.NewSequentialLauncher(cfg, services.Execution, emitter),
	}
	if services.Workflow != nil && services.Artifacts != nil {
		handlers.Trigger = steps.NewTrigger(cfg, services.Artifacts, services.Workflow, services.Pipeline, emitter)
	}
	return handlers, nil
}

// NewDriver binds the local state-machine driver to the handlers.
func NewDriver(handlers Handlers, cfg statemachine.DriverConfig, emitter telemetry.Emitter) *statemachine.Driver {
	return statemachine.NewDriver(handlers.Submitter, handlers.Poller, handlers.Aggregator, handlers.Failures, cfg, emitter)
}

// Summary returns a one-line description of the wired services.
func Summary(cfg config.Config, services Services) string {
	trigger := "disabled"
	if services.Workflow != nil && services.Artifacts != nil && cfg.StateMachineARN != "" {
		trigger = "enabled"
	}
	return fmt.Sprintf("services initialized: region=%s artifacts=%s trigger=%s max_concurrency=%d timeout_s=%d",
		cfg.Region, services.ArtifactBackend, trigger, cfg.Batch.MaxConcurrency, cfg.Batch.TimeoutSeconds)
}
