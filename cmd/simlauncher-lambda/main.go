package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/tiger/robomaker-sim-launcher/internal/config"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/bootstrap"
	"github.com/tiger/robomaker-sim-launcher/internal/observability/telemetry"
)

// EnvHandler selects the step handler this function runs.
const EnvHandler = "SIMLAUNCHER_HANDLER"

// Handler names accepted in EnvHandler.
const (
	HandlerSubmit     = "submit"
	HandlerPoll       = "poll"
	HandlerSummarize  = "summarize"
	HandlerFail       = "fail"
	HandlerTrigger    = "trigger"
	HandlerSequential = "sequential"
)

var handlerNames = []string{HandlerSubmit, HandlerPoll, HandlerSummarize, HandlerFail, HandlerTrigger, HandlerSequential}

func main() {
	fn, err := newFunction(os.Getenv(EnvHandler), os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simlauncher-lambda: %v\n", err)
		os.Exit(1)
	}
	lambda.Start(fn)
}

// function is one configured Lambda function. Telemetry is flushed at the end
// of every invocation since the execution environment may be frozen afterwards.
type function struct {
	name     string
	cfg      config.Config
	services bootstrap.Services
	stderr   io.Writer
}

var _ lambda.Handler = (*function)(nil)

func newFunction(name string, stderr io.Writer) (*function, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	services, err := bootstrap.BuildServices()
	if err != nil {
		return nil, err
	}
	return newFunctionWithServices(name, cfg, services, stderr)
}

func newFunctionWithServices(name string, cfg config.Config, services bootstrap.Services, stderr io.Writer) (*function, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if !slices.Contains(handlerNames, name) {
		return nil, fmt.Errorf("unsupported %s %q, expected one of %s", EnvHandler, name, strings.Join(handlerNames, ", "))
	}
	if name == HandlerTrigger && strings.TrimSpace(cfg.StateMachineARN) == "" {
		return nil, fmt.Errorf("%s handler requires %s", HandlerTrigger, config.EnvStateMachineARN)
	}
	fmt.Fprintf(stderr, "simlauncher-lambda: handler=%s %s\n", name, bootstrap.Summary(cfg, services))
	return &function{name: name, cfg: cfg, services: services, stderr: stderr}, nil
}

// Invoke runs the selected handler on one raw event.
func (f *function) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	pipeline, err := telemetry.NewPipelineFromEnv(f.stderr)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	var emitter telemetry.Emitter
	if pipeline != nil {
		emitter = pipeline
		defer func() {
			if err := pipeline.Close(); err != nil {
				fmt.Fprintf(f.stderr, "simlauncher-lambda: telemetry flush: %v\n", err)
			}
		}()
	}

	handlers, err := bootstrap.BuildHandlers(f.cfg, f.services, emitter)
	if err != nil {
		return nil, err
	}
	handler, err := dispatch(f.name, handlers)
	if err != nil {
		return nil, err
	}
	return handler.Invoke(ctx, payload)
}

// dispatch maps a handler name to its typed Lambda handler.
func dispatch(name string, h bootstrap.Handlers) (lambda.Handler, error) {
	switch name {
	case HandlerSubmit:
		return lambda.NewHandler(h.Submitter.Submit), nil
	case HandlerPoll:
		return lambda.NewHandler(h.Poller.Poll), nil
	case HandlerSummarize:
		return lambda.NewHandler(h.Aggregator.Summarize), nil
	case HandlerFail:
		return lambda.NewHandler(h.Failures.Report), nil
	case HandlerSequential:
		return lambda.NewHandler(h.Sequential.Launch), nil
	case HandlerTrigger:
		if h.Trigger == nil {
			return nil, fmt.Errorf("%s handler requires workflow and artifact services", HandlerTrigger)
		}
		return lambda.NewHandler(h.Trigger.Handle), nil
	default:
		return nil, fmt.Errorf("unsupported %s %q", EnvHandler, name)
	}
}
