package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tiger/robomaker-sim-launcher/internal/config"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/bootstrap"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/steps"
	"github.com/tiger/robomaker-sim-launcher/internal/observability/telemetry"
	"github.com/tiger/robomaker-sim-launcher/internal/tooling/validation"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "simlauncher: %v\n", err)
		os.Exit(1)
	}
}

// deps are the process collaborators; tests replace them.
type deps struct {
	loadConfig    func() (config.Config, error)
	buildServices func() (bootstrap.Services, error)
	sleep         steps.SleepFunc
}

func defaultDeps() deps {
	return deps{
		loadConfig:    config.FromEnv,
		buildServices: bootstrap.BuildServices,
		sleep:         steps.Sleep,
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	return runWith(args, stdin, stdout, stderr, defaultDeps())
}

func runWith(args []string, stdin io.Reader, stdout, stderr io.Writer, d deps) error {
	pipeline, err := telemetry.NewPipelineFromEnv(stderr)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	a := &app{deps: d, stdin: stdin, stdout: stdout, stderr: stderr}
	if pipeline != nil {
		a.emitter = pipeline
	}

	root := a.rootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	runErr := root.Execute()

	if pipeline != nil {
		if err := pipeline.Close(); err != nil {
			fmt.Fprintf(stderr, "simlauncher: telemetry flush: %v\n", err)
		}
	}
	return runErr
}

type app struct {
	deps    deps
	emitter telemetry.Emitter
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "simlauncher",
		Short:         "Launch RoboMaker simulation batches from a CI/CD pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		a.validateCommand(),
		a.expandCommand(),
		a.submitCommand(),
		a.pollCommand(),
		a.summarizeCommand(),
		a.reportFailureCommand(),
		a.triggerCommand(),
		a.runCommand(),
		a.runSequentialCommand(),
		a.stateMachineCommand(),
	)
	return root
}

func (a *app) handlers() (bootstrap.Handlers, config.Config, error) {
	cfg, err := a.deps.loadConfig()
	if err != nil {
		return bootstrap.Handlers{}, config.Config{}, fmt.Errorf("config: %w", err)
	}
	services, err := a.deps.buildServices()
	if err != nil {
		return bootstrap.Handlers{}, config.Config{}, err
	}
	handlers, err := bootstrap.BuildHandlers(cfg, services, a.emitter)
	if err != nil {
		return bootstrap.Handlers{}, config.Config{}, err
	}
	fmt.Fprintln(a.stderr, bootstrap.Summary(cfg, services))
	return handlers, cfg, nil
}

// readInput reads path, or stdin when path is "-" or empty.
func (a *app) readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		raw, err := io.ReadAll(a.stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return raw, nil
}

// readDocument reads and normalizes a JSON or YAML document to JSON.
func (a *app) readDocument(path string) ([]byte, error) {
	raw, err := a.readInput(path)
	if err != nil {
		return nil, err
	}
	return validation.DecodeDocument(path, raw)
}

// decodePayload reads a step payload produced by a previous command.
func (a *app) decodePayload(path string, target any) error {
	doc, err := a.readDocument(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(doc, target); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func inputArg(args []string) string {
	if len(args) == 0 {
		return "-"
	}
	return strings.TrimSpace(args[0])
}
