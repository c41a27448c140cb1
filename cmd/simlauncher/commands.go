package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/spf13/cobra"
	"github.com/tiger/robomaker-sim-launcher/api/launcher"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/bootstrap"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/expansion"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/statemachine"
	"github.com/tiger/robomaker-sim-launcher/internal/tooling/validation"
)

func (a *app) validateCommand() *cobra.Command {
	var kind, mode, fixtures string
	cmd := &cobra.Command{
		Use:   "validate [document]",
		Short: "Validate a scenario definition, launch or sequential document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fixtures != "" {
				summary, err := validation.ValidateDocumentFixtures(fixtures)
				if err != nil {
					return fmt.Errorf("fixture validation failed to execute: %w", err)
				}
				fmt.Fprintln(a.stdout, validation.RenderSummary(summary))
				if summary.Failed > 0 {
					return fmt.Errorf("%d fixture(s) failed", summary.Failed)
				}
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("document path or --fixtures is required")
			}
			if err := validation.ValidateDocumentFile(args[0], kind, mode); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Fprintf(a.stdout, "%s is valid\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(validation.KindDefinitions), "document kind: definitions, launch or sequential")
	cmd.Flags().StringVar(&mode, "mode", string(validation.ValidationModeStrict), "validation mode: strict or relaxed")
	cmd.Flags().StringVar(&fixtures, "fixtures", "", "validate every fixture under this root instead of one document")
	return cmd
}

type expandedJob struct {
	Template int                          `json:"template"`
	Scenario string                       `json:"scenario"`
	Params   launcher.SimulationJobParams `json:"params"`
}

type expandOutput struct {
	IsValid bool          `json:"isValid"`
	Missing []string      `json:"missing"`
	Jobs    []expandedJob `json:"jobs"`
}

func (a *app) expandCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "expand [document]",
		Short: "Print the concrete simulation jobs a document expands to",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.deps.loadConfig()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			var in launcher.LaunchInput
			if err := a.decodePayload(inputArg(args), &in); err != nil {
				return err
			}
			result := expansion.NewExpander(cfg.Defaults).Expand(in.Simulations, in.Scenarios)

			out := expandOutput{IsValid: result.IsValid, Missing: []string{}, Jobs: []expandedJob{}}
			for _, missing := range result.Missing {
				out.Missing = append(out.Missing, fmt.Sprintf("simulations[%d]: %s", missing.TemplateIndex, missing.Scenario))
			}
			for _, job := range result.Jobs {
				out.Jobs = append(out.Jobs, expandedJob{Template: job.TemplateIndex, Scenario: job.Scenario, Params: job.Params})
			}
			if err := a.writeJSON(out); err != nil {
				return err
			}
			if !result.IsValid {
				return fmt.Errorf("%s: %s", launcher.CauseScenarioNotDefined, strings.Join(out.Missing, ", "))
			}
			return nil
		},
	}
}

// launchInput reads a launch document, optionally overriding its pipeline job id.
func (a *app) launchInput(path, jobID string) (launcher.LaunchInput, error) {
	doc, err := a.readDocument(path)
	if err != nil {
		return launcher.LaunchInput{}, err
	}
	if strings.TrimSpace(jobID) != "" {
		if doc, err = validation.WithPipelineJobID(doc, strings.TrimSpace(jobID)); err != nil {
			return launcher.LaunchInput{}, err
		}
	}
	if err := validation.ValidateDocument(doc, validation.KindLaunch, validation.ValidationModeRelaxed); err != nil {
		return launcher.LaunchInput{}, err
	}
	return validation.ParseLaunchInput(doc)
}

func (a *app) submitCommand() *cobra.Command {
	var jobID string
	cmd := &cobra.Command{
		Use:   "submit [document]",
		Short: "Expand a launch document and submit it as one simulation batch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := a.launchInput(inputArg(args), jobID)
			if err != nil {
				return err
			}
			handlers, _, err := a.handlers()
			if err != nil {
				return err
			}
			state, err := handlers.Submitter.Submit(cmd.Context(), in)
			if err != nil {
				return err
			}
			return a.writeJSON(state)
		},
	}
	cmd.Flags().StringVar(&jobID, "job-id", "", "pipeline job id, overriding codePipelineJobId")
	return cmd
}

func (a *app) pollCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "poll [state]",
		Short: "Poll a submitted batch once",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var state launcher.BatchState
			if err := a.decodePayload(inputArg(args), &state); err != nil {
				return err
			}
			handlers, _, err := a.handlers()
			if err != nil {
				return err
			}
			next, err := handlers.Poller.Poll(cmd.Context(), state)
			if err != nil {
				return err
			}
			return a.writeJSON(next)
		},
	}
}

func (a *app) summarizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize [state]",
		Short: "Report the verdict of a finished batch to the pipeline",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var state launcher.BatchState
			if err := a.decodePayload(inputArg(args), &state); err != nil {
				return err
			}
			handlers, _, err := a.handlers()
			if err != nil {
				return err
			}
			verdict, err := handlers.Aggregator.Summarize(cmd.Context(), state)
			if err != nil {
				return err
			}
			return a.writeJSON(verdict)
		},
	}
}

func (a *app) reportFailureCommand() *cobra.Command {
	var in launcher.FailureInput
	cmd := &cobra.Command{
		Use:   "report-failure",
		Short: "Report a pipeline job as failed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			handlers, _, err := a.handlers()
			if err != nil {
				return err
			}
			out, err := handlers.Failures.Report(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.PipelineJobID, "job-id", "", "pipeline job id")
	cmd.Flags().StringVar(&in.Error.Error, "error", "Error", "error name")
	cmd.Flags().StringVar(&in.Error.Cause, "cause", "", "human-readable cause")
	return cmd
}

func (a *app) triggerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger [event]",
		Short: "Start a workflow execution from a CodePipeline job event",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var event events.CodePipelineJobEvent
			if err := a.decodePayload(inputArg(args), &event); err != nil {
				return err
			}
			handlers, _, err := a.handlers()
			if err != nil {
				return err
			}
			if handlers.Trigger == nil {
				return fmt.Errorf("trigger requires workflow and artifact services")
			}
			result, err := handlers.Trigger.Handle(cmd.Context(), event)
			if err != nil {
				return err
			}
			if err := a.writeJSON(result); err != nil {
				return err
			}
			if result.Error != "" {
				return fmt.Errorf("trigger failed: %s", result.Error)
			}
			return nil
		},
	}
}

func (a *app) runCommand() *cobra.Command {
	var jobID string
	var wait time.Duration
	var maxPolls int
	cmd := &cobra.Command{
		Use:   "run [document]",
		Short: "Submit, poll and summarize one batch in process",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := a.launchInput(inputArg(args), jobID)
			if err != nil {
				return err
			}
			handlers, _, err := a.handlers()
			if err != nil {
				return err
			}
			driver := bootstrap.NewDriver(handlers, statemachine.DriverConfig{
				Wait:     wait,
				MaxPolls: maxPolls,
				Sleep:    a.deps.sleep,
			}, a.emitter)

			outcome, err := driver.Run(cmd.Context(), in)
			if err != nil {
				return err
			}
			if err := a.writeJSON(outcome); err != nil {
				return err
			}
			if !outcome.Succeeded() {
				return fmt.Errorf("simulation run failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&jobID, "job-id", "", "pipeline job id, overriding codePipelineJobId")
	cmd.Flags().DurationVar(&wait, "wait", statemachine.DefaultWaitSeconds*time.Second, "pause between polls")
	cmd.Flags().IntVar(&maxPolls, "max-polls", statemachine.DefaultMaxPolls, "polls before the run is failed")
	return cmd
}

func (a *app) runSequentialCommand() *cobra.Command {
	var wait int
	cmd := &cobra.Command{
		Use:   "run-sequential [document]",
		Short: "Create simulation jobs one at a time without the batch API",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.readDocument(inputArg(args))
			if err != nil {
				return err
			}
			if err := validation.ValidateDocument(doc, validation.KindSequential, validation.ValidationModeRelaxed); err != nil {
				return err
			}
			in, err := validation.ParseSequentialInput(doc)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("wait") {
				in.WaitSeconds = launcher.Seconds(wait)
			}
			handlers, _, err := a.handlers()
			if err != nil {
				return err
			}
			result, err := handlers.Sequential.Launch(cmd.Context(), in)
			if werr := a.writeJSON(result); werr != nil && err == nil {
				err = werr
			}
			return err
		},
	}
	cmd.Flags().IntVar(&wait, "wait", 0, "seconds between job creations, overriding the document")
	return cmd
}

func (a *app) stateMachineCommand() *cobra.Command {
	var cfg statemachine.DefinitionConfig
	var format, output string
	cmd := &cobra.Command{
		Use:   "state-machine",
		Short: "Render the Step Functions definition of the launch workflow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := statemachine.ParseFormat(format)
			if err != nil {
				return err
			}
			raw, err := statemachine.Render(cfg, parsed)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err := fmt.Fprintln(a.stdout, strings.TrimRight(string(raw), "\n"))
				return err
			}
			if err := os.WriteFile(output, raw, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "state machine definition written: %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.Comment, "comment", "RoboMaker simulation batch launcher", "definition comment")
	cmd.Flags().StringVar(&cfg.SubmitARN, "submit-arn", "", "submit function ARN")
	cmd.Flags().StringVar(&cfg.PollARN, "poll-arn", "", "poll function ARN")
	cmd.Flags().StringVar(&cfg.SummarizeARN, "summarize-arn", "", "summarize function ARN")
	cmd.Flags().StringVar(&cfg.FailureARN, "failure-arn", "", "failure reporter function ARN")
	cmd.Flags().IntVar(&cfg.WaitSeconds, "wait-seconds", statemachine.DefaultWaitSeconds, "pause between polls")
	cmd.Flags().IntVar(&cfg.TimeoutSeconds, "timeout-seconds", 0, "execution timeout, 0 for none")
	cmd.Flags().StringVar(&format, "format", string(statemachine.FormatJSON), "json or yaml")
	cmd.Flags().StringVar(&output, "output", "", "write to this file instead of stdout")
	return cmd
}
