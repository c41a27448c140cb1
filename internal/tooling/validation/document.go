package validation

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tiger/robomaker-sim-launcher/api/launcher"
	"gopkg.in/yaml.v3"
)

const schemaURL = "https://schemas.simlauncher.dev/launch.schema.json"

//go:embed schemas/launch.schema.json
var launchSchema []byte

// DocumentKind selects which launch payload a document must satisfy.
type DocumentKind string

const (
	// KindDefinitions is the scenario-definition document shipped in the build artifact.
	KindDefinitions DocumentKind = "definitions"
	// KindLaunch is the Submitter input; it carries codePipelineJobId.
	KindLaunch DocumentKind = "launch"
	// KindSequential is the direct sequential launcher input.
	KindSequential DocumentKind = "sequential"
)

// ValidationMode controls strictness for tooling validation commands.
type ValidationMode string

const (
	// ValidationModeStrict also requires every referenced scenario to be defined.
	ValidationModeStrict ValidationMode = "strict"
	// ValidationModeRelaxed leaves unknown scenario references to the Submitter, which flags the run invalid.
	ValidationModeRelaxed ValidationMode = "relaxed"
)

// ParseValidationMode normalizes command mode input.
func ParseValidationMode(raw string) (ValidationMode, error) {
	switch ValidationMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ValidationModeStrict:
		return ValidationModeStrict, nil
	case ValidationModeRelaxed:
		return ValidationModeRelaxed, nil
	default:
		return "", fmt.Errorf("unsupported validation mode %q", raw)
	}
}

// ParseDocumentKind normalizes command kind input.
func ParseDocumentKind(raw string) (DocumentKind, error) {
	switch DocumentKind(strings.ToLower(strings.TrimSpace(raw))) {
	case "", KindLaunch:
		return KindLaunch, nil
	case KindDefinitions:
		return KindDefinitions, nil
	case KindSequential:
		return KindSequential, nil
	default:
		return "", fmt.Errorf("unsupported document kind %q", raw)
	}
}

// DecodeDocument normalizes a JSON or YAML launch document to JSON.
// The format follows the file extension; without one, a leading '{' means JSON.
func DecodeDocument(name string, raw []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return compactJSON(raw)
	case ".yaml", ".yml":
		return yamlToJSON(raw)
	}
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		return compactJSON(raw)
	}
	return yamlToJSON(raw)
}

func compactJSON(raw []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := json.Compact(&out, bytes.TrimSpace(raw)); err != nil {
		return nil, fmt.Errorf("decode json document: %w", err)
	}
	return out.Bytes(), nil
}

func yamlToJSON(raw []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode yaml document: %w", err)
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, fmt.Errorf("decode yaml document: top level must be a mapping")
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode yaml document as json: %w", err)
	}
	return out, nil
}

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(launchSchema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
})

func validateAgainstSchema(raw []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	return schema.Validate(payload)
}

// ValidateDocument checks a JSON launch document against the schema and the typed payload rules.
func ValidateDocument(raw []byte, kind DocumentKind, mode ValidationMode) error {
	if err := validateAgainstSchema(raw); err != nil {
		return fmt.Errorf("schema: %w", err)
	}

	var scenarios launcher.ScenarioTable
	var simulations []launcher.SimulationTemplate
	switch kind {
	case KindLaunch:
		in, err := ParseLaunchInput(raw)
		if err != nil {
			return err
		}
		scenarios, simulations = in.Scenarios, in.Simulations
	case KindSequential:
		in, err := ParseSequentialInput(raw)
		if err != nil {
			return err
		}
		scenarios, simulations = in.Scenarios, in.Simulations
	case KindDefinitions:
		var in launcher.LaunchInput
		if err := decodeSingle(raw, &in); err != nil {
			return err
		}
		if strings.TrimSpace(in.PipelineJobID) != "" {
			return fmt.Errorf("definitions document must not carry codePipelineJobId")
		}
		scenarios, simulations = in.Scenarios, in.Simulations
	default:
		return fmt.Errorf("unsupported document kind %q", kind)
	}

	if mode == ValidationModeStrict {
		return checkScenarioReferences(scenarios, simulations)
	}
	return nil
}

// ValidateDocumentFile reads, decodes and validates one launch document.
func ValidateDocumentFile(path, kind, mode string) error {
	parsedKind, err := ParseDocumentKind(kind)
	if err != nil {
		return err
	}
	parsedMode, err := ParseValidationMode(mode)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	doc, err := DecodeDocument(path, raw)
	if err != nil {
		return err
	}
	return ValidateDocument(doc, parsedKind, parsedMode)
}

// WithPipelineJobID sets codePipelineJobId on a JSON document, keeping every other field.
func WithPipelineJobID(doc []byte, jobID string) ([]byte, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(doc, &payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, fmt.Errorf("document must be a JSON object")
	}
	encodedID, err := json.Marshal(jobID)
	if err != nil {
		return nil, err
	}
	payload["codePipelineJobId"] = encodedID
	return json.Marshal(payload)
}

// ParseLaunchInput decodes a JSON Submitter payload and validates it.
func ParseLaunchInput(raw []byte) (launcher.LaunchInput, error) {
	var in launcher.LaunchInput
	if err := decodeSingle(raw, &in); err != nil {
		return launcher.LaunchInput{}, err
	}
	if err := in.Validate(); err != nil {
		return launcher.LaunchInput{}, err
	}
	return in, nil
}

// ParseSequentialInput decodes a JSON sequential launcher payload and validates it.
func ParseSequentialInput(raw []byte) (launcher.SequentialInput, error) {
	var in launcher.SequentialInput
	if err := decodeSingle(raw, &in); err != nil {
		return launcher.SequentialInput{}, err
	}
	if err := in.Validate(); err != nil {
		return launcher.SequentialInput{}, err
	}
	return in, nil
}

func checkScenarioReferences(scenarios launcher.ScenarioTable, simulations []launcher.SimulationTemplate) error {
	var missing []string
	for i, sim := range simulations {
		for _, name := range sim.Scenarios {
			if _, ok := scenarios[name]; !ok {
				missing = append(missing, fmt.Sprintf("simulations[%d]: %s", i, name))
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: %s", launcher.CauseScenarioNotDefined, strings.Join(missing, ", "))
	}
	return nil
}

// decodeSingle decodes exactly one JSON document into target.
func decodeSingle(data []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(target); err != nil {
		return err
	}
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		return fmt.Errorf("unexpected trailing JSON payload")
	}
	return nil
}

// FixtureSummary reports fixture validation totals.
type FixtureSummary struct {
	Total    int
	Failed   int
	Failures []string
}

// ValidateDocumentFixtures walks root/<kind>/{valid,invalid} and checks each document
// validates (or fails) in strict mode as its directory says.
func ValidateDocumentFixtures(root string) (FixtureSummary, error) {
	summary := FixtureSummary{}
	for _, kind := range []DocumentKind{KindDefinitions, KindLaunch, KindSequential} {
		for _, validity := range []struct {
			dir        string
			shouldPass bool
		}{
			{dir: "valid", shouldPass: true},
			{dir: "invalid", shouldPass: false},
		} {
			dir := filepath.Join(root, string(kind), validity.dir)
			items, err := os.ReadDir(dir)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return summary, fmt.Errorf("read fixtures %s: %w", dir, err)
			}
			names := make([]string, 0, len(items))
			for _, item := range items {
				if !item.IsDir() {
					names = append(names, item.Name())
				}
			}
			sort.Strings(names)
			for _, name := range names {
				summary.Total++
				filePath := filepath.Join(dir, name)
				err := ValidateDocumentFile(filePath, string(kind), string(ValidationModeStrict))
				switch {
				case validity.shouldPass && err != nil:
					summary.Failed++
					summary.Failures = append(summary.Failures, fmt.Sprintf("%s: expected valid, got %v", filePath, err))
				case !validity.shouldPass && err == nil:
					summary.Failed++
					summary.Failures = append(summary.Failures, fmt.Sprintf("%s: expected invalid", filePath))
				}
			}
		}
	}
	return summary, nil
}

// RenderSummary formats a fixture summary for CLI output.
func RenderSummary(summary FixtureSummary) string {
	lines := []string{fmt.Sprintf("launch fixtures: total=%d failed=%d", summary.Total, summary.Failed)}
	if len(summary.Failures) > 0 {
		lines = append(lines, "failures:")
		for _, f := range summary.Failures {
			lines = append(lines, "- "+f)
		}
	}
	return strings.Join(lines, "\n")
}
