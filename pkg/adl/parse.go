package adl

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/wsaadi/nova/pkg/config"
)

// Extensions lists the file extensions the loader scans for.
var Extensions = []string{".yaml", ".yml", ".json"}

// HasKnownExtension reports whether path names an ADL candidate file.
func HasKnownExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, known := range Extensions {
		if ext == known {
			return true
		}
	}
	return false
}

// ParseFile reads and decodes one ADL document from disk. YAML and JSON both
// go through the YAML parser (JSON is a YAML subset). Environment references
// (${VAR}, ${VAR:-default}) are expanded before decoding.
func ParseFile(path string) (*Document, error) {
	if !HasKnownExtension(path) {
		return nil, fmt.Errorf("unsupported file extension: %s", filepath.Ext(path))
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), koanfyaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	return decodeDocument(k.Raw())
}

// Parse decodes one ADL document from bytes (import endpoint, tests).
func Parse(data []byte) (*Document, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return decodeDocument(raw)
}

// MarshalYAML serialises the document back to ADL. The expanded raw mapping
// is the source of truth so opaque sections (ui, security) survive verbatim.
func (d *Document) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(d.Raw)
}

func decodeDocument(raw map[string]interface{}) (*Document, error) {
	expanded, ok := config.ExpandEnvVarsInData(raw).(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected document shape after env expansion")
	}

	doc := &Document{Raw: expanded}
	if err := decode(expanded, doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}

	applyDefaults(doc)
	return doc, nil
}

// decode unmarshals a raw mapping into a typed target. yaml struct tags are
// the single tag vocabulary; steps go through the variant hook.
func decode(raw, target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook:       stepDecodeHook,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}

var stepType = reflect.TypeOf(Step{})

// stepDecodeHook builds the Step sum type: common fields first, then the
// variant payload selected by "type".
func stepDecodeHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != stepType || from.Kind() != reflect.Map {
		return data, nil
	}
	raw, ok := data.(map[string]interface{})
	if !ok {
		return data, nil
	}
	return decodeStep(raw)
}

// stepCommon mirrors Step without the Spec payload so decoding it cannot
// re-enter the hook.
type stepCommon struct {
	ID             string      `yaml:"id"`
	Name           string      `yaml:"name"`
	Type           StepType    `yaml:"type"`
	NextStep       string      `yaml:"next_step"`
	OutputVariable string      `yaml:"output_variable"`
	OnError        ErrorPolicy `yaml:"on_error"`
}

func decodeStep(raw map[string]interface{}) (Step, error) {
	var common stepCommon
	if err := decode(raw, &common); err != nil {
		return Step{}, err
	}

	var spec StepSpec
	var err error

	switch common.Type {
	case StepLLMCall:
		var s LLMCallSpec
		err = decode(raw, &s)
		spec = s
	case StepToolCall:
		var s ToolCallSpec
		err = decode(raw, &s)
		spec = s
	case StepCondition:
		var s ConditionSpec
		err = decode(raw, &s)
		spec = s
	case StepLoop:
		var s LoopSpec
		err = decode(raw, &s)
		spec = s
	case StepParallel:
		var s ParallelSpec
		err = decode(raw, &s)
		spec = s
	case StepUserInput:
		var s UserInputSpec
		err = decode(raw, &s)
		spec = s
	case StepSetVariable:
		var s SetVariableSpec
		err = decode(raw, &s)
		spec = s
	case StepDataTransform:
		var s DataTransformSpec
		err = decode(raw, &s)
		spec = s
	case StepValidation:
		spec = ValidationSpec{}
	case StepHTTPRequest:
		spec = HTTPRequestSpec{}
	case "":
		return Step{}, fmt.Errorf("step %q is missing a type", common.ID)
	default:
		return Step{}, fmt.Errorf("step %q has unknown type %q", common.ID, common.Type)
	}
	if err != nil {
		return Step{}, fmt.Errorf("step %q: %w", common.ID, err)
	}

	return Step{
		ID:             common.ID,
		Name:           common.Name,
		Type:           common.Type,
		NextStep:       common.NextStep,
		OutputVariable: common.OutputVariable,
		OnError:        common.OnError,
		Spec:           spec,
	}, nil
}

const (
	defaultToolTimeoutMs     = 30_000
	defaultLoopMaxIterations = 100
)

func applyDefaults(doc *Document) {
	if doc.Tools.DefaultErrorHandling == "" {
		doc.Tools.DefaultErrorHandling = OnErrorStop
	}

	for i := range doc.Tools.Tools {
		tc := &doc.Tools.Tools[i]
		if tc.OnError == "" {
			tc.OnError = doc.Tools.DefaultErrorHandling
		}
		if tc.TimeoutMs <= 0 {
			tc.TimeoutMs = defaultToolTimeoutMs
		}
	}

	for i := range doc.Workflows.Workflows {
		applyStepDefaults(doc.Workflows.Workflows[i].Steps)
	}
}

func applyStepDefaults(steps []Step) {
	for i := range steps {
		step := &steps[i]
		if step.OnError == "" {
			step.OnError = OnErrorStop
		}
		switch spec := step.Spec.(type) {
		case LoopSpec:
			if spec.MaxIterations <= 0 {
				spec.MaxIterations = defaultLoopMaxIterations
			}
			applyStepDefaults(spec.LoopBody)
			step.Spec = spec
		case ParallelSpec:
			applyStepDefaults(spec.ParallelSteps)
			step.Spec = spec
		}
	}
}
