package models

import (
	"fmt"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// Modality selects the orchestrator variant for a run.
type Modality string

const (
	ModalityConversation Modality = "conversation"
	ModalitySimEnv       Modality = "simenv"
)

// ToolParam describes one typed parameter of a tool signature.
type ToolParam struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
}

// ToolSignature declares one tool the target may call in simenv rollouts.
type ToolSignature struct {
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description" json:"description"`
	Params      []ToolParam `yaml:"parameters,omitempty" json:"parameters,omitempty"`
}

// Scenario is one evaluator-authored setup. Owned by the scheduler,
// read-only to orchestrators.
type Scenario struct {
	Description string          `yaml:"description" json:"description"`
	Tools       []ToolSignature `yaml:"tools,omitempty" json:"tools,omitempty"`

	// Overrides optionally adjusts generation params for the target in
	// this variation only (decoded into GenerationParams).
	Overrides map[string]any `yaml:"overrides,omitempty" json:"overrides,omitempty"`
}

// Tool returns the declared signature for name, if any.
func (s *Scenario) Tool(name string) (ToolSignature, bool) {
	for _, t := range s.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return ToolSignature{}, false
}

// RunConfig controls how scenarios are rolled out.
type RunConfig struct {
	Modality      Modality `yaml:"modality" json:"modality"`
	MaxTurns      int      `yaml:"max_turns" json:"max_turns"`
	Repetitions   int      `yaml:"repetitions" json:"repetitions"`
	MaxConcurrent int      `yaml:"max_concurrent,omitempty" json:"max_concurrent,omitempty"`
	NoUserMode    bool     `yaml:"no_user_mode,omitempty" json:"no_user_mode,omitempty"`
}

// Spec is a complete rollout specification loaded from YAML: the behavior
// under investigation, its scenario variations, and the role bindings.
type Spec struct {
	Name        string      `yaml:"name" json:"name"`
	Behavior    string      `yaml:"behavior" json:"behavior"`
	Config      RunConfig   `yaml:"config" json:"config"`
	Evaluator   RoleBinding `yaml:"evaluator" json:"evaluator"`
	Target      RoleBinding `yaml:"target" json:"target"`
	Scenarios   []Scenario  `yaml:"scenarios" json:"scenarios"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
}

// LoadSpec loads and validates a rollout spec from a YAML file.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}

	return &spec, nil
}

// Validate checks that the spec is complete enough to run.
func (s *Spec) Validate() error {
	if s.Behavior == "" {
		return fmt.Errorf("behavior description is required")
	}
	if len(s.Scenarios) == 0 {
		return fmt.Errorf("at least one scenario is required")
	}
	switch s.Config.Modality {
	case ModalityConversation, ModalitySimEnv:
	default:
		return fmt.Errorf("unknown modality %q", s.Config.Modality)
	}
	if s.Config.MaxTurns < 1 {
		return fmt.Errorf("max_turns must be at least 1, got %d", s.Config.MaxTurns)
	}
	if s.Config.Repetitions < 1 {
		return fmt.Errorf("repetitions must be at least 1, got %d", s.Config.Repetitions)
	}
	if s.Evaluator.ModelID == "" {
		return fmt.Errorf("evaluator model is required")
	}
	if s.Target.ModelID == "" {
		return fmt.Errorf("target model is required")
	}
	if s.Config.NoUserMode && s.Config.Modality != ModalitySimEnv {
		return fmt.Errorf("no_user_mode requires the simenv modality")
	}
	if s.Config.Modality == ModalitySimEnv {
		for i, sc := range s.Scenarios {
			if len(sc.Tools) == 0 {
				return fmt.Errorf("scenario %d declares no tools but modality is simenv", i)
			}
		}
	}
	for i, sc := range s.Scenarios {
		if sc.Description == "" {
			return fmt.Errorf("scenario %d has an empty description", i)
		}
	}
	return nil
}

// TargetBinding returns the target role binding for a scenario variation,
// applying any per-scenario generation overrides.
func (s *Spec) TargetBinding(variation int) (RoleBinding, error) {
	binding := s.Target
	if variation < 0 || variation >= len(s.Scenarios) {
		return binding, fmt.Errorf("variation %d out of range", variation)
	}

	overrides := s.Scenarios[variation].Overrides
	if len(overrides) == 0 {
		return binding, nil
	}

	params := binding.Params
	if params.Temperature != nil {
		// Decode must not write through the spec's shared pointer.
		t := *params.Temperature
		params.Temperature = &t
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &params,
		ErrorUnused: true,
		TagName:     "yaml",
	})
	if err != nil {
		return binding, err
	}
	if err := dec.Decode(overrides); err != nil {
		return binding, fmt.Errorf("scenario %d overrides: %w", variation, err)
	}

	binding.Params = params
	return binding, nil
}
