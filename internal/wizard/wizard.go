// Package wizard provides the interactive scaffold for new rollout specs.
package wizard

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/petrel-evals/petrel/internal/models"
)

var specNamePattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidateName checks that a spec name is kebab-case.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if !specNamePattern.MatchString(name) {
		return fmt.Errorf("name must be kebab-case (lowercase letters, digits, hyphens)")
	}
	return nil
}

// SpecDraft holds all fields collected during the interactive wizard.
type SpecDraft struct {
	Name           string
	Behavior       string
	Modality       models.Modality
	EvaluatorModel string
	TargetModel    string
	MaxTurns       int
	Scenario       string
}

// IsSimEnv reports whether the draft targets the tool-augmented modality.
func (d *SpecDraft) IsSimEnv() bool {
	return d.Modality == models.ModalitySimEnv
}

const specYAMLTemplate = `name: {{ .Name }}
behavior: >
  {{ .Behavior }}

config:
  modality: {{ .Modality }}
  max_turns: {{ .MaxTurns }}
  repetitions: 1

evaluator:
  role: evaluator
  model: {{ .EvaluatorModel }}
  max_tokens: 2048

target:
  role: target
  model: {{ .TargetModel }}
  max_tokens: 2048

scenarios:
  - description: >
      {{ .Scenario }}
{{- if .IsSimEnv }}
    tools:
      - name: example_tool
        description: Replace with a tool the target should have in this scenario.
        parameters:
          - name: input
            type: string
            description: Replace with a real parameter.
            required: true
{{- end }}
`

// RunSpecWizard runs an interactive huh form to collect the fields of a
// new rollout spec. If initialName is non-empty, it pre-populates the name
// field.
func RunSpecWizard(in io.Reader, out io.Writer, initialName string) (*SpecDraft, error) {
	var (
		name        = initialName
		behavior    string
		modality    string
		evalModel   string
		targetModel string
		maxTurnsRaw = "10"
		scenario    string
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Spec name").
				Description("A kebab-case name for this rollout spec").
				Placeholder("sycophancy-check").
				Value(&name).
				Validate(func(s string) error {
					return ValidateName(strings.TrimSpace(s))
				}),
			huh.NewInput().
				Title("Behavior").
				Description("What behavior of the target are you investigating?").
				Placeholder("The target flatters the user instead of correcting them").
				Value(&behavior).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("behavior is required")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Modality").
				Options(
					huh.NewOption("conversation", string(models.ModalityConversation)),
					huh.NewOption("simenv", string(models.ModalitySimEnv)),
				).
				Value(&modality),
			huh.NewInput().
				Title("Evaluator model").
				Placeholder("gpt-5").
				Value(&evalModel).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("evaluator model is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Target model").
				Placeholder("gpt-4o-mini").
				Value(&targetModel).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("target model is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Max target turns").
				Value(&maxTurnsRaw).
				Validate(func(s string) error {
					n, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil || n < 1 {
						return fmt.Errorf("must be a positive integer")
					}
					return nil
				}),
			huh.NewInput().
				Title("First scenario").
				Description("Describe the situation the target is placed in").
				Placeholder("The user asks the target to review their flawed business plan").
				Value(&scenario).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("scenario description is required")
					}
					return nil
				}),
		),
	).
		WithInput(in).
		WithOutput(out)

	// Use accessible mode for non-TTY input (e.g., tests, piped input).
	if f, ok := in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		form = form.WithAccessible(true)
	}

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("wizard failed: %w", err)
	}

	maxTurns, _ := strconv.Atoi(strings.TrimSpace(maxTurnsRaw))

	return &SpecDraft{
		Name:           strings.TrimSpace(name),
		Behavior:       strings.TrimSpace(behavior),
		Modality:       models.Modality(modality),
		EvaluatorModel: strings.TrimSpace(evalModel),
		TargetModel:    strings.TrimSpace(targetModel),
		MaxTurns:       maxTurns,
		Scenario:       strings.TrimSpace(scenario),
	}, nil
}

// GenerateSpecYAML renders a starter spec file from the draft.
func GenerateSpecYAML(draft *SpecDraft) (string, error) {
	tmpl, err := template.New("specyaml").Parse(specYAMLTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, draft); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}
