package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.yaml.in/yaml/v3"

	"github.com/clearlane/claimflow/internal/backend"
	"github.com/clearlane/claimflow/internal/prompts"
	"github.com/clearlane/claimflow/internal/tools"
	"github.com/clearlane/claimflow/pkg/models"
)

// agentSpecFile is the on-disk YAML shape of a single agent definition.
type agentSpecFile struct {
	Name     string   `yaml:"name"`
	Provider string   `yaml:"provider"`
	Tools    []string `yaml:"tools"`
	MaxSteps int      `yaml:"max_steps"`
	Decider  bool     `yaml:"decider"`
}

// LoadAgentSpecs reads agent definitions from dir. Each agent lives in its own
// subdirectory containing an agent.yaml and an optional prompt.md; role text is
// resolved through the prompt loader. Exactly one definition must be marked as
// the decider. Tool names are resolved against the registry so unknown tools
// fail at load time rather than mid-claim.
func LoadAgentSpecs(dir string, registry *tools.Registry, loader *prompts.Loader) (agents []models.AgentSpec, decider models.AgentSpec, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, models.AgentSpec{}, fmt.Errorf("reading agents dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	deciderSeen := false
	for _, name := range names {
		path := filepath.Join(dir, name, "agent.yaml")
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, models.AgentSpec{}, fmt.Errorf("reading %s: %w", path, err)
		}

		var file agentSpecFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, models.AgentSpec{}, fmt.Errorf("parsing %s: %w", path, err)
		}
		if file.Name == "" {
			return nil, models.AgentSpec{}, fmt.Errorf("%s: agent name is required", path)
		}

		spec, err := buildSpec(file, registry, loader)
		if err != nil {
			return nil, models.AgentSpec{}, fmt.Errorf("%s: %w", path, err)
		}

		if file.Decider {
			if deciderSeen {
				return nil, models.AgentSpec{}, fmt.Errorf("%s: multiple decider agents defined", path)
			}
			deciderSeen = true
			decider = spec
			continue
		}
		agents = append(agents, spec)
	}

	if len(agents) == 0 {
		return nil, models.AgentSpec{}, fmt.Errorf("no agent definitions found in %s", dir)
	}
	if !deciderSeen {
		return nil, models.AgentSpec{}, fmt.Errorf("no decider agent defined in %s", dir)
	}

	return agents, decider, nil
}

// buildSpec resolves a YAML definition into a runnable agent spec.
func buildSpec(file agentSpecFile, registry *tools.Registry, loader *prompts.Loader) (models.AgentSpec, error) {
	role := prompts.FallbackPrompt(file.Name)
	if loader != nil {
		role = loader.Load(file.Name)
	}
	spec := models.AgentSpec{
		Name:     file.Name,
		Provider: file.Provider,
		Role:     role,
		MaxSteps: file.MaxSteps,
	}
	if spec.Provider == "" {
		spec.Provider = backend.ProviderAnthropic
	}

	if len(file.Tools) > 0 {
		descs, err := registry.Descriptors(file.Tools)
		if err != nil {
			return models.AgentSpec{}, err
		}
		spec.Tools = descs
	}

	return spec, nil
}

// defaultAgents lists the built-in first-stage evaluators and the tools each
// may read. The order here is the configuration order used for aggregation
// tie-breaks.
var defaultAgents = []agentSpecFile{
	{Name: "PolicyValidator", Tools: []string{"get_claim_basic_info", "get_policy_information", "calculate_days_between_dates"}},
	{Name: "DocumentValidator", Tools: []string{"get_claim_basic_info", "get_documentation_info"}},
	{Name: "DriverVerifier", Tools: []string{"get_driver_information", "get_coverage_details"}},
	{Name: "VehicleDamageEvaluator", Tools: []string{"get_claim_basic_info", "get_vehicle_information", "check_total_loss_threshold"}},
	{Name: "CoverageEvaluator", Tools: []string{"get_claim_basic_info", "get_policy_information", "get_vehicle_information", "get_coverage_details", "get_liability_information"}},
	{Name: "CatastropheChecker", Tools: []string{"get_claim_basic_info", "get_catastrophe_information"}},
	{Name: "LiabilityAssessor", Tools: []string{"get_liability_information", "get_documentation_info"}},
	{Name: "RentalBenefitChecker", Tools: []string{"get_rental_information", "get_coverage_details"}},
	{Name: "FraudDetector", Tools: []string{"get_claim_basic_info", "get_policy_information", "get_vehicle_information", "get_catastrophe_information", "check_mileage_discrepancy", "calculate_days_between_dates"}},
}

// DeciderName is the name of the built-in second-stage decider agent.
const DeciderName = "ClaimDecider"

// DefaultAgentSpecs returns the built-in agent roster: nine first-stage
// evaluators plus the decider. The decider's tool surface is provided by the
// engine at claim time, so its spec carries no tools here.
func DefaultAgentSpecs(registry *tools.Registry, loader *prompts.Loader) ([]models.AgentSpec, models.AgentSpec, error) {
	agents := make([]models.AgentSpec, 0, len(defaultAgents))
	for _, file := range defaultAgents {
		spec, err := buildSpec(file, registry, loader)
		if err != nil {
			return nil, models.AgentSpec{}, fmt.Errorf("agent %s: %w", file.Name, err)
		}
		agents = append(agents, spec)
	}

	decider, err := buildSpec(agentSpecFile{Name: DeciderName}, registry, loader)
	if err != nil {
		return nil, models.AgentSpec{}, fmt.Errorf("agent %s: %w", DeciderName, err)
	}

	return agents, decider, nil
}
