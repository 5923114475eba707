package prompt

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed config/*.yaml
var configFiles embed.FS

// Templates holds the static prompt text loaded from the embedded YAML.
type Templates struct {
	SystemInstructions string `yaml:"system_instructions"`
	TierExplainer      string `yaml:"tier_explainer"`
}

// LoadTemplates reads the embedded prompt templates.
func LoadTemplates() (*Templates, error) {
	data, err := configFiles.ReadFile("config/prompts.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts.yaml: %w", err)
	}

	var t Templates
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts.yaml: %w", err)
	}
	if t.SystemInstructions == "" || t.TierExplainer == "" {
		return nil, fmt.Errorf("prompts.yaml is missing required sections")
	}
	return &t, nil
}
