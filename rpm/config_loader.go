package rpm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadServiceConfig loads the service configuration from a YAML file
func LoadServiceConfig(path string) (*ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config ServiceConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	// Validate required fields
	if len(config.Sources) < 2 {
		return nil, fmt.Errorf("at least two sources must be defined (a reference and one to register)")
	}
	for i, sc := range config.Sources {
		if sc.ID == "" {
			return nil, fmt.Errorf("sources[%d].id is required", i)
		}
		if sc.Topic == "" {
			return nil, fmt.Errorf("sources[%d].topic is required for %s", i, sc.ID)
		}
	}
	if config.Reference == "" {
		return nil, fmt.Errorf("reference source id is required")
	}
	if config.GetSourceByID(config.Reference) == nil {
		return nil, fmt.Errorf("reference %q is not a configured source", config.Reference)
	}
	if r := config.Engine.AnnealingRatio; r != 0 && (r <= 0 || r >= 1) {
		return nil, fmt.Errorf("engine.annealingRatio must be in (0, 1), got %v", r)
	}

	return &config, nil
}

// SaveServiceConfig saves the configuration to a YAML file
func SaveServiceConfig(path string, config *ServiceConfig) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
