package process

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProcessConfig describes one built-in infra script.
type ProcessConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile represents the structure of infra.yaml.
type ConfigFile struct {
	Infra []ProcessConfig `yaml:"infra" json:"infra"`
}

// LoadInfra reads the infra registry (YAML or JSON) and returns a map of
// script names to configs. A missing file yields an empty registry.
func LoadInfra(path string) (map[string]ProcessConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]ProcessConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read infra config: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	scripts := make(map[string]ProcessConfig)
	for _, script := range cfg.Infra {
		if script.Name == "" {
			continue
		}
		if script.Command == "" {
			return nil, fmt.Errorf("infra script %q has no command", script.Name)
		}
		// Relative commands resolve against the registry file.
		if strings.ContainsRune(script.Command, filepath.Separator) && !filepath.IsAbs(script.Command) {
			script.Command = filepath.Join(filepath.Dir(path), script.Command)
		}
		scripts[script.Name] = script
	}
	return scripts, nil
}
