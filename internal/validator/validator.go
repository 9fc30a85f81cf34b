// Package validator checks command definition documents before they are
// deployed to hosts.
package validator

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/aretw0/deckhand/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Option configures a validation run.
type Option func(*options)

type options struct {
	infra map[string]bool
}

// WithInfra checks infra actions against the known script names.
func WithInfra(names []string) Option {
	return func(o *options) {
		o.infra = make(map[string]bool, len(names))
		for _, n := range names {
			o.infra[n] = true
		}
	}
}

// Load reads a definitions document. A metadata document is accepted too:
// its command_definitions key is used when present.
func Load(path string) (domain.Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	var doc any = raw
	if nested, ok := raw["command_definitions"]; ok {
		doc = nested
	}
	return domain.DecodeDefinitions(doc)
}

// ValidateFile loads path and validates every definition in it. It returns
// the sorted command names.
func ValidateFile(path string, opts ...Option) ([]string, error) {
	defs, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Validate(defs, opts...)
}

// Validate checks every definition and reports all problems at once.
func Validate(defs domain.Definitions, opts ...Option) ([]string, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	var errors []string
	for _, name := range names {
		def := defs[name]
		if err := def.Validate(); err != nil {
			errors = append(errors, fmt.Sprintf("%s: %v", name, err))
			continue
		}

		seen := make(map[string]bool, len(def.Stages))
		for _, stage := range def.Stages {
			if seen[stage.Name] {
				errors = append(errors, fmt.Sprintf("%s: duplicate stage %q", name, stage.Name))
			}
			seen[stage.Name] = true

			if o.infra == nil {
				continue
			}
			for _, action := range stage.Actions {
				if action.Type == domain.ActionInfra && !o.infra[action.Value] {
					errors = append(errors, fmt.Sprintf("%s: stage %q action %q uses unknown infra script %q", name, stage.Name, action.Name, action.Value))
				}
			}
		}
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("found %d errors:\n- %s", len(errors), strings.Join(errors, "\n- "))
	}
	return names, nil
}
