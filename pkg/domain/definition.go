package domain

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// ActionType selects how an action's value is interpreted.
type ActionType string

const (
	// ActionInfra runs a built-in script addressed by symbolic name.
	ActionInfra ActionType = "infra"
	// ActionHook runs every eligible executable of a hook directory.
	ActionHook ActionType = "hook"
	// ActionShell runs a literal shell command.
	ActionShell ActionType = "sh"
)

// Normalize maps accepted aliases onto the canonical action types.
func (t ActionType) Normalize() ActionType {
	if t == "shell" {
		return ActionShell
	}
	return t
}

// Definitions maps command names to their stage/action pipelines.
type Definitions map[string]CommandDefinition

// CommandDefinition is the ordered list of stages of one command.
type CommandDefinition struct {
	Stages []Stage `json:"stages" yaml:"stages" mapstructure:"stages"`
}

// Stage is one ordered phase of a command pipeline.
type Stage struct {
	Name           string   `json:"name" yaml:"name" mapstructure:"name"`
	LeaderElection bool     `json:"leader_election,omitempty" yaml:"leader_election,omitempty" mapstructure:"leader_election"`
	Actions        []Action `json:"actions" yaml:"actions" mapstructure:"actions"`
}

// Action is one step within a stage.
type Action struct {
	Name  string     `json:"name" yaml:"name" mapstructure:"name"`
	Type  ActionType `json:"type" yaml:"type" mapstructure:"type"`
	Value string     `json:"value" yaml:"value" mapstructure:"value"`

	// Timeout in seconds for the action's activity; 0 is unbounded.
	Timeout int `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`
	// Retries allowed for the action's activity.
	Retries int `json:"retries,omitempty" yaml:"retries,omitempty" mapstructure:"retries"`
}

// TimeoutDuration converts the action timeout to a duration.
func (a Action) TimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// DecodeDefinitions converts a loosely typed document (YAML or JSON decoded
// into maps) into Definitions. Booleans and numbers given as strings are accepted.
func DecodeDefinitions(raw any) (Definitions, error) {
	defs := Definitions{}
	if raw == nil {
		return defs, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      false,
		Result:           &defs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build definitions decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode command definitions: %w", err)
	}
	for name, def := range defs {
		for i := range def.Stages {
			for j := range def.Stages[i].Actions {
				def.Stages[i].Actions[j].Type = def.Stages[i].Actions[j].Type.Normalize()
			}
		}
		defs[name] = def
	}
	return defs, nil
}

// Validate checks that every stage and action is complete and that action
// types are known.
func (d CommandDefinition) Validate() error {
	if len(d.Stages) == 0 {
		return fmt.Errorf("definition has no stages")
	}
	for i, stage := range d.Stages {
		if stage.Name == "" {
			return fmt.Errorf("stage %d has no name", i)
		}
		for j, action := range stage.Actions {
			if action.Name == "" {
				return fmt.Errorf("stage %q action %d has no name", stage.Name, j)
			}
			switch action.Type.Normalize() {
			case ActionInfra, ActionHook, ActionShell:
			default:
				return fmt.Errorf("stage %q action %q has unknown type %q", stage.Name, action.Name, action.Type)
			}
			if action.Value == "" {
				return fmt.Errorf("stage %q action %q has no value", stage.Name, action.Name)
			}
			if action.Timeout < 0 || action.Retries < 0 {
				return fmt.Errorf("stage %q action %q has negative timeout or retries", stage.Name, action.Name)
			}
		}
	}
	return nil
}

// Merge returns a copy of d with every command of other added or replacing
// the command of the same name.
func (d Definitions) Merge(other Definitions) Definitions {
	merged := make(Definitions, len(d)+len(other))
	for name, def := range d {
		merged[name] = def
	}
	for name, def := range other {
		merged[name] = def
	}
	return merged
}
