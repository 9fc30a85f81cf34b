package dsl

import (
	"fmt"

	"github.com/aretw0/deckhand/pkg/domain"
)

// Builder collects command definitions.
type Builder struct {
	order    []string
	commands map[string]*CommandBuilder
}

// New creates an empty builder.
func New() *Builder {
	return &Builder{commands: make(map[string]*CommandBuilder)}
}

// Command starts or resumes the definition of name.
func (b *Builder) Command(name string) *CommandBuilder {
	if cb, ok := b.commands[name]; ok {
		return cb
	}
	cb := &CommandBuilder{builder: b, name: name}
	b.commands[name] = cb
	b.order = append(b.order, name)
	return cb
}

// Build validates and returns the definitions.
func (b *Builder) Build() (domain.Definitions, error) {
	defs := make(domain.Definitions, len(b.commands))
	for _, name := range b.order {
		def := b.commands[name].def
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		defs[name] = def
	}
	return defs, nil
}

// CommandBuilder appends stages to one command.
type CommandBuilder struct {
	builder *Builder
	name    string
	def     domain.CommandDefinition
}

// Stage appends a stage to the command.
func (c *CommandBuilder) Stage(name string) *StageBuilder {
	c.def.Stages = append(c.def.Stages, domain.Stage{Name: name, Actions: []domain.Action{}})
	return &StageBuilder{command: c, index: len(c.def.Stages) - 1}
}

// StageBuilder appends actions to the most recent stage.
type StageBuilder struct {
	command *CommandBuilder
	index   int
}

func (s *StageBuilder) stage() *domain.Stage {
	return &s.command.def.Stages[s.index]
}

// Leader restricts the stage to the elected command leader.
func (s *StageBuilder) Leader() *StageBuilder {
	s.stage().LeaderElection = true
	return s
}

// Infra appends a built-in script action.
func (s *StageBuilder) Infra(name, script string) *StageBuilder {
	return s.action(name, domain.ActionInfra, script)
}

// Hook appends a hook directory action.
func (s *StageBuilder) Hook(name, dir string) *StageBuilder {
	return s.action(name, domain.ActionHook, dir)
}

// Sh appends a shell command action.
func (s *StageBuilder) Sh(name, command string) *StageBuilder {
	return s.action(name, domain.ActionShell, command)
}

func (s *StageBuilder) action(name string, typ domain.ActionType, value string) *StageBuilder {
	st := s.stage()
	st.Actions = append(st.Actions, domain.Action{Name: name, Type: typ, Value: value})
	return s
}

// Timeout sets the timeout in seconds of the last action.
func (s *StageBuilder) Timeout(seconds int) *StageBuilder {
	if a := s.last(); a != nil {
		a.Timeout = seconds
	}
	return s
}

// Retries sets the retry budget of the last action.
func (s *StageBuilder) Retries(n int) *StageBuilder {
	if a := s.last(); a != nil {
		a.Retries = n
	}
	return s
}

func (s *StageBuilder) last() *domain.Action {
	st := s.stage()
	if len(st.Actions) == 0 {
		return nil
	}
	return &st.Actions[len(st.Actions)-1]
}

// Stage appends the next stage of the same command.
func (s *StageBuilder) Stage(name string) *StageBuilder {
	return s.command.Stage(name)
}

// Command starts or resumes another command.
func (s *StageBuilder) Command(name string) *CommandBuilder {
	return s.command.builder.Command(name)
}

// Build validates and returns every definition of the builder.
func (s *StageBuilder) Build() (domain.Definitions, error) {
	return s.command.builder.Build()
}
