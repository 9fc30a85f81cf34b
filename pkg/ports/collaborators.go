package ports

import (
	"context"

	"github.com/aretw0/deckhand/pkg/domain"
)

// EnvironmentMetadata resolves what the agent knows about its host and stack.
// The core treats it as a black box.
type EnvironmentMetadata interface {
	// Refresh loads metadata for the given request and resource. The snapshot
	// belongs to that request alone: later refreshes never alter it.
	Refresh(ctx context.Context, requestID, resource string) (MetadataSnapshot, error)
}

// MetadataSnapshot is the metadata one request runs against.
type MetadataSnapshot interface {
	// Identity returns the host and stack identity.
	Identity() domain.Identity

	// CommandDefinitions returns the stage/action pipelines known for this host.
	CommandDefinitions(ctx context.Context) (domain.Definitions, error)

	// ConfigSets returns the configuration sets a template command applies.
	ConfigSets(ctx context.Context, req *domain.CommandRequest) ([]string, error)

	// ElectLeader reports whether this host leads the given command invocation.
	ElectLeader(ctx context.Context, req *domain.CommandRequest) (bool, error)
}

// ConfigRunner applies configuration sets through the external configuration
// orchestration tool.
type ConfigRunner interface {
	RunConfigSets(ctx context.Context, id domain.Identity, configSets []string, env []string) (string, error)
}

// Addons extends commands with pluggable before/after hooks and definition overrides.
type Addons interface {
	// Amend returns the final definitions after addon overrides are merged.
	Amend(ctx context.Context, defs domain.Definitions) (domain.Definitions, error)

	// Before runs addon hooks ahead of the first stage of commandName.
	Before(ctx context.Context, commandName string, env []string) (string, error)

	// After runs addon hooks once the last stage of commandName completed.
	After(ctx context.Context, commandName string, env []string) (string, error)
}
