package command

import (
	"sort"
	"strconv"

	"github.com/aretw0/deckhand/pkg/domain"
)

// Variables published to actions.
const (
	EnvResourceName    = "DECKHAND_RESOURCE_NAME"
	EnvCommandData     = "DECKHAND_COMMAND_DATA"
	EnvExecutionData   = "DECKHAND_EXECUTION_DATA"
	EnvRequestID       = "DECKHAND_REQUEST_ID"
	EnvEventFile       = "DECKHAND_EVENT_FILE"
	EnvIsCommandLeader = "DECKHAND_IS_COMMAND_LEADER"
	EnvCommandName     = "DECKHAND_COMMAND_NAME"
	EnvStageNum        = "DECKHAND_STAGE_NUM"
)

// Environment is the set of variables one dispatch hands to its actions.
// It is never written to the process environment.
type Environment map[string]string

// NewEnvironment publishes the request fields that are set.
func NewEnvironment(req *domain.CommandRequest, eventsFile string) Environment {
	env := Environment{EnvCommandName: req.CommandName}
	env.setIf(EnvResourceName, req.ResourceName)
	env.setIf(EnvCommandData, string(req.Data))
	env.setIf(EnvExecutionData, string(req.ExecutionData))
	env.setIf(EnvRequestID, req.RequestID)
	env.setIf(EnvEventFile, eventsFile)
	return env
}

func (e Environment) setIf(key, value string) {
	if value != "" {
		e[key] = value
	}
}

// SetLeader publishes the leader election outcome.
func (e Environment) SetLeader(leader bool) {
	e[EnvIsCommandLeader] = strconv.FormatBool(leader)
}

// SetStage publishes the stage being run.
func (e Environment) SetStage(stage int) {
	e[EnvStageNum] = strconv.Itoa(stage)
}

// List renders the environment as sorted KEY=value entries.
func (e Environment) List() []string {
	out := make([]string, 0, len(e))
	for k, v := range e {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
