package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CommandRequest is a single command delivered by the control plane. It is
// immutable once parsed.
type CommandRequest struct {
	APIVersion    Blob     `json:"api_version,omitempty"`
	CommandName   string   `json:"command_name"`
	RequestID     string   `json:"request_id,omitempty"`
	ConfigSet     string   `json:"config_set,omitempty"`
	StageName     string   `json:"stage_name,omitempty"`
	StageNum      *int     `json:"stage_num,omitempty"`
	IsLastStage   bool     `json:"is_last_stage,omitempty"`
	ResourceName  string   `json:"resource_name,omitempty"`
	Data          Blob     `json:"data,omitempty"`
	ExecutionData Blob     `json:"execution_data,omitempty"`
	InstanceIDs   []string `json:"instance_ids,omitempty"`

	// Supplied by the invoking dispatcher, not by the request document.
	CfnCommandName string `json:"-"`
	InvocationID   string `json:"-"`
	DispatcherID   string `json:"-"`

	raw string
}

// Invocation carries the identifiers the dispatcher hands over alongside the request.
type Invocation struct {
	CfnCommandName string
	InvocationID   string
	DispatcherID   string
}

// ParseCommandRequest decodes a request document. A missing command name is a
// construction error.
func ParseCommandRequest(data []byte, inv Invocation) (*CommandRequest, error) {
	var req CommandRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &Error{Kind: KindRuntime, Msg: "invalid command request", Err: err}
	}
	if req.CommandName == "" {
		return nil, ErrMissingCommandName
	}
	req.CfnCommandName = inv.CfnCommandName
	req.InvocationID = inv.InvocationID
	req.DispatcherID = inv.DispatcherID
	req.raw = string(bytes.TrimSpace(data))
	return &req, nil
}

// HasStage reports whether the request is part of a staged command.
func (r *CommandRequest) HasStage() bool {
	return r.StageNum != nil
}

// Stage returns the stage number, or -1 when the request is not staged.
func (r *CommandRequest) Stage() int {
	if r.StageNum == nil {
		return -1
	}
	return *r.StageNum
}

// CanonicalName is the command name qualified with its stage, e.g. "CMD-AppDeploy(stage 1)".
func (r *CommandRequest) CanonicalName() string {
	if r.StageNum == nil {
		return r.CommandName
	}
	return fmt.Sprintf("%s(stage %d)", r.CommandName, *r.StageNum)
}

// String returns the request as it was received.
func (r *CommandRequest) String() string {
	if r.raw != "" {
		return r.raw
	}
	b, _ := json.Marshal(r)
	return string(b)
}

// Blob is a request payload field. Control planes send either a string or a
// structured document; both are kept as text for the action environment.
type Blob string

func (b *Blob) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*b = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*b = Blob(s)
		return nil
	}
	*b = Blob(trimmed)
	return nil
}
