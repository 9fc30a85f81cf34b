package domain

import (
	"strings"
)

// Status of a command result.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// Return codes distinguish pipeline failures from delegated-call failures.
const (
	ReturnCodeSuccess  = 0
	ReturnCodePipeline = 1
	ReturnCodeTemplate = 2
)

// CommandResult accumulates the outcome of one dispatch. It is owned by the
// dispatch that produced it and treated as read-only once returned.
type CommandResult struct {
	Status     Status
	Msg        string
	ReturnCode int
	Events     []Event
	ConfigSets []string
}

// NewCommandResult returns a result in its initial FAILURE state.
func NewCommandResult() *CommandResult {
	return &CommandResult{Status: StatusFailure}
}

// Succeed marks the result successful.
func (r *CommandResult) Succeed() {
	r.Status = StatusSuccess
	r.ReturnCode = ReturnCodeSuccess
}

// Fail marks the result failed with the given return code and error message.
func (r *CommandResult) Fail(code int, err error) {
	r.Status = StatusFailure
	r.ReturnCode = code
	if err != nil {
		r.Msg = err.Error()
	}
}

// Severity ranks progress events.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
	SeverityFatal
)

var severityNames = map[Severity]string{
	SeverityDebug: "DEBUG",
	SeverityInfo:  "INFO",
	SeverityWarn:  "WARN",
	SeverityError: "ERROR",
	SeverityFatal: "FATAL",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "INFO"
}

// ParseSeverity maps a severity label onto the scale. TRACE ranks as DEBUG;
// unknown labels rank as INFO.
func ParseSeverity(label string) Severity {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "TRACE", "DEBUG":
		return SeverityDebug
	case "WARN", "WARNING":
		return SeverityWarn
	case "ERROR":
		return SeverityError
	case "FATAL":
		return SeverityFatal
	default:
		return SeverityInfo
	}
}

// Event is a progress record emitted by an action through the events file.
// Timestamp is in milliseconds since the Unix epoch.
type Event struct {
	Msg       string `json:"msg"`
	Severity  string `json:"severity"`
	Timestamp int64  `json:"timestamp"`
}

// Rank returns the event's position on the severity scale.
func (e Event) Rank() Severity {
	return ParseSeverity(e.Severity)
}
