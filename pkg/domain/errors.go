package domain

import (
	"errors"
	"fmt"
)

// Kind tags a failure so retry policies can match on it without inspecting
// concrete error types.
type Kind string

const (
	// KindUnknown is reported for errors that carry no tag.
	KindUnknown Kind = "unknown"
	// KindRuntime is a generic precondition violation.
	KindRuntime Kind = "runtime"
	// KindConfig is a definition the agent cannot act on. It is never retried.
	KindConfig Kind = "config"
	// KindExec is a spawned process that failed or exited non-zero.
	KindExec Kind = "exec"
	// KindTimeout is an activity that exceeded its deadline.
	KindTimeout Kind = "timeout"
	// KindFatal is an activity whose retryable failure exhausted its retries.
	KindFatal Kind = "fatal"
	// KindInternal is an activity that failed with a kind it was not configured to retry.
	KindInternal Kind = "internal"
)

// Activity failure reasons.
const (
	ReasonFailed   = "Activity failed."
	ReasonInternal = "Activity internal failure."
	ReasonTimeout  = "Activity timed out."
)

var (
	// ErrMissingCommandName is returned when a request does not name a command.
	ErrMissingCommandName = &Error{Kind: KindRuntime, Msg: "Missing command name!"}

	// ErrInadmissible is returned when the stage or instance checks reject a request.
	ErrInadmissible = &Error{Kind: KindRuntime, Msg: "Shouldn't execute this stage of command!"}

	// ErrStageNotFound is returned by stage stores when no watermark exists for a request id.
	ErrStageNotFound = errors.New("stage not found")

	// ErrInvalidStage is returned by stage stores when the stored watermark is not a number.
	ErrInvalidStage = errors.New("stored stage is not a valid number")

	// ErrReportOverBudget is returned when a report cannot be brought under the size budget.
	ErrReportOverBudget = errors.New("report exceeds size budget")
)

// Error is a tagged failure raised by the agent or its collaborators.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel *Error values by kind and message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == e.Msg
}

// RuntimeErrorf builds a KindRuntime error.
func RuntimeErrorf(format string, args ...any) error {
	return &Error{Kind: KindRuntime, Msg: fmt.Sprintf(format, args...)}
}

// ConfigErrorf builds a KindConfig error.
func ConfigErrorf(format string, args ...any) error {
	return &Error{Kind: KindConfig, Msg: fmt.Sprintf(format, args...)}
}

// ExecErrorf builds a KindExec error wrapping cause.
func ExecErrorf(cause error, format string, args ...any) error {
	return &Error{Kind: KindExec, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// ActivityError is the terminal failure of an activity. Msg holds the root
// cause, Reason the short activity verdict and Path the activity path at the
// point of failure.
type ActivityError struct {
	Kind   Kind
	Msg    string
	Reason string
	Path   string
	Err    error
}

func (e *ActivityError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Path, e.Msg)
}

func (e *ActivityError) Unwrap() error { return e.Err }

// KindOf reports the kind of err. ActivityErrors take precedence over the
// errors they wrap.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *ActivityError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

// IsActivityError reports whether err already is a terminal activity failure.
func IsActivityError(err error) bool {
	var ae *ActivityError
	return errors.As(err, &ae)
}
