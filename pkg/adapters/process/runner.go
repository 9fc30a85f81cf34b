package process

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/deckhand/internal/logging"
	"github.com/aretw0/deckhand/pkg/domain"
)

// Shell runs literal shell actions.
const Shell = "/bin/sh"

const stderrTail = 2048

// Runner executes local processes for actions.
// Infra scripts follow a strict registry (allow-listing): only names loaded
// from the registry can run.
type Runner struct {
	registry  map[string]RegisteredProcess
	baseDir   string
	waitDelay time.Duration
	logger    *slog.Logger
}

// RegisteredProcess defines an allowed command execution.
type RegisteredProcess struct {
	Command string
	Args    []string
	Env     map[string]string
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRegistry populates the allow-list from a loaded config.
func WithRegistry(scripts map[string]ProcessConfig) RunnerOption {
	return func(r *Runner) {
		for name, script := range scripts {
			r.registry[name] = RegisteredProcess{
				Command: script.Command,
				Args:    script.Args,
				Env:     script.Environment,
			}
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithLogger sets the logger process output is reported to.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a new Process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry:  make(map[string]RegisteredProcess),
		waitDelay: time.Second,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted script/command to the allow-list.
func (r *Runner) Register(name string, command string, args ...string) {
	r.registry[name] = RegisteredProcess{
		Command: command,
		Args:    args,
	}
}

// Names lists the registered infra scripts.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.registry))
	for name := range r.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunInfra runs the registered infra script name.
func (r *Runner) RunInfra(ctx context.Context, name string, env []string) (string, error) {
	proc, ok := r.registry[name]
	if !ok {
		return "", domain.ConfigErrorf("Not recognized infra action: %s.", name)
	}
	extra := make([]string, 0, len(proc.Env)+len(env))
	for k, v := range proc.Env {
		extra = append(extra, k+"="+v)
	}
	return r.Run(ctx, proc.Command, proc.Args, append(extra, env...))
}

// RunShell runs a literal command line through the system shell.
func (r *Runner) RunShell(ctx context.Context, command string, env []string) (string, error) {
	return r.Run(ctx, Shell, []string{"-c", command}, env)
}

// RunFile runs an executable file.
func (r *Runner) RunFile(ctx context.Context, path string, env []string) (string, error) {
	return r.Run(ctx, path, nil, env)
}

// Run executes command with args. env entries override the inherited
// environment. The command's stdout is returned; a failure is a KindExec
// error carrying the exit code and the tail of stderr. Cancelling ctx kills
// the whole process group.
func (r *Runner) Run(ctx context.Context, command string, args []string, env []string) (string, error) {
	label := command
	if command == Shell && len(args) == 2 {
		label = args[1]
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = r.baseDir
	cmd.Env = append(os.Environ(), env...)
	configureCommandProcess(cmd)
	cmd.Cancel = func() error {
		terminateCommandProcess(cmd)
		return nil
	}
	// Grandchildren holding the pipes must not keep Wait blocked.
	cmd.WaitDelay = r.waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("Running process", "command", label)
	err := cmd.Run()
	output := strings.TrimRight(stdout.String(), "\n")
	if err == nil {
		return output, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return output, domain.ExecErrorf(ctxErr, "%s was interrupted", label)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return output, domain.ExecErrorf(err, "%s failed with error code %d%s", label, exitErr.ExitCode(), tail(stderr.String()))
	}
	return output, domain.ExecErrorf(err, "%s could not be started", label)
}

func tail(stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return ""
	}
	if len(stderr) > stderrTail {
		stderr = "..." + stderr[len(stderr)-stderrTail:]
	}
	return ". Stderr: " + stderr
}
