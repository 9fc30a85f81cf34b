// Package cfn drives the CloudFormation helper scripts installed on the host.
package cfn

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/aretw0/deckhand/internal/logging"
	"github.com/aretw0/deckhand/pkg/domain"
)

// DefaultBinDir is where the helper scripts are installed.
const DefaultBinDir = "/opt/aws/bin"

// Runner executes a helper script.
type Runner interface {
	Run(ctx context.Context, command string, args []string, env []string) (string, error)
}

// Wrapper builds and runs helper script invocations.
type Wrapper struct {
	runner Runner
	binDir string
	logger *slog.Logger
}

// Option configures the Wrapper.
type Option func(*Wrapper)

// WithBinDir overrides DefaultBinDir.
func WithBinDir(dir string) Option {
	return func(w *Wrapper) {
		if dir != "" {
			w.binDir = dir
		}
	}
}

// WithLogger sets the wrapper logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Wrapper) {
		w.logger = logger
	}
}

// NewWrapper creates a Wrapper running scripts through runner.
func NewWrapper(runner Runner, opts ...Option) *Wrapper {
	w := &Wrapper{
		runner: runner,
		binDir: DefaultBinDir,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RunConfigSets applies configSets with cfn-init.
func (w *Wrapper) RunConfigSets(ctx context.Context, id domain.Identity, configSets []string, env []string) (string, error) {
	args := []string{
		"-v",
		"-s", id.StackName,
		"-r", id.Resource,
		"--region", id.Region,
		"--configsets", strings.Join(configSets, ","),
	}
	return w.call(ctx, "cfn-init", args, id, env)
}

// ResourceMetadata returns the raw metadata document of resource.
func (w *Wrapper) ResourceMetadata(ctx context.Context, id domain.Identity, resource string) (string, error) {
	args := []string{
		"--region=" + id.Region,
		"--stack=" + id.StackName,
		"--resource=" + resource,
	}
	return w.call(ctx, "cfn-get-metadata", args, id, nil)
}

// ElectLeader asks the stack whether this host leads the command
// invocation of req. A non-zero exit means another host won.
func (w *Wrapper) ElectLeader(ctx context.Context, id domain.Identity, req *domain.CommandRequest) (bool, error) {
	name := req.CfnCommandName
	if name == "" {
		name = req.CommandName
	}
	args := []string{
		"--stack", id.StackName,
		"--command-name", name,
		"--invocation-id", req.InvocationID,
		"--listener-id", id.InstanceID,
		"--region=" + id.Region,
	}
	_, err := w.call(ctx, "cfn-elect-cmd-leader", args, id, nil)
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		w.logger.Info("Not elected as command leader", "command", name, "exit_code", exitErr.ExitCode())
		return false, nil
	}
	return false, err
}

func (w *Wrapper) call(ctx context.Context, script string, args []string, id domain.Identity, env []string) (string, error) {
	if id.CfnURL != "" {
		args = append(args, "--url", id.CfnURL)
	}
	return w.runner.Run(ctx, filepath.Join(w.binDir, script), args, env)
}
