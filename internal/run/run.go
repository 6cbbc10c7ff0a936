// Package run executes the external toolchain commands the build
// delegates to. Invocation is synchronous and blocking; cancellation
// comes only from the caller's context.
package run

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/droidian-releng/releng-tools/internal/logfields"
)

// Command describes one toolchain invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory for the subprocess. Threading the
	// directory here keeps the orchestrator free of chdir side effects.
	Dir string
	// Env, when non-nil, replaces the subprocess environment.
	Env []string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Run executes the command with stdout/stderr inherited from the
// invoking process, so toolchain output lands in the CI log verbatim.
func Run(ctx context.Context, cmd Command) error {
	// #nosec G204 -- command names are fixed toolchain binaries, args are assembled internally
	proc := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	proc.Dir = cmd.Dir
	proc.Env = cmd.Env
	proc.Stdout = os.Stdout
	proc.Stderr = os.Stderr

	slog.Debug("Running command", logfields.Command(cmd.String()), logfields.Path(cmd.Dir))
	start := time.Now()
	err := proc.Run()
	slog.Debug("Command finished",
		logfields.Command(cmd.Name),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())),
		logfields.Error(err))
	return err
}

// Capture executes the command with both streams buffered, for callers
// that need to inspect or re-surface the output.
func Capture(ctx context.Context, cmd Command) (stdout, stderr string, err error) {
	// #nosec G204 -- command names are fixed toolchain binaries, args are assembled internally
	proc := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	proc.Dir = cmd.Dir
	proc.Env = cmd.Env

	var outBuf, errBuf bytes.Buffer
	proc.Stdout = &outBuf
	proc.Stderr = &errBuf

	slog.Debug("Running command", logfields.Command(cmd.String()), logfields.Path(cmd.Dir))
	err = proc.Run()
	return outBuf.String(), errBuf.String(), err
}
