// ABOUTME: Shell execution for Execute commands: sh -c on POSIX, cmd /C on Windows.
// ABOUTME: Captures stdout and stderr separately; a non-zero exit is a result, not an error.

package shell

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"runtime"
)

// Result carries everything a command result needs about one execution.
type Result struct {
	// ExitOK is true when the process ran and exited zero.
	ExitOK bool
	Stdout string
	Stderr string
}

// Runner executes one shell command line. Implementations return an error
// only when the process could not be started at all; a process that ran and
// exited non-zero is a Result with ExitOK false.
type Runner interface {
	Run(ctx context.Context, command string) (Result, error)
}

// New returns the platform runner.
func New() Runner {
	if runtime.GOOS == "windows" {
		return &execRunner{shell: "cmd", flag: "/C"}
	}
	return &execRunner{shell: "sh", flag: "-c"}
}

type execRunner struct {
	shell string
	flag  string
}

func (r *execRunner) Run(ctx context.Context, command string) (Result, error) {
	cmd := exec.CommandContext(ctx, r.shell, r.flag, command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		res.ExitOK = true
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Ran but exited non-zero; output and stderr are already captured.
		return res, nil
	}
	return Result{}, err
}

// Ensure execRunner implements Runner at compile time.
var _ Runner = (*execRunner)(nil)
