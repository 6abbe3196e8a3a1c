// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package cmdexec runs the external network configuration tools (ip, tc,
// brctl). Arguments are always passed as a discrete argv vector; nothing is
// ever handed to a shell.
package cmdexec

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"grimm.is/tcbridge/internal/errors"
	"grimm.is/tcbridge/internal/logging"
	"grimm.is/tcbridge/internal/metrics"
)

// DefaultTimeout bounds a single command invocation when none is configured.
const DefaultTimeout = 10 * time.Second

// waitDelay bounds how long Run waits for output pipes after the command
// exits or is killed. A descendant that inherits stdout would otherwise hold
// Run open past the timeout.
const waitDelay = 500 * time.Millisecond

// Result is the captured outcome of one command.
type Result struct {
	Argv     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Success reports whether the command exited zero.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Runner executes a command synchronously.
//
// A non-nil error is returned for non-zero exits, timeouts and start
// failures; the Result is still populated as far as possible.
type Runner interface {
	Run(ctx context.Context, argv ...string) (Result, error)
}

// Executor is the os/exec backed Runner.
type Executor struct {
	timeout time.Duration
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewExecutor creates an executor. A zero timeout selects DefaultTimeout.
func NewExecutor(timeout time.Duration, logger *logging.Logger, m *metrics.Metrics) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Executor{
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}
}

// Run executes argv[0] with argv[1:] under the executor's timeout.
func (e *Executor) Run(ctx context.Context, argv ...string) (Result, error) {
	res := Result{Argv: argv, ExitCode: -1}
	if len(argv) == 0 {
		return res, errors.New(errors.KindInternal, "empty command")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	runErr := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	tool := filepath.Base(argv[0])
	err := classify(ctx, res, runErr)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	e.metrics.ObserveCommand(tool, outcome, res.Duration)

	if err != nil {
		e.logger.Debug("command failed", "argv", Join(argv), "exit_code", res.ExitCode,
			"stderr", strings.TrimSpace(res.Stderr), "duration", res.Duration)
	} else {
		e.logger.Debug("command ok", "argv", Join(argv), "duration", res.Duration)
	}
	return res, err
}

// classify turns the raw exec outcome into a structured error.
func classify(ctx context.Context, res Result, runErr error) error {
	if runErr == nil {
		return nil
	}
	// The command itself succeeded; only a leftover descendant kept the
	// output pipes open.
	if errors.Is(runErr, exec.ErrWaitDelay) && res.Success() {
		return nil
	}

	var err error
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		err = errors.Wrapf(ctx.Err(), errors.KindCommandFailed, "%s timed out", Join(res.Argv))
		err = errors.Attr(err, "timeout", true)
	case res.ExitCode > 0:
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(res.Stdout)
		}
		if msg == "" {
			err = errors.Errorf(errors.KindCommandFailed, "%s exited with status %d", Join(res.Argv), res.ExitCode)
		} else {
			err = errors.Errorf(errors.KindCommandFailed, "%s exited with status %d: %s", Join(res.Argv), res.ExitCode, msg)
		}
	default:
		err = errors.Wrapf(runErr, errors.KindCommandFailed, "%s could not be run", Join(res.Argv))
	}

	err = errors.Attr(err, "argv", Join(res.Argv))
	err = errors.Attr(err, "exit_code", res.ExitCode)
	if res.Stderr != "" {
		err = errors.Attr(err, "stderr", strings.TrimSpace(res.Stderr))
	}
	return err
}

// Join renders argv for logs and error messages. The result is never executed.
func Join(argv []string) string {
	return strings.Join(argv, " ")
}

// IsMissingTool reports whether err means the executable was not found.
func IsMissingTool(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}

// CheckTools reports which of the named executables are not on PATH.
func CheckTools(names ...string) []string {
	var missing []string
	for _, n := range names {
		if _, err := exec.LookPath(n); err != nil {
			missing = append(missing, n)
		}
	}
	return missing
}
