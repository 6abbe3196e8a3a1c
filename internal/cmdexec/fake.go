// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmdexec

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"grimm.is/tcbridge/internal/errors"
)

// FakeRunner is a scripted Runner for tests. Responses are matched by argv
// prefix in registration order; unmatched commands succeed with empty output.
type FakeRunner struct {
	mu        sync.Mutex
	responses []fakeResponse
	calls     [][]string
}

type fakeResponse struct {
	prefix []string
	result Result
	err    error
	// remaining uses; 0 means unlimited
	times int
}

// NewFakeRunner creates an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{}
}

// OnOutput scripts a successful command with the given stdout.
func (f *FakeRunner) OnOutput(stdout string, prefix ...string) *FakeRunner {
	return f.add(fakeResponse{prefix: prefix, result: Result{Stdout: stdout}})
}

// OnFail scripts a command that exits with code and stderr.
func (f *FakeRunner) OnFail(code int, stderr string, prefix ...string) *FakeRunner {
	res := Result{ExitCode: code, Stderr: stderr}
	err := errors.Errorf(errors.KindCommandFailed, "%s exited with status %d: %s", Join(prefix), code, strings.TrimSpace(stderr))
	err = errors.Attr(err, "exit_code", code)
	return f.add(fakeResponse{prefix: prefix, result: res, err: err})
}

// OnFailOnce is OnFail limited to a single match.
func (f *FakeRunner) OnFailOnce(code int, stderr string, prefix ...string) *FakeRunner {
	f.OnFail(code, stderr, prefix...)
	f.mu.Lock()
	f.responses[len(f.responses)-1].times = 1
	f.mu.Unlock()
	return f
}

// OnMissing scripts a command whose executable is not installed.
func (f *FakeRunner) OnMissing(prefix ...string) *FakeRunner {
	err := errors.Wrapf(exec.ErrNotFound, errors.KindCommandFailed, "%s could not be run", Join(prefix))
	return f.add(fakeResponse{prefix: prefix, result: Result{ExitCode: -1}, err: err})
}

func (f *FakeRunner) add(r fakeResponse) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, r)
	return f
}

// Run implements Runner.
func (f *FakeRunner) Run(ctx context.Context, argv ...string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, append([]string(nil), argv...))
	if err := ctx.Err(); err != nil {
		return Result{Argv: argv, ExitCode: -1}, errors.Wrap(err, errors.KindCommandFailed, "context done")
	}

	for i := range f.responses {
		r := &f.responses[i]
		if r.times < 0 || !hasPrefix(argv, r.prefix) {
			continue
		}
		if r.times > 0 {
			r.times--
			if r.times == 0 {
				r.times = -1
			}
		}
		res := r.result
		res.Argv = argv
		return res, r.err
	}
	return Result{Argv: argv}, nil
}

// Calls returns every argv seen so far.
func (f *FakeRunner) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallLines returns every argv joined with spaces.
func (f *FakeRunner) CallLines() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = Join(c)
	}
	return out
}

// Reset forgets recorded calls but keeps scripted responses.
func (f *FakeRunner) Reset() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

func (f *FakeRunner) String() string {
	return fmt.Sprintf("FakeRunner(%d calls)", len(f.Calls()))
}

func hasPrefix(argv, prefix []string) bool {
	if len(prefix) > len(argv) {
		return false
	}
	for i := range prefix {
		if argv[i] != prefix[i] {
			return false
		}
	}
	return true
}
