// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package runner runs external tools.  Every invocation goes through Runner
// so that exit status and output capture, the retry policy and the global
// process budget are applied uniformly.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/retry"
	"golang.org/x/sync/semaphore"
	"v.io/x/lib/envvar"
	"v.io/x/lib/lookpath"
)

// Cmd describes one external tool invocation.
type Cmd struct {
	// Tool is a short label used in logs and errors, e.g. "detector".
	Tool string
	// Path is the executable.  A bare name is looked up in $PATH.
	Path string
	Args []string
	// Dir is the working directory.  Empty means the current one.
	Dir string
	// Env is appended to the current environment.
	Env []string
	// Threads is the number of slots of the process budget the command
	// occupies.  Zero means one.
	Threads int
}

func (c Cmd) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Result is the outcome of the last attempt of a command.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
	Attempts int
}

// ToolError reports an external tool that kept failing after all retries.
type ToolError struct {
	Cmd    Cmd
	Result Result
	Err    error
}

// maxStderr bounds the stderr excerpt embedded in a ToolError.
const maxStderr = 512

func (e *ToolError) Error() string {
	stderr := bytes.TrimSpace(e.Result.Stderr)
	if len(stderr) > maxStderr {
		stderr = append([]byte("..."), stderr[len(stderr)-maxStderr:]...)
	}
	return fmt.Sprintf("%s failed after %d attempt(s) (exit %d): %v: %s",
		e.Cmd.Tool, e.Result.Attempts, e.Result.ExitCode, e.Err, stderr)
}

// Runner runs commands.  Implementations must be safe for concurrent use.
type Runner interface {
	Run(ctx context.Context, cmd Cmd) (Result, error)
}

// Opts configures Exec.
type Opts struct {
	// MaxProcs is the global thread budget shared by all concurrently running
	// commands.
	MaxProcs int
	// Attempts is the number of times a failing command is run before giving
	// up.
	Attempts int
	// Timeout bounds the wall-clock time of one attempt.  Zero means no
	// limit.
	Timeout time.Duration
	// Backoff is the policy for waiting between attempts.
	Backoff retry.Policy
}

// DefaultOpts is the default Exec configuration.
var DefaultOpts = Opts{
	MaxProcs: 16,
	Attempts: 3,
	Backoff:  retry.Backoff(time.Second, 30*time.Second, 2),
}

// Exec runs commands as child processes.
type Exec struct {
	opts  Opts
	sem   *semaphore.Weighted
	calls int64
}

// NewExec returns a Runner bounded by opts.MaxProcs.
func NewExec(opts Opts) (*Exec, error) {
	if opts.MaxProcs <= 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("runner: MaxProcs must be positive, got %d", opts.MaxProcs))
	}
	if opts.Attempts <= 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("runner: Attempts must be positive, got %d", opts.Attempts))
	}
	if opts.Backoff == nil {
		opts.Backoff = DefaultOpts.Backoff
	}
	return &Exec{opts: opts, sem: semaphore.NewWeighted(int64(opts.MaxProcs))}, nil
}

// Calls returns the number of process launches so far, retries included.
func (e *Exec) Calls() int64 {
	return atomic.LoadInt64(&e.calls)
}

// Run implements Runner.  A command exiting non-zero is retried up to
// opts.Attempts times; the final failure is returned as an
// errors.Unavailable error wrapping a *ToolError.
func (e *Exec) Run(ctx context.Context, cmd Cmd) (Result, error) {
	weight := int64(cmd.Threads)
	if weight <= 0 {
		weight = 1
	}
	if weight > int64(e.opts.MaxProcs) {
		weight = int64(e.opts.MaxProcs)
	}
	if err := e.sem.Acquire(ctx, weight); err != nil {
		return Result{}, err
	}
	defer e.sem.Release(weight)

	var (
		res Result
		err error
	)
	for attempt := 0; attempt < e.opts.Attempts; attempt++ {
		res, err = e.runOnce(ctx, cmd)
		res.Attempts = attempt + 1
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		log.Error.Printf("%s: attempt %d/%d failed: %v", cmd.Tool, attempt+1, e.opts.Attempts, err)
		if attempt+1 == e.opts.Attempts {
			break
		}
		if werr := retry.Wait(ctx, e.opts.Backoff, attempt); werr != nil {
			return res, werr
		}
	}
	return res, errors.E(errors.Unavailable, &ToolError{Cmd: cmd, Result: res, Err: err})
}

func (e *Exec) runOnce(ctx context.Context, cmd Cmd) (Result, error) {
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}
	path := cmd.Path
	if !strings.ContainsRune(path, os.PathSeparator) {
		resolved, err := lookpath.Look(envvar.SliceToMap(os.Environ()), path)
		if err != nil {
			return Result{ExitCode: -1}, err
		}
		path = resolved
	}
	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(ctx, path, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	c.Stdout = &stdout
	c.Stderr = &stderr
	// Grandchildren that inherit the output pipes must not keep Run blocked
	// after the command itself is killed.
	c.WaitDelay = time.Second
	atomic.AddInt64(&e.calls, 1)
	start := time.Now()
	log.Debug.Printf("%s: %s", cmd.Tool, cmd)
	err := c.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), Duration: time.Since(start)}
	if err != nil {
		res.ExitCode = -1
		if ee, ok := err.(*exec.ExitError); ok {
			if ws, ok := ee.Sys().(syscall.WaitStatus); ok {
				res.ExitCode = ws.ExitStatus()
			}
		}
	}
	return res, err
}

// Func adapts a function to Runner.  It is mostly used to replace external
// tools in tests.
type Func func(ctx context.Context, cmd Cmd) (Result, error)

// Run implements Runner.
func (f Func) Run(ctx context.Context, cmd Cmd) (Result, error) {
	return f(ctx, cmd)
}

// Recover returns the *ToolError inside err, if any.
func Recover(err error) (*ToolError, bool) {
	for err != nil {
		switch e := err.(type) {
		case *ToolError:
			return e, true
		case *errors.Error:
			err = e.Err
		default:
			return nil, false
		}
	}
	return nil, false
}
