// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package dispatch runs independent jobs either in-process, on a bounded
// pool of goroutines, or as tasks of cluster job arrays.  Callers submit
// jobs and then wait for all of them; they cannot tell which implementation
// is active.
//
// A job that keeps failing, or does not finish within its time budget, is
// retried a fixed number of times and then reported as a Failure.  Invalid
// input (errors.Invalid) is not retried.  Failures
// do not fail Wait: the caller decides what a failed job means.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/retry"
)

// Job is one unit of work.
type Job struct {
	// Key identifies the job.  It is unique within a dispatch.
	Key string
	// Spec is the serialized description of the job, as consumed by the
	// Handler or by the worker command of a job array.
	Spec []byte
}

// Failure is a job that did not complete after all attempts.
type Failure struct {
	Job Job
	Err error
}

func (f Failure) Error() string { return fmt.Sprintf("job %s: %v", f.Job.Key, f.Err) }

// Dispatcher runs jobs.
type Dispatcher interface {
	// Submit queues jobs.  Jobs may start before Wait is called.
	Submit(ctx context.Context, jobs ...Job) error
	// Wait blocks until every submitted job has completed or failed, and
	// returns the failures.  The error is non-nil only if the dispatch
	// itself could not proceed, e.g. because ctx was canceled.
	Wait(ctx context.Context) ([]Failure, error)
}

// Opts are the retry settings shared by the dispatchers.
type Opts struct {
	// Attempts is the number of times a job is run before it is reported
	// as failed.  Local does not rerun a job that failed with a
	// runner.ToolError, since the runner retries the tool itself.  A job
	// array task that fails is resubmitted, so there the attempts of the
	// runner inside the worker multiply with Attempts.
	Attempts int
	// Timeout bounds one attempt of one job.  Zero means no limit.
	Timeout time.Duration
	// Backoff is the policy for waiting between attempts.
	Backoff retry.Policy
}

// DefaultOpts retries each job twice.
var DefaultOpts = Opts{
	Attempts: 3,
	Backoff:  retry.Backoff(time.Second, 30*time.Second, 2),
}

func (o Opts) validate() error {
	if o.Attempts < 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("dispatch: attempts must be >= 1, got %d", o.Attempts))
	}
	if o.Timeout < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("dispatch: negative timeout %v", o.Timeout))
	}
	if o.Attempts > 1 && o.Backoff == nil {
		return errors.E(errors.Invalid, "dispatch: retries need a backoff policy")
	}
	return nil
}

func checkKeys(seen map[string]bool, jobs []Job) error {
	for _, j := range jobs {
		if j.Key == "" {
			return errors.E(errors.Invalid, "dispatch: job without key")
		}
		if seen[j.Key] {
			return errors.E(errors.Invalid, fmt.Sprintf("dispatch: duplicate job %s", j.Key))
		}
		seen[j.Key] = true
	}
	return nil
}
