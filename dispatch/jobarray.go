// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package dispatch

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/retry"
	"github.com/grailbio/svtune/runner"
)

// DoneFunc reports whether a job has completed.  Job arrays have no other
// way to learn it than looking for the job's output.
type DoneFunc func(ctx context.Context, job Job) (bool, error)

// JobArrayOpts configures a JobArray.
type JobArrayOpts struct {
	Opts
	// Submitter is invoked as "Submitter SCRIPT NTASKS".  It must run
	// SCRIPT NTASKS times with $TASK_ID set to 1..NTASKS.
	Submitter string
	// Worker is the command that runs one job.  It is invoked with the
	// arguments "-spec PATH".
	Worker []string
	// Dir receives the scripts and job specs.
	Dir string
	// MaxTasks bounds the number of tasks of one array.  Larger
	// submissions are split into several arrays.
	MaxTasks int
	// Poll is the interval between completion checks.
	Poll time.Duration
}

// DefaultJobArrayOpts are the default job array settings.  Timeout bounds
// the wall-clock time of one round of arrays.
var DefaultJobArrayOpts = JobArrayOpts{
	Opts: Opts{
		Attempts: 2,
		Timeout:  12 * time.Hour,
		Backoff:  retry.Backoff(time.Minute, 10*time.Minute, 2),
	},
	Submitter: "submitter",
	MaxTasks:  1000,
	Poll:      30 * time.Second,
}

// JobArray runs jobs as tasks of cluster job arrays.  Each task runs the
// worker command on one job spec; completion is detected by polling Done.
type JobArray struct {
	runner runner.Runner
	done   DoneFunc
	opts   JobArrayOpts
	sweep  string

	mu   sync.Mutex
	jobs []Job
	keys map[string]bool
}

// NewJobArray returns a dispatcher that submits arrays through r.
func NewJobArray(r runner.Runner, done DoneFunc, opts JobArrayOpts) (*JobArray, error) {
	switch {
	case r == nil || done == nil:
		return nil, errors.E(errors.Invalid, "dispatch: job arrays need a runner and a completion check")
	case opts.Submitter == "" || len(opts.Worker) == 0:
		return nil, errors.E(errors.Invalid, "dispatch: job arrays need a submitter and a worker command")
	case opts.Dir == "":
		return nil, errors.E(errors.Invalid, "dispatch: job arrays need a directory")
	case opts.MaxTasks < 1:
		return nil, errors.E(errors.Invalid, fmt.Sprintf("dispatch: max tasks must be >= 1, got %d", opts.MaxTasks))
	case opts.Poll <= 0:
		return nil, errors.E(errors.Invalid, fmt.Sprintf("dispatch: invalid poll interval %v", opts.Poll))
	}
	if err := opts.Opts.validate(); err != nil {
		return nil, err
	}
	return &JobArray{
		runner: r,
		done:   done,
		opts:   opts,
		sweep:  uuid.New().String(),
		keys:   map[string]bool{},
	}, nil
}

// Sweep returns the identifier of the dispatcher's submissions.
func (a *JobArray) Sweep() string { return a.sweep }

// Submit implements Dispatcher.  Jobs are submitted on Wait.
func (a *JobArray) Submit(ctx context.Context, jobs ...Job) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := checkKeys(a.keys, jobs); err != nil {
		return err
	}
	a.jobs = append(a.jobs, jobs...)
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.Replace(s, "'", `'\''`, -1) + "'"
}

// submit writes the specs and the script of one array, and submits it.
func (a *JobArray) submit(ctx context.Context, round, array int, jobs []Job) error {
	dir := file.Join(a.opts.Dir, a.sweep, fmt.Sprintf("round%d_array%d", round, array))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for i, j := range jobs {
		if err := file.WriteFile(ctx, file.Join(dir, fmt.Sprintf("task_%d.json", i+1)), j.Spec); err != nil {
			return err
		}
	}
	var worker []string
	for _, w := range a.opts.Worker {
		worker = append(worker, shellQuote(w))
	}
	script := file.Join(dir, "task.sh")
	body := fmt.Sprintf("#!/bin/sh\nset -e\nexec %s -spec %s/task_${TASK_ID}.json\n",
		strings.Join(worker, " "), shellQuote(dir))
	if err := os.WriteFile(script, []byte(body), 0755); err != nil {
		return err
	}
	_, err := a.runner.Run(ctx, runner.Cmd{
		Tool: "submitter",
		Path: a.opts.Submitter,
		Args: []string{script, strconv.Itoa(len(jobs))},
	})
	return err
}

// pending returns the jobs that have not completed yet.
func (a *JobArray) pending(ctx context.Context, jobs []Job) ([]Job, error) {
	var out []Job
	for _, j := range jobs {
		ok, err := a.done(ctx, j)
		if err != nil {
			return nil, err
		}
		if !ok {
			out = append(out, j)
		}
	}
	return out, nil
}

// poll waits until all jobs are done or the round's time budget runs out,
// and returns the jobs still pending.
func (a *JobArray) poll(ctx context.Context, jobs []Job) ([]Job, error) {
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}
	ticker := time.NewTicker(a.opts.Poll)
	defer ticker.Stop()
	for {
		var err error
		if jobs, err = a.pending(ctx, jobs); err != nil || len(jobs) == 0 {
			return jobs, err
		}
		select {
		case <-ctx.Done():
			return jobs, nil
		case <-ticker.C:
		}
	}
}

// Wait implements Dispatcher.  Jobs that are already done are not
// submitted.  Each round submits the pending jobs and polls them until the
// time budget runs out; the jobs left are retried in the next round.
func (a *JobArray) Wait(ctx context.Context) ([]Failure, error) {
	a.mu.Lock()
	jobs := a.jobs
	a.jobs = nil
	a.mu.Unlock()

	lastErr := map[string]error{}
	for round := 0; round < a.opts.Attempts; round++ {
		var err error
		if jobs, err = a.pending(ctx, jobs); err != nil {
			return nil, err
		}
		if len(jobs) == 0 {
			break
		}
		if round > 0 {
			if err = retry.Wait(ctx, a.opts.Backoff, round-1); err != nil {
				return nil, err
			}
		}
		log.Printf("dispatch: sweep %s round %d: submitting %s jobs", a.sweep, round+1, humanize.Comma(int64(len(jobs))))
		var submitted []Job
		for array, start := 0, 0; start < len(jobs); array, start = array+1, start+a.opts.MaxTasks {
			end := start + a.opts.MaxTasks
			if end > len(jobs) {
				end = len(jobs)
			}
			if err := a.submit(ctx, round, array, jobs[start:end]); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				log.Error.Printf("dispatch: sweep %s: submit array %d: %v", a.sweep, array, err)
				for _, j := range jobs[start:end] {
					lastErr[j.Key] = err
				}
				continue
			}
			submitted = append(submitted, jobs[start:end]...)
		}
		left, err := a.poll(ctx, submitted)
		if err != nil {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		for _, j := range left {
			lastErr[j.Key] = errors.E(errors.Timeout, fmt.Sprintf("dispatch: job %s not done after %v", j.Key, a.opts.Timeout))
		}
		// Jobs that failed to submit are pending too.
		if jobs, err = a.pending(ctx, jobs); err != nil {
			return nil, err
		}
	}
	var failed []Failure
	for _, j := range jobs {
		err := lastErr[j.Key]
		if err == nil {
			err = errors.E(errors.Unavailable, "dispatch: job not done")
		}
		failed = append(failed, Failure{Job: j, Err: err})
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].Job.Key < failed[j].Job.Key })
	if len(failed) > 0 {
		log.Error.Printf("dispatch: sweep %s: %d jobs failed", a.sweep, len(failed))
	}
	return failed, nil
}
