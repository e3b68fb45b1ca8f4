// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/retry"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/svtune/runner"
)

// Handler runs one job in-process.
type Handler func(ctx context.Context, job Job) error

// Local runs jobs in the current process, at most Parallelism at a time.
// Jobs run when Wait is called.
type Local struct {
	handler     Handler
	parallelism int
	opts        Opts

	mu   sync.Mutex
	jobs []Job
	keys map[string]bool
}

// NewLocal returns a dispatcher that runs jobs with h.
func NewLocal(h Handler, parallelism int, opts Opts) (*Local, error) {
	if h == nil {
		return nil, errors.E(errors.Invalid, "dispatch: no handler")
	}
	if parallelism < 1 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("dispatch: parallelism must be >= 1, got %d", parallelism))
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Local{handler: h, parallelism: parallelism, opts: opts, keys: map[string]bool{}}, nil
}

// Submit implements Dispatcher.
func (l *Local) Submit(ctx context.Context, jobs ...Job) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := checkKeys(l.keys, jobs); err != nil {
		return err
	}
	l.jobs = append(l.jobs, jobs...)
	return nil
}

// attempt runs one attempt of job within the time budget.
func (l *Local) attempt(ctx context.Context, job Job) error {
	if l.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.Timeout)
		defer cancel()
	}
	return l.handler(ctx, job)
}

func (l *Local) run(ctx context.Context, job Job) error {
	var err error
	for i := 0; i < l.opts.Attempts; i++ {
		if err = l.attempt(ctx, job); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(errors.Invalid, err) {
			return err
		}
		if _, ok := runner.Recover(err); ok {
			// The runner has already spent its attempts on the tool.
			log.Error.Printf("dispatch: job %s: %v", job.Key, err)
			return err
		}
		log.Error.Printf("dispatch: job %s attempt %d/%d: %v", job.Key, i+1, l.opts.Attempts, err)
		if i+1 < l.opts.Attempts {
			if werr := retry.Wait(ctx, l.opts.Backoff, i); werr != nil {
				return werr
			}
		}
	}
	return err
}

// Wait implements Dispatcher.
func (l *Local) Wait(ctx context.Context) ([]Failure, error) {
	l.mu.Lock()
	jobs := l.jobs
	l.jobs = nil
	l.mu.Unlock()

	log.Printf("dispatch: running %s jobs, %d at a time", humanize.Comma(int64(len(jobs))), l.parallelism)
	errs := make([]error, len(jobs))
	workers := l.parallelism
	if workers > len(jobs) {
		workers = len(jobs)
	}
	err := traverse.Each(workers, func(w int) error {
		for i := w; i < len(jobs); i += workers {
			errs[i] = l.run(ctx, jobs[i])
			// Only cancellation stops the other jobs.
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	var failed []Failure
	for i, err := range errs {
		if err != nil {
			failed = append(failed, Failure{Job: jobs[i], Err: err})
		}
	}
	if len(failed) > 0 {
		log.Error.Printf("dispatch: %d of %d jobs failed", len(failed), len(jobs))
	}
	return failed, nil
}
