// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package dispatch_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/retry"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/svtune/dispatch"
	"github.com/grailbio/svtune/runner"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

var fastOpts = dispatch.Opts{
	Attempts: 3,
	Backoff:  retry.Backoff(time.Millisecond, time.Millisecond, 1),
}

func jobs(n int) []dispatch.Job {
	out := make([]dispatch.Job, n)
	for i := range out {
		key := fmt.Sprintf("job%d", i)
		out[i] = dispatch.Job{Key: key, Spec: []byte(key)}
	}
	return out
}

func TestLocal(t *testing.T) {
	ctx := vcontext.Background()
	var (
		running, peak int64
		mu            sync.Mutex
		seen          = map[string]int{}
	)
	h := func(ctx context.Context, job dispatch.Job) error {
		n := atomic.AddInt64(&running, 1)
		defer atomic.AddInt64(&running, -1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		mu.Lock()
		seen[string(job.Spec)]++
		mu.Unlock()
		return nil
	}
	d, err := dispatch.NewLocal(h, 3, fastOpts)
	assert.NoError(t, err)
	assert.NoError(t, d.Submit(ctx, jobs(10)...))
	failed, err := d.Wait(ctx)
	assert.NoError(t, err)
	expect.EQ(t, len(failed), 0)
	expect.EQ(t, len(seen), 10)
	for _, n := range seen {
		expect.EQ(t, n, 1)
	}
	expect.True(t, atomic.LoadInt64(&peak) <= 3)

	// Nothing is left to run.
	failed, err = d.Wait(ctx)
	assert.NoError(t, err)
	expect.EQ(t, len(failed), 0)
	expect.EQ(t, len(seen), 10)
}

func TestLocalRetriesAndFailures(t *testing.T) {
	ctx := vcontext.Background()
	var mu sync.Mutex
	attempts := map[string]int{}
	h := func(ctx context.Context, job dispatch.Job) error {
		mu.Lock()
		attempts[job.Key]++
		n := attempts[job.Key]
		mu.Unlock()
		switch job.Key {
		case "job0": // transient
			if n < 2 {
				return errors.E(errors.Unavailable, "flaky")
			}
		case "job1": // permanent
			return errors.E(errors.Unavailable, "broken")
		case "job2": // too slow
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}
	opts := fastOpts
	opts.Timeout = 20 * time.Millisecond
	d, err := dispatch.NewLocal(h, 2, opts)
	assert.NoError(t, err)
	assert.NoError(t, d.Submit(ctx, jobs(4)...))
	failed, err := d.Wait(ctx)
	assert.NoError(t, err)
	assert.EQ(t, len(failed), 2)
	keys := []string{failed[0].Job.Key, failed[1].Job.Key}
	expect.EQ(t, keys, []string{"job1", "job2"})
	expect.True(t, strings.Contains(failed[0].Error(), "broken"))
	expect.EQ(t, attempts["job0"], 2)
	expect.EQ(t, attempts["job1"], 3)
	expect.EQ(t, attempts["job2"], 3)
	expect.EQ(t, attempts["job3"], 1)
}

func TestLocalDoesNotRetryExhaustedTools(t *testing.T) {
	ctx := vcontext.Background()
	var calls int32
	h := func(ctx context.Context, job dispatch.Job) error {
		atomic.AddInt32(&calls, 1)
		toolErr := &runner.ToolError{
			Cmd:    runner.Cmd{Tool: "clusterer", Path: "clusterer"},
			Result: runner.Result{ExitCode: 1, Attempts: 3},
			Err:    fmt.Errorf("exit status 1"),
		}
		return errors.E(errors.E(errors.Unavailable, toolErr), "unit", job.Key)
	}
	d, err := dispatch.NewLocal(h, 1, fastOpts)
	assert.NoError(t, err)
	assert.NoError(t, d.Submit(ctx, jobs(1)...))
	failed, err := d.Wait(ctx)
	assert.NoError(t, err)
	assert.EQ(t, len(failed), 1)
	expect.EQ(t, atomic.LoadInt32(&calls), int32(1))
	_, ok := runner.Recover(failed[0].Err)
	expect.True(t, ok)
}

func TestLocalInvalid(t *testing.T) {
	ctx := vcontext.Background()
	h := func(ctx context.Context, job dispatch.Job) error { return nil }
	_, err := dispatch.NewLocal(nil, 1, fastOpts)
	expect.True(t, errors.Is(errors.Invalid, err))
	_, err = dispatch.NewLocal(h, 0, fastOpts)
	expect.True(t, errors.Is(errors.Invalid, err))
	_, err = dispatch.NewLocal(h, 1, dispatch.Opts{})
	expect.True(t, errors.Is(errors.Invalid, err))

	d, err := dispatch.NewLocal(h, 1, fastOpts)
	assert.NoError(t, err)
	assert.NoError(t, d.Submit(ctx, jobs(2)...))
	expect.True(t, errors.Is(errors.Invalid, d.Submit(ctx, jobs(1)...)))
	expect.True(t, errors.Is(errors.Invalid, d.Submit(ctx, dispatch.Job{})))
}

func TestLocalCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(vcontext.Background())
	h := func(ctx context.Context, job dispatch.Job) error {
		cancel()
		return ctx.Err()
	}
	d, err := dispatch.NewLocal(h, 1, fastOpts)
	assert.NoError(t, err)
	assert.NoError(t, d.Submit(ctx, jobs(3)...))
	_, err = d.Wait(ctx)
	expect.NotNil(t, err)
}

// fakeCluster runs the tasks of submitted arrays by reading their specs.
// Jobs listed in lose are dropped the first time they run.
type fakeCluster struct {
	mu        sync.Mutex
	done      map[string]bool
	lose      map[string]bool
	arrays    []int
	fail      bool
	scriptDir []string
}

func (c *fakeCluster) Run(ctx context.Context, cmd runner.Cmd) (runner.Result, error) {
	if cmd.Tool != "submitter" {
		return runner.Result{}, fmt.Errorf("unexpected tool %s", cmd.Tool)
	}
	script, err := os.ReadFile(cmd.Args[0])
	if err != nil {
		return runner.Result{}, err
	}
	if !strings.Contains(string(script), "'bio-svtune' 'unit' -spec") {
		return runner.Result{}, fmt.Errorf("unexpected script %s", script)
	}
	n, err := strconv.Atoi(cmd.Args[1])
	if err != nil {
		return runner.Result{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return runner.Result{}, errors.E(errors.Unavailable, "queue down")
	}
	c.arrays = append(c.arrays, n)
	dir := filepath.Dir(cmd.Args[0])
	c.scriptDir = append(c.scriptDir, dir)
	for i := 1; i <= n; i++ {
		spec, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("task_%d.json", i)))
		if err != nil {
			return runner.Result{}, err
		}
		key := string(spec)
		if c.lose[key] {
			delete(c.lose, key)
			continue
		}
		c.done[key] = true
	}
	return runner.Result{}, nil
}

func (c *fakeCluster) isDone(ctx context.Context, job dispatch.Job) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done[job.Key], nil
}

func arrayOpts(dir string, attempts int) dispatch.JobArrayOpts {
	return dispatch.JobArrayOpts{
		Opts: dispatch.Opts{
			Attempts: attempts,
			Timeout:  20 * time.Millisecond,
			Backoff:  retry.Backoff(time.Millisecond, time.Millisecond, 1),
		},
		Submitter: "submitter",
		Worker:    []string{"bio-svtune", "unit"},
		Dir:       dir,
		MaxTasks:  4,
		Poll:      time.Millisecond,
	}
}

func TestJobArray(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()
	c := &fakeCluster{done: map[string]bool{"job0": true}, lose: map[string]bool{"job5": true}}
	d, err := dispatch.NewJobArray(c, c.isDone, arrayOpts(dir, 2))
	assert.NoError(t, err)
	expect.NEQ(t, d.Sweep(), "")
	assert.NoError(t, d.Submit(ctx, jobs(10)...))
	failed, err := d.Wait(ctx)
	assert.NoError(t, err)
	expect.EQ(t, len(failed), 0)
	// job0 was already done; 9 jobs fit in arrays of 4, 4 and 1.  The lost
	// job is resubmitted alone.
	expect.EQ(t, c.arrays, []int{4, 4, 1, 1})
	expect.EQ(t, len(c.done), 10)
	for _, d := range c.scriptDir {
		expect.True(t, strings.HasPrefix(d, dir))
	}
}

func TestJobArrayFailures(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()
	c := &fakeCluster{done: map[string]bool{}, lose: map[string]bool{"job1": true}}
	d, err := dispatch.NewJobArray(c, c.isDone, arrayOpts(dir, 1))
	assert.NoError(t, err)
	assert.NoError(t, d.Submit(ctx, jobs(3)...))
	failed, err := d.Wait(ctx)
	assert.NoError(t, err)
	assert.EQ(t, len(failed), 1)
	expect.EQ(t, failed[0].Job.Key, "job1")
	expect.True(t, errors.Is(errors.Timeout, failed[0].Err))

	c = &fakeCluster{done: map[string]bool{}, fail: true}
	d, err = dispatch.NewJobArray(c, c.isDone, arrayOpts(dir, 2))
	assert.NoError(t, err)
	assert.NoError(t, d.Submit(ctx, jobs(2)...))
	failed, err = d.Wait(ctx)
	assert.NoError(t, err)
	expect.EQ(t, len(failed), 2)
	expect.True(t, errors.Is(errors.Unavailable, failed[0].Err))
}

func TestJobArrayInvalid(t *testing.T) {
	c := &fakeCluster{done: map[string]bool{}}
	opts := arrayOpts("dir", 1)
	_, err := dispatch.NewJobArray(nil, c.isDone, opts)
	expect.True(t, errors.Is(errors.Invalid, err))
	bad := opts
	bad.Worker = nil
	_, err = dispatch.NewJobArray(c, c.isDone, bad)
	expect.True(t, errors.Is(errors.Invalid, err))
	bad = opts
	bad.MaxTasks = 0
	_, err = dispatch.NewJobArray(c, c.isDone, bad)
	expect.True(t, errors.Is(errors.Invalid, err))
	bad = opts
	bad.Dir = ""
	_, err = dispatch.NewJobArray(c, c.isDone, bad)
	expect.True(t, errors.Is(errors.Invalid, err))
}
