// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package jobqueue implements a single process-wide thread pool that
// dispatches completed-buffer jobs back to their owning BlockIO in
// arrival order per device.
//
// A job may be resubmitted many times while busy; a resubmission during
// processing does not run concurrently with the job already in flight —
// it is requeued to the tail and picked up once the current run finishes.
// This is the mechanism the iosystem package relies on for per-device
// serial event delivery.
package jobqueue

import (
	"context"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"code.hybscloud.com/ioblock/golog"
)

// Job is any unit of work the queue can run. BlockIO's completion driver
// implements Job so that a single submitted job drains the device's
// entire completed-queue for as long as requests keep arriving.
type Job interface {
	ProcessJob()
}

type jobEntry struct {
	job     Job
	id      uuid.UUID
	pending int64
}

// worker represents one pool thread (a goroutine) parked on assign
// when idle.
type worker struct {
	assign chan *jobEntry
}

// JobQueue is a bounded pool of worker goroutines plus idle-jobs/idle-
// threads bookkeeping: jobs park on a FIFO when they have no thread,
// threads park on a LIFO when they have no job, and SubmitJob/the worker
// loop pair one against the other under a single lock.
type JobQueue struct {
	mu sync.Mutex

	entries map[Job]*jobEntry
	idleJob []*jobEntry
	idleThr []*worker

	targetThreads int
	actualThreads int
	totalActive   int64

	shuttingDown bool
	done         chan struct{}
	doneOnce     sync.Once

	logger *golog.Logger
}

// Options configures a JobQueue.
type Options struct {
	// MaxWorkerThreads caps the pool size. Zero means
	// runtime.GOMAXPROCS(0)+1, matching the original's cores+1 default.
	MaxWorkerThreads int
	Logger           *golog.Logger
}

type Option func(*Options)

func WithMaxWorkerThreads(n int) Option {
	return func(o *Options) { o.MaxWorkerThreads = n }
}

func WithLogger(l *golog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// New creates and starts a JobQueue. Worker count defaults to
// min(runtime.GOMAXPROCS(0)+1, MaxWorkerThreads); GOMAXPROCS is expected
// to already reflect any cgroup CPU quota (see cmd/ioblockctl's
// automaxprocs wiring).
func New(opts ...Option) *JobQueue {
	o := Options{MaxWorkerThreads: runtime.GOMAXPROCS(0) + 1, Logger: golog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	n := runtime.GOMAXPROCS(0) + 1
	if o.MaxWorkerThreads > 0 && o.MaxWorkerThreads < n {
		n = o.MaxWorkerThreads
	}

	q := &JobQueue{
		entries: make(map[Job]*jobEntry),
		done:    make(chan struct{}),
		logger:  o.Logger.With("jobqueue"),
	}

	q.mu.Lock()
	for i := 0; i < n; i++ {
		q.targetThreads++
		q.actualThreads++
		w := &worker{assign: make(chan *jobEntry, 1)}
		q.idleThr = append(q.idleThr, w) // parked idle until SubmitJob dispatches to it
		go q.runWorker(w)
	}
	q.mu.Unlock()

	return q
}

// Stats reports a point-in-time snapshot for testing the invariant
// idle_jobs + busy_threads.map(current_job) == active jobs.
type Stats struct {
	IdleJobs      int
	IdleThreads   int
	ActualThreads int
	TargetThreads int
	TotalActive   int64
}

func (q *JobQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		IdleJobs:      len(q.idleJob),
		IdleThreads:   len(q.idleThr),
		ActualThreads: q.actualThreads,
		TargetThreads: q.targetThreads,
		TotalActive:   q.totalActive,
	}
}

// SubmitJob registers one pending request for job. If job has no pending
// requests it is linked into the idle-jobs FIFO; an idle thread, if any,
// is matched to an idle job immediately (FIFO jobs, LIFO threads).
func (q *JobQueue) SubmitJob(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shuttingDown {
		return
	}

	e, ok := q.entries[job]
	if !ok {
		e = &jobEntry{job: job, id: uuid.New()}
		q.entries[job] = e
	}
	e.pending++
	q.totalActive++
	if e.pending == 1 {
		q.idleJob = append(q.idleJob, e)
	}
	q.dispatchLocked()
}

// dispatchLocked pairs queued jobs to idle threads. Caller holds q.mu.
func (q *JobQueue) dispatchLocked() {
	for len(q.idleJob) > 0 && len(q.idleThr) > 0 {
		e := q.idleJob[0]
		q.idleJob = q.idleJob[1:]
		w := q.idleThr[len(q.idleThr)-1]
		q.idleThr = q.idleThr[:len(q.idleThr)-1]
		w.assign <- e
	}
}

func (q *JobQueue) runWorker(w *worker) {
	for {
		e, ok := <-w.assign
		if !ok {
			return
		}
		for e != nil {
			e.job.ProcessJob()

			q.mu.Lock()
			e.pending--
			q.totalActive--
			if e.pending > 0 {
				// Requeue at the tail: fairness across jobs sharing this
				// pool, and no concurrent ProcessJob for the same job.
				q.idleJob = append(q.idleJob, e)
			} else {
				delete(q.entries, e.job)
			}

			if q.actualThreads > q.targetThreads {
				q.actualThreads--
				last := q.actualThreads == 0 && q.shuttingDown
				q.mu.Unlock()
				if last {
					q.doneOnce.Do(func() { close(q.done) })
				}
				return
			}

			var next *jobEntry
			if len(q.idleJob) > 0 {
				next = q.idleJob[0]
				q.idleJob = q.idleJob[1:]
			}
			e = next
			q.mu.Unlock()
		}

		q.mu.Lock()
		if q.shuttingDown {
			if q.actualThreads > q.targetThreads {
				q.actualThreads--
				last := q.actualThreads == 0
				q.mu.Unlock()
				if last {
					q.doneOnce.Do(func() { close(q.done) })
				}
				return
			}
		}
		q.idleThr = append(q.idleThr, w)
		q.mu.Unlock()
	}
}

// Shutdown sets the target thread count to zero, wakes every idle
// thread, and waits for the last worker to exit or ctx to be done.
// Threads already running a job finish it first.
func (q *JobQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.shuttingDown = true
	q.targetThreads = 0
	if q.actualThreads == 0 {
		q.mu.Unlock()
		q.doneOnce.Do(func() { close(q.done) })
	} else {
		idle := q.idleThr
		q.idleThr = nil
		q.mu.Unlock()
		for _, w := range idle {
			q.mu.Lock()
			q.actualThreads--
			last := q.actualThreads == 0
			q.mu.Unlock()
			close(w.assign)
			if last {
				q.doneOnce.Do(func() { close(q.done) })
			}
		}
	}

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
