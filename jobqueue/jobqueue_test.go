// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package jobqueue_test

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"code.hybscloud.com/ioblock/jobqueue"
)

type countingJob struct {
	runs atomic.Int64
	fn   func()
}

func (j *countingJob) ProcessJob() {
	j.runs.Add(1)
	if j.fn != nil {
		j.fn()
	}
}

func TestSubmitJobRuns(t *testing.T) {
	q := jobqueue.New(jobqueue.WithMaxWorkerThreads(2))
	defer q.Shutdown(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	job := &countingJob{fn: wg.Done}
	q.SubmitJob(job)

	wg.Wait()
	if job.runs.Load() != 1 {
		t.Fatalf("runs = %d, want 1", job.runs.Load())
	}
}

// TestSerialDispatchPerJob submits many requests to the same job from
// many goroutines and verifies ProcessJob never runs twice concurrently
// for that job — the single-dispatcher discipline the iosystem package
// depends on for event ordering.
func TestSerialDispatchPerJob(t *testing.T) {
	q := jobqueue.New(jobqueue.WithMaxWorkerThreads(8))
	defer q.Shutdown(context.Background())

	var inFlight atomic.Int32
	var maxSeen atomic.Int32
	var total atomic.Int64
	const n = 500

	job := &countingJob{}
	job.fn = func() {
		cur := inFlight.Add(1)
		for {
			prev := maxSeen.Load()
			if cur <= prev || maxSeen.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(time.Microsecond)
		inFlight.Add(-1)
		total.Add(1)
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.SubmitJob(job)
		}()
	}
	wg.Wait()

	deadline := time.After(5 * time.Second)
	for total.Load() < n {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for completions, got %d/%d", total.Load(), n)
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if maxSeen.Load() > 1 {
		t.Errorf("observed %d concurrent ProcessJob calls for one job, want at most 1", maxSeen.Load())
	}
}

func TestShutdownDrainsInFlight(t *testing.T) {
	q := jobqueue.New(jobqueue.WithMaxWorkerThreads(4))

	started := make(chan struct{})
	release := make(chan struct{})
	job := &countingJob{fn: func() {
		close(started)
		<-release
	}}
	q.SubmitJob(job)
	<-started

	done := make(chan error, 1)
	go func() { done <- q.Shutdown(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Shutdown returned before in-flight job finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}
}

func TestStats(t *testing.T) {
	q := jobqueue.New(jobqueue.WithMaxWorkerThreads(3))
	defer q.Shutdown(context.Background())

	want := min(runtime.GOMAXPROCS(0)+1, 3)
	s := q.Stats()
	if s.TargetThreads != want || s.ActualThreads != want {
		t.Fatalf("stats = %+v, want %d target/actual threads", s, want)
	}
}
