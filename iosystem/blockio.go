// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package iosystem implements the BlockIO abstraction over one open
// resource (memory region, file, or network socket), its
// completion-dispatch discipline, and the per-medium IOSystem factory that
// creates BlockIOs and allocates their IOBuffers.
package iosystem

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"code.hybscloud.com/ioblock"
	"code.hybscloud.com/ioblock/golog"
	"code.hybscloud.com/ioblock/jobqueue"
)

// Sink is the single callback sink every BlockIO holds. All
// three methods are equivalent from the sink's point of view; which one
// fires depends on the completed buffer's op tag (or, for OnAccept, the
// listening socket producing a new connection out of band).
type Sink interface {
	// OnEvent delivers a completed read or write, success or failure.
	OnEvent(buf *ioblock.IOBuffer)
	// OnOpen delivers the result of an asynchronous open/connect.
	OnOpen(err error, bio BlockIO)
	// OnAccept delivers a new BlockIO produced by a listening socket.
	OnAccept(accepted BlockIO)
}

// BlockIO is one open resource: a memory region, file, or network socket
//. Implementations embed *Base for the shared
// validation, counters, completed-queue, and dispatch logic, and supply
// medium-specific read/write/resize/close via the backend interface.
type BlockIO interface {
	ReadBlock(buf *ioblock.IOBuffer) error
	WriteBlock(buf *ioblock.IOBuffer, startOffset int64) error
	Resize(newLen int64) error
	Close() error
	StartTimeout(d time.Duration)
	CancelTimeout()

	Medium() Medium
	IsOpen() bool
	Size() int64
	Device() any // satisfies ioblock.BackSink
}

// backend supplies the medium-specific half of read/write/resize/close.
// Base validates and updates shared state, then delegates here; the
// backend calls Base.FinishIO once the transfer actually completes
// (possibly from another goroutine, possibly inline for synchronous
// devices).
type backend interface {
	startRead(buf *ioblock.IOBuffer) error
	startWrite(buf *ioblock.IOBuffer, startOffset int64) error
	doResize(newLen int64) error
	doClose() error
}

// Base implements the medium-agnostic two-thirds of BlockIO: validation,
// active-read/write counters, the completed-queue + single-dispatcher
// discipline of, and timeout no-ops for non-network media.
type Base struct {
	mu sync.Mutex

	id      uuid.UUID
	medium  Medium
	backend backend
	system  *IOSystem
	jq      *jobqueue.JobQueue
	sink    Sink
	logger  *golog.Logger
	self    BlockIO

	open             bool
	readAccess       bool
	writeAccess      bool
	resizable        bool
	useSynchronousIO bool
	syncDevice       bool
	seekable         bool

	size int64

	activeReads  int
	activeWrites int

	completedHead *ioblock.IOBuffer
	completedTail *ioblock.IOBuffer

	sentToJobQueue      bool
	threadProcessingJob bool
}

func newBase(system *IOSystem, medium Medium, opts OpenOptions, sink Sink, syncDevice, seekable bool) *Base {
	return &Base{
		id:               uuid.New(),
		medium:           medium,
		system:           system,
		jq:               system.jq,
		sink:             sink,
		logger:           system.logger,
		readAccess:       opts.ReadAccess,
		writeAccess:      opts.WriteAccess,
		resizable:        opts.Resizable,
		useSynchronousIO: opts.UseSynchronousIO,
		syncDevice:       syncDevice,
		seekable:         seekable,
	}
}

// bindSelf lets the concrete medium type (which embeds *Base) hand back
// its own BlockIO identity, needed for OnOpen/OnAccept callback payloads.
func (b *Base) bindSelf(self BlockIO) { b.self = self }

func (b *Base) Device() any    { return b.id }
func (b *Base) Medium() Medium { return b.medium }

func (b *Base) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

func (b *Base) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *Base) markOpen() {
	b.mu.Lock()
	b.open = true
	b.mu.Unlock()
}

// ReadBlock validates and issues a read.
func (b *Base) ReadBlock(buf *ioblock.IOBuffer) error {
	b.mu.Lock()
	if buf.Op() != ioblock.OpNone {
		b.mu.Unlock()
		return ErrOpInProgress
	}
	if !b.open {
		b.mu.Unlock()
		return ErrClosed
	}
	buf.SetPos(b.system.alignStart(buf.Pos()))
	if err := buf.SetOp(ioblock.OpRead, b); err != nil {
		b.mu.Unlock()
		return err
	}
	b.activeReads++
	b.mu.Unlock()

	return b.backend.startRead(buf)
}

// WriteBlock validates and issues a write.
func (b *Base) WriteBlock(buf *ioblock.IOBuffer, startOffset int64) error {
	b.mu.Lock()
	if buf.Op() != ioblock.OpNone {
		b.mu.Unlock()
		return ErrOpInProgress
	}
	if !b.open {
		b.mu.Unlock()
		return ErrClosed
	}
	if !buf.Flags().Has(ioblock.FlagHasValidData) {
		b.mu.Unlock()
		return ErrNoValidData
	}
	buf.SetWriteStart(startOffset)
	if err := buf.SetOp(ioblock.OpWrite, b); err != nil {
		b.mu.Unlock()
		return err
	}
	b.activeWrites++
	b.mu.Unlock()

	return b.backend.startWrite(buf, startOffset)
}

// Resize truncates or extends the medium; network media never
// support it.
func (b *Base) Resize(newLen int64) error {
	b.mu.Lock()
	if !b.resizable {
		b.mu.Unlock()
		return ErrNotResizable
	}
	b.mu.Unlock()
	err := b.backend.doResize(newLen)
	if err == nil {
		b.mu.Lock()
		b.size = newLen
		b.mu.Unlock()
	}
	return err
}

// Close clears the open bit, releases the sink, and detaches from the
// IOSystem's active list. Buffers still outstanding at Close complete on
// the backend, but with the sink released their completions are not
// delivered to anyone.
func (b *Base) Close() error {
	b.mu.Lock()
	if !b.open {
		b.mu.Unlock()
		return nil
	}
	b.open = false
	b.sink = nil
	b.mu.Unlock()

	b.system.detach(b.id)
	return b.backend.doClose()
}

// StartTimeout/CancelTimeout are no-ops except on network BlockIOs.
func (b *Base) StartTimeout(time.Duration) {}
func (b *Base) CancelTimeout()             {}

// FinishIO records the terminal state of a read or write and either
// dispatches inline (synchronous devices) or enqueues for the job queue
// ( finish_io).
func (b *Base) FinishIO(buf *ioblock.IOBuffer, err error, n int) {
	buf.Complete(err, n)

	b.mu.Lock()
	switch buf.Op() {
	case ioblock.OpRead:
		b.activeReads--
	case ioblock.OpWrite:
		b.activeWrites--
	}

	if b.syncDevice {
		sink := b.sink
		b.mu.Unlock()
		dispatchOne(buf, sink, b.self)
		return
	}

	wasEmpty := b.completedTail == nil
	buf.AddRef()
	buf.LinkInto(ioblock.QueueOwnerCompleted, &b.completedTail)
	if wasEmpty {
		b.completedHead = buf
	}

	submit := false
	if !b.sentToJobQueue {
		b.sentToJobQueue = true
		submit = true
	}
	b.mu.Unlock()

	if submit && b.jq != nil {
		b.jq.SubmitJob(b)
	}
}

// ProcessJob drains the completed queue, delivering events to the sink in
// strict arrival order. At most one goroutine is ever the active
// dispatcher for a given device; a second caller arriving while one is
// already draining exits without doing work.
func (b *Base) ProcessJob() {
	b.mu.Lock()
	if b.threadProcessingJob {
		b.mu.Unlock()
		return
	}
	b.threadProcessingJob = true
	b.mu.Unlock()

	for {
		b.mu.Lock()
		buf := b.completedHead
		if buf == nil {
			b.threadProcessingJob = false
			b.sentToJobQueue = false
			b.mu.Unlock()
			return
		}
		buf.Unlink(&b.completedHead, &b.completedTail)
		sink := b.sink
		b.mu.Unlock()

		dispatchOne(buf, sink, b.self)
		buf.Release()
	}
}

func dispatchOne(buf *ioblock.IOBuffer, sink Sink, self BlockIO) {
	op := buf.Op()
	buf.ClearOp()
	if sink == nil {
		return
	}
	switch op {
	case ioblock.OpRead, ioblock.OpWrite:
		sink.OnEvent(buf)
	case ioblock.OpConnect:
		sink.OnOpen(buf.Err(), self)
		// OpAccept is delivered out of band by ListenerBlockIO's
		// accept loop (see net.go), not through the completed-buffer queue:
		// an accepted connection has no associated IOBuffer to carry.
	}
}
