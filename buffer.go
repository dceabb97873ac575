// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ioblock

import (
	"sync/atomic"
)

// OpKind tags the operation an IOBuffer is carrying.
type OpKind uint8

const (
	OpNone OpKind = iota
	OpRead
	OpWrite
	OpConnect
	OpAccept
)

func (k OpKind) String() string {
	switch k {
	case OpNone:
		return "none"
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpConnect:
		return "connect"
	case OpAccept:
		return "accept"
	default:
		return "unknown"
	}
}

// Flags are the per-buffer state bits.
type Flags uint8

const (
	FlagHasValidData Flags = 1 << iota
	FlagOwnsBackingMemory
	FlagHasUnsavedChanges
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// QueueOwner names which queue a queueLink currently threads IOBuffer
// through, used only for invariant checks / debugging.
type QueueOwner uint8

const (
	QueueOwnerNone QueueOwner = iota
	QueueOwnerCompleted
	QueueOwnerCache
)

// BackSink is the minimal surface an IOBuffer needs from its owning
// BlockIO: enough to let finish_io-style completion code route the buffer
// without this package importing iosystem (which in turn imports ioblock).
type BackSink interface {
	// Device returns an opaque, comparable identity for the owning device,
	// used to assert "a buffer's queue link always matches its current
	// owner" in tests.
	Device() any
}

// IOBuffer is a single unit of queued I/O: a physical region and
// logical window into it, an op tag, flags, a media position, a completion
// error/byte-count, a write-start offset, back-references, and two queue
// links (completed-queue, cache-list). It is reference-counted; the backing
// memory is freed with the buffer iff FlagOwnsBackingMemory is set.
type IOBuffer struct {
	_ noCopy

	refs atomic.Int32

	op    OpKind
	flags Flags

	// physical region: base[0:cap]; logical window: base[start:start+valid]
	base  []byte
	start int
	valid int

	pos int64 // media position

	err   error
	nDone int // bytes completed by the last finished operation

	writeStart int64 // write-start offset for partial-packet writes

	system any // back-reference to the owning IOSystem (opaque, set by iosystem)
	sink   BackSink

	// queue links: a buffer is on at most one completed/cache queue at a
	// time, so a single prevInQ/nextInQ pair serves whichever queue it is on.
	queueOwner QueueOwner
	nextInQ    *IOBuffer
	prevInQ    *IOBuffer
}

// NewIOBuffer wraps base as an IOBuffer's physical region with no logical
// window yet (op == OpNone). owns reports whether the buffer's backing
// memory should be released when the buffer is.
func NewIOBuffer(base []byte, owns bool) *IOBuffer {
	b := &IOBuffer{base: base}
	b.refs.Store(1)
	if owns {
		b.flags |= FlagOwnsBackingMemory
	}
	return b
}

// AddRef increments the buffer's reference count and returns the buffer,
// matching the "addref before releasing the lock" discipline used
// everywhere a buffer crosses into a queue another goroutine may drain.
func (b *IOBuffer) AddRef() *IOBuffer {
	b.refs.Add(1)
	return b
}

// Release decrements the reference count. The caller must not touch the
// buffer after a Release that brings the count to zero; there is no pool
// return here because the tier pool owns recycling (see iosystem).
func (b *IOBuffer) Release() (last bool) {
	return b.refs.Add(-1) == 0
}

// Cap returns the physical region's capacity.
func (b *IOBuffer) Cap() int { return len(b.base) }

// Window returns the logical window base[start:start+valid]
// "data_ptr .. data_ptr+valid_bytes" — the bytes a caller or wire protocol
// actually sees, hiding any framing prefix the window's start has skipped
// past without copying.
func (b *IOBuffer) Window() []byte {
	return b.base[b.start : b.start+b.valid]
}

// SetWindow sets the logical window's start offset and length within the
// physical region. Panics if the window would fall outside the region,
// preserving "base_ptr <= data_ptr, data_ptr+valid_bytes <= base_ptr+capacity".
func (b *IOBuffer) SetWindow(start, valid int) {
	if start < 0 || valid < 0 || start+valid > len(b.base) {
		panic("ioblock: buffer window out of range")
	}
	b.start, b.valid = start, valid
}

// Op returns the buffer's current operation tag.
func (b *IOBuffer) Op() OpKind { return b.op }

// SetOp validates and sets the op tag. The op must be none before a new
// read/write/connect/accept is issued, and a non-none op always implies
// a bound BlockIO (asserted by the caller via sink).
func (b *IOBuffer) SetOp(op OpKind, sink BackSink) error {
	if b.op != OpNone {
		return ErrInvalidArg
	}
	if op != OpNone && sink == nil {
		return ErrInvalidArg
	}
	b.op, b.sink = op, sink
	return nil
}

// ClearOp resets the buffer to the idle (OpNone) state after completion
// has been delivered, detaching it from its BlockIO back-reference.
func (b *IOBuffer) ClearOp() {
	b.op, b.sink = OpNone, nil
}

func (b *IOBuffer) Flags() Flags       { return b.flags }
func (b *IOBuffer) SetFlag(f Flags)    { b.flags |= f }
func (b *IOBuffer) ClearFlag(f Flags)  { b.flags &^= f }
func (b *IOBuffer) Pos() int64         { return b.pos }
func (b *IOBuffer) SetPos(pos int64)   { b.pos = pos }
func (b *IOBuffer) WriteStart() int64  { return b.writeStart }
func (b *IOBuffer) SetWriteStart(o int64) { b.writeStart = o }

// Complete records the terminal state of a finished operation: the error
// (nil on success) and the number of bytes actually transferred. This is
// the data finish_io stores on the buffer before the sink sees it.
func (b *IOBuffer) Complete(err error, n int) {
	b.err, b.nDone = err, n
	if err == nil {
		b.flags |= FlagHasValidData
	}
}

// Err returns the buffer's completion error, if any.
func (b *IOBuffer) Err() error { return b.err }

// N returns the number of bytes the last completed operation transferred.
func (b *IOBuffer) N() int { return b.nDone }

// QueueOwner reports which queue, if any, currently threads this buffer.
func (b *IOBuffer) QueueOwner() QueueOwner { return b.queueOwner }

// Next returns the buffer's successor in its current queue, if any.
func (b *IOBuffer) Next() *IOBuffer { return b.nextInQ }

// LinkInto appends the buffer to the tail of a completed/cache queue
// represented by head/tail pointers the caller holds under its own lock;
// ioblock does not itself lock — BlockIO and AsyncIOStream each hold the
// lock appropriate to their layer.
func (b *IOBuffer) LinkInto(owner QueueOwner, tail **IOBuffer) {
	b.queueOwner = owner
	b.prevInQ = *tail
	b.nextInQ = nil
	if *tail != nil {
		(*tail).nextInQ = b
	}
	*tail = b
}

// Unlink removes the buffer from the queue represented by head/tail.
func (b *IOBuffer) Unlink(head, tail **IOBuffer) {
	if b.prevInQ != nil {
		b.prevInQ.nextInQ = b.nextInQ
	} else {
		*head = b.nextInQ
	}
	if b.nextInQ != nil {
		b.nextInQ.prevInQ = b.prevInQ
	} else {
		*tail = b.prevInQ
	}
	b.prevInQ, b.nextInQ, b.queueOwner = nil, nil, QueueOwnerNone
}

// System returns the opaque back-reference to the owning IOSystem.
func (b *IOBuffer) System() any      { return b.system }
func (b *IOBuffer) SetSystem(s any)  { b.system = s }
