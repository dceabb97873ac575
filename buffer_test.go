// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ioblock_test

import (
	"errors"
	"testing"

	"code.hybscloud.com/ioblock"
)

type fakeSink struct{ id int }

func (s fakeSink) Device() any { return s.id }

func TestNewIOBufferDefaults(t *testing.T) {
	b := ioblock.NewIOBuffer(make([]byte, 64), true)
	if b.Op() != ioblock.OpNone {
		t.Errorf("Op() = %v, want OpNone", b.Op())
	}
	if b.Cap() != 64 {
		t.Errorf("Cap() = %d, want 64", b.Cap())
	}
	if !b.Flags().Has(ioblock.FlagOwnsBackingMemory) {
		t.Error("expected FlagOwnsBackingMemory set")
	}
}

func TestSetOpRequiresSinkWhenNotNone(t *testing.T) {
	b := ioblock.NewIOBuffer(make([]byte, 16), false)
	if err := b.SetOp(ioblock.OpRead, nil); !errors.Is(err, ioblock.ErrInvalidArg) {
		t.Errorf("SetOp(read, nil) = %v, want ErrInvalidArg", err)
	}
	if err := b.SetOp(ioblock.OpRead, fakeSink{1}); err != nil {
		t.Fatalf("SetOp failed: %v", err)
	}
	if err := b.SetOp(ioblock.OpWrite, fakeSink{1}); !errors.Is(err, ioblock.ErrInvalidArg) {
		t.Errorf("SetOp while op already set = %v, want ErrInvalidArg", err)
	}
	b.ClearOp()
	if b.Op() != ioblock.OpNone {
		t.Errorf("Op() after ClearOp = %v, want OpNone", b.Op())
	}
}

func TestWindowHidesFramingPrefix(t *testing.T) {
	b := ioblock.NewIOBuffer(make([]byte, 16), true)
	b.SetWindow(4, 8)
	if len(b.Window()) != 8 {
		t.Errorf("len(Window()) = %d, want 8", len(b.Window()))
	}
}

func TestSetWindowOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for out-of-range window")
		}
	}()
	b := ioblock.NewIOBuffer(make([]byte, 8), true)
	b.SetWindow(4, 8)
}

func TestCompleteSetsValidDataOnSuccess(t *testing.T) {
	b := ioblock.NewIOBuffer(make([]byte, 8), true)
	b.Complete(nil, 8)
	if !b.Flags().Has(ioblock.FlagHasValidData) {
		t.Error("expected FlagHasValidData after successful Complete")
	}
	if b.N() != 8 {
		t.Errorf("N() = %d, want 8", b.N())
	}

	b2 := ioblock.NewIOBuffer(make([]byte, 8), true)
	wantErr := errors.New("boom")
	b2.Complete(wantErr, 0)
	if b2.Flags().Has(ioblock.FlagHasValidData) {
		t.Error("did not expect FlagHasValidData after failed Complete")
	}
	if !errors.Is(b2.Err(), wantErr) {
		t.Errorf("Err() = %v, want %v", b2.Err(), wantErr)
	}
}

func TestRefCounting(t *testing.T) {
	b := ioblock.NewIOBuffer(make([]byte, 8), true)
	b.AddRef()
	if b.Release() {
		t.Error("Release() after AddRef should not report last reference yet")
	}
	if !b.Release() {
		t.Error("Release() should report last reference")
	}
}

func TestLinkUnlinkQueue(t *testing.T) {
	var head, tail *ioblock.IOBuffer
	a := ioblock.NewIOBuffer(make([]byte, 1), true)
	b := ioblock.NewIOBuffer(make([]byte, 1), true)
	c := ioblock.NewIOBuffer(make([]byte, 1), true)

	for _, buf := range []*ioblock.IOBuffer{a, b, c} {
		if head == nil {
			head = buf
		}
		buf.LinkInto(ioblock.QueueOwnerCompleted, &tail)
	}

	if a.QueueOwner() != ioblock.QueueOwnerCompleted {
		t.Errorf("QueueOwner() = %v, want QueueOwnerCompleted", a.QueueOwner())
	}
	if a.Next() != b || b.Next() != c {
		t.Error("expected FIFO link order a -> b -> c")
	}

	b.Unlink(&head, &tail)
	if a.Next() != c {
		t.Errorf("after unlinking b, a.Next() = %v, want c", a.Next())
	}
	if b.QueueOwner() != ioblock.QueueOwnerNone {
		t.Errorf("QueueOwner() after Unlink = %v, want QueueOwnerNone", b.QueueOwner())
	}
}
