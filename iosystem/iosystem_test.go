// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package iosystem_test

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/ioblock"
	"code.hybscloud.com/ioblock/iosystem"
)

type recordingSink struct {
	mu       sync.Mutex
	events   []*ioblock.IOBuffer
	opens    []error
	accepted []iosystem.BlockIO
	openCh   chan struct{}
	eventCh  chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		openCh:  make(chan struct{}, 16),
		eventCh: make(chan struct{}, 16),
	}
}

func (s *recordingSink) OnEvent(buf *ioblock.IOBuffer) {
	s.mu.Lock()
	s.events = append(s.events, buf)
	s.mu.Unlock()
	s.eventCh <- struct{}{}
}

func (s *recordingSink) OnOpen(err error, bio iosystem.BlockIO) {
	s.mu.Lock()
	s.opens = append(s.opens, err)
	s.mu.Unlock()
	s.openCh <- struct{}{}
}

func (s *recordingSink) OnAccept(accepted iosystem.BlockIO) {
	s.mu.Lock()
	s.accepted = append(s.accepted, accepted)
	s.mu.Unlock()
}

func (s *recordingSink) waitEvent(t *testing.T) {
	t.Helper()
	select {
	case <-s.eventCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnEvent")
	}
}

func TestAllocBuffer_GeneralAllocator(t *testing.T) {
	sys := iosystem.New(iosystem.MediumMemory)
	buf, err := sys.AllocBuffer(256, true)
	if err != nil {
		t.Fatalf("AllocBuffer: %v", err)
	}
	if buf.Cap() != 256 {
		t.Fatalf("cap = %d, want 256", buf.Cap())
	}
}

func TestAllocBuffer_PooledReuse(t *testing.T) {
	sys := iosystem.New(iosystem.MediumFile, iosystem.WithPoolSize(4))
	buf1, err := sys.AllocBuffer(4096, true)
	if err != nil {
		t.Fatalf("AllocBuffer: %v", err)
	}
	sys.ReleaseBuffer(buf1)

	buf2, err := sys.AllocBuffer(4096, true)
	if err != nil {
		t.Fatalf("AllocBuffer: %v", err)
	}
	if buf2.Cap() < 4096 {
		t.Fatalf("cap = %d, want >= 4096", buf2.Cap())
	}
}

func TestAllocBuffer_NoBacking(t *testing.T) {
	sys := iosystem.New(iosystem.MediumMemory)
	buf, err := sys.AllocBuffer(128, false)
	if err != nil {
		t.Fatalf("AllocBuffer: %v", err)
	}
	if buf.Cap() != 0 {
		t.Fatalf("cap = %d, want 0 for deferred backing", buf.Cap())
	}
}

func TestOpenBlockIO_Memory(t *testing.T) {
	sys := iosystem.New(iosystem.MediumMemory)
	sink := newRecordingSink()

	bio, err := sys.OpenBlockIO("memory:///new?len=64", iosystem.OpenOptions{
		ReadAccess: true, WriteAccess: true, Resizable: true,
	}, sink)
	if err != nil {
		t.Fatalf("OpenBlockIO: %v", err)
	}
	if !bio.IsOpen() {
		t.Fatal("expected bio to be open")
	}
	if bio.Size() != 64 {
		t.Fatalf("size = %d, want 64", bio.Size())
	}
	if sys.ActiveCount() != 1 {
		t.Fatalf("active count = %d, want 1", sys.ActiveCount())
	}

	if err := bio.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sys.ActiveCount() != 0 {
		t.Fatalf("active count after close = %d, want 0", sys.ActiveCount())
	}
}

func TestMemoryBlockIO_WriteThenRead(t *testing.T) {
	sys := iosystem.New(iosystem.MediumMemory)
	sink := newRecordingSink()

	bio, err := sys.OpenBlockIO("memory:///new?len=16", iosystem.OpenOptions{
		ReadAccess: true, WriteAccess: true, Resizable: true,
	}, sink)
	if err != nil {
		t.Fatalf("OpenBlockIO: %v", err)
	}

	wbuf, err := sys.AllocBuffer(16, true)
	if err != nil {
		t.Fatalf("AllocBuffer: %v", err)
	}
	wbuf.SetWindow(0, 16)
	copy(wbuf.Window(), []byte("hello, world!!!!"))
	wbuf.SetFlag(ioblock.FlagHasValidData)

	if err := bio.WriteBlock(wbuf, 0); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	sink.waitEvent(t)

	rbuf, err := sys.AllocBuffer(16, true)
	if err != nil {
		t.Fatalf("AllocBuffer: %v", err)
	}
	if err := bio.ReadBlock(rbuf); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	sink.waitEvent(t)

	if got := string(rbuf.Window()); got != "hello, world!!!!" {
		t.Fatalf("read back %q, want %q", got, "hello, world!!!!")
	}
}

func TestReadBlock_ErrOpInProgress(t *testing.T) {
	sys := iosystem.New(iosystem.MediumMemory)
	sink := newRecordingSink()
	bio, err := sys.OpenBlockIO("memory:///new?len=16", iosystem.OpenOptions{ReadAccess: true}, sink)
	if err != nil {
		t.Fatalf("OpenBlockIO: %v", err)
	}

	buf, _ := sys.AllocBuffer(16, true)
	if err := buf.SetOp(ioblock.OpRead, bio); err != nil {
		t.Fatalf("SetOp: %v", err)
	}

	if err := bio.ReadBlock(buf); !errors.Is(err, iosystem.ErrOpInProgress) {
		t.Fatalf("ReadBlock err = %v, want ErrOpInProgress", err)
	}
}

func TestWriteBlock_ErrNoValidData(t *testing.T) {
	sys := iosystem.New(iosystem.MediumMemory)
	sink := newRecordingSink()
	bio, err := sys.OpenBlockIO("memory:///new?len=16", iosystem.OpenOptions{WriteAccess: true}, sink)
	if err != nil {
		t.Fatalf("OpenBlockIO: %v", err)
	}

	buf, _ := sys.AllocBuffer(16, true)
	if err := bio.WriteBlock(buf, 0); !errors.Is(err, iosystem.ErrNoValidData) {
		t.Fatalf("WriteBlock err = %v, want ErrNoValidData", err)
	}
}

func TestBlockIO_ErrClosed(t *testing.T) {
	sys := iosystem.New(iosystem.MediumMemory)
	sink := newRecordingSink()
	bio, err := sys.OpenBlockIO("memory:///new?len=16", iosystem.OpenOptions{ReadAccess: true}, sink)
	if err != nil {
		t.Fatalf("OpenBlockIO: %v", err)
	}
	if err := bio.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	buf, _ := sys.AllocBuffer(16, true)
	if err := bio.ReadBlock(buf); !errors.Is(err, iosystem.ErrClosed) {
		t.Fatalf("ReadBlock err = %v, want ErrClosed", err)
	}
}

func TestFileBlockIO_ReadWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	if err := os.WriteFile(path, make([]byte, 0), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	sys := iosystem.New(iosystem.MediumFile)
	sink := newRecordingSink()

	bio, err := sys.OpenBlockIO("file://"+path, iosystem.OpenOptions{
		ReadAccess: true, WriteAccess: true, Resizable: true, UseSynchronousIO: true,
	}, sink)
	if err != nil {
		t.Fatalf("OpenBlockIO: %v", err)
	}

	wbuf, err := sys.AllocBuffer(4096, true)
	if err != nil {
		t.Fatalf("AllocBuffer: %v", err)
	}
	payload := []byte("file medium payload")
	wbuf.SetWindow(0, len(payload))
	copy(wbuf.Window(), payload)
	wbuf.SetFlag(ioblock.FlagHasValidData)

	if err := bio.WriteBlock(wbuf, 0); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	sink.waitEvent(t)

	rbuf, err := sys.AllocBuffer(4096, true)
	if err != nil {
		t.Fatalf("AllocBuffer: %v", err)
	}
	if err := bio.ReadBlock(rbuf); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	sink.waitEvent(t)

	if got := string(rbuf.Window()); got != string(payload) {
		t.Fatalf("read back %q, want %q", got, payload)
	}

	if err := bio.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestFileBlockIO_Resize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resize.bin")
	if err := os.WriteFile(path, make([]byte, 16), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	sys := iosystem.New(iosystem.MediumFile)
	sink := newRecordingSink()
	bio, err := sys.OpenBlockIO("file://"+path, iosystem.OpenOptions{
		ReadAccess: true, WriteAccess: true, Resizable: true, UseSynchronousIO: true,
	}, sink)
	if err != nil {
		t.Fatalf("OpenBlockIO: %v", err)
	}

	if err := bio.Resize(32); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if bio.Size() != 32 {
		t.Fatalf("size = %d, want 32", bio.Size())
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 32 {
		t.Fatalf("file size = %d, want 32", info.Size())
	}
}

func TestNetBlockIO_ListenDialRoundtrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	ln.Close()
	addr := ln.Addr().String()

	sys := iosystem.New(iosystem.MediumNetwork)
	serverSink := newRecordingSink()

	listener, err := sys.ListenBlockIO("tcp://"+addr, serverSink)
	if err != nil {
		t.Fatalf("ListenBlockIO: %v", err)
	}
	defer listener.Close()

	clientSink := newRecordingSink()
	client, err := sys.OpenBlockIO(fmt.Sprintf("tcp://%s", addr), iosystem.OpenOptions{
		ReadAccess: true, WriteAccess: true,
	}, clientSink)
	if err != nil {
		t.Fatalf("OpenBlockIO: %v", err)
	}

	select {
	case <-clientSink.openCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client OnOpen")
	}

	deadline := time.After(2 * time.Second)
	for {
		serverSink.mu.Lock()
		n := len(serverSink.accepted)
		serverSink.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for accept")
		case <-time.After(10 * time.Millisecond):
		}
	}

	_ = client.Close()
}
