// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package stream implements AsyncIOStream: a byte-granular positioned
// cursor over a BlockIO, backed by a sparse cache of loaded blocks indexed
// by media position. Reads fault in block-aligned chunks on miss; writes
// land in the cache and are deferred until Flush.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"code.hybscloud.com/ioblock"
	"code.hybscloud.com/ioblock/internal/charclass"
	"code.hybscloud.com/ioblock/iosystem"
)

// Sink is the caller-supplied stream-level event handler.
type Sink interface {
	OnReadyToRead(err error, totalAvailable int64)
	OnFlush(err error)
	OnOpen(err error, s *AsyncIOStream)
	OnStreamDisconnect(err error)
}

type cacheBlock struct {
	pos   int64
	buf   *ioblock.IOBuffer
	dirty bool
}

type pendingOp struct {
	ch     chan error
	isRead bool
}

// AsyncIOStream is a byte cursor over a BlockIO with an in-memory cache of
// loaded blocks, push-back/peek, printf, and copy-stream. Callers issue one
// logical operation at a time per stream; concurrent calls are not
// supported beyond Flush's internal fan-out across dirty blocks.
type AsyncIOStream struct {
	mu sync.Mutex

	bio    iosystem.BlockIO
	system *iosystem.IOSystem
	sink   Sink

	pos        int64
	dataLength int64

	cache    []*cacheBlock
	inFlight map[*ioblock.IOBuffer]*pendingOp

	closed bool
}

// Open opens a BlockIO on system and wraps it in a new AsyncIOStream. The
// stream registers itself as the BlockIO's sink; sink.OnOpen fires once
// the underlying open completes (synchronously for memory devices).
func Open(system *iosystem.IOSystem, rawURL string, opts iosystem.OpenOptions, sink Sink) (*AsyncIOStream, error) {
	s := &AsyncIOStream{
		system:   system,
		sink:     sink,
		inFlight: make(map[*ioblock.IOBuffer]*pendingOp),
	}
	bio, err := system.OpenBlockIO(rawURL, opts, s)
	if err != nil {
		return nil, err
	}
	s.bio = bio
	return s, nil
}

// OnEvent implements iosystem.Sink: a block read or write completed.
func (s *AsyncIOStream) OnEvent(buf *ioblock.IOBuffer) {
	s.mu.Lock()
	p, ok := s.inFlight[buf]
	if ok {
		delete(s.inFlight, buf)
	}
	err := buf.Err()
	if errors.Is(err, io.EOF) {
		err = ErrEOF
	}
	if ok && p.isRead && err == nil {
		n := len(buf.Window())
		if n > 0 {
			s.insertCacheLocked(&cacheBlock{pos: buf.Pos(), buf: buf})
			if end := buf.Pos() + int64(n); end > s.dataLength {
				s.dataLength = end
			}
		} else {
			err = ErrEOF
		}
	}
	avail := s.dataLength
	s.mu.Unlock()

	if s.sink != nil {
		s.sink.OnReadyToRead(err, avail)
	}
	if ok {
		p.ch <- err
	}
}

// OnOpen implements iosystem.Sink, forwarding to the stream-level sink
// with the stream itself (not the raw BlockIO) as the payload.
func (s *AsyncIOStream) OnOpen(err error, _ iosystem.BlockIO) {
	if s.sink != nil {
		s.sink.OnOpen(err, s)
	}
}

// OnAccept implements iosystem.Sink. AsyncIOStream wraps one already-open
// BlockIO; a listening socket's accept loop is iosystem.ListenerBlockIO's
// own responsibility, not this stream's.
func (s *AsyncIOStream) OnAccept(iosystem.BlockIO) {}

func (s *AsyncIOStream) insertCacheLocked(cb *cacheBlock) {
	i := sort.Search(len(s.cache), func(i int) bool { return s.cache[i].pos >= cb.pos })
	s.cache = append(s.cache, nil)
	copy(s.cache[i+1:], s.cache[i:])
	s.cache[i] = cb
}

func (s *AsyncIOStream) findCoveringLocked(pos int64) (*cacheBlock, bool) {
	i := sort.Search(len(s.cache), func(i int) bool {
		return s.cache[i].pos+int64(len(s.cache[i].buf.Window())) > pos
	})
	if i < len(s.cache) && s.cache[i].pos <= pos {
		return s.cache[i], true
	}
	return nil, false
}

func (s *AsyncIOStream) copyRangeLocked(pos int64, dst []byte) (int, error) {
	total := 0
	for total < len(dst) {
		cb, ok := s.findCoveringLocked(pos)
		if !ok {
			return total, ErrOutOfRange
		}
		off := int(pos - cb.pos)
		n := copy(dst[total:], cb.buf.Window()[off:])
		if n == 0 {
			return total, ErrOutOfRange
		}
		total += n
		pos += int64(n)
	}
	return total, nil
}

func (s *AsyncIOStream) overwriteRangeLocked(pos int64, src []byte) error {
	off := 0
	for off < len(src) {
		cb, ok := s.findCoveringLocked(pos)
		if !ok {
			return ErrOutOfRange
		}
		blockOff := int(pos - cb.pos)
		n := copy(cb.buf.Window()[blockOff:], src[off:])
		if n == 0 {
			return ErrOutOfRange
		}
		off += n
		pos += int64(n)
	}
	return nil
}

func (s *AsyncIOStream) truncateCacheLocked(newLength int64) {
	kept := s.cache[:0]
	for _, cb := range s.cache {
		if cb.pos >= newLength {
			continue
		}
		if end := cb.pos + int64(len(cb.buf.Window())); end > newLength {
			cb.buf.SetWindow(0, int(newLength-cb.pos))
		}
		kept = append(kept, cb)
	}
	s.cache = kept
}

// fillAt blocks until the block covering pos is cached, issuing a
// block-aligned read if it is not already present. It returns ErrEOF when
// that read completes with fewer bytes than needed to reach pos.
func (s *AsyncIOStream) fillAt(pos int64) error {
	s.mu.Lock()
	if _, ok := s.findCoveringLocked(pos); ok {
		s.mu.Unlock()
		return nil
	}
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	blockSize := s.system.BlockSize()
	start := (pos / int64(blockSize)) * int64(blockSize)
	buf, err := s.system.AllocBuffer(blockSize, true)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	buf.SetPos(start)
	done := make(chan error, 1)
	s.inFlight[buf] = &pendingOp{ch: done, isRead: true}
	s.mu.Unlock()

	if err := s.bio.ReadBlock(buf); err != nil {
		s.mu.Lock()
		delete(s.inFlight, buf)
		s.mu.Unlock()
		return err
	}
	if err := <-done; err != nil {
		return err
	}
	s.mu.Lock()
	_, ok := s.findCoveringLocked(pos)
	s.mu.Unlock()
	if !ok {
		return ErrEOF
	}
	return nil
}

func (s *AsyncIOStream) ensureRange(pos int64, length int) error {
	end := pos + int64(length)
	for p := pos; p < end; {
		s.mu.Lock()
		cb, ok := s.findCoveringLocked(p)
		s.mu.Unlock()
		if ok {
			p = cb.pos + int64(len(cb.buf.Window()))
			continue
		}
		if err := s.fillAt(p); err != nil {
			return err
		}
	}
	return nil
}

// Read copies as many bytes as are available into dst, faulting in cache
// blocks as needed, and advances the stream position.
func (s *AsyncIOStream) Read(dst []byte) (int, error) {
	total := 0
	for total < len(dst) {
		s.mu.Lock()
		pos := s.pos
		if pos >= s.dataLength {
			s.mu.Unlock()
			if total > 0 {
				return total, nil
			}
			if err := s.fillAt(pos); err != nil {
				return total, err
			}
			continue
		}
		cb, ok := s.findCoveringLocked(pos)
		s.mu.Unlock()
		if !ok {
			if err := s.fillAt(pos); err != nil {
				if total > 0 {
					return total, nil
				}
				return total, err
			}
			continue
		}

		s.mu.Lock()
		off := int(pos - cb.pos)
		win := cb.buf.Window()[off:]
		if max := s.dataLength - pos; int64(len(win)) > max {
			win = win[:max]
		}
		want := dst[total:]
		if len(want) > len(win) {
			want = want[:len(win)]
		}
		n := copy(want, win)
		s.pos += int64(n)
		s.mu.Unlock()

		total += n
		if n == 0 {
			return total, ErrEOF
		}
	}
	return total, nil
}

// Write copies src into the stream's cache at the current position,
// marking touched blocks dirty. Nothing reaches the BlockIO until Flush.
func (s *AsyncIOStream) Write(src []byte) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	s.mu.Unlock()

	blockSize := s.system.BlockSize()
	total := 0
	for total < len(src) {
		s.mu.Lock()
		pos := s.pos
		cb, ok := s.findCoveringLocked(pos)
		if !ok {
			start := (pos / int64(blockSize)) * int64(blockSize)
			buf, err := s.system.AllocBuffer(blockSize, true)
			if err != nil {
				s.mu.Unlock()
				return total, err
			}
			buf.SetPos(start)
			buf.SetWindow(0, blockSize)
			buf.SetFlag(ioblock.FlagHasValidData)
			cb = &cacheBlock{pos: start, buf: buf}
			s.insertCacheLocked(cb)
		}
		off := int(pos - cb.pos)
		n := copy(cb.buf.Window()[off:], src[total:])
		cb.dirty = true
		s.pos += int64(n)
		if s.pos > s.dataLength {
			s.dataLength = s.pos
		}
		s.mu.Unlock()

		total += n
		if n == 0 {
			break
		}
	}
	return total, nil
}

// GetByte reads one byte and advances the position.
func (s *AsyncIOStream) GetByte() (byte, error) {
	var b [1]byte
	n, err := s.Read(b[:])
	if n == 0 {
		return 0, err
	}
	return b[0], nil
}

// PutByte writes one byte.
func (s *AsyncIOStream) PutByte(b byte) error {
	_, err := s.Write([]byte{b})
	return err
}

// PeekByte returns the next byte without advancing the position.
func (s *AsyncIOStream) PeekByte() (byte, error) {
	b, err := s.GetByte()
	if err != nil {
		return 0, err
	}
	return b, s.UngetByte()
}

// UngetByte rewinds the position by one byte.
func (s *AsyncIOStream) UngetByte() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos == 0 {
		return ErrOutOfRange
	}
	s.pos--
	return nil
}

// SkipWhileCharType advances the position while the byte at it matches
// mask, and returns the count skipped.
func (s *AsyncIOStream) SkipWhileCharType(mask charclass.Class) (int, error) {
	n := 0
	for {
		b, err := s.GetByte()
		if err != nil {
			return n, err
		}
		if !charclass.Is(b, mask) {
			return n, s.UngetByte()
		}
		n++
	}
}

// SkipUntilCharType advances the position until the byte at it matches
// mask, and returns the count skipped.
func (s *AsyncIOStream) SkipUntilCharType(mask charclass.Class) (int, error) {
	n := 0
	for {
		b, err := s.GetByte()
		if err != nil {
			return n, err
		}
		if charclass.Is(b, mask) {
			return n, s.UngetByte()
		}
		n++
	}
}

// GetPtr returns length bytes starting at pos, either a zero-copy slice
// directly into the cache when the range lies within one block, or a copy
// into tmp when it straddles a block boundary. tmp must have length >= length.
func (s *AsyncIOStream) GetPtr(pos int64, length int, tmp []byte) ([]byte, error) {
	if err := s.ensureRange(pos, length); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cb, ok := s.findCoveringLocked(pos)
	if !ok {
		return nil, ErrOutOfRange
	}
	off := int(pos - cb.pos)
	win := cb.buf.Window()
	if off+length <= len(win) {
		return win[off : off+length], nil
	}
	if len(tmp) < length {
		return nil, ErrOutOfRange
	}
	if n, err := s.copyRangeLocked(pos, tmp[:length]); err != nil || n < length {
		return nil, ErrOutOfRange
	}
	return tmp[:length], nil
}

// GetPtrRef returns a zero-copy slice of however many contiguous bytes are
// available from pos, up to length.
func (s *AsyncIOStream) GetPtrRef(pos int64, length int) ([]byte, error) {
	if err := s.fillAt(pos); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cb, ok := s.findCoveringLocked(pos)
	if !ok {
		return nil, ErrOutOfRange
	}
	off := int(pos - cb.pos)
	win := cb.buf.Window()[off:]
	if length < len(win) {
		win = win[:length]
	}
	return win, nil
}

func (s *AsyncIOStream) SetPosition(pos int64) { s.mu.Lock(); s.pos = pos; s.mu.Unlock() }

func (s *AsyncIOStream) GetPosition() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *AsyncIOStream) GetDataLength() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataLength
}

// RemoveNBytes logically deletes the n bytes at pos, shifting every
// subsequent cached byte left by n. Used to splice chunked-encoding chunk
// headers out of the byte stream in place.
func (s *AsyncIOStream) RemoveNBytes(pos int64, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pos < 0 || n < 0 || pos+int64(n) > s.dataLength {
		return ErrOutOfRange
	}

	tailLen := s.dataLength - (pos + int64(n))
	tail := make([]byte, tailLen)
	if _, err := s.copyRangeLocked(pos+int64(n), tail); err != nil {
		return err
	}
	if err := s.overwriteRangeLocked(pos, tail); err != nil {
		return err
	}

	s.dataLength -= int64(n)
	switch {
	case s.pos >= pos+int64(n):
		s.pos -= int64(n)
	case s.pos > pos:
		s.pos = pos
	}
	s.truncateCacheLocked(s.dataLength)
	return nil
}

// flushBlock writes cb's valid bytes only. A cache block is always
// allocated at full blockSize (see Write), so its window past
// dataLength is unwritten padding; trimming to the valid extent keeps
// that padding off the wire for a network medium and off the backing
// store for a partial final block on file/memory media. The window is
// restored to full size once the write completes, since the block may
// still be appended to afterward.
func (s *AsyncIOStream) flushBlock(cb *cacheBlock) error {
	done := make(chan error, 1)
	s.mu.Lock()
	full := len(cb.buf.Window())
	validLen := int(s.dataLength - cb.pos)
	if validLen < 0 {
		validLen = 0
	} else if validLen > full {
		validLen = full
	}
	cb.buf.SetWindow(0, validLen)
	s.inFlight[cb.buf] = &pendingOp{ch: done, isRead: false}
	cb.dirty = false
	s.mu.Unlock()

	if err := s.bio.WriteBlock(cb.buf, 0); err != nil {
		s.mu.Lock()
		cb.buf.SetWindow(0, full)
		s.mu.Unlock()
		return err
	}
	err := <-done

	s.mu.Lock()
	cb.buf.SetWindow(0, full)
	s.mu.Unlock()
	return err
}

// Flush emits every dirty cache block through the BlockIO concurrently and
// waits for all of them to complete.
func (s *AsyncIOStream) Flush() error {
	s.mu.Lock()
	var dirty []*cacheBlock
	for _, cb := range s.cache {
		if cb.dirty {
			dirty = append(dirty, cb)
		}
	}
	s.mu.Unlock()

	if len(dirty) == 0 {
		return nil
	}

	g, _ := errgroup.WithContext(context.Background())
	for _, cb := range dirty {
		g.Go(func() error { return s.flushBlock(cb) })
	}
	err := g.Wait()
	if s.sink != nil {
		s.sink.OnFlush(err)
	}
	return err
}

func (s *AsyncIOStream) copyOut(pos int64, dst []byte) (int, error) {
	if err := s.fillAt(pos); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyRangeLocked(pos, dst)
}

// CopyStream transfers n bytes from s, starting at its current position,
// into dst. Source blocks are read concurrently (one goroutine per
// source block) since each read is independent once block-aligned.
// noCopyHint is accepted for API parity but both paths currently copy
// through a scratch buffer; true zero-copy block hand-off would require
// dst to adopt s's cacheBlock directly, which is unsafe once s keeps
// reading from the same block.
func (s *AsyncIOStream) CopyStream(dst *AsyncIOStream, n int64, noCopyHint bool) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	start := s.GetPosition()
	blockSize := int64(s.system.BlockSize())

	type segment struct {
		pos    int64
		length int
	}
	var segments []segment
	for p := start; p < start+n; {
		ln := blockSize - (p % blockSize)
		if rem := start + n - p; int64(ln) > rem {
			ln = rem
		}
		segments = append(segments, segment{p, int(ln)})
		p += ln
	}

	g, _ := errgroup.WithContext(context.Background())
	results := make([][]byte, len(segments))
	for i, seg := range segments {
		i, seg := i, seg
		g.Go(func() error {
			buf := make([]byte, seg.length)
			if _, err := s.copyOut(seg.pos, buf); err != nil {
				return err
			}
			results[i] = buf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var total int64
	for _, r := range results {
		if _, err := dst.Write(r); err != nil {
			return total, err
		}
		total += int64(len(r))
	}
	s.SetPosition(start + total)
	return total, nil
}

// Printf formats and writes to the stream.
func (s *AsyncIOStream) Printf(format string, args ...any) (int, error) {
	return s.Write([]byte(fmt.Sprintf(format, args...)))
}

// ListenForMoreBytes arms the stream for the next data-available event by
// issuing a read past the currently known data length; sink.OnReadyToRead
// fires when it completes.
func (s *AsyncIOStream) ListenForMoreBytes() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	pos := s.dataLength
	s.mu.Unlock()

	blockSize := s.system.BlockSize()
	buf, err := s.system.AllocBuffer(blockSize, true)
	if err != nil {
		return err
	}
	buf.SetPos(pos)

	s.mu.Lock()
	s.inFlight[buf] = &pendingOp{ch: make(chan error, 1), isRead: true}
	s.mu.Unlock()

	return s.bio.ReadBlock(buf)
}

// Close cancels any in-flight operations and closes the underlying BlockIO.
func (s *AsyncIOStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pending := s.inFlight
	s.inFlight = nil
	s.mu.Unlock()

	for _, p := range pending {
		select {
		case p.ch <- ErrClosed:
		default:
		}
	}
	return s.bio.Close()
}
