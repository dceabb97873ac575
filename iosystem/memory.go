// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package iosystem

import (
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"code.hybscloud.com/ioblock"
)

// memoryStores lets distinct OpenBlockIO calls share one in-process
// memory region by name, mirroring "wrap the given memory"
// path for memory URLs when create-new-store is not set.
var memoryStores sync.Map // name -> *memoryStore

type memoryStore struct {
	mu   sync.Mutex
	data []byte
}

// MemoryBlockIO is the memory-medium BlockIO: a synchronous device
// backed by an in-process byte slice. Its completions dispatch inline
// on the caller's goroutine rather than through the job queue.
type MemoryBlockIO struct {
	*Base
	store *memoryStore
}

func (s *IOSystem) openMemory(u *url.URL, opts OpenOptions, sink Sink) (BlockIO, error) {
	name := strings.TrimPrefix(u.Path, "/")
	length := s.blockSize
	if v := u.Query().Get("len"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, ErrInvalidURL
		}
		length = n
	}

	var store *memoryStore
	if opts.CreateNewStore || name == "" || name == "new" {
		store = &memoryStore{data: make([]byte, length)}
	} else {
		v, _ := memoryStores.LoadOrStore(name, &memoryStore{data: make([]byte, length)})
		store = v.(*memoryStore)
	}

	bio := &MemoryBlockIO{store: store}
	bio.Base = newBase(s, MediumMemory, opts, sink, true, true)
	bio.Base.backend = bio
	bio.Base.bindSelf(bio)
	bio.Base.resizable = opts.Resizable
	store.mu.Lock()
	bio.Base.size = int64(len(store.data))
	store.mu.Unlock()
	bio.Base.markOpen()

	s.register(bio, bio.Base.id)
	if sink != nil {
		sink.OnOpen(nil, bio)
	}
	return bio, nil
}

func (bio *MemoryBlockIO) startRead(buf *ioblock.IOBuffer) error {
	bio.store.mu.Lock()
	data := bio.store.data
	bio.store.mu.Unlock()

	pos := buf.Pos()
	if pos >= int64(len(data)) {
		bio.FinishIO(buf, io.EOF, 0)
		return nil
	}
	n := len(data) - int(pos)
	if n > buf.Cap() {
		n = buf.Cap()
	}
	buf.SetWindow(0, n)
	copy(buf.Window(), data[pos:int(pos)+n])
	bio.FinishIO(buf, nil, n)
	return nil
}

func (bio *MemoryBlockIO) startWrite(buf *ioblock.IOBuffer, startOffset int64) error {
	payload := buf.Window()
	if startOffset > 0 {
		payload = payload[startOffset:]
	}
	pos := buf.Pos()
	end := pos + int64(len(payload))

	bio.store.mu.Lock()
	if end > int64(len(bio.store.data)) {
		if !bio.resizable {
			bio.store.mu.Unlock()
			bio.FinishIO(buf, ErrNotResizable, 0)
			return nil
		}
		grown := make([]byte, end)
		copy(grown, bio.store.data)
		bio.store.data = grown
	}
	copy(bio.store.data[pos:end], payload)
	bio.store.mu.Unlock()

	bio.FinishIO(buf, nil, len(payload))
	return nil
}

func (bio *MemoryBlockIO) doResize(newLen int64) error {
	bio.store.mu.Lock()
	defer bio.store.mu.Unlock()
	grown := make([]byte, newLen)
	copy(grown, bio.store.data)
	bio.store.data = grown
	return nil
}

func (bio *MemoryBlockIO) doClose() error { return nil }
