// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package iosystem

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"

	"code.hybscloud.com/ioblock"
	"code.hybscloud.com/ioblock/golog"
	"code.hybscloud.com/ioblock/jobqueue"
)

// IOSystem is the process-wide, per-medium factory and IOBuffer allocator:
// it holds the active-BlockIO list, the default block size, the required
// buffer alignment, and a lock guarding the list.
type IOSystem struct {
	mu sync.Mutex

	medium    Medium
	blockSize int
	alignment int
	jq        *jobqueue.JobQueue
	logger    *golog.Logger

	active map[uuid.UUID]BlockIO

	pools   map[ioblock.BufferTier]*ioblock.BoundedPool[[]byte]
	pooled  map[*ioblock.IOBuffer]pooledRef
	poolCap int
}

type pooledRef struct {
	tier ioblock.BufferTier
	idx  int
}

// New constructs the IOSystem for medium. Defaults are table;
// any Option overrides them.
func New(medium Medium, opts ...Option) *IOSystem {
	o := defaultsFor(medium)
	for _, opt := range opts {
		opt(&o)
	}
	if o.JobQueue == nil {
		o.JobQueue = jobqueue.New()
	}
	if o.Logger == nil {
		o.Logger = golog.Default()
	}

	s := &IOSystem{
		medium:    medium,
		blockSize: o.BlockSize,
		alignment: o.Alignment,
		jq:        o.JobQueue,
		logger:    o.Logger.With("iosystem:" + medium.String()),
		active:    make(map[uuid.UUID]BlockIO),
		poolCap:   o.PoolSize,
	}
	if s.alignment > 0 {
		s.pools = make(map[ioblock.BufferTier]*ioblock.BoundedPool[[]byte])
		s.pooled = make(map[*ioblock.IOBuffer]pooledRef)
	}
	return s
}

func (s *IOSystem) Medium() Medium     { return s.medium }
func (s *IOSystem) BlockSize() int     { return s.blockSize }
func (s *IOSystem) Alignment() int     { return s.alignment }
func (s *IOSystem) JobQueue() *jobqueue.JobQueue { return s.jq }

// ActiveCount reports how many BlockIOs this IOSystem currently tracks as open.
func (s *IOSystem) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// alignStart rounds pos down to the start of its containing block when
// this IOSystem requires alignment (file media's io_start_position).
func (s *IOSystem) alignStart(pos int64) int64 {
	if s.alignment <= 0 || pos <= 0 {
		return pos
	}
	block := int64(s.blockSize)
	return (pos / block) * block
}

// AllocBuffer returns a new IOBuffer. If allocateBacking and
// this IOSystem requires alignment, the backing memory is drawn from a
// page-aligned, tier-pooled free list; otherwise it is sized exactly from
// the general allocator. size <= 0 defers to the IOSystem's default block size.
func (s *IOSystem) AllocBuffer(size int, allocateBacking bool) (*ioblock.IOBuffer, error) {
	if size <= 0 {
		size = s.blockSize
	}
	if !allocateBacking {
		buf := ioblock.NewIOBuffer(make([]byte, 0, size), false)
		buf.SetSystem(s)
		return buf, nil
	}
	if s.alignment > 0 {
		return s.allocPooled(size)
	}
	buf := ioblock.NewIOBuffer(make([]byte, size), true)
	buf.SetSystem(s)
	return buf, nil
}

func (s *IOSystem) allocPooled(size int) (*ioblock.IOBuffer, error) {
	tier := ioblock.TierBySize(size)

	s.mu.Lock()
	pool, ok := s.pools[tier]
	if !ok {
		pool = ioblock.NewTierBufferPool(tier, s.poolCap)
		pool.Fill(func() []byte { return ioblock.NewAlignedTierBuffer(tier) })
		s.pools[tier] = pool
	}
	s.mu.Unlock()

	idx, err := pool.Get()
	if err != nil {
		return nil, err
	}
	base := pool.Value(idx)
	buf := ioblock.NewIOBuffer(base, true)
	buf.SetSystem(s)

	s.mu.Lock()
	s.pooled[buf] = pooledRef{tier: tier, idx: idx}
	s.mu.Unlock()

	return buf, nil
}

// ReleaseBuffer drops the caller's reference; once the last reference is
// gone, backing memory drawn from a tier pool is returned to it.
func (s *IOSystem) ReleaseBuffer(buf *ioblock.IOBuffer) {
	if !buf.Release() {
		return
	}
	s.mu.Lock()
	ref, pooled := s.pooled[buf]
	if pooled {
		delete(s.pooled, buf)
	}
	s.mu.Unlock()
	if pooled {
		s.pools[ref.tier].Put(ref.idx)
	}
}

func (s *IOSystem) register(bio BlockIO, id uuid.UUID) {
	s.mu.Lock()
	s.active[id] = bio
	s.mu.Unlock()
}

func (s *IOSystem) detach(id uuid.UUID) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

// OpenBlockIO is the factory from rawURL's scheme selects and
// validates the medium: "memory" for MediumMemory, "file" for MediumFile,
// "tcp"/"network" for MediumNetwork. The open is asynchronous: on success
// sink.OnOpen is invoked, possibly from another goroutine, possibly
// synchronously for memory devices.
func (s *IOSystem) OpenBlockIO(rawURL string, opts OpenOptions, sink Sink) (BlockIO, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	switch s.medium {
	case MediumMemory:
		if u.Scheme != "" && u.Scheme != "memory" {
			return nil, ErrUnsupportedScheme
		}
		return s.openMemory(u, opts, sink)
	case MediumFile:
		if u.Scheme != "" && u.Scheme != "file" {
			return nil, ErrUnsupportedScheme
		}
		return s.openFile(u, opts, sink)
	case MediumNetwork:
		switch u.Scheme {
		case "tcp", "network", "":
		default:
			return nil, ErrUnsupportedScheme
		}
		return s.openNetwork(u, opts, sink)
	default:
		return nil, ErrUnsupportedScheme
	}
}
