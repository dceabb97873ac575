// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ioblock provides IOBuffer, the single unit of queued I/O shared
// by every medium in this module's asynchronous block-I/O substrate, and
// the lock-free tiered buffer pools that back its allocation.
//
// # Buffer Tiers
//
// Buffers are organized into 12 size tiers following a power-of-4 progression:
//
//	Tier      Size       Use Case
//	────      ────       ────────
//	Pico      32 B       Completion codes, tiny metadata
//	Nano      128 B      Small headers, control frames
//	Micro     512 B      Protocol frames, single header lines
//	Small     2 KiB      Network-medium default block
//	Medium    8 KiB      Stream read-ahead buffers
//	Big       32 KiB     —
//	Large     128 KiB    —
//	Great     512 KiB    Large HTTP document chunks
//	Huge      2 MiB      —
//	Vast      8 MiB      Large file chunks
//	Giant     32 MiB     —
//	Titan     128 MiB    Maximum allocation tier
//
// IOSystem.AllocBuffer (see the iosystem subpackage) selects the smallest
// tier that can hold a requested size via TierBySize/BufferSizeFor.
//
// # IOBuffer
//
// IOBuffer (buffer.go) is the descriptor at the center of the package's
// data model: an op tag {none, read, write, connect,
// accept}, flags, a physical region and logical window, a media position,
// a completion error/byte-count, a write-start offset, back-references to
// its IOSystem and (while active) BlockIO, and two queue links — one for a
// BlockIO's completed queue, one for an AsyncIOStream's cache list.
//
// # Bounded Pool
//
// BoundedPool is a lock-free multi-producer multi-consumer (MPMC) pool based
// on the algorithm from "A Scalable, Portable, and Memory-Efficient
// Lock-Free FIFO Queue" (Ruslan Nikolaev, 2019). It is the free-list
// implementation behind each (medium, tier) buffer pool that an IOSystem
// maintains.
//
// # Dependencies
//
// ioblock depends on:
//   - iox: Semantic error types (ErrWouldBlock, ErrMore) and adaptive backoff.
//   - spin: Spinlock and spin-wait primitives used inside BoundedPool.
package ioblock
