// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ioblock_test

import (
	"testing"
	"unsafe"

	"code.hybscloud.com/ioblock"
)

func TestAlignedMem_PageAlignment(t *testing.T) {
	const size = 8192
	mem := ioblock.AlignedMem(size, ioblock.PageSize)

	if len(mem) != size {
		t.Errorf("AlignedMem length = %d, want %d", len(mem), size)
	}

	ptr := uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
	if ptr%ioblock.PageSize != 0 {
		t.Errorf("AlignedMem not page-aligned: address %#x %% %d = %d", ptr, ioblock.PageSize, ptr%ioblock.PageSize)
	}
}

func TestAlignedMem_SmallAllocation(t *testing.T) {
	const size = 64
	mem := ioblock.AlignedMem(size, ioblock.PageSize)

	if len(mem) != size {
		t.Errorf("AlignedMem length = %d, want %d", len(mem), size)
	}

	ptr := uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
	if ptr%ioblock.PageSize != 0 {
		t.Errorf("AlignedMem not page-aligned: address %#x %% %d = %d", ptr, ioblock.PageSize, ptr%ioblock.PageSize)
	}
}

func TestAlignedMemBlocks(t *testing.T) {
	const n, pageSize = 16, 4096
	blocks := ioblock.AlignedMemBlocks(n, pageSize)
	if len(blocks) != n {
		t.Fatalf("AlignedMemBlocks returned %d blocks, want %d", len(blocks), n)
	}
	for i, b := range blocks {
		if len(b) != pageSize {
			t.Errorf("block %d length = %d, want %d", i, len(b), pageSize)
		}
		if uintptr(unsafe.Pointer(unsafe.SliceData(b)))%pageSize != 0 {
			t.Errorf("block %d not page-aligned", i)
		}
	}
}

func TestAlignedMemBlocks_PanicsOnBadCount(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for n < 1")
		}
	}()
	ioblock.AlignedMemBlocks(0, 4096)
}

func TestCacheLineAlignedMem(t *testing.T) {
	mem := ioblock.CacheLineAlignedMem(128)
	if len(mem) != 128 {
		t.Errorf("length = %d, want 128", len(mem))
	}
	if uintptr(unsafe.Pointer(unsafe.SliceData(mem)))%uintptr(ioblock.CacheLineSize) != 0 {
		t.Error("not cache-line aligned")
	}
}

func TestTierBySize(t *testing.T) {
	cases := []struct {
		size int
		want ioblock.BufferTier
	}{
		{0, ioblock.TierPico},
		{32, ioblock.TierPico},
		{33, ioblock.TierNano},
		{128, ioblock.TierNano},
		{2048, ioblock.TierSmall},
		{2049, ioblock.TierMedium},
		{1 << 27, ioblock.TierTitan},
		{1 << 28, ioblock.TierTitan}, // larger than any tier clamps to Titan
	}
	for _, c := range cases {
		if got := ioblock.TierBySize(c.size); got != c.want {
			t.Errorf("TierBySize(%d) = %v, want %v", c.size, got, c.want)
		}
	}
}

func TestBufferSizeFor(t *testing.T) {
	if got := ioblock.BufferSizeFor(100); got != ioblock.BufferSizeNano {
		t.Errorf("BufferSizeFor(100) = %d, want %d", got, ioblock.BufferSizeNano)
	}
}

func TestTierSize_OutOfRange(t *testing.T) {
	if got := ioblock.BufferTier(-1).Size(); got != ioblock.BufferSizeTitan {
		t.Errorf("negative tier Size() = %d, want BufferSizeTitan", got)
	}
	if got := ioblock.TierEnd.Size(); got != ioblock.BufferSizeTitan {
		t.Errorf("TierEnd.Size() = %d, want BufferSizeTitan", got)
	}
}

func TestNewTierBuffer(t *testing.T) {
	for tier := ioblock.TierPico; tier < ioblock.TierEnd; tier++ {
		buf := ioblock.NewTierBuffer(tier)
		if len(buf) != tier.Size() {
			t.Errorf("tier %v: NewTierBuffer length = %d, want %d", tier, len(buf), tier.Size())
		}
	}
}

func TestNewAlignedTierBuffer(t *testing.T) {
	buf := ioblock.NewAlignedTierBuffer(ioblock.TierSmall)
	if len(buf) != ioblock.BufferSizeSmall {
		t.Errorf("length = %d, want %d", len(buf), ioblock.BufferSizeSmall)
	}
	if uintptr(unsafe.Pointer(unsafe.SliceData(buf)))%ioblock.PageSize != 0 {
		t.Error("not page-aligned")
	}
}
