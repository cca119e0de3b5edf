//go:build linux && amd64

package jit

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	// DefaultCacheSize is the arena size used when VUJIT_CACHE_SIZE is unset.
	DefaultCacheSize = 16 * 1024 * 1024

	pageSize = 4096

	// blockCap is the capacity reserved per compiled block. One page keeps
	// Mprotect calls block-granular; the emitted sequences here are far
	// smaller than this.
	blockCap = pageSize
)

// cacheBlock is one compiled block's buffer within the arena.
type cacheBlock struct {
	pc         uint32
	buf        []byte
	size       int
	executable bool
}

// CodeCache owns the mmap'd arena that compiled blocks live in. Buffers are
// writable while a block is being emitted and transition exactly once to
// read+execute when the block is finalized.
type CodeCache struct {
	mem     []byte
	used    int
	blocks  map[uint32]*cacheBlock
	current *cacheBlock
}

// NewCodeCache maps a read/write arena of the given size (rounded up to a
// whole number of pages).
func NewCodeCache(size int) (*CodeCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	size = (size + pageSize - 1) &^ (pageSize - 1)

	mem, err := unix.Mmap(
		-1, 0,
		size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS,
	)
	if err != nil {
		return nil, fmt.Errorf("jit: mmap code cache: %w", err)
	}

	return &CodeCache{
		mem:    mem,
		blocks: make(map[uint32]*cacheBlock),
	}, nil
}

// AllocBlock reserves a fresh writable buffer for the block at the given
// guest PC and makes it the current block. A previous block at the same PC is
// forgotten; its buffer is reclaimed on the next FlushAll.
func (c *CodeCache) AllocBlock(pc uint32) ([]byte, error) {
	if c.used+blockCap > len(c.mem) {
		return nil, fmt.Errorf("jit: code cache exhausted: need %d, have %d", blockCap, len(c.mem)-c.used)
	}

	blk := &cacheBlock{
		pc:  pc,
		buf: c.mem[c.used : c.used+blockCap],
	}
	c.used += blockCap
	c.blocks[pc] = blk
	c.current = blk
	return blk.buf, nil
}

// Find returns the entry address of the finalized block at the given PC.
// Blocks that were allocated but never marked executable are not returned.
func (c *CodeCache) Find(pc uint32) (uintptr, bool) {
	blk, ok := c.blocks[pc]
	if !ok || !blk.executable {
		return 0, false
	}
	c.current = blk
	return uintptr(unsafe.Pointer(&blk.buf[0])), true
}

// CurrentBlockEntry returns the entry address of the current block.
func (c *CodeCache) CurrentBlockEntry() uintptr {
	return uintptr(unsafe.Pointer(&c.current.buf[0]))
}

// CurrentBlockCode returns the emitted bytes of the current block.
func (c *CodeCache) CurrentBlockCode() []byte {
	return c.current.buf[:c.current.size]
}

// MarkExecutable records the final code size and flips the current block's
// pages from read/write to read/execute. No write to the buffer is permitted
// afterward.
func (c *CodeCache) MarkExecutable(size int) error {
	blk := c.current
	if blk.executable {
		return fmt.Errorf("jit: block $%04X already executable", blk.pc)
	}
	if err := unix.Mprotect(blk.buf, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("jit: mprotect block $%04X: %w", blk.pc, err)
	}
	blk.size = size
	blk.executable = true
	return nil
}

// ReleaseCurrent drops the current block if it was never finalized and
// returns its reservation to the arena. The current block is always the
// topmost allocation, so the reservation can be rolled back in place.
// Finalized blocks stay until FlushAll.
func (c *CodeCache) ReleaseCurrent() {
	blk := c.current
	if blk == nil || blk.executable {
		return
	}
	delete(c.blocks, blk.pc)
	c.used -= blockCap
	c.current = nil
}

// FlushAll discards every compiled block and returns the whole arena to a
// writable state.
func (c *CodeCache) FlushAll() error {
	if err := unix.Mprotect(c.mem, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("jit: mprotect arena writable: %w", err)
	}
	c.used = 0
	c.blocks = make(map[uint32]*cacheBlock)
	c.current = nil
	return nil
}

// Used returns how many arena bytes are reserved.
func (c *CodeCache) Used() int {
	return c.used
}

// Free unmaps the arena.
func (c *CodeCache) Free() error {
	if c.mem == nil {
		return nil
	}
	err := unix.Munmap(c.mem)
	c.mem = nil
	c.blocks = nil
	c.current = nil
	c.used = 0
	return err
}
