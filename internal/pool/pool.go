// Package pool implements a size-bucketed pre-allocation cache in front of
// a Dispatcher. Blocks of a few fixed sizes are carved out up front;
// Allocate hands out a pre-carved block when one of a matching size is
// free and only falls through to the dispatcher on a miss.
//
// Not safe for concurrent use, matching every type in alloc: a pool sitting
// in front of a non-thread-safe allocator cannot be thread-safe either
// without its own external lock.
package pool

import (
	"fmt"
	"unsafe"

	"github.com/shenjiangwei/baremetalAllocator/alloc"
)

// Config sets one fixed block size and pre-allocation count per bucket.
// A zero BlockSize disables that bucket entirely.
type Config struct {
	SmallBlockSize, MediumBlockSize, LargeBlockSize uintptr
	SmallCount, MediumCount, LargeCount             int
}

// Stats tracks pool hit/miss counts for both allocation and free.
type Stats struct {
	TotalAllocations uint64
	PoolHits         uint64
	PoolMisses       uint64
	TotalFrees       uint64
	PoolFreeHits     uint64
	PoolFreeMisses   uint64
}

type slot struct {
	ptr  unsafe.Pointer
	size uintptr
	used bool
}

// Pool is the size-bucketed cache. Zero value is not usable; build one with
// New.
type Pool struct {
	dispatcher           *alloc.Dispatcher
	small, medium, large []slot
	stats                Stats
}

// New pre-allocates every configured bucket from d and returns a Pool ready
// to serve requests. If any bucket's pre-allocation fails partway through,
// New returns an error without freeing the blocks it already carved;
// construction failure is treated the same as any other unrecoverable
// startup error in this package's bare-metal target.
func New(d *alloc.Dispatcher, cfg Config) (*Pool, error) {
	p := &Pool{dispatcher: d}

	var err error
	if p.small, err = prealloc(d, cfg.SmallBlockSize, cfg.SmallCount); err != nil {
		return nil, fmt.Errorf("pool: pre-allocating small bucket: %w", err)
	}
	if p.medium, err = prealloc(d, cfg.MediumBlockSize, cfg.MediumCount); err != nil {
		return nil, fmt.Errorf("pool: pre-allocating medium bucket: %w", err)
	}
	if p.large, err = prealloc(d, cfg.LargeBlockSize, cfg.LargeCount); err != nil {
		return nil, fmt.Errorf("pool: pre-allocating large bucket: %w", err)
	}
	return p, nil
}

func prealloc(d *alloc.Dispatcher, size uintptr, count int) ([]slot, error) {
	if size == 0 || count == 0 {
		return nil, nil
	}
	slots := make([]slot, count)
	for i := range slots {
		ptr, err := d.Allocate(alloc.Layout{Size: size})
		if err != nil {
			return nil, err
		}
		slots[i] = slot{ptr: ptr, size: size}
	}
	return slots, nil
}

// bucketFor returns the smallest configured bucket whose block size can
// satisfy size, or nil if no bucket fits (or that bucket is disabled).
func (p *Pool) bucketFor(size uintptr) []slot {
	switch {
	case len(p.small) > 0 && size <= p.small[0].size:
		return p.small
	case len(p.medium) > 0 && size <= p.medium[0].size:
		return p.medium
	case len(p.large) > 0 && size <= p.large[0].size:
		return p.large
	default:
		return nil
	}
}

// Allocate returns a free pre-carved block from the smallest bucket that
// fits layout, falling back to the underlying dispatcher on a bucket miss
// or when layout doesn't fit any configured bucket.
func (p *Pool) Allocate(layout alloc.Layout) (unsafe.Pointer, error) {
	p.stats.TotalAllocations++

	if bucket := p.bucketFor(layout.Size); bucket != nil {
		for i := range bucket {
			if !bucket[i].used {
				bucket[i].used = true
				p.stats.PoolHits++
				return bucket[i].ptr, nil
			}
		}
	}

	p.stats.PoolMisses++
	return p.dispatcher.Allocate(layout)
}

// Deallocate returns ptr to its bucket if it was handed out from one,
// otherwise forwards to the underlying dispatcher.
func (p *Pool) Deallocate(ptr unsafe.Pointer, layout alloc.Layout) {
	p.stats.TotalFrees++

	for _, bucket := range [][]slot{p.small, p.medium, p.large} {
		for i := range bucket {
			if bucket[i].ptr == ptr {
				bucket[i].used = false
				p.stats.PoolFreeHits++
				return
			}
		}
	}

	p.stats.PoolFreeMisses++
	p.dispatcher.Deallocate(ptr, layout)
}

// Stats returns a snapshot of the pool's hit/miss counters.
func (p *Pool) Stats() Stats {
	return p.stats
}

// Close returns every pre-carved block to the dispatcher, regardless of
// whether it is currently marked used.
func (p *Pool) Close() {
	for _, bucket := range [][]slot{p.small, p.medium, p.large} {
		for _, s := range bucket {
			p.dispatcher.Deallocate(s.ptr, alloc.Layout{Size: s.size})
		}
	}
}
