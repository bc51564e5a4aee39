package alloc

import "unsafe"

// FreelistRegion serves fixed BlockSize-byte slots out of a single
// caller-supplied byte span, carved into slotCount slots with no
// per-allocation header beyond the intrusive list node a free slot
// temporarily hosts in its own first bytes.
//
// The ring's sentinel node is not external bookkeeping: it is whichever
// slot currently anchors the ring, a real slot like any other. The first
// sentinel is slot 0 at construction, but once every other slot has been
// handed out, the sentinel's own memory is the last thing Allocate gives
// away; head goes nil, and the region is genuinely exhausted until some
// freed slot re-anchors a new ring.
//
// Not safe for concurrent use.
type FreelistRegion struct {
	base   unsafe.Pointer
	length uintptr

	// head is the address of the slot currently serving as ring sentinel,
	// or nil if every slot (including the last sentinel) is allocated.
	head unsafe.Pointer
	free uintptr
}

// NewFreelistRegion carves cfg.Base/cfg.Length into BlockSize slots. Length
// must be a positive multiple of BlockSize.
func NewFreelistRegion(cfg RegionConfig) (*FreelistRegion, error) {
	if cfg.Base == nil || cfg.Length == 0 || cfg.Length%BlockSize != 0 {
		return nil, ErrInvalidLayout
	}

	slotCount := cfg.Length / BlockSize
	r := &FreelistRegion{base: cfg.Base, length: cfg.Length, head: cfg.Base}
	listInit(nodeAt(r.head))
	for i := slotCount - 1; i >= 1; i-- {
		listPushFront(nodeAt(r.head), unsafe.Add(cfg.Base, i*BlockSize))
	}
	r.free = slotCount - 1

	Debug("freelist region ready: base=%p slots=%d", cfg.Base, slotCount)
	return r, nil
}

// Allocate hands out one BlockSize slot. layout.Size and layout.Align must
// both fit within BlockSize; FreelistRegion never partially serves a slot
// or rounds a request down.
func (r *FreelistRegion) Allocate(layout Layout) (unsafe.Pointer, error) {
	if layout.Size > BlockSize || layout.Align > BlockSize {
		return nil, ErrFreelistOversize
	}
	if r.head == nil {
		return nil, ErrOutOfMemory
	}

	sentinel := nodeAt(r.head)
	if listIsEmpty(sentinel) {
		addr := r.head
		r.head = nil
		Debug("freelist alloc: last slot (ring sentinel) addr=%p", addr)
		return addr, nil
	}

	addr := listPopFront(sentinel)
	r.free--
	Debug("freelist alloc: addr=%p free=%d", addr, r.free)
	return addr, nil
}

// Deallocate returns ptr's slot to the ring. If the ring was empty, ptr
// becomes the new sentinel rather than being pushed onto an existing one.
func (r *FreelistRegion) Deallocate(ptr unsafe.Pointer, _ Layout) {
	debugAssert(r.ContainsPointer(ptr), "Deallocate: pointer outside freelist region")

	if r.head == nil {
		listInit(nodeAt(ptr))
		r.head = ptr
		Debug("freelist free: addr=%p re-anchors ring", ptr)
		return
	}

	listPushFront(nodeAt(r.head), ptr)
	r.free++
	Debug("freelist free: addr=%p free=%d", ptr, r.free)
}

// AvailableBytes reports the total size of slots not currently allocated,
// including the sentinel slot itself when the ring is non-empty.
func (r *FreelistRegion) AvailableBytes() uintptr {
	if r.head == nil {
		return 0
	}
	return (r.free + 1) * BlockSize
}

// ContainsPointer reports whether ptr falls within this region's span.
func (r *FreelistRegion) ContainsPointer(ptr unsafe.Pointer) bool {
	start := uintptr(r.base)
	end := start + r.length
	p := uintptr(ptr)
	return p >= start && p < end
}
