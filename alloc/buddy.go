package alloc

import "unsafe"

// BuddyRegion is a power-of-two buddy allocator carved out of a single
// caller-supplied byte span. It never touches the Go heap or the OS after
// construction: every byte it hands out, every free-list node, and every
// bit of its own bookkeeping lives inside the span passed to
// NewBuddyRegion.
//
// Not safe for concurrent use. Callers serialize their own access, the
// same way the rest of this package's types do.
type BuddyRegion struct {
	base     unsafe.Pointer
	length   uintptr
	leafSize uintptr
	maxOrder uintptr

	// blockBase is the aligned start of the usable block area, after the
	// metadata prefix (free-list heads + alloc bits + split bits) that
	// lives at the front of base.
	blockBase unsafe.Pointer

	// allocOff[o] and splitOff[o] are bit offsets into allocBits/splitBits
	// where order o's bits begin. allocOff has maxOrder entries (orders 0
	// through maxOrder-1, since the top order has no buddy to pair with).
	// splitOff has maxOrder+1 entries, valid for o >= 1.
	allocOff []uintptr
	splitOff []uintptr

	allocBits []byte
	splitBits []byte

	// heads[o] is the free-list sentinel for order o, overlaid on the
	// first (maxOrder+1)*sizeof(listNode) bytes of base.
	heads []listNode

	free uintptr
}

// planBuddyLayout picks the largest order whose top block, together with
// the metadata prefix its own order requires, still fits inside cfg. It
// searches downward from the largest order the region could conceivably
// hold, since a larger order costs more prefix bytes but also claims a
// much larger top block; there is no closed form worth deriving for a
// one-time construction computation.
func planBuddyLayout(cfg RegionConfig) (maxOrder uintptr, allocOff, splitOff []uintptr, headsLen, allocLen, splitLen uintptr, blockBase unsafe.Pointer, err error) {
	if cfg.Base == nil || cfg.Length == 0 {
		return 0, nil, nil, 0, 0, 0, nil, ErrInvalidLayout
	}
	leaf := cfg.LeafSize
	if leaf == 0 || !isPow2(leaf) || leaf < MinLeafSizeAlign() {
		return 0, nil, nil, 0, 0, 0, nil, ErrInvalidLayout
	}

	maxK := uintptr(0)
	for leaf<<(maxK+1) <= cfg.Length {
		maxK++
	}

	k := maxK
	for {
		ao := make([]uintptr, k)
		so := make([]uintptr, k+1)
		var allocBits, splitBits uintptr
		for o := uintptr(0); o < k; o++ {
			ao[o] = allocBits
			allocBits += uintptr(1) << (k - 1 - o)
		}
		for o := uintptr(1); o <= k; o++ {
			so[o] = splitBits
			splitBits += uintptr(1) << (k - o)
		}

		hl := (k + 1) * unsafe.Sizeof(listNode{})
		al := bytesForBits(allocBits)
		sl := bytesForBits(splitBits)
		prefix := hl + al + sl
		bs := leaf << k
		base := roundUp(prefix, bs)

		if base+bs <= cfg.Length {
			return k, ao, so, hl, al, sl, unsafe.Add(cfg.Base, base), nil
		}
		if k == 0 {
			return 0, nil, nil, 0, 0, 0, nil, ErrSizeTooLarge
		}
		k--
	}
}

// NewBuddyRegion carves a BuddyRegion's metadata and free lists out of the
// front of cfg.Base and hands the remainder back as one free top-order
// block. cfg.Length must be at least MinHeapSizeAlign(cfg.LeafSize).
func NewBuddyRegion(cfg RegionConfig) (*BuddyRegion, error) {
	k, ao, so, headsLen, allocLen, splitLen, blockBase, err := planBuddyLayout(cfg)
	if err != nil {
		return nil, err
	}

	allocPtr := unsafe.Add(cfg.Base, headsLen)
	splitPtr := unsafe.Add(allocPtr, allocLen)

	r := &BuddyRegion{
		base:      cfg.Base,
		length:    cfg.Length,
		leafSize:  cfg.LeafSize,
		maxOrder:  k,
		blockBase: blockBase,
		allocOff:  ao,
		splitOff:  so,
		allocBits: unsafe.Slice((*byte)(allocPtr), allocLen),
		splitBits: unsafe.Slice((*byte)(splitPtr), splitLen),
		heads:     unsafe.Slice((*listNode)(cfg.Base), k+1),
	}

	zeroBits(r.allocBits)
	zeroBits(r.splitBits)
	for o := range r.heads {
		listInit(&r.heads[o])
	}
	listPushFront(&r.heads[k], blockBase)
	r.free = r.blockSize(k)

	Debug("buddy region ready: base=%p order=%d leaf=%d top-block=%d", cfg.Base, k, cfg.LeafSize, r.blockSize(k))
	return r, nil
}

func (r *BuddyRegion) blockSize(o uintptr) uintptr {
	return r.leafSize << o
}

func (r *BuddyRegion) indexOf(addr unsafe.Pointer, o uintptr) uintptr {
	off := uintptr(addr) - uintptr(r.blockBase)
	return off / r.blockSize(o)
}

func (r *BuddyRegion) headAt(o uintptr) *listNode {
	return &r.heads[o]
}

func (r *BuddyRegion) setSplit(o, i uintptr) {
	bitSet(r.splitBits, r.splitOff[o]+i)
}

func (r *BuddyRegion) clearSplit(o, i uintptr) {
	bitClear(r.splitBits, r.splitOff[o]+i)
}

// toggleAllocBit flips the pair bit covering block i at order o and
// returns its new value. Order maxOrder has no pair bit; callers must not
// invoke this with o == r.maxOrder.
func (r *BuddyRegion) toggleAllocBit(o, i uintptr) bool {
	return bitToggle(r.allocBits, r.allocOff[o]+(i>>1))
}

func (r *BuddyRegion) orderForSize(n uintptr) (uintptr, error) {
	o := uintptr(0)
	for r.blockSize(o) < n {
		if o == r.maxOrder {
			return 0, ErrSizeTooLarge
		}
		o++
	}
	return o, nil
}

// buddyOf returns the address of the block paired with the block at addr
// (index i) at order o.
func (r *BuddyRegion) buddyOf(addr unsafe.Pointer, o, i uintptr) unsafe.Pointer {
	if i&1 == 0 {
		return unsafe.Add(addr, r.blockSize(o))
	}
	return unsafe.Add(addr, -int(r.blockSize(o)))
}

// parentOf returns the address of the order-(o+1) block that contains the
// block at addr (index i) at order o.
func (r *BuddyRegion) parentOf(addr unsafe.Pointer, o, i uintptr) unsafe.Pointer {
	if i&1 == 0 {
		return addr
	}
	return unsafe.Add(addr, -int(r.blockSize(o)))
}

// Allocate finds the smallest free block that satisfies layout, splitting
// a larger block downward if no block of the exact target order is free.
// Because every block's offset from cfg.Base is a multiple of its own
// size, a block whose size meets layout.Align satisfies that alignment
// whenever cfg.Base is itself aligned to it, which is why the target order
// is computed from max(Size, Align) rather than from Size alone.
func (r *BuddyRegion) Allocate(layout Layout) (unsafe.Pointer, error) {
	need := layout.Size
	if need == 0 {
		need = 1
	}
	if layout.Align > need {
		need = layout.Align
	}

	target, err := r.orderForSize(need)
	if err != nil {
		return nil, err
	}

	src := target
	for src <= r.maxOrder && listIsEmpty(r.headAt(src)) {
		src++
	}
	if src > r.maxOrder {
		return nil, ErrOutOfMemory
	}

	addr := listPopFront(r.headAt(src))
	for o := src; o > target; o-- {
		r.setSplit(o, r.indexOf(addr, o))
		buddy := unsafe.Add(addr, r.blockSize(o-1))
		listPushFront(r.headAt(o-1), buddy)
		r.toggleAllocBit(o-1, r.indexOf(addr, o-1))
	}
	// The split loop above toggles the pair bits of the left halves at
	// orders src-1 down to target. The popped block's own pair bit at src
	// still needs toggling here, unless src is the top order, which has no
	// pair.
	if src < r.maxOrder {
		r.toggleAllocBit(src, r.indexOf(addr, src))
	}

	r.free -= r.blockSize(target)
	Debug("buddy alloc: order=%d addr=%p size=%d", target, addr, r.blockSize(target))
	return addr, nil
}

// Deallocate returns a previously allocated block to the free lists,
// coalescing with its buddy (and that buddy's buddy, and so on) as long as
// each successive buddy is also free.
func (r *BuddyRegion) Deallocate(ptr unsafe.Pointer, layout Layout) {
	debugAssert(r.ContainsPointer(ptr), "Deallocate: pointer outside buddy region")

	need := layout.Size
	if need == 0 {
		need = 1
	}
	if layout.Align > need {
		need = layout.Align
	}
	o, err := r.orderForSize(need)
	debugAssert(err == nil, "Deallocate: layout exceeds region capacity")

	addr := ptr
	for o < r.maxOrder {
		i := r.indexOf(addr, o)
		stillPaired := r.toggleAllocBit(o, i)
		if stillPaired {
			r.pushFree(o, addr)
			Debug("buddy free: order=%d addr=%p (buddy in use)", o, addr)
			return
		}

		buddy := r.buddyOf(addr, o, i)
		listRemove(buddy)
		r.free -= r.blockSize(o)
		parent := r.parentOf(addr, o, i)
		r.clearSplit(o+1, r.indexOf(parent, o+1))
		addr = parent
		o++
	}

	r.pushFree(o, addr)
	Debug("buddy free: order=%d addr=%p (coalesced to top)", o, addr)
}

func (r *BuddyRegion) pushFree(o uintptr, addr unsafe.Pointer) {
	listPushFront(r.headAt(o), addr)
	r.free += r.blockSize(o)
}

// AvailableBytes reports the total size of blocks currently sitting on
// free lists, not the largest single allocation a caller could still make.
func (r *BuddyRegion) AvailableBytes() uintptr {
	return r.free
}

// ContainsPointer reports whether ptr falls within the block area this
// region manages.
func (r *BuddyRegion) ContainsPointer(ptr unsafe.Pointer) bool {
	start := uintptr(r.blockBase)
	end := start + r.blockSize(r.maxOrder)
	p := uintptr(ptr)
	return p >= start && p < end
}
