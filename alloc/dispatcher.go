package alloc

import "unsafe"

// maxFreelistAllocSize is the largest request Dispatcher will ever try to
// route to the freelist tier. Requests above it go straight to the buddy
// region; this mirrors the BLOCK_SIZE-is-the-cutover rule a fixed-slot
// allocator sitting in front of a general-purpose one always needs.
const maxFreelistAllocSize = BlockSize

// DispatcherConfig holds the construction parameters for both of a
// Dispatcher's inner regions. It carries no pointers to anything but the
// caller-supplied backing memory, and is otherwise just two RegionConfig
// values side by side.
type DispatcherConfig struct {
	FreelistBase   unsafe.Pointer
	FreelistLength uintptr

	BuddyBase     unsafe.Pointer
	BuddyLength   uintptr
	BuddyLeafSize uintptr
}

// Dispatcher routes allocation requests between a FreelistRegion and a
// BuddyRegion: requests no larger than BlockSize try the freelist first,
// everything else goes to the buddy region, and Deallocate figures out
// which tier owns a pointer by asking each region whether it contains it.
//
// Dispatcher stores only its configuration at construction time; the
// inner regions are built lazily, on first use, exactly once. This mirrors
// the non-thread-safe, RefCell-guarded lazy construction of the allocator
// this package's algorithms are modeled on, using plain nil checks here since
// Dispatcher (like every type in this package) is not safe for concurrent
// use.
type Dispatcher struct {
	cfg DispatcherConfig

	freelist *FreelistRegion
	buddy    *BuddyRegion
}

// NewDispatcher returns a Dispatcher that has not yet touched either
// backing region; construction of FreelistRegion and BuddyRegion is
// deferred to the first Allocate or Deallocate call that needs them.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{cfg: cfg}
}

func (d *Dispatcher) fetchFreelist() (*FreelistRegion, error) {
	if d.freelist == nil {
		fl, err := NewFreelistRegion(RegionConfig{Base: d.cfg.FreelistBase, Length: d.cfg.FreelistLength})
		if err != nil {
			return nil, err
		}
		d.freelist = fl
		Debug("dispatcher: freelist region constructed lazily")
	}
	return d.freelist, nil
}

func (d *Dispatcher) fetchBuddy() (*BuddyRegion, error) {
	if d.buddy == nil {
		b, err := NewBuddyRegion(RegionConfig{Base: d.cfg.BuddyBase, Length: d.cfg.BuddyLength, LeafSize: d.cfg.BuddyLeafSize})
		if err != nil {
			return nil, err
		}
		d.buddy = b
		Debug("dispatcher: buddy region constructed lazily")
	}
	return d.buddy, nil
}

// Allocate routes layout to the freelist region when it fits within a
// single BlockSize slot, falling back to the buddy region when the
// freelist is full or the request is larger.
func (d *Dispatcher) Allocate(layout Layout) (unsafe.Pointer, error) {
	if layout.Size <= maxFreelistAllocSize && layout.Align <= maxFreelistAllocSize {
		fl, err := d.fetchFreelist()
		if err != nil {
			return nil, err
		}
		if ptr, err := fl.Allocate(layout); err == nil {
			return ptr, nil
		}
	}

	buddy, err := d.fetchBuddy()
	if err != nil {
		return nil, err
	}
	return buddy.Allocate(layout)
}

// Deallocate determines which region owns ptr and returns it there. The
// freelist is checked first since it is the narrower, cheaper range test.
func (d *Dispatcher) Deallocate(ptr unsafe.Pointer, layout Layout) {
	if d.freelist != nil && d.freelist.ContainsPointer(ptr) {
		d.freelist.Deallocate(ptr, layout)
		return
	}
	if d.buddy != nil && d.buddy.ContainsPointer(ptr) {
		d.buddy.Deallocate(ptr, layout)
		return
	}
	debugAssert(false, "Deallocate: pointer not owned by either region")
}

// AvailableBytes sums the free bytes of whichever inner regions have been
// constructed so far. A region that has never been touched contributes its
// full configured capacity without being constructed for the purpose of
// answering this query.
func (d *Dispatcher) AvailableBytes() uintptr {
	var total uintptr
	if d.freelist != nil {
		total += d.freelist.AvailableBytes()
	} else {
		total += d.cfg.FreelistLength
	}
	if d.buddy != nil {
		total += d.buddy.AvailableBytes()
	} else {
		total += d.cfg.BuddyLength
	}
	return total
}

// ContainsPointer reports whether ptr falls within either of the regions
// that have been constructed so far.
func (d *Dispatcher) ContainsPointer(ptr unsafe.Pointer) bool {
	if d.freelist != nil && d.freelist.ContainsPointer(ptr) {
		return true
	}
	if d.buddy != nil && d.buddy.ContainsPointer(ptr) {
		return true
	}
	return false
}
