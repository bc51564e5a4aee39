package alloc

import "unsafe"

const (
	// BlockSize is the fixed slot size served by FreelistRegion.
	BlockSize = 64
)

// Layout describes a requested allocation's size and alignment, mirroring
// the size/align pair a standard allocator trait takes.
type Layout struct {
	Size  uintptr
	Align uintptr
}

// RegionConfig describes the immutable construction parameters of a
// BuddyRegion: a caller-owned base address, its length in bytes, and the
// smallest allocatable unit.
type RegionConfig struct {
	Base     unsafe.Pointer
	Length   uintptr
	LeafSize uintptr
}

// Allocator is the contract BuddyRegion, FreelistRegion and Dispatcher all
// satisfy: allocate a span of at least Layout.Size bytes, or report
// failure; deallocate a span previously returned by Allocate using the
// same layout that produced it.
type Allocator interface {
	Allocate(layout Layout) (unsafe.Pointer, error)
	Deallocate(ptr unsafe.Pointer, layout Layout)
}

var (
	_ Allocator = (*BuddyRegion)(nil)
	_ Allocator = (*FreelistRegion)(nil)
	_ Allocator = (*Dispatcher)(nil)
)

// MinLeafSizeAlign is the smallest permitted BuddyRegion leaf size: the
// power-of-two size that holds two machine pointers, since every free leaf
// has an intrusive list node written into its first bytes.
func MinLeafSizeAlign() uintptr {
	return roundUpPow2(2 * unsafe.Sizeof(uintptr(0)))
}

// MinHeapSizeAlign is the smallest permitted BuddyRegion length for the
// given leaf size. Below this the metadata overhead leaves no usable
// capacity.
func MinHeapSizeAlign(leafSize uintptr) uintptr {
	return 16 * leafSize
}

func roundUpPow2(n uintptr) uintptr {
	if n <= 1 {
		return 1
	}
	p := uintptr(1)
	for p < n {
		p <<= 1
	}
	return p
}

func roundUp(n, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}

func isPow2(n uintptr) bool {
	return n != 0 && n&(n-1) == 0
}
