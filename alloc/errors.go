package alloc

import "errors"

// Error definitions. These are the only recoverable failures the package
// ever returns; construction parameters that are cheap to check once (nil
// base, bad length, a leaf size that is not a power of two or is below
// MinLeafSizeAlign) are reported as ErrInvalidLayout, while violations on
// the hot paths (pointers outside a region on free) are guarded by
// debugAssert instead, per the package's single-threaded, no-retry error
// model. The alignment of a region's base address is not checked.
var (
	// ErrOutOfMemory is returned when a region has no block or slot large
	// enough to satisfy a request. The caller's state is left untouched.
	ErrOutOfMemory = errors.New("alloc: out of memory")

	// ErrSizeTooLarge is returned when a requested size exceeds what the
	// region could ever serve, regardless of current fragmentation.
	ErrSizeTooLarge = errors.New("alloc: requested size exceeds region capacity")

	// ErrInvalidLayout is returned for construction-time precondition
	// violations that are cheap to check once (sub-minimum leaf size,
	// misconfigured length, nil base).
	ErrInvalidLayout = errors.New("alloc: invalid region layout")

	// ErrFreelistOversize is returned when a FreelistRegion is asked for a
	// layout that cannot possibly fit in a single fixed-size slot.
	ErrFreelistOversize = errors.New("alloc: requested size exceeds freelist block size")
)
