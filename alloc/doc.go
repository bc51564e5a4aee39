// Package alloc implements a dual-tier memory allocator for bare-metal and
// embedded environments without an operating-system heap. A caller supplies
// one or more pre-reserved contiguous byte regions at construction time;
// the package then services size-and-alignment allocation requests out of
// those regions and reclaims freed blocks, without ever asking the
// environment for more memory.
//
// Three types do the work: BuddyRegion is a power-of-two buddy allocator
// for the general case, FreelistRegion is a fixed-64-byte-slot allocator
// that accelerates small requests, and Dispatcher is a thin façade that
// routes each request to the appropriate tier.
//
// None of these types are safe for concurrent use. Every operation mutates
// shared free-list and bitmap state with no locking whatsoever; callers in
// a multi-threaded context must serialize access externally, and must
// never re-enter an allocator from within one of its own calls.
package alloc
