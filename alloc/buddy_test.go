package alloc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuddyRegion(t *testing.T, length, leaf uintptr) *BuddyRegion {
	t.Helper()
	buf := make([]byte, length)
	r, err := NewBuddyRegion(RegionConfig{Base: unsafe.Pointer(&buf[0]), Length: length, LeafSize: leaf})
	require.NoError(t, err)
	return r
}

func TestNewBuddyRegionInvalidLayout(t *testing.T) {
	buf := make([]byte, 4096)

	_, err := NewBuddyRegion(RegionConfig{Base: nil, Length: 4096, LeafSize: 64})
	assert.ErrorIs(t, err, ErrInvalidLayout)

	_, err = NewBuddyRegion(RegionConfig{Base: unsafe.Pointer(&buf[0]), Length: 0, LeafSize: 64})
	assert.ErrorIs(t, err, ErrInvalidLayout)

	_, err = NewBuddyRegion(RegionConfig{Base: unsafe.Pointer(&buf[0]), Length: 4096, LeafSize: 0})
	assert.ErrorIs(t, err, ErrInvalidLayout)

	_, err = NewBuddyRegion(RegionConfig{Base: unsafe.Pointer(&buf[0]), Length: 4096, LeafSize: 48})
	assert.ErrorIs(t, err, ErrInvalidLayout)

	_, err = NewBuddyRegion(RegionConfig{Base: unsafe.Pointer(&buf[0]), Length: 4096, LeafSize: MinLeafSizeAlign() / 2})
	assert.ErrorIs(t, err, ErrInvalidLayout)
}

func TestBuddyRegionAvailableBytesOverhead(t *testing.T) {
	const heapSize = uintptr(1 << 20)
	const leafSize = uintptr(16)
	r := newTestBuddyRegion(t, heapSize, leafSize)

	// The metadata prefix keeps a 1 MiB top block from fitting, so the
	// largest power-of-two block left is half the region.
	available := r.AvailableBytes()
	assert.Equal(t, heapSize/2, available)
}

func TestBuddyRegionBasicAllocate(t *testing.T) {
	r := newTestBuddyRegion(t, 1<<16, 16)

	p, err := r.Allocate(Layout{Size: 512, Align: 8})
	require.NoError(t, err)
	require.NotNil(t, p)

	b := (*byte)(p)
	*b = 42
	assert.Equal(t, byte(42), *b)

	assert.True(t, r.ContainsPointer(p))
}

func TestBuddyRegionSizeExceedsCapacity(t *testing.T) {
	r := newTestBuddyRegion(t, 1<<16, 16)
	_, err := r.Allocate(Layout{Size: 1 << 20})
	assert.ErrorIs(t, err, ErrSizeTooLarge)
}

func TestBuddyRegionDrainLargestFirst(t *testing.T) {
	r := newTestBuddyRegion(t, 1<<20, 16)

	count := 0
	for {
		avail := r.AvailableBytes()
		if avail < 16 {
			break
		}
		sz := largestPow2LE(avail)
		_, err := r.Allocate(Layout{Size: sz, Align: 1})
		require.NoError(t, err, "iteration %d, avail=%d, sz=%d", count, avail, sz)
		count++
		require.Less(t, count, 100000, "runaway allocation loop")
	}

	assert.Greater(t, count, 0)
	_, err := r.Allocate(Layout{Size: 1, Align: 1})
	assert.Error(t, err)
}

func TestBuddyRegionDrainLeafSized(t *testing.T) {
	const leaf = uintptr(16)
	r := newTestBuddyRegion(t, 1<<16, leaf)

	count := 0
	for r.AvailableBytes() >= leaf {
		_, err := r.Allocate(Layout{Size: leaf, Align: 1})
		require.NoError(t, err)
		count++
		require.Less(t, count, 100000, "runaway allocation loop")
	}

	assert.Greater(t, count, 0)
	_, err := r.Allocate(Layout{Size: 1, Align: 1})
	assert.Error(t, err)
}

func TestBuddyRegionSplitAndCoalesceRestoresCapacity(t *testing.T) {
	r := newTestBuddyRegion(t, 1<<18, 16)
	initial := r.AvailableBytes()

	small := Layout{Size: 64, Align: 8}
	large := Layout{Size: 8192, Align: 8}

	ps, err := r.Allocate(small)
	require.NoError(t, err)
	pl, err := r.Allocate(large)
	require.NoError(t, err)

	r.Deallocate(ps, small)
	r.Deallocate(pl, large)

	assert.Equal(t, initial, r.AvailableBytes())
}

// TestBuddyRegionRoundTripRestoresStructure checks the free-list and
// bitmap structure itself, not just the AvailableBytes() total: total free
// bytes is conserved even when a pair bit is corrupted and two free
// buddies fail to coalesce, so a byte-count assertion alone cannot catch a
// broken merge. After a full allocate/free round trip every split bit and
// alloc bit must be back to zero, every non-top order's free list must be
// empty, and the top order's free list must hold exactly one node at
// blockBase again.
func TestBuddyRegionRoundTripRestoresStructure(t *testing.T) {
	r := newTestBuddyRegion(t, 1<<18, 16)

	small := Layout{Size: 64, Align: 8}
	large := Layout{Size: 8192, Align: 8}

	ps, err := r.Allocate(small)
	require.NoError(t, err)
	pl, err := r.Allocate(large)
	require.NoError(t, err)

	r.Deallocate(ps, small)
	r.Deallocate(pl, large)

	for i, b := range r.allocBits {
		assert.Equal(t, byte(0), b, "allocBits[%d] not cleared", i)
	}
	for i, b := range r.splitBits {
		assert.Equal(t, byte(0), b, "splitBits[%d] not cleared", i)
	}
	for o := uintptr(0); o < r.maxOrder; o++ {
		assert.True(t, listIsEmpty(r.headAt(o)), "order %d free list not empty after full coalesce", o)
	}

	top := r.headAt(r.maxOrder)
	require.False(t, listIsEmpty(top), "top order lost its sole free block")
	assert.Equal(t, r.blockBase, top.next, "top order's free block is not blockBase")
	assert.Equal(t, r.blockBase, top.prev, "top order free list holds more than one node")
}

func TestBuddyRegionFreeBugRegression(t *testing.T) {
	r := newTestBuddyRegion(t, 1<<20, 16)

	l1 := Layout{Size: 32, Align: 1}
	p1, err := r.Allocate(l1)
	require.NoError(t, err)
	r.Deallocate(p1, l1)

	l2 := Layout{Size: 40961, Align: 1}
	l3 := Layout{Size: 1381, Align: 1}
	p2, err := r.Allocate(l2)
	require.NoError(t, err)
	p3, err := r.Allocate(l3)
	require.NoError(t, err)

	r.Deallocate(p2, l2)
	r.Deallocate(p3, l3)
}

type buddyAllocRecord struct {
	ptr    unsafe.Pointer
	layout Layout
}

func TestBuddyRegionAlternatingGapPattern(t *testing.T) {
	const leaf = uintptr(512)
	const heap = uintptr(1 << 20)

	r := newTestBuddyRegion(t, heap, leaf)
	initial := r.AvailableBytes()
	blocksNum := initial / leaf
	quarter := blocksNum / 4

	for rep := 0; rep < 10; rep++ {
		var recs []buddyAllocRecord

		for j := uintptr(0); j < quarter; j++ {
			l1 := Layout{Size: leaf, Align: 1}
			p1, err := r.Allocate(l1)
			require.NoError(t, err, "rep=%d", rep)
			recs = append(recs, buddyAllocRecord{p1, l1})

			l2 := Layout{Size: 2 * leaf, Align: 1}
			p2, err := r.Allocate(l2)
			require.NoError(t, err, "rep=%d", rep)
			recs = append(recs, buddyAllocRecord{p2, l2})
		}
		for j := uintptr(0); j < quarter; j++ {
			l1 := Layout{Size: leaf, Align: 1}
			p1, err := r.Allocate(l1)
			require.NoError(t, err, "rep=%d", rep)
			recs = append(recs, buddyAllocRecord{p1, l1})
		}
		for r.AvailableBytes() >= leaf {
			l1 := Layout{Size: leaf, Align: 1}
			p1, err := r.Allocate(l1)
			require.NoError(t, err, "rep=%d", rep)
			recs = append(recs, buddyAllocRecord{p1, l1})
		}

		for _, rec := range recs {
			r.Deallocate(rec.ptr, rec.layout)
		}
		assert.Equal(t, initial, r.AvailableBytes(), "rep=%d", rep)
	}
}

func TestBuddyRegionContainsPointerBounds(t *testing.T) {
	r := newTestBuddyRegion(t, 1<<16, 16)
	p, err := r.Allocate(Layout{Size: 64})
	require.NoError(t, err)

	assert.True(t, r.ContainsPointer(p))

	outside := make([]byte, 16)
	assert.False(t, r.ContainsPointer(unsafe.Pointer(&outside[0])))
}

func largestPow2LE(n uintptr) uintptr {
	p := uintptr(1)
	for p*2 <= n {
		p *= 2
	}
	return p
}
