package alloc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFreelistRegion(t *testing.T, length uintptr) *FreelistRegion {
	t.Helper()
	buf := make([]byte, length)
	r, err := NewFreelistRegion(RegionConfig{Base: unsafe.Pointer(&buf[0]), Length: length})
	require.NoError(t, err)
	return r
}

func TestNewFreelistRegionInvalid(t *testing.T) {
	buf := make([]byte, BlockSize*4)

	_, err := NewFreelistRegion(RegionConfig{Base: nil, Length: BlockSize * 4})
	assert.ErrorIs(t, err, ErrInvalidLayout)

	_, err = NewFreelistRegion(RegionConfig{Base: unsafe.Pointer(&buf[0]), Length: 0})
	assert.ErrorIs(t, err, ErrInvalidLayout)

	_, err = NewFreelistRegion(RegionConfig{Base: unsafe.Pointer(&buf[0]), Length: BlockSize + 1})
	assert.ErrorIs(t, err, ErrInvalidLayout)
}

func TestFreelistRegionOversizeRejected(t *testing.T) {
	r := newTestFreelistRegion(t, BlockSize*8)
	_, err := r.Allocate(Layout{Size: BlockSize + 1})
	assert.ErrorIs(t, err, ErrFreelistOversize)

	_, err = r.Allocate(Layout{Size: 8, Align: BlockSize * 2})
	assert.ErrorIs(t, err, ErrFreelistOversize)
}

func TestFreelistRegionDrainsEverySlot(t *testing.T) {
	const slots = 16
	r := newTestFreelistRegion(t, BlockSize*slots)

	seen := make(map[unsafe.Pointer]bool)
	count := 0
	for {
		p, err := r.Allocate(Layout{Size: 8})
		if err != nil {
			break
		}
		assert.False(t, seen[p], "slot handed out twice")
		seen[p] = true
		count++
		require.Less(t, count, slots+1)
	}

	assert.Equal(t, slots, count)
	assert.Equal(t, uintptr(0), r.AvailableBytes())

	_, err := r.Allocate(Layout{Size: 8})
	assert.ErrorIs(t, err, ErrOutOfMemory)
}

func TestFreelistRegionReuseAfterFree(t *testing.T) {
	r := newTestFreelistRegion(t, BlockSize*4)

	p1, err := r.Allocate(Layout{Size: 8})
	require.NoError(t, err)
	p2, err := r.Allocate(Layout{Size: 8})
	require.NoError(t, err)

	r.Deallocate(p1, Layout{Size: 8})
	p3, err := r.Allocate(Layout{Size: 8})
	require.NoError(t, err)
	assert.Equal(t, p1, p3)

	r.Deallocate(p2, Layout{Size: 8})
	r.Deallocate(p3, Layout{Size: 8})
	assert.Equal(t, uintptr(4*BlockSize), r.AvailableBytes())
}

func TestFreelistRegionSentinelExhaustionAndRecovery(t *testing.T) {
	r := newTestFreelistRegion(t, BlockSize)

	p, err := r.Allocate(Layout{Size: 8})
	require.NoError(t, err)
	assert.Equal(t, uintptr(0), r.AvailableBytes())

	_, err = r.Allocate(Layout{Size: 8})
	assert.ErrorIs(t, err, ErrOutOfMemory)

	r.Deallocate(p, Layout{Size: 8})
	assert.Equal(t, uintptr(BlockSize), r.AvailableBytes())

	p2, err := r.Allocate(Layout{Size: 8})
	require.NoError(t, err)
	assert.Equal(t, p, p2)
}

func TestFreelistRegionContainsPointer(t *testing.T) {
	r := newTestFreelistRegion(t, BlockSize*4)
	p, err := r.Allocate(Layout{Size: 8})
	require.NoError(t, err)
	assert.True(t, r.ContainsPointer(p))

	outside := make([]byte, BlockSize)
	assert.False(t, r.ContainsPointer(unsafe.Pointer(&outside[0])))
}
