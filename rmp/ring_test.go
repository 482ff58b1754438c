package rmp

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adred-codev/toroni/traits/procmutex"
)

const testRingSize = uint64(4096)
const testMaxReaders = uint32(8)

// newTestRing builds a ring and reader-info table backed by plain heap
// memory (standing in for a shared-memory mapping, which behaves
// identically within a single process) plus a real writer lock backed by a
// temp-dir lock file, and returns a ready-to-use Writer.
func newTestRing(t *testing.T) (*Ring, *ReaderInfoTable, *Writer) {
	t.Helper()

	ringMem := make([]byte, RegionSize(testRingSize))
	ring := Attach(ringMem)
	require.NoError(t, ring.Init(testRingSize))

	riMem := make([]byte, ReaderInfoRegionSize(testMaxReaders))
	lockDir := t.TempDir()
	ri := AttachReaderInfo(riMem, testMaxReaders, lockDir)
	ri.Init(testMaxReaders)

	writerLockFile := filepath.Join(lockDir, "writer.lock")
	handle, err := procmutex.Open(&ring.hdr.WriterMtx, writerLockFile)
	require.NoError(t, err)

	w, err := NewWriter(ring, ri, handle)
	require.NoError(t, err)

	return ring, ri, w
}

func TestRingAttachBeforeInitIsUninitialized(t *testing.T) {
	mem := make([]byte, RegionSize(1024))
	r := Attach(mem)
	require.False(t, r.Initialized())

	_, err := Open(mem, 1024)
	require.ErrorIs(t, err, ErrUninitialized)
}

func TestRingInitRejectsNonPowerOfTwo(t *testing.T) {
	mem := make([]byte, RegionSize(1000))
	r := Attach(mem)
	require.Error(t, r.Init(1000))
}

func TestOpenValidatesSize(t *testing.T) {
	mem := make([]byte, RegionSize(testRingSize))
	creator := Attach(mem)
	require.NoError(t, creator.Init(testRingSize))

	_, err := Open(mem, testRingSize/2)
	require.ErrorIs(t, err, ErrSizeMismatch)

	opened, err := Open(mem, testRingSize)
	require.NoError(t, err)
	require.True(t, opened.Initialized())
}

func TestReaderInfoActiveRangeWidensOnly(t *testing.T) {
	riMem := make([]byte, ReaderInfoRegionSize(testMaxReaders))
	ri := AttachReaderInfo(riMem, testMaxReaders, t.TempDir())
	ri.Init(testMaxReaders)

	min, max := ri.GetActiveRange()
	require.Equal(t, uint32(0), min)
	require.Equal(t, uint32(0), max)

	id, err := ri.Alloc()
	require.NoError(t, err)
	ri.Activate(id, 0)

	min, max = ri.GetActiveRange()
	require.Equal(t, uint32(id), min)
	require.Equal(t, uint32(id)+1, max)

	ri.Deactivate(id)
	min, max = ri.GetActiveRange()
	require.Equal(t, uint32(id), min, "range never narrows on deactivate")
	require.Equal(t, uint32(id)+1, max)
}

func TestReaderInfoAllocExhaustion(t *testing.T) {
	riMem := make([]byte, ReaderInfoRegionSize(2))
	ri := AttachReaderInfo(riMem, 2, t.TempDir())
	ri.Init(2)

	id1, err := ri.Alloc()
	require.NoError(t, err)
	id2, err := ri.Alloc()
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	_, err = ri.Alloc()
	require.ErrorIs(t, err, ErrNoFreeReaderSlot)

	require.NoError(t, ri.Free(id1))
	id3, err := ri.Alloc()
	require.NoError(t, err)
	require.Equal(t, id1, id3)
}
