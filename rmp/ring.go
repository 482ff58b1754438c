package rmp

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/adred-codev/toroni/traits/procmutex"
)

// RingStats are free-running counters surfaced to the owning process for
// observability; they are not required for correctness.
type RingStats struct {
	BackPressureCount atomic.Uint64
	NotificationCount atomic.Uint64
}

// RingHeader is the fixed-size, pointer-free header placed at the start of
// the shared-memory region backing a Ring. Every field here is safe to
// touch from multiple processes mapping the same region: FreePos and Stats
// are atomics, WriterMtx serializes writers, and initialized is set last by
// the creator so non-creators can poll it before trusting the rest of the
// header.
type RingHeader struct {
	ConfigBufSizeBytes uint64
	WriterMtx          procmutex.Mutex
	FreePos            atomic.Uint64
	Stats              RingStats
	initialized        atomic.Bool
}

// RingHeaderSize returns the byte size reserved for a RingHeader at the front
// of a Ring's backing region, for sizing shared-memory allocations.
func RingHeaderSize() uint64 {
	return uint64(unsafe.Sizeof(RingHeader{}))
}

// RegionSize returns the total shared-memory region size required for a
// ring whose payload is ringSize bytes.
func RegionSize(ringSize uint64) uint64 {
	return RingHeaderSize() + ringSize
}

// Ring is a view over a shared-memory region: a RingHeader followed by the
// byte payload it describes. It holds no data of its own beyond pointers
// into mem, so the Ring is only as alive as the memory backing it.
type Ring struct {
	hdr  *RingHeader
	data []byte
	mask Position
}

// Attach maps a Ring view over mem without initializing anything. Use Init
// exactly once from the creating process, or Open from any process once the
// creator has initialized the region.
func Attach(mem []byte) *Ring {
	hdr := (*RingHeader)(unsafe.Pointer(&mem[0]))
	return &Ring{hdr: hdr, data: mem[RingHeaderSize():]}
}

// Init placement-constructs the header for a freshly allocated region. Call
// exactly once, from the process that created the backing shared memory;
// every other attacher must use Open instead.
func (r *Ring) Init(ringSize uint64) error {
	if ringSize == 0 || !IsPowerOfTwo(ringSize) {
		return fmt.Errorf("rmp: ring size %d is not a power of two", ringSize)
	}
	if uint64(len(r.data)) < ringSize {
		return fmt.Errorf("rmp: backing region too small for ring size %d", ringSize)
	}
	r.hdr.ConfigBufSizeBytes = ringSize
	r.data = r.data[:ringSize]
	r.mask = IndexMask(ringSize)
	r.hdr.initialized.Store(true)
	return nil
}

// Initialized reports whether the creator has finished constructing the
// header. Non-creating processes must poll this before trusting the ring.
func (r *Ring) Initialized() bool {
	return r.hdr.initialized.Load()
}

// Open attaches to an already-initialized region and validates its recorded
// size against expectedSize. Pass 0 to accept whatever size the creator
// chose.
func Open(mem []byte, expectedSize uint64) (*Ring, error) {
	r := Attach(mem)
	if !r.Initialized() {
		return nil, ErrUninitialized
	}
	size := r.hdr.ConfigBufSizeBytes
	if expectedSize != 0 && size != expectedSize {
		return nil, ErrSizeMismatch
	}
	r.data = r.data[:size]
	r.mask = IndexMask(size)
	return r, nil
}

func (r *Ring) size() Position {
	return Position(r.hdr.ConfigBufSizeBytes)
}

// Stats exposes the ring's free-running counters.
func (r *Ring) Stats() *RingStats {
	return &r.hdr.Stats
}

// FreePos returns the current stream tail: one past the last byte written.
func (r *Ring) FreePos() Position {
	return r.hdr.FreePos.Load()
}

// WriterMutex returns the ring's writer-serialization mutex state, for a
// process to open a procmutex.Handle against when constructing a Writer.
func (r *Ring) WriterMutex() *procmutex.Mutex {
	return &r.hdr.WriterMtx
}
