package rmp

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/adred-codev/toroni/traits/procmutex"
)

// ReaderID indexes a slot in a ReaderInfoTable.
type ReaderID int32

// InvalidReaderID is returned by Alloc on failure and used as the
// sentinel for "no reader".
const InvalidReaderID ReaderID = -1

// ReaderSlot is one entry in the reader-info table: a reader's current
// position, its liveness flag, and the lock whose holder owns the slot (held
// from Alloc until Free; position and flag updates do not take it).
// Every field is pointer-free so the slot can live in shared memory.
type ReaderSlot struct {
	Lock     procmutex.Mutex
	Position atomic.Uint64
	isActive atomic.Uint32
}

// IsActive reports whether the slot currently belongs to a live reader.
func (s *ReaderSlot) IsActive() bool {
	return s.isActive.Load() != 0
}

// readerInfoHeader is the fixed-size header preceding the slot array.
type readerInfoHeader struct {
	ExpiredReaders atomic.Uint64
	activeRange    atomic.Uint64 // packed: high 32 bits = min, low 32 bits = maxExclusive
	maxReaders     uint32
	initialized    atomic.Bool
}

// ReaderInfoTable is a shared-memory table of ReaderSlot entries plus the
// bookkeeping a writer needs to scan only the currently in-use range of
// slots rather than the whole table on every write.
type ReaderInfoTable struct {
	hdr     *readerInfoHeader
	slots   []ReaderSlot
	lockDir string

	mu      sync.Mutex
	handles map[ReaderID]*procmutex.Handle
}

// ReaderInfoHeaderSize returns the header's fixed byte size, for sizing the
// shared-memory allocation alongside SlotSize.
func ReaderInfoHeaderSize() uint64 {
	return uint64(unsafe.Sizeof(readerInfoHeader{}))
}

// SlotSize returns the byte size of one ReaderSlot.
func SlotSize() uint64 {
	return uint64(unsafe.Sizeof(ReaderSlot{}))
}

// ReaderInfoRegionSize returns the total shared-memory size required for a
// table with room for maxReaders slots.
func ReaderInfoRegionSize(maxReaders uint32) uint64 {
	return ReaderInfoHeaderSize() + uint64(maxReaders)*SlotSize()
}

// AttachReaderInfo maps a ReaderInfoTable view over mem without
// initializing anything. lockDir names a directory (already created by the
// caller) where this table's per-slot flock files live; every process
// attaching to the same table must pass the same directory.
func AttachReaderInfo(mem []byte, maxReaders uint32, lockDir string) *ReaderInfoTable {
	hdr := (*readerInfoHeader)(unsafe.Pointer(&mem[0]))
	slotsBytes := mem[ReaderInfoHeaderSize():]
	slots := unsafe.Slice((*ReaderSlot)(unsafe.Pointer(&slotsBytes[0])), maxReaders)
	return &ReaderInfoTable{hdr: hdr, slots: slots, lockDir: lockDir, handles: make(map[ReaderID]*procmutex.Handle)}
}

// Init placement-constructs the header for a freshly allocated region. Call
// exactly once, from the creating process.
func (t *ReaderInfoTable) Init(maxReaders uint32) {
	t.hdr.maxReaders = maxReaders
	t.hdr.activeRange.Store(0)
	t.hdr.initialized.Store(true)
}

// Initialized reports whether the creator has finished constructing the
// header.
func (t *ReaderInfoTable) Initialized() bool {
	return t.hdr.initialized.Load()
}

// OpenReaderInfo attaches to an already-initialized table.
func OpenReaderInfo(mem []byte, maxReaders uint32, lockDir string) (*ReaderInfoTable, error) {
	t := AttachReaderInfo(mem, maxReaders, lockDir)
	if !t.Initialized() {
		return nil, ErrUninitialized
	}
	return t, nil
}

func (t *ReaderInfoTable) lockPath(id ReaderID) string {
	return filepath.Join(t.lockDir, fmt.Sprintf("reader-%d.lock", id))
}

func (t *ReaderInfoTable) handle(id ReaderID) (*procmutex.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.handles[id]; ok {
		return h, nil
	}
	h, err := procmutex.Open(&t.slots[id].Lock, t.lockPath(id))
	if err != nil {
		return nil, err
	}
	t.handles[id] = h
	return h, nil
}

// Alloc finds a free slot, claims it under its per-slot lock, and returns
// its id. The slot starts inactive; call Activate to publish a position.
func (t *ReaderInfoTable) Alloc() (ReaderID, error) {
	for i := range t.slots {
		id := ReaderID(i)
		t.mu.Lock()
		_, held := t.handles[id]
		t.mu.Unlock()
		if held {
			// Already allocated by this process: a second flock through the
			// same file would succeed, so it must be skipped here.
			continue
		}
		h, err := procmutex.Open(&t.slots[id].Lock, t.lockPath(id))
		if err != nil {
			return InvalidReaderID, err
		}
		ok, err := h.TryLock()
		if err != nil {
			_ = h.Close()
			return InvalidReaderID, err
		}
		if !ok {
			_ = h.Close()
			continue
		}
		if t.slots[id].IsActive() {
			_ = h.Unlock()
			_ = h.Close()
			continue
		}
		t.mu.Lock()
		t.handles[id] = h
		t.mu.Unlock()
		return id, nil
	}
	return InvalidReaderID, ErrNoFreeReaderSlot
}

// Free releases a previously allocated slot back to the pool.
func (t *ReaderInfoTable) Free(id ReaderID) error {
	t.Deactivate(id)
	h, err := t.handle(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	delete(t.handles, id)
	t.mu.Unlock()
	if err := h.Unlock(); err != nil {
		return err
	}
	return h.Close()
}

// Get returns the slot for id.
func (t *ReaderInfoTable) Get(id ReaderID) *ReaderSlot {
	return &t.slots[id]
}

// Activate marks slot id active at the given position and widens the
// active range if needed.
func (t *ReaderInfoTable) Activate(id ReaderID, pos Position) {
	t.slots[id].Position.Store(pos)
	t.slots[id].isActive.Store(1)
	t.widenActiveRange(id)
}

// Deactivate marks slot id inactive. The active range is left as-is; it
// only ever widens, and GetActiveRange callers already skip inactive slots.
func (t *ReaderInfoTable) Deactivate(id ReaderID) {
	t.slots[id].isActive.Store(0)
}

func (t *ReaderInfoTable) widenActiveRange(id ReaderID) {
	for {
		cur := t.hdr.activeRange.Load()
		min, max := unpackRange(cur)
		newMin, newMax := min, max
		if uint32(id) < min || max == 0 {
			newMin = uint32(id)
		}
		if uint32(id)+1 > max {
			newMax = uint32(id) + 1
		}
		if newMin == min && newMax == max {
			return
		}
		if t.hdr.activeRange.CompareAndSwap(cur, packRange(newMin, newMax)) {
			return
		}
	}
}

// GetActiveRange returns [min, max) over slot indices that may currently be
// active. Slots outside this range are guaranteed inactive; slots inside it
// must still be checked individually, since the range never narrows.
func (t *ReaderInfoTable) GetActiveRange() (min, max uint32) {
	return unpackRange(t.hdr.activeRange.Load())
}

// ExpiredCount returns the running count of reads that observed an expired
// position, across every reader that has ever used this table.
func (t *ReaderInfoTable) ExpiredCount() uint64 {
	return t.hdr.ExpiredReaders.Load()
}

func (t *ReaderInfoTable) noteExpired() {
	t.hdr.ExpiredReaders.Add(1)
}

func packRange(min, max uint32) uint64 {
	return uint64(min)<<32 | uint64(max)
}

func unpackRange(v uint64) (min, max uint32) {
	return uint32(v >> 32), uint32(v)
}
