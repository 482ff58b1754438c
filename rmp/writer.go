package rmp

import (
	"github.com/adred-codev/toroni/traits/procmutex"
)

// BackpressureHandler is invoked when a write would overrun an active
// reader's position. freePos is the stream tail at the moment backpressure
// was detected. Returning true tells the writer to retry; returning false
// tells it to force the write through regardless, sacrificing that reader's
// data. bpPos is always 0 on this call site: the underlying write routine
// computes the actual blocking reader's position but the writer never
// forwards it, matching the reference implementation's call site rather
// than a more informative signature.
type BackpressureHandler func(bpPos, freePos Position) bool

// Writer appends frames to a Ring. Writers in different processes, or
// holding separately opened handles on the ring's WriterMtx, are serialized
// by that lock in WriteEx. Concurrent WriteEx calls sharing one Handle are
// not excluded from each other, since the flock belongs to the Handle's open
// file.
type Writer struct {
	ring       *Ring
	readerInfo *ReaderInfoTable
	lock       *procmutex.Handle
}

// NewWriter constructs a Writer over an initialized ring and its reader
// table, serialized by lock (a procmutex.Handle opened against the ring
// header's WriterMtx).
func NewWriter(ring *Ring, readerInfo *ReaderInfoTable, lock *procmutex.Handle) (*Writer, error) {
	if !ring.Initialized() {
		return nil, ErrUninitialized
	}
	return &Writer{ring: ring, readerInfo: readerInfo, lock: lock}, nil
}

// MaxMessageSize returns the largest payload that can ever be written to
// this ring, regardless of current occupancy.
func (w *Writer) MaxMessageSize() uint32 {
	return uint32(w.ring.size()) - uint32(HeaderSize)
}

// WriteEx appends data to the ring. If an active reader would be overrun,
// bp is called repeatedly (each time reporting the same freePos snapshot
// from the retry that triggered it) until either a retry no longer detects
// backpressure, in which case the write proceeds normally, or bp returns
// false, at which point the write is forced through unconditionally.
func (w *Writer) WriteEx(data []byte, bp BackpressureHandler) error {
	if uint32(len(data)) > w.MaxMessageSize() {
		return ErrMessageTooLarge
	}

	if err := w.lock.Lock(); err != nil {
		return err
	}
	defer w.lock.Unlock()

	for {
		detected := w.write(data, true)
		if !detected {
			return nil
		}
		w.ring.hdr.Stats.BackPressureCount.Add(1)
		if !bp(0, w.ring.hdr.FreePos.Load()) {
			w.write(data, false)
			return nil
		}
	}
}

// write performs one attempt at appending data. When checkBP is true and an
// active reader would be overrun by the write, it returns true without
// mutating the ring.
func (w *Writer) write(data []byte, checkBP bool) bool {
	size := Position(len(data))
	ringSize := w.ring.size()
	mask := w.ring.mask
	freePos := w.ring.hdr.FreePos.Load()
	bufIndex := BufIndex(mask, freePos)
	lengthToEnd := ringSize - bufIndex
	bytesToWrite := HeaderSize + size

	addPadding, addBlank := false, false
	switch {
	case lengthToEnd < HeaderSize:
		addBlank = true
		bytesToWrite += lengthToEnd
	case lengthToEnd < size+HeaderSize:
		addPadding = true
		bytesToWrite += lengthToEnd
	}

	if checkBP && w.detectBackpressure(bytesToWrite) {
		return true
	}

	if addPadding {
		PutHeader(w.ring.data[bufIndex:], Header{Type: FramePadding, Length: uint32(lengthToEnd - HeaderSize)})
		freePos += lengthToEnd
		w.ring.hdr.FreePos.Store(freePos)
		bufIndex = 0
	} else if addBlank {
		freePos += lengthToEnd
		w.ring.hdr.FreePos.Store(freePos)
		bufIndex = 0
	}

	PutHeader(w.ring.data[bufIndex:], Header{Type: FrameMsg, Length: uint32(size)})
	copy(w.ring.data[bufIndex+HeaderSize:], data)

	freePos += HeaderSize + size
	w.ring.hdr.FreePos.Store(freePos)

	return false
}

// detectBackpressure reports whether writing n more bytes from the current
// freePos would expire any currently active reader.
func (w *Writer) detectBackpressure(n Position) bool {
	min, max := w.readerInfo.GetActiveRange()
	freePos := w.ring.hdr.FreePos.Load()
	ringSize := w.ring.size()
	for i := min; i < max; i++ {
		slot := w.readerInfo.Get(ReaderID(i))
		if !slot.IsActive() {
			continue
		}
		pos := slot.Position.Load()
		if Expired(pos, freePos, ringSize) {
			continue
		}
		if Expired(pos, freePos+n, ringSize) {
			return true
		}
	}
	return false
}
