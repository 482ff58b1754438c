package rmp

import "sync/atomic"

// ReaderWithBackpressure is a stateful reader: it owns a ReaderInfoTable
// slot, so a Writer on the same ring sees its position and will not overrun
// it without first consulting the configured BackpressureHandler.
type ReaderWithBackpressure struct {
	reader     *Reader
	readerInfo *ReaderInfoTable
	id         ReaderID
	slot       *ReaderSlot
	pos        atomic.Uint64
}

// NewReaderWithBackpressure allocates a reader-info slot for a new reader
// on ring. The reader starts inactive; call Activate before the first
// ReadEx.
func NewReaderWithBackpressure(ring *Ring, readerInfo *ReaderInfoTable) (*ReaderWithBackpressure, error) {
	if !readerInfo.Initialized() {
		return nil, ErrUninitialized
	}
	reader, err := NewReader(ring)
	if err != nil {
		return nil, err
	}
	id, err := readerInfo.Alloc()
	if err != nil {
		return nil, err
	}
	return &ReaderWithBackpressure{
		reader:     reader,
		readerInfo: readerInfo,
		id:         id,
		slot:       readerInfo.Get(id),
	}, nil
}

// Activate publishes the reader's starting position (the ring's current
// tail, so it only sees messages written from now on) and marks the slot
// active so writers account for it.
func (r *ReaderWithBackpressure) Activate() {
	start := r.reader.ring.hdr.FreePos.Load()
	r.pos.Store(start)
	r.slot.Position.Store(start)
	r.readerInfo.Activate(r.id, start)
}

// Deactivate marks the slot inactive; a writer will no longer wait on this
// reader, but the slot stays allocated until Close.
func (r *ReaderWithBackpressure) Deactivate() {
	r.readerInfo.Deactivate(r.id)
}

// IsActive reports whether the underlying slot is currently marked active.
func (r *ReaderWithBackpressure) IsActive() bool {
	return r.slot.IsActive()
}

// Pos returns the reader's last-known position.
func (r *ReaderWithBackpressure) Pos() Position {
	return r.pos.Load()
}

// ReadEx reads and dispatches messages up to the current ring tail,
// publishing progress to the reader-info slot that a writer consults for
// backpressure.
func (r *ReaderWithBackpressure) ReadEx(cb CopyConfirmer) ReadResult {
	result := r.reader.ReadEx(&r.pos, &r.slot.Position, cb)
	if result == ReadExpiredPosition {
		r.readerInfo.noteExpired()
	}
	return result
}

// Close releases the reader-info slot back to the pool.
func (r *ReaderWithBackpressure) Close() error {
	return r.readerInfo.Free(r.id)
}
