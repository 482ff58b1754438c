package rmp

import "sync/atomic"

// ReadResult is the outcome of one ReadEx call.
type ReadResult int

const (
	// ReadSuccess means pos was advanced to the current freePos and every
	// message frame in between was delivered to the CopyConfirmer.
	ReadSuccess ReadResult = iota
	// ReadInvalidPosition means pos was ahead of the ring's freePos, which
	// can only happen if the caller passed a position that never came from
	// this ring.
	ReadInvalidPosition
	// ReadExpiredPosition means the writer overran pos before or during the
	// read; pos has been advanced to the point of expiration and the
	// caller's data since the prior successful read is lost.
	ReadExpiredPosition
)

// CopyConfirmer lets a reader control how a message's bytes are consumed.
// Copy is handed a slice backed directly by ring memory — valid only until
// the call returns — and should copy whatever bytes it needs out. It
// returns whether to proceed with confirmation at all (a reader uninterested
// in this particular message can return false to skip Confirm). Confirm is
// only called if the message was not found to have expired between Copy and
// the post-copy recheck.
type CopyConfirmer interface {
	Copy(data []byte) bool
	Confirm()
}

// Reader performs stateless reads over a Ring: it has no reader-info slot
// of its own and does no backpressure participation. The read cursor and
// the sparsely published position live in whatever atomics the caller
// supplies; ReaderWithBackpressure passes its own cursor and its ReaderSlot's
// Position.
type Reader struct {
	ring *Ring
}

// NewReader constructs a Reader over an initialized ring.
func NewReader(ring *Ring) (*Reader, error) {
	if !ring.Initialized() {
		return nil, ErrUninitialized
	}
	return &Reader{ring: ring}, nil
}

// ReadEx advances pos from its current value toward the ring's current
// freePos, delivering every message frame encountered to cb. bpos is
// updated periodically (at most once every half-ring-size of bytes
// consumed, plus always on completion) so that a writer scanning reader
// positions for backpressure does not need every reader to publish on every
// single message.
func (r *Reader) ReadEx(pos, bpos *atomic.Uint64, cb CopyConfirmer) ReadResult {
	ringSize := r.ring.size()
	mask := r.ring.mask

	curPos := pos.Load()
	if GreaterThan(curPos, r.ring.hdr.FreePos.Load()) {
		return ReadInvalidPosition
	}

	bposMaxLag := ringSize / 2

	for {
		freePos := r.ring.hdr.FreePos.Load()
		if curPos == freePos {
			break
		}

		idx := BufIndex(mask, curPos)
		if ringSize-idx < HeaderSize {
			// Not enough room before the ring boundary for a header: this
			// tail is blank, inserted by a writer that wrapped around.
			// Skip it before any expiration check, matching the reference
			// implementation's ordering even though it means a reader can
			// skip bytes it has not verified are still live.
			curPos += ringSize - idx
			pos.Store(curPos)
			continue
		}

		if Expired(curPos, freePos, ringSize) {
			pos.Store(curPos)
			return ReadExpiredPosition
		}

		hdr := GetHeader(r.ring.data[idx:])
		if !hdr.Valid() || Expired(curPos, r.ring.hdr.FreePos.Load(), ringSize) {
			pos.Store(curPos)
			return ReadExpiredPosition
		}

		if hdr.Type == FrameMsg {
			start := idx + HeaderSize
			if cb.Copy(r.ring.data[start : start+Position(hdr.Length)]) {
				if Expired(curPos, r.ring.hdr.FreePos.Load(), ringSize) {
					pos.Store(curPos)
					return ReadExpiredPosition
				}
				cb.Confirm()
			}
		}

		curPos += HeaderSize + Position(hdr.Length)
		pos.Store(curPos)

		if curPos >= bpos.Load()+bposMaxLag {
			bpos.Store(curPos)
		}
	}

	bpos.Store(curPos)
	return ReadSuccess
}
