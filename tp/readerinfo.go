package tp

import (
	"sync/atomic"
	"unsafe"

	"github.com/adred-codev/toroni/rmp"
)

// topicHeader is the small fixed-size shared-memory header that sits
// alongside the underlying rmp.ReaderInfoTable. PublishGen is a monotonic
// counter bumped by AsyncWriter.CreateMessage for every message; it is stamped into each
// message's wire header so that a ChannelReader created after some messages
// were posted never sees them, even though the underlying rmp stream
// position mechanism alone cannot express "hide messages older than my
// registration" when one process drains many ChannelReaders off a single
// shared rmp reader.
type topicHeader struct {
	PublishGen  atomic.Uint64
	initialized atomic.Bool
}

// TopicHeaderSize returns the fixed byte size of the shared generation
// header, for sizing the shared-memory allocation placed alongside the
// rmp reader-info table.
func TopicHeaderSize() uint64 {
	return uint64(unsafe.Sizeof(topicHeader{}))
}

// ReaderInfo is the topic layer's reader bookkeeping: the underlying rmp
// reader-info table plus the shared publish-generation counter.
type ReaderInfo struct {
	*rmp.ReaderInfoTable
	hdr *topicHeader
}

// AttachReaderInfo maps a ReaderInfo view over the rmp reader-info table
// and a topicHeader region (genMem, at least TopicHeaderSize() bytes).
func AttachReaderInfo(table *rmp.ReaderInfoTable, genMem []byte) *ReaderInfo {
	return &ReaderInfo{
		ReaderInfoTable: table,
		hdr:             (*topicHeader)(unsafe.Pointer(&genMem[0])),
	}
}

// Init placement-constructs the generation header. Call exactly once, from
// the process that created the backing shared memory.
func (r *ReaderInfo) Init() {
	r.hdr.PublishGen.Store(0)
	r.hdr.initialized.Store(true)
}

// Initialized reports whether the creator has finished constructing the
// generation header.
func (r *ReaderInfo) Initialized() bool {
	return r.hdr.initialized.Load()
}

// currentGen returns the publish-generation counter's current value,
// without advancing it — used by a newly created ChannelReader to record
// the cutoff below which it will not accept messages.
func (r *ReaderInfo) currentGen() uint64 {
	return r.hdr.PublishGen.Load()
}

// nextGen returns the publish-generation counter's value and advances it,
// for the AsyncWriter to stamp into an outgoing message. Every message
// stamped before a ChannelReader reads currentGen therefore carries a
// generation below that ChannelReader's cutoff.
func (r *ReaderInfo) nextGen() uint64 {
	return r.hdr.PublishGen.Add(1) - 1
}
