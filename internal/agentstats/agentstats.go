// Package agentstats implements the small shared-memory summary block the
// demonstrator agent placement-constructs alongside the ring and
// reader-info regions, so aggregate latency and throughput figures across
// every writer and reader goroutine, including ones in other processes,
// can be read with Snapshot. The agent's own subcommands only record into
// the block; none of them calls Snapshot or prints the figures.
package agentstats

import (
	"sync/atomic"
	"unsafe"
)

// Block is the fixed-size, pointer-free layout placed in shared memory.
// Every field is an atomic so writer and reader goroutines across
// processes can update it without coordinating through the ring itself.
type Block struct {
	MessagesWritten   atomic.Uint64
	MessagesRead      atomic.Uint64
	LatencySumNanos   atomic.Uint64
	DurationSumNanos  atomic.Uint64
	ReadyWriters      atomic.Uint32
	ReadyReaders      atomic.Uint32
	initialized       atomic.Bool
}

// Size returns the fixed byte size of Block, for sizing the shared-memory
// allocation.
func Size() uint64 {
	return uint64(unsafe.Sizeof(Block{}))
}

// Attach maps a Block view over mem without initializing anything.
func Attach(mem []byte) *Block {
	return (*Block)(unsafe.Pointer(&mem[0]))
}

// Init zero-initializes and marks the block ready. Call exactly once, from
// the creating process.
func (b *Block) Init() {
	b.MessagesWritten.Store(0)
	b.MessagesRead.Store(0)
	b.LatencySumNanos.Store(0)
	b.DurationSumNanos.Store(0)
	b.ReadyWriters.Store(0)
	b.ReadyReaders.Store(0)
	b.initialized.Store(true)
}

// Initialized reports whether the creator has finished constructing the
// block.
func (b *Block) Initialized() bool {
	return b.initialized.Load()
}

// RecordWrite adds one message and its latency to the running totals. The
// agent's writer loop passes the time spent in CreateMessage and Post, which
// returns once the message is staged, before WriteEx runs.
func (b *Block) RecordWrite(latencyNanos uint64) {
	b.MessagesWritten.Add(1)
	b.LatencySumNanos.Add(latencyNanos)
}

// RecordRead adds one delivered message to the running total.
func (b *Block) RecordRead() {
	b.MessagesRead.Add(1)
}

// Summary is a point-in-time snapshot suitable for printing.
type Summary struct {
	MessagesWritten  uint64
	MessagesRead     uint64
	AvgLatencyNanos  float64
	ReadyWriters     uint32
	ReadyReaders     uint32
}

// Snapshot reads the current counters into a Summary.
func (b *Block) Snapshot() Summary {
	written := b.MessagesWritten.Load()
	avg := float64(0)
	if written > 0 {
		avg = float64(b.LatencySumNanos.Load()) / float64(written)
	}
	return Summary{
		MessagesWritten: written,
		MessagesRead:    b.MessagesRead.Load(),
		AvgLatencyNanos: avg,
		ReadyWriters:    b.ReadyWriters.Load(),
		ReadyReaders:    b.ReadyReaders.Load(),
	}
}
