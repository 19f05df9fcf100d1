package events

import "sync"

// replayEntry holds a single broadcast envelope for replay.
type replayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer is a fixed-size circular buffer of recent event
// envelopes. Reconnecting WebSocket clients use it to backfill events
// missed while disconnected.
//
// Thread-safe for concurrent writes and reads.
type ReplayBuffer struct {
	mu   sync.RWMutex
	buf  []replayEntry
	cap  int
	pos  int // next write position
	full bool
}

// NewReplayBuffer creates a replay buffer with the given capacity.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{
		buf: make([]replayEntry, capacity),
		cap: capacity,
	}
}

// Push appends an envelope. Overwrites the oldest entry when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	// Copy data to avoid holding onto the caller's slice
	cp := make([]byte, len(data))
	copy(cp, data)

	rb.buf[rb.pos] = replayEntry{Seq: seq, Data: cp}
	rb.pos = (rb.pos + 1) % rb.cap
	if rb.pos == 0 && !rb.full {
		rb.full = true
	}
}

// Since returns all entries with seq > fromSeq, in seq order.
func (rb *ReplayBuffer) Since(fromSeq int64) [][]byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var result [][]byte
	count := rb.len()
	for i := 0; i < count; i++ {
		e := rb.buf[rb.index(i)]
		if e.Seq > fromSeq {
			result = append(result, e.Data)
		}
	}
	return result
}

// Len returns the number of entries currently in the buffer.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.len()
}

func (rb *ReplayBuffer) len() int {
	if rb.full {
		return rb.cap
	}
	return rb.pos
}

// index converts a logical index (0 = oldest) to a physical index.
func (rb *ReplayBuffer) index(logical int) int {
	if rb.full {
		return (rb.pos + logical) % rb.cap
	}
	return logical
}
