package descriptor

// MaxChunkBytes is the fixed maximum payload of one chunk.
// Kept modest relative to the original engine's tuning so chain-walking
// code paths get regular exercise in tests.
const MaxChunkBytes = 4096

// Chunk is one node of a refcounted singly-linked string body. Only the head chunk of a chain carries TotalLen,
// RefCount, Hint and Remove; trailing chunks only carry their own bytes.
type Chunk struct {
	Next     *Chunk
	Data     []byte
	TotalLen int // head only: sum of all chunk byte counts
	RefCount int // head only

	// Hint accelerates repeated positional access by find_item.
	HintField  int32
	HintOffset int32
	HasHint    bool

	// Remove records a (chunk, offset) pair set by the dynamic-extract
	// state machine.
	RemoveChunk  *Chunk
	RemoveOffset int
	HasRemove    bool
}

// NewEmpty returns the canonical empty string: a nil chain.
func NewEmpty() *Chunk { return nil }

// Alloc allocates a single chunk with capacity for n bytes, capped at
// MaxChunkBytes, returning the actual allocated capacity the way s_alloc()
// does (the caller may pack more data into a chunk than its initial Data
// slice length if it grows within MaxChunkBytes).
func Alloc(n int) (*Chunk, int) {
	if n > MaxChunkBytes {
		n = MaxChunkBytes
	}
	if n < 0 {
		n = 0
	}
	c := &Chunk{Data: make([]byte, 0, n)}
	return c, n
}

// NewFromBytes builds a fresh, uniquely-owned chain holding b, splitting
// across MaxChunkBytes-sized chunks as needed.
func NewFromBytes(b []byte) *Chunk {
	if len(b) == 0 {
		return nil
	}
	var head, tail *Chunk
	remaining := b
	for len(remaining) > 0 {
		n := len(remaining)
		if n > MaxChunkBytes {
			n = MaxChunkBytes
		}
		c := &Chunk{Data: append([]byte(nil), remaining[:n]...)}
		if head == nil {
			head = c
		} else {
			tail.Next = c
		}
		tail = c
		remaining = remaining[n:]
	}
	head.RefCount = 1
	head.TotalLen = len(b)
	return head
}

// Len returns the head's TotalLen, or 0 for a nil chain.
func Len(head *Chunk) int {
	if head == nil {
		return 0
	}
	return head.TotalLen
}

// Retain increments the head's reference count. A nil chain is a no-op
// (unassigned/empty strings are never refcounted).
func Retain(head *Chunk) *Chunk {
	if head != nil {
		head.RefCount++
	}
	return head
}

// Release decrements the head's reference count, freeing the chain (by
// simply dropping the Go references — the garbage collector reclaims it)
// once the count reaches zero. Invariant 2: after N releases
// following N acquires, nothing references the chain.
func Release(head *Chunk) {
	if head == nil {
		return
	}
	head.RefCount--
}

// Bytes materializes the full chain into one contiguous slice. Invariant 1
//: the sum of chunk byte counts equals the head's TotalLen.
func Bytes(head *Chunk) []byte {
	if head == nil {
		return nil
	}
	out := make([]byte, 0, head.TotalLen)
	for c := head; c != nil; c = c.Next {
		out = append(out, c.Data...)
	}
	return out
}

// Clone returns a new, uniquely-owned chain holding the same bytes as head,
// packed into full MaxChunkBytes-sized chunks (a single chunk when the
// string fits in one).
func Clone(head *Chunk) *Chunk {
	if head == nil {
		return nil
	}
	return NewFromBytes(Bytes(head))
}

// EnsureUnique returns a chain safe to mutate in place: head itself if its
// refcount is 1 (or 0, meaning not yet shared), otherwise a fresh clone with
// refcount 1. This is the copy-on-write discipline numeric mutation relies on.
func EnsureUnique(head *Chunk) *Chunk {
	if head == nil {
		return nil
	}
	if head.RefCount <= 1 {
		return head
	}
	Release(head)
	clone := Clone(head)
	clone.RefCount = 1
	return clone
}

// Append adds b to the end of the chain, returning the (possibly
// reallocated) head. Preserves the invariant that TotalLen tracks the sum
// of chunk lengths.
func Append(head *Chunk, b []byte) *Chunk {
	if len(b) == 0 {
		return head
	}
	if head == nil {
		return NewFromBytes(b)
	}
	head = EnsureUnique(head)
	tail := head
	for tail.Next != nil {
		tail = tail.Next
	}
	remaining := b
	if len(tail.Data) < MaxChunkBytes {
		room := MaxChunkBytes - len(tail.Data)
		n := min(room, len(remaining))
		tail.Data = append(tail.Data, remaining[:n]...)
		remaining = remaining[n:]
	}
	for len(remaining) > 0 {
		n := min(MaxChunkBytes, len(remaining))
		c := &Chunk{Data: append([]byte(nil), remaining[:n]...)}
		tail.Next = c
		tail = c
		remaining = remaining[n:]
	}
	head.TotalLen += len(b)
	head.HasHint = false
	return head
}
