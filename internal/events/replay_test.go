package events

import (
	"fmt"
	"testing"
)

func TestReplayBufferBasic(t *testing.T) {
	rb := NewReplayBuffer(4)

	for seq := int64(1); seq <= 3; seq++ {
		rb.Push(seq, []byte(fmt.Sprintf("msg%d", seq)))
	}

	if rb.Len() != 3 {
		t.Fatalf("Len = %d, want 3", rb.Len())
	}

	got := rb.Since(1)
	if len(got) != 2 {
		t.Fatalf("Since(1) returned %d entries, want 2", len(got))
	}
	if string(got[0]) != "msg2" || string(got[1]) != "msg3" {
		t.Errorf("wrong order: %q, %q", got[0], got[1])
	}
}

func TestReplayBufferWrap(t *testing.T) {
	rb := NewReplayBuffer(4)

	for seq := int64(1); seq <= 10; seq++ {
		rb.Push(seq, []byte(fmt.Sprintf("msg%d", seq)))
	}

	if rb.Len() != 4 {
		t.Fatalf("Len after wrap = %d, want 4", rb.Len())
	}

	got := rb.Since(0)
	if len(got) != 4 {
		t.Fatalf("Since(0) returned %d entries, want 4", len(got))
	}
	// Oldest surviving entry is seq 7.
	if string(got[0]) != "msg7" || string(got[3]) != "msg10" {
		t.Errorf("wrap order: first=%q last=%q", got[0], got[3])
	}
}

func TestReplayBufferEmpty(t *testing.T) {
	rb := NewReplayBuffer(4)
	if got := rb.Since(0); got != nil {
		t.Errorf("empty buffer returned %d entries", len(got))
	}
}
