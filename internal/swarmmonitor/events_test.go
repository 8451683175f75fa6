package swarmmonitor

import "testing"

func TestLogRingOverwritesOldest(t *testing.T) {
	r := NewLogRing()
	for i := 0; i < logRingSize+10; i++ {
		r.Add(LogEntry{Source: "test", Message: string(rune('a' + i%26))})
	}

	entries := r.Recent()
	if len(entries) != logRingSize {
		t.Fatalf("Recent() returned %d entries, want %d", len(entries), logRingSize)
	}
	// The first 10 entries (i=0..9) were overwritten: the oldest kept is
	// i=10 ('k') and the newest is i=509 (509%26=15, 'p').
	if entries[0].Message != "k" {
		t.Fatalf("oldest entry = %q, want %q", entries[0].Message, "k")
	}
	if last := entries[len(entries)-1].Message; last != "p" {
		t.Fatalf("newest entry = %q, want %q", last, "p")
	}
}

func TestLogRingEmpty(t *testing.T) {
	r := NewLogRing()
	if entries := r.Recent(); len(entries) != 0 {
		t.Fatalf("Recent() on empty ring = %d entries, want 0", len(entries))
	}
}
