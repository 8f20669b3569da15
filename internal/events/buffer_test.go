package events

import "testing"

func seqs(es []Event) []int64 {
	out := make([]int64, len(es))
	for i, e := range es {
		out[i] = e.Seq
	}
	return out
}

func equalSeqs(a []int64, b ...int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRingBufferSequence(t *testing.T) {
	rb := NewRingBuffer(4)

	if got := rb.Last(0); len(got) != 0 {
		t.Fatalf("empty buffer returned %d events", len(got))
	}
	for i := 0; i < 3; i++ {
		if e := rb.Add(Event{Name: "detector.snapshot"}); e.Seq != int64(i+1) {
			t.Errorf("add %d: expected seq %d, got %d", i, i+1, e.Seq)
		}
	}
	if got := seqs(rb.Snapshot()); !equalSeqs(got, 1, 2, 3) {
		t.Errorf("unexpected snapshot %v", got)
	}
	if got := seqs(rb.Last(2)); !equalSeqs(got, 2, 3) {
		t.Errorf("unexpected last 2 %v", got)
	}
}

func TestRingBufferWrap(t *testing.T) {
	rb := NewRingBuffer(4)
	for i := 0; i < 10; i++ {
		rb.Add(Event{})
	}

	if got := seqs(rb.Snapshot()); !equalSeqs(got, 7, 8, 9, 10) {
		t.Errorf("expected the newest 4, got %v", got)
	}
	if got := seqs(rb.Last(100)); !equalSeqs(got, 7, 8, 9, 10) {
		t.Errorf("asking for more than held must return all held, got %v", got)
	}
	if rb.Total() != 10 {
		t.Errorf("expected total 10, got %d", rb.Total())
	}
}

func TestRingBufferSince(t *testing.T) {
	rb := NewRingBuffer(4)
	for i := 0; i < 6; i++ {
		rb.Add(Event{})
	}

	tests := []struct {
		seq  int64
		want []int64
	}{
		{0, []int64{3, 4, 5, 6}}, // 1 and 2 were overwritten
		{4, []int64{5, 6}},
		{6, nil},
		{99, nil},
	}
	for _, tt := range tests {
		if got := seqs(rb.Since(tt.seq)); !equalSeqs(got, tt.want...) {
			t.Errorf("Since(%d) = %v, want %v", tt.seq, got, tt.want)
		}
	}
}

func TestRingBufferClear(t *testing.T) {
	rb := NewRingBuffer(2)
	rb.Add(Event{})
	rb.Add(Event{})
	rb.Clear()

	if rb.Total() != 0 || len(rb.Snapshot()) != 0 {
		t.Error("clear must drop events and reset the total")
	}
	if e := rb.Add(Event{}); e.Seq != 1 {
		t.Errorf("sequence must restart at 1, got %d", e.Seq)
	}
}
