package postgres

import (
	"errors"
	"os"
	"testing"
	"time"
)

func TestClampLimit(t *testing.T) {
	tests := map[int]int{
		-1:    200,
		0:     200,
		50:    50,
		10000: 10000,
		20000: 10000,
	}
	for in, want := range tests {
		if got := clampLimit(in); got != want {
			t.Errorf("clampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestEncodeFields(t *testing.T) {
	b, err := encodeFields(nil)
	if err != nil || b != nil {
		t.Errorf("nil fields must store NULL, got %q err=%v", b, err)
	}

	b, err = encodeFields(map[string]interface{}{"queue": "TIO"})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"queue":"TIO"}` {
		t.Errorf("unexpected fields JSON %s", b)
	}

	if _, err := encodeFields(map[string]interface{}{"bad": make(chan int)}); err == nil {
		t.Error("expected marshal error")
	}
}

func TestNullable(t *testing.T) {
	if nullable("") != nil {
		t.Error("empty string must be NULL")
	}
	if p := nullable("x"); p == nil || *p != "x" {
		t.Error("non-empty string must be kept")
	}
}

// TestAppendQuery runs against a real database when PCASSIST_TEST_DSN is set.
func TestAppendQuery(t *testing.T) {
	dsn := os.Getenv("PCASSIST_TEST_DSN")
	if dsn == "" {
		t.Skip("PCASSIST_TEST_DSN not set")
	}

	instance := "test-" + time.Now().Format("150405.000000")
	c, err := New(dsn, instance)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	now := time.Now()
	if err := c.Append(now, "info", "detector.snapshot", "", map[string]interface{}{"current": "T"}, "run-a"); err != nil {
		t.Fatal(err)
	}
	if err := c.Append(now.Add(time.Millisecond), "info", "overlay.cleared", "", nil, "run-b"); err != nil {
		t.Fatal(err)
	}

	all, err := c.Query(10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Event != "overlay.cleared" {
		t.Fatalf("expected 2 events newest first, got %+v", all)
	}

	runA, err := c.Query(10, "run-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(runA) != 1 || runA[0].Fields["current"] != "T" {
		t.Errorf("expected the run-a snapshot, got %+v", runA)
	}
}

// TestSessions runs against a real database when PCASSIST_TEST_DSN is set.
func TestSessions(t *testing.T) {
	dsn := os.Getenv("PCASSIST_TEST_DSN")
	if dsn == "" {
		t.Skip("PCASSIST_TEST_DSN not set")
	}

	instance := "test-" + time.Now().Format("150405.000000")
	run1, run2 := instance+"-1", instance+"-2"
	c, err := New(dsn, instance)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	start := time.Now()
	if err := c.StartSession(run1, "replay", "0.0.0", start); err != nil {
		t.Fatal(err)
	}
	if err := c.Append(start, "info", "overlay.broadcast", "", nil, run1); err != nil {
		t.Fatal(err)
	}
	if err := c.EndSession(run1, start.Add(time.Second), errors.New("reader lost")); err != nil {
		t.Fatal(err)
	}
	if err := c.StartSession(run2, "run", "0.0.0", start.Add(2*time.Second)); err != nil {
		t.Fatal(err)
	}

	got, err := c.Sessions(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].SessionID != run2 || got[0].EndedAt != nil {
		t.Fatalf("expected the open second run first, got %+v", got)
	}
	first := got[1]
	if first.EndedAt == nil || first.Error == nil || *first.Error != "reader lost" || first.Overlays != 1 {
		t.Errorf("unexpected finished session %+v", first)
	}
}
