package broadcast

import (
	"context"
	"errors"
	"io"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/AaronLay10/pcassist/internal/board"
	"github.com/AaronLay10/pcassist/internal/detector"
	"github.com/AaronLay10/pcassist/internal/events"
	"github.com/AaronLay10/pcassist/internal/geometry"
	"github.com/AaronLay10/pcassist/internal/handoff"
	"github.com/AaronLay10/pcassist/internal/piece"
	"github.com/AaronLay10/pcassist/internal/solver"
)

func TestMain(m *testing.M) {
	events.SetOutput(io.Discard, "error")
	os.Exit(m.Run())
}

// scriptedOracle returns fixed candidates keyed by board occupancy.
type scriptedOracle struct {
	mu      sync.Mutex
	byBoard map[uint64][][]geometry.Placement
	err     error
	calls   []board.Query
}

func newScriptedOracle() *scriptedOracle {
	return &scriptedOracle{byBoard: make(map[uint64][][]geometry.Placement)}
}

func (o *scriptedOracle) Search(ctx context.Context, q board.Query, opts solver.Options, fn func([]geometry.Placement) solver.Control) error {
	o.mu.Lock()
	o.calls = append(o.calls, q)
	candidates := o.byBoard[q.Occupancy]
	err := o.err
	o.mu.Unlock()

	if err != nil {
		return err
	}
	for _, c := range candidates {
		if fn(slices.Clone(c)) == solver.Abort {
			return nil
		}
	}
	return nil
}

func (o *scriptedOracle) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.calls)
}

func place(p piece.Type, r geometry.Rotation, x, y int) geometry.Placement {
	return geometry.Placement{Piece: p, Rotation: r, X: x, Y: y}
}

func snapshot(t *testing.T, queue string, filled ...[2]int) board.Snapshot {
	t.Helper()
	q, err := piece.ParseSequence(queue)
	if err != nil {
		t.Fatalf("ParseSequence: %v", err)
	}
	var s board.Snapshot
	for _, c := range filled {
		s.Columns.Set(c[0], c[1], true)
	}
	s.Current = board.Some(q[0])
	s.NextQueue = q[1:]
	return s
}

func newTestBroadcaster(o solver.Oracle, opts Options) (*Broadcaster, *handoff.FIFOQueue[Message]) {
	out := handoff.NewFIFO[Message]("test")
	return New(o, geometry.Kernel{}, opts, out), out
}

func drain(q handoff.Queue[Message]) []Message {
	var out []Message
	for {
		m, ok := q.TryTake()
		if !ok {
			return out
		}
		out = append(out, m)
	}
}

func TestIdenticalSolutionsBroadcastOnce(t *testing.T) {
	o := newScriptedOracle()
	solution := []geometry.Placement{place(piece.I, geometry.North, 1, 0)}
	o.byBoard[0] = [][]geometry.Placement{solution}
	b, out := newTestBroadcaster(o, Options{})

	snap := snapshot(t, "IOTSZJL")
	for i := 0; i < 3; i++ {
		if _, _, err := b.Handle(context.Background(), snap); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	msgs := drain(out)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(msgs))
	}
	if !slices.Equal(msgs[0].Solution, solution) {
		t.Errorf("unexpected solution %+v", msgs[0].Solution)
	}
	if o.Calls() != 3 {
		t.Errorf("expected oracle invoked per snapshot, got %d", o.Calls())
	}
}

func TestStructuralDifferenceBroadcasts(t *testing.T) {
	o := newScriptedOracle()
	b, out := newTestBroadcaster(o, Options{})
	snap := snapshot(t, "IOTSZJL")

	o.byBoard[0] = [][]geometry.Placement{{place(piece.I, geometry.North, 1, 0), place(piece.O, geometry.North, 4, 0)}}
	b.Handle(context.Background(), snap)
	// Same first placement, different tail: still a different solution.
	o.byBoard[0] = [][]geometry.Placement{{place(piece.I, geometry.North, 1, 0), place(piece.O, geometry.North, 6, 0)}}
	b.Handle(context.Background(), snap)

	msgs := drain(out)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 broadcasts, got %d", len(msgs))
	}
	if msgs[0].Seq >= msgs[1].Seq {
		t.Errorf("sequence numbers must increase: %d, %d", msgs[0].Seq, msgs[1].Seq)
	}
}

func TestUnsolvableClearsOnce(t *testing.T) {
	o := newScriptedOracle()
	b, out := newTestBroadcaster(o, Options{})
	snap := snapshot(t, "IOTSZJL")

	// Nothing shown yet: an unsolvable board sends nothing.
	if _, sent, _ := b.Handle(context.Background(), snap); sent {
		t.Fatal("no empty broadcast expected while nothing is shown")
	}

	o.byBoard[0] = [][]geometry.Placement{{place(piece.T, geometry.South, 4, 1)}}
	b.Handle(context.Background(), snap)

	delete(o.byBoard, 0)
	msg, sent, err := b.Handle(context.Background(), snap)
	if err != nil || !sent {
		t.Fatalf("expected clear broadcast, sent=%v err=%v", sent, err)
	}
	if !msg.Payload.Empty() || msg.Solution != nil {
		t.Errorf("clear must carry an empty payload, got %+v", msg)
	}
	if b.Last() != nil {
		t.Error("nothing should be shown after a clear")
	}

	if _, sent, _ := b.Handle(context.Background(), snap); sent {
		t.Error("second unsolvable snapshot must be suppressed")
	}
	if n := len(drain(out)); n != 2 {
		t.Errorf("expected payload then clear, got %d messages", n)
	}
}

func TestEndToEndEmptyBoard(t *testing.T) {
	o := newScriptedOracle()
	first := []geometry.Placement{
		place(piece.I, geometry.North, 1, 0),
		place(piece.O, geometry.North, 4, 0),
	}
	o.byBoard[0] = [][]geometry.Placement{first, {place(piece.I, geometry.North, 7, 0)}}
	b, out := newTestBroadcaster(o, Options{})

	empty := snapshot(t, "IOTSZJL")
	msg, sent, err := b.Handle(context.Background(), empty)
	if err != nil || !sent {
		t.Fatalf("expected broadcast, sent=%v err=%v", sent, err)
	}
	if o.Calls() != 1 {
		t.Fatalf("expected one oracle call, got %d", o.Calls())
	}
	if got := piece.FormatSequence(o.calls[0].Queue); got != "IOTSZJL" {
		t.Errorf("oracle got queue %s", got)
	}
	if o.calls[0].Occupancy != 0 {
		t.Errorf("empty board must pack to zero, got %#x", o.calls[0].Occupancy)
	}
	want := geometry.Kernel{}.Payload(first)
	if !slices.Equal(msg.Payload, want) || len(msg.Payload) != 4 {
		t.Errorf("payload must come from the first candidate's first placement: %+v", msg.Payload)
	}

	// One cell in the bottom of a column changes the occupancy. The oracle
	// has nothing for it, so the overlay is explicitly cleared.
	blocked := snapshot(t, "IOTSZJL", [2]int{0, 0})
	msg, sent, err = b.Handle(context.Background(), blocked)
	if err != nil || !sent {
		t.Fatalf("expected a clear broadcast, sent=%v err=%v", sent, err)
	}
	if !msg.Payload.Empty() {
		t.Errorf("expected empty payload, got %+v", msg.Payload)
	}
	if len(drain(out)) != 2 {
		t.Error("expected two messages on the overlay hand-off")
	}
}

func TestCommitModeFollowsShownSolution(t *testing.T) {
	p1 := place(piece.I, geometry.North, 1, 0)
	p2 := place(piece.O, geometry.North, 4, 0)
	p3 := place(piece.O, geometry.North, 6, 0)
	other := []geometry.Placement{place(piece.O, geometry.North, 8, 0), place(piece.O, geometry.North, 4, 0)}

	afterFirst := snapshot(t, "OOT", [2]int{0, 0}, [2]int{1, 0}, [2]int{2, 0}, [2]int{3, 0})
	afterFirstOcc := board.Pack(&afterFirst.Columns)

	for _, tc := range []struct {
		mode Mode
		want []geometry.Placement
	}{
		{First, other},
		{Commit, []geometry.Placement{p2, p3}},
	} {
		t.Run(string(tc.mode), func(t *testing.T) {
			o := newScriptedOracle()
			o.byBoard[0] = [][]geometry.Placement{{p1, p2, p3}}
			o.byBoard[afterFirstOcc] = [][]geometry.Placement{other, {p2, p3}}
			b, _ := newTestBroadcaster(o, Options{Mode: tc.mode})

			b.Handle(context.Background(), snapshot(t, "IOO"))
			msg, sent, err := b.Handle(context.Background(), afterFirst)
			if err != nil || !sent {
				t.Fatalf("expected broadcast, sent=%v err=%v", sent, err)
			}
			if !slices.Equal(msg.Solution, tc.want) {
				t.Errorf("expected %+v, got %+v", tc.want, msg.Solution)
			}
		})
	}
}

func TestCommitModeCandidateCap(t *testing.T) {
	p := func(x int) []geometry.Placement { return []geometry.Placement{place(piece.O, geometry.North, x, 0)} }
	var calls int
	o := solver.OracleFunc(func(ctx context.Context, q board.Query, opts solver.Options, fn func([]geometry.Placement) solver.Control) error {
		for x := 0; x < 9; x++ {
			calls++
			if fn(p(x)) == solver.Abort {
				return nil
			}
		}
		return nil
	})
	b, _ := newTestBroadcaster(o, Options{Mode: Commit, MaxCandidates: 3})
	b.last = []geometry.Placement{place(piece.I, geometry.North, 1, 0), place(piece.T, geometry.North, 5, 3)}

	calls = 0
	msg, _, _ := b.Handle(context.Background(), snapshot(t, "O"))
	if calls != 3 {
		t.Errorf("expected enumeration capped at 3, got %d", calls)
	}
	if !slices.Equal(msg.Solution, p(0)) {
		t.Errorf("expected first candidate as fallback, got %+v", msg.Solution)
	}
}

func TestOracleErrorKeepsShownSolution(t *testing.T) {
	o := newScriptedOracle()
	solution := []geometry.Placement{place(piece.L, geometry.East, 0, 1)}
	o.byBoard[0] = [][]geometry.Placement{solution}
	b, out := newTestBroadcaster(o, Options{})
	snap := snapshot(t, "LJ")

	b.Handle(context.Background(), snap)
	o.err = errors.New("engine crashed")
	if _, sent, err := b.Handle(context.Background(), snap); err == nil || sent {
		t.Fatalf("expected error without broadcast, sent=%v err=%v", sent, err)
	}
	if !slices.Equal(b.Last(), solution) {
		t.Error("oracle failure must not change the shown solution")
	}
	if len(drain(out)) != 1 {
		t.Error("expected only the first broadcast")
	}
}

func TestTimeoutKeepsFoundCandidate(t *testing.T) {
	found := []geometry.Placement{place(piece.J, geometry.West, 1, 1)}
	o := solver.OracleFunc(func(ctx context.Context, q board.Query, opts solver.Options, fn func([]geometry.Placement) solver.Control) error {
		if fn(found) == solver.Abort {
			return nil
		}
		<-ctx.Done()
		return ctx.Err()
	})
	b, _ := newTestBroadcaster(o, Options{Mode: Commit, Timeout: 20 * time.Millisecond})
	b.last = []geometry.Placement{place(piece.I, geometry.North, 1, 0), place(piece.T, geometry.North, 5, 3)}

	msg, sent, err := b.Handle(context.Background(), snapshot(t, "J"))
	if err != nil || !sent {
		t.Fatalf("timeout should keep the candidate, sent=%v err=%v", sent, err)
	}
	if !slices.Equal(msg.Solution, found) {
		t.Errorf("expected %+v, got %+v", found, msg.Solution)
	}
}

func TestRunStopsOnExit(t *testing.T) {
	o := newScriptedOracle()
	o.byBoard[0] = [][]geometry.Placement{{place(piece.S, geometry.North, 1, 0)}}
	b, out := newTestBroadcaster(o, Options{})

	in := handoff.NewFIFO[detector.Event]("test")
	in.Put(detector.Event{Snapshot: snapshot(t, "SZ")})
	in.Put(detector.Event{Exit: true})
	in.Put(detector.Event{Snapshot: snapshot(t, "ZS")})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := b.Run(ctx, in); err != nil {
		t.Fatalf("run: %v", err)
	}

	msgs := drain(out)
	if len(msgs) != 2 {
		t.Fatalf("expected payload and exit, got %d messages", len(msgs))
	}
	if msgs[0].Exit || !msgs[1].Exit {
		t.Errorf("exit must be last: %+v", msgs)
	}
	if o.Calls() != 1 {
		t.Errorf("events after exit must not be searched, got %d calls", o.Calls())
	}
}

func TestRunReturnsOnCancel(t *testing.T) {
	b, _ := newTestBroadcaster(newScriptedOracle(), Options{})
	in := handoff.NewMailbox[detector.Event]("test")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, in) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not stop on cancel")
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(""); err != nil || m != First {
		t.Errorf("empty: got %q, %v", m, err)
	}
	if m, err := ParseMode("commit"); err != nil || m != Commit {
		t.Errorf("commit: got %q, %v", m, err)
	}
	if _, err := ParseMode("greedy"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
