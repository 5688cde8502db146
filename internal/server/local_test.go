package server

import (
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"chunkserve.dev/internal/world"
)

// testGen is an instrumented generator: it counts calls per coordinate
// and can delay, gate, or fail on demand.
type testGen struct {
	mu    sync.Mutex
	calls map[world.ChunkCoord]int

	delay time.Duration
	fail  func(coord world.ChunkCoord, nthCall int) error
	fill  func(*world.Chunk)

	// started, when set, receives the coord before any gating or delay.
	started chan world.ChunkCoord
	// gates, when set for a coord, blocks Generate until the gate closes.
	gates map[world.ChunkCoord]chan struct{}
}

func newTestGen() *testGen {
	return &testGen{calls: map[world.ChunkCoord]int{}}
}

func (g *testGen) Generate(coord world.ChunkCoord) (*world.Chunk, error) {
	g.mu.Lock()
	g.calls[coord]++
	nth := g.calls[coord]
	gate := g.gates[coord]
	g.mu.Unlock()

	if g.started != nil {
		g.started <- coord
	}
	if gate != nil {
		<-gate
	}
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	if g.fail != nil {
		if err := g.fail(coord, nth); err != nil {
			return nil, err
		}
	}
	ch := world.NewChunk(coord)
	if g.fill != nil {
		g.fill(ch)
	}
	return ch, nil
}

func (g *testGen) count(coord world.ChunkCoord) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[coord]
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestLocal(t *testing.T, gen Generator) *Local {
	t.Helper()
	s := NewLocal(gen, Config{PollInterval: time.Millisecond, Logger: quietLogger()})
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestChunkIdempotentMiss(t *testing.T) {
	gen := newTestGen()
	s := newTestLocal(t, gen)

	c := world.ChunkCoord{X: 3, Y: 0, Z: -2}
	if _, ok := s.Chunk(c, false); ok {
		t.Fatalf("unrequested chunk must be absent")
	}
	st := s.Stats()
	if st.Queued != 0 || st.InFlight != 0 {
		t.Fatalf("request=false must not enqueue: %+v", st)
	}
	if gen.count(c) != 0 {
		t.Fatalf("request=false must not generate")
	}
}

func TestEventualAvailability(t *testing.T) {
	gen := newTestGen()
	s := newTestLocal(t, gen)

	c := world.ChunkCoord{X: 1, Y: 2, Z: 3}
	if _, ok := s.Chunk(c, true); ok {
		t.Fatalf("first lookup must miss")
	}
	waitFor(t, 2*time.Second, func() bool { return s.Resident(c) }, "chunk to publish")

	ch, ok := s.Chunk(c, false)
	if !ok || ch == nil {
		t.Fatalf("chunk absent after publish")
	}
	if ch.Coord != c {
		t.Fatalf("published chunk has coord %v, want %v", ch.Coord, c)
	}
	if gen.count(c) != 1 {
		t.Fatalf("generator called %d times, want 1", gen.count(c))
	}
}

func TestRequestDedupWhileInFlight(t *testing.T) {
	gen := newTestGen()
	c := world.ChunkCoord{X: 7, Y: 0, Z: 7}
	gate := make(chan struct{})
	gen.gates = map[world.ChunkCoord]chan struct{}{c: gate}
	gen.started = make(chan world.ChunkCoord, 1)

	s := newTestLocal(t, gen)
	s.Chunk(c, true)
	<-gen.started // worker claimed c and is now blocked inside Generate

	for i := 0; i < 50; i++ {
		if _, ok := s.Chunk(c, true); ok {
			t.Fatalf("chunk resident before generation finished")
		}
	}
	st := s.Stats()
	if st.Queued != 0 || st.InFlight != 1 {
		t.Fatalf("in-flight coordinate must suppress re-requests: %+v", st)
	}

	close(gate)
	waitFor(t, 2*time.Second, func() bool { return s.Resident(c) }, "gated chunk to publish")
	if got := gen.count(c); got != 1 {
		t.Fatalf("generator called %d times for one coordinate, want 1", got)
	}
}

func TestBatchClaimsWholeQueue(t *testing.T) {
	gen := newTestGen()
	sentinel := world.ChunkCoord{X: 99, Y: 99, Z: 99}
	gate := make(chan struct{})
	gen.gates = map[world.ChunkCoord]chan struct{}{sentinel: gate}
	gen.started = make(chan world.ChunkCoord, 16)

	rec := &captureRecorder{}
	s := NewLocal(gen, Config{PollInterval: time.Millisecond, Logger: quietLogger(), Recorders: []BatchRecorder{rec}})
	defer s.Close()

	s.Chunk(sentinel, true)
	<-gen.started // worker busy; queue is now free to accumulate

	a := world.ChunkCoord{X: 0, Y: 0, Z: 0}
	b := world.ChunkCoord{X: 0, Y: 0, Z: 1}
	s.Chunk(a, true)
	s.Chunk(b, true)

	st := s.Stats()
	if st.Queued != 2 || st.InFlight != 1 || st.Resident != 0 {
		t.Fatalf("before cycle: %+v, want queued=2 in_flight=1 resident=0", st)
	}

	close(gate)
	waitFor(t, 2*time.Second, func() bool { return s.Resident(a) && s.Resident(b) }, "batch to publish")

	st = s.Stats()
	if st.Queued != 0 || st.InFlight != 0 {
		t.Fatalf("after cycle: %+v, want empty request sets", st)
	}
	if gen.count(a) != 1 || gen.count(b) != 1 {
		t.Fatalf("each coordinate generated once, got a=%d b=%d", gen.count(a), gen.count(b))
	}

	// The two queued coordinates were claimed as one batch.
	waitFor(t, time.Second, func() bool { return len(rec.batches()) >= 2 }, "batch entries")
	var twoWide bool
	for _, e := range rec.batches() {
		if e.Claimed == 2 && e.Generated == 2 {
			twoWide = true
		}
	}
	if !twoWide {
		t.Fatalf("expected a single two-chunk batch, got %+v", rec.batches())
	}
}

func TestLookupNeverBlocksOnGeneration(t *testing.T) {
	gen := newTestGen()
	gen.delay = 300 * time.Millisecond
	s := newTestLocal(t, gen)

	slow := world.ChunkCoord{X: 5, Y: 5, Z: 5}
	s.Chunk(slow, true)
	time.Sleep(10 * time.Millisecond) // let the worker enter Generate

	start := time.Now()
	for i := 0; i < 100; i++ {
		s.Chunk(world.ChunkCoord{X: i, Y: -1, Z: 0}, false)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("100 lookups took %v during a slow generation", elapsed)
	}
}

func TestGenerationFailureLeavesCoordRerequestable(t *testing.T) {
	gen := newTestGen()
	gen.fail = func(coord world.ChunkCoord, nth int) error {
		if nth == 1 {
			return fmt.Errorf("synthetic failure")
		}
		return nil
	}
	rec := &captureRecorder{}
	s := NewLocal(gen, Config{PollInterval: time.Millisecond, Logger: quietLogger(), Recorders: []BatchRecorder{rec}})
	defer s.Close()

	c := world.ChunkCoord{X: -4, Y: 1, Z: 9}
	s.Chunk(c, true)
	waitFor(t, 2*time.Second, func() bool { return s.Stats().Failed == 1 }, "failure to be recorded")

	st := s.Stats()
	if st.Queued != 0 || st.InFlight != 0 || st.Resident != 0 {
		t.Fatalf("failed coordinate stuck: %+v", st)
	}
	if _, ok := s.Chunk(c, false); ok {
		t.Fatalf("failed coordinate must not be resident")
	}

	// A fresh request goes through.
	s.Chunk(c, true)
	waitFor(t, 2*time.Second, func() bool { return s.Resident(c) }, "retry to publish")
	if gen.count(c) != 2 {
		t.Fatalf("generator called %d times, want 2", gen.count(c))
	}
	waitFor(t, time.Second, func() bool { return len(rec.failures()) == 1 }, "failure entry")
	if f := rec.failures()[0]; f.Coord != c || f.Err == "" {
		t.Fatalf("unexpected failure entry %+v", f)
	}
}

func TestCloseDuringGeneration(t *testing.T) {
	gen := newTestGen()
	c := world.ChunkCoord{X: 2, Y: 2, Z: 2}
	gate := make(chan struct{})
	gen.gates = map[world.ChunkCoord]chan struct{}{c: gate}
	gen.started = make(chan world.ChunkCoord, 1)

	s := NewLocal(gen, Config{PollInterval: time.Millisecond, Logger: quietLogger()})
	s.Chunk(c, true)
	<-gen.started

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatalf("Close returned while generation was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(gate)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close did not join the worker")
	}

	if _, ok := s.Chunk(c, true); ok {
		t.Fatalf("lookups after Close must be absent")
	}
	if st := s.Stats(); st.Queued != 0 {
		t.Fatalf("lookups after Close must not enqueue: %+v", st)
	}
	s.Close() // idempotent
}

func TestConcurrentRequestersGenerateEachCoordOnce(t *testing.T) {
	gen := newTestGen()
	s := newTestLocal(t, gen)

	coords := make([]world.ChunkCoord, 0, 16)
	for x := 0; x < 4; x++ {
		for z := 0; z < 4; z++ {
			coords = append(coords, world.ChunkCoord{X: x, Y: 0, Z: z})
		}
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				for _, c := range coords {
					s.Chunk(c, true)
				}
			}
		}()
	}
	wg.Wait()

	for _, c := range coords {
		c := c
		waitFor(t, 2*time.Second, func() bool { return s.Resident(c) }, fmt.Sprintf("chunk %v", c))
		if got := gen.count(c); got != 1 {
			t.Fatalf("coordinate %v generated %d times, want 1", c, got)
		}
	}
}

func TestPublishedChunkIsSharedAndMutable(t *testing.T) {
	gen := newTestGen()
	s := newTestLocal(t, gen)

	c := world.ChunkCoord{X: 0, Y: 0, Z: 0}
	s.Chunk(c, true)
	waitFor(t, 2*time.Second, func() bool { return s.Resident(c) }, "chunk to publish")

	ch1, _ := s.Chunk(c, false)
	ch1.Set(1, 2, 3, world.BlockDirt)
	ch2, _ := s.Chunk(c, false)
	if ch1 != ch2 {
		t.Fatalf("lookup must return the store-owned chunk, not a copy")
	}
	if ch2.Get(1, 2, 3) != world.BlockDirt {
		t.Fatalf("in-place edits must be visible to later lookups")
	}
}

// captureRecorder collects entries for assertions.
type captureRecorder struct {
	mu sync.Mutex
	b  []BatchEntry
	f  []FailureEntry
}

func (r *captureRecorder) RecordBatch(e BatchEntry) {
	r.mu.Lock()
	r.b = append(r.b, e)
	r.mu.Unlock()
}

func (r *captureRecorder) RecordFailure(e FailureEntry) {
	r.mu.Lock()
	r.f = append(r.f, e)
	r.mu.Unlock()
}

func (r *captureRecorder) batches() []BatchEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]BatchEntry(nil), r.b...)
}

func (r *captureRecorder) failures() []FailureEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]FailureEntry(nil), r.f...)
}
