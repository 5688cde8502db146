package server

import (
	"log"
	"os"
	"sync"
	"time"

	"chunkserve.dev/internal/world"
)

// DefaultPollInterval is the worker's fallback wake interval. Enqueues
// signal the worker directly, so this only bounds wake latency if a
// signal is ever missed; it is a tunable, not a contract.
const DefaultPollInterval = 25 * time.Millisecond

// Config carries the knobs for a Local service.
type Config struct {
	// PollInterval is the worker's fallback tick. Zero means
	// DefaultPollInterval.
	PollInterval time.Duration

	// Recorders receive batch and failure entries from the worker
	// goroutine, outside the lock.
	Recorders []BatchRecorder

	Logger *log.Logger
}

// Local is the in-process chunk authority: a resident store populated by
// a single background worker that services queued generation requests.
//
// One mutex guards the triple (queued, inFlight, loaded). A coordinate is
// in at most one of the three; moving the whole queued set into inFlight
// and merging a finished batch into loaded each happen in one critical
// section, so lookups never observe a half-moved batch. The generator
// runs strictly outside the lock.
type Local struct {
	gen       Generator
	log       *log.Logger
	interval  time.Duration
	recorders []BatchRecorder

	mu       sync.Mutex
	loaded   map[world.ChunkCoord]*world.Chunk
	queued   map[world.ChunkCoord]struct{}
	inFlight map[world.ChunkCoord]struct{}
	closed   bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
	once sync.Once

	stats statsCounters
}

var _ Server = (*Local)(nil)

// NewLocal starts the background worker immediately. Callers own the
// returned service and must Close it to stop and join the worker.
func NewLocal(gen Generator, cfg Config) *Local {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[chunks] ", log.LstdFlags|log.Lmicroseconds)
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	s := &Local{
		gen:       gen,
		log:       logger,
		interval:  interval,
		recorders: cfg.Recorders,
		loaded:    make(map[world.ChunkCoord]*world.Chunk),
		queued:    make(map[world.ChunkCoord]struct{}),
		inFlight:  make(map[world.ChunkCoord]struct{}),
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

// Chunk returns the resident chunk at coord, or absent. On a miss with
// request=true the coordinate is enqueued for the worker unless it is
// already queued or in flight; re-requesting pending work is a silent
// no-op. Chunk never waits on generation.
func (s *Local) Chunk(coord world.ChunkCoord, request bool) (*world.Chunk, bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, false
	}
	if ch, ok := s.loaded[coord]; ok {
		s.mu.Unlock()
		return ch, true
	}
	if !request {
		s.mu.Unlock()
		return nil, false
	}
	_, pending := s.queued[coord]
	if !pending {
		_, pending = s.inFlight[coord]
	}
	if !pending {
		s.queued[coord] = struct{}{}
	}
	s.mu.Unlock()

	if !pending {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	return nil, false
}

// Resident reports whether coord is loaded, without side effects.
func (s *Local) Resident(coord world.ChunkCoord) bool {
	_, ok := s.Chunk(coord, false)
	return ok
}

// Close stops the worker and joins it. Safe to call more than once.
// After Close, lookups return absent and no new requests are accepted;
// chunks already handed out stay valid for the caller's frame but must
// not be retained.
func (s *Local) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.quit)
		<-s.done
	})
}

func (s *Local) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-s.wake:
		case <-ticker.C:
		}
		s.service()
	}
}

// service claims the entire queued set, generates it outside the lock,
// then publishes the batch in one critical section.
func (s *Local) service() {
	batch := s.claimQueued()
	if len(batch) == 0 {
		return
	}

	start := time.Now()
	results := make(map[world.ChunkCoord]*world.Chunk, len(batch))
	var failures []FailureEntry
	for _, coord := range batch {
		select {
		case <-s.quit:
			// Tearing down: publish what finished, drop the rest.
			s.publish(batch, results)
			return
		default:
		}
		ch, err := s.gen.Generate(coord)
		if err != nil {
			failures = append(failures, FailureEntry{At: time.Now().UTC(), Coord: coord, Err: err.Error()})
			continue
		}
		results[coord] = ch
	}
	elapsed := time.Since(start)

	s.publish(batch, results)
	s.stats.batchDone(len(results), len(failures), elapsed)

	entry := BatchEntry{
		Start:     start.UTC(),
		Claimed:   len(batch),
		Generated: len(results),
		Failed:    len(failures),
		Micros:    elapsed.Microseconds(),
		Coords:    batch,
	}
	for _, r := range s.recorders {
		r.RecordBatch(entry)
		for _, f := range failures {
			r.RecordFailure(f)
		}
	}
	for _, f := range failures {
		s.log.Printf("generate %v: %s (left re-requestable)", f.Coord, f.Err)
	}
}

func (s *Local) claimQueued() []world.ChunkCoord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queued) == 0 {
		return nil
	}
	batch := make([]world.ChunkCoord, 0, len(s.queued))
	for coord := range s.queued {
		batch = append(batch, coord)
		s.inFlight[coord] = struct{}{}
		delete(s.queued, coord)
	}
	return batch
}

// publish merges results into the resident store and releases every
// claimed coordinate, generated or not. A failed coordinate ends up in
// none of the three sets, so a later request may enqueue it again.
func (s *Local) publish(batch []world.ChunkCoord, results map[world.ChunkCoord]*world.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for coord, ch := range results {
		if _, ok := s.loaded[coord]; ok {
			// Published entries are never silently replaced.
			continue
		}
		s.loaded[coord] = ch
	}
	for _, coord := range batch {
		delete(s.inFlight, coord)
	}
}

// residentChunk is the read-only store lookup used by raycasting.
func (s *Local) residentChunk(coord world.ChunkCoord) (*world.Chunk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	ch, ok := s.loaded[coord]
	return ch, ok
}
