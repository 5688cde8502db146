package server

import (
	"sync/atomic"
	"time"
)

// Stats is a point-in-time view of the service, mirroring the counters
// the worker maintains plus the current set sizes.
type Stats struct {
	Resident  int           `json:"resident"`
	Queued    int           `json:"queued"`
	InFlight  int           `json:"in_flight"`
	Batches   uint64        `json:"batches"`
	Generated uint64        `json:"generated"`
	Failed    uint64        `json:"failed"`
	GenTime   time.Duration `json:"gen_time_ns"`
}

type statsCounters struct {
	batches   atomic.Uint64
	generated atomic.Uint64
	failed    atomic.Uint64
	genNanos  atomic.Int64
}

func (c *statsCounters) batchDone(generated, failed int, elapsed time.Duration) {
	c.batches.Add(1)
	c.generated.Add(uint64(generated))
	c.failed.Add(uint64(failed))
	c.genNanos.Add(int64(elapsed))
}

// Stats snapshots the counters and set sizes. Set sizes are read under
// the service lock so they are mutually consistent.
func (s *Local) Stats() Stats {
	s.mu.Lock()
	resident := len(s.loaded)
	queued := len(s.queued)
	inFlight := len(s.inFlight)
	s.mu.Unlock()
	return Stats{
		Resident:  resident,
		Queued:    queued,
		InFlight:  inFlight,
		Batches:   s.stats.batches.Load(),
		Generated: s.stats.generated.Load(),
		Failed:    s.stats.failed.Load(),
		GenTime:   time.Duration(s.stats.genNanos.Load()),
	}
}
