package protocol

// SubscribeMsg opens or retunes an observer session.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	IntervalMs      int    `json:"interval_ms,omitempty"`
}

// ServiceStats mirrors the chunk service counters at one instant.
type ServiceStats struct {
	Resident  int    `json:"resident"`
	Queued    int    `json:"queued"`
	InFlight  int    `json:"in_flight"`
	Batches   uint64 `json:"batches"`
	Generated uint64 `json:"generated"`
	Failed    uint64 `json:"failed"`
	GenTimeUs int64  `json:"gen_time_us"`
}

// StatsMsg is one observer frame.
type StatsMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Seq             uint64       `json:"seq"`
	At              string       `json:"at"` // RFC3339Nano, UTC
	Stats           ServiceStats `json:"stats"`
}

// BootstrapResponse answers the observer's initial HTTP probe.
type BootstrapResponse struct {
	ProtocolVersion string `json:"protocol_version"`
	ChunkSize       [3]int `json:"chunk_size"`
	Seed            int64  `json:"seed"`
	PollIntervalMs  int    `json:"poll_interval_ms"`
}
