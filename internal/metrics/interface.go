package metrics

import (
	"context"
	"time"

	"codeberg.org/mutker/pulsemon/internal/pulse"
)

// Collector defines the core domain interface
type Collector interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Session() string
	Close() error
}

// Repository defines the interface for metrics data storage
type Repository interface {
	Record(session string, snapshot *Snapshot) error
	Close() error
}

// Snapshot is the state of one reporting tick
type Snapshot struct {
	Timestamp  time.Time
	Elapsed    pulse.Millis
	BPM        pulse.BPM
	Available  bool
	Jitter     time.Duration
	HasJitter  bool
	HistoryLen int

	// Beats detected since the previous snapshot
	Beats []pulse.Heartbeat
}
