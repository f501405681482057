package engine

import "time"

// Options represents configuration options for the Engine.
type Options struct {
	// SnapshotInterval is how often the snapshot manager wakes up.
	SnapshotInterval time.Duration
	// SnapshotOffsetDelta is the minimum number of newly applied intake
	// messages before another snapshot is written.
	SnapshotOffsetDelta int64
	// DepthLevels is how many levels per side depth broadcasts carry.
	DepthLevels int
}

// DefaultEngineOptions returns the default engine options.
func DefaultEngineOptions() *Options {
	return &Options{
		SnapshotInterval:    30 * time.Second,
		SnapshotOffsetDelta: 1,
		DepthLevels:         20,
	}
}
