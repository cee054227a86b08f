package core

import "time"

// TaskMetrics captures the per-task timing and bookkeeping data collected
// over the life of a Task.
type TaskMetrics struct {
	TaskID    uint64
	StartDate time.Time
	EndDate   time.Time

	WasCancelled                   bool
	WasSubscribedToExistingSession bool
	IsMemoryCacheHit               bool

	ProcessStart time.Time
	ProcessEnd   time.Time
}

// SessionMetrics captures the per-session timing data collected over the
// life of a Load Session, shared by every subscriber.
type SessionMetrics struct {
	SessionKey string

	DiskProbeStart time.Time
	DiskProbeEnd   time.Time

	NetworkStart time.Time
	NetworkEnd   time.Time

	DecodeStart time.Time
	DecodeEnd   time.Time

	DownloadedDataCount int64

	WasResumed            bool
	ResumedDataCount      int64
	ServerConfirmedResume bool

	WasCancelled bool
	EndDate      time.Time
}
