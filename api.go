package imagepipeline

import (
	"log/slog"

	"github.com/kestrelimg/imagepipeline/internal/core"
	"github.com/kestrelimg/imagepipeline/internal/logger"
)

// Public API - re-export internal/core types as the stable contract.

// Priority orders competing work: higher values are serviced first.
type Priority = core.Priority

const (
	PriorityVeryLow  = core.PriorityVeryLow
	PriorityLow      = core.PriorityLow
	PriorityNormal   = core.PriorityNormal
	PriorityHigh     = core.PriorityHigh
	PriorityVeryHigh = core.PriorityVeryHigh
)

// Request describes one logical image load.
type Request = core.Request

// NewRequest builds a Request with the library's defaults.
func NewRequest(url string) Request { return core.NewRequest(url) }

// TransportResponse carries the transport metadata produced by a
// DataLoader.
type TransportResponse = core.TransportResponse

// Container wraps one decoded image on its way to processing.
type Container = core.Container

// Response is delivered to a task's completion handler.
type Response = core.Response

// Progress reports byte-count and, when available, progressive-decode
// updates for a Task.
type Progress = core.Progress

// TaskMetrics and SessionMetrics are delivered to diagnostics hooks.
type TaskMetrics = core.TaskMetrics
type SessionMetrics = core.SessionMetrics

// Config enumerates the pipeline's behavioral switches and concurrency
// caps.
type Config = core.Config

// DefaultConfig returns the pipeline's documented defaults.
func DefaultConfig() Config { return core.DefaultConfig() }

// Collaborator interfaces a host application implements to plug transport,
// caching, and format support into the pipeline.
type (
	DataLoader         = core.DataLoader
	DiskCache          = core.DiskCache
	MemoryCache        = core.MemoryCache
	DecoderFactory     = core.DecoderFactory
	DecoderFactoryFunc = core.DecoderFactoryFunc
	Decoder            = core.Decoder
	ScanCounter        = core.ScanCounter
	Processor          = core.Processor
	CancelFunc         = core.CancelFunc
)

// Error types returned to a Task's completion handler. Use errors.As to
// distinguish them.
type (
	DataLoadingError = core.DataLoadingError
	DecodingError    = core.DecodingError
	ProcessingError  = core.ProcessingError
)

// Logger is the pipeline's structured diagnostic logger, installed with
// WithLogger. Defaults to a no-op logger.
type Logger = logger.Logger

// NewLogger builds a Logger writing structured JSON to stderr at level.
func NewLogger(level slog.Level) *Logger { return logger.New(level) }
