package imagepipeline

import (
	"go.opentelemetry.io/otel/metric"

	"github.com/kestrelimg/imagepipeline/internal/core"
	"github.com/kestrelimg/imagepipeline/internal/logger"
)

type settings struct {
	cfg            core.Config
	loader         core.DataLoader
	diskCache      core.DiskCache
	memoryCache    core.MemoryCache
	decoderFactory core.DecoderFactory
	meter          metric.Meter
	log            *logger.Logger
}

// Option configures a Pipeline built with New.
type Option func(*settings)

// WithConfig overrides the pipeline's default behavioral configuration.
func WithConfig(cfg Config) Option { return func(s *settings) { s.cfg = cfg } }

// WithDataLoader installs the transport used to fetch bytes for every
// Load Session. Defaults to loader.New(nil, loader.DefaultRetryConfig()).
func WithDataLoader(l DataLoader) Option { return func(s *settings) { s.loader = l } }

// WithDiskCache installs a byte-level cache consulted before every network
// fetch. Defaults to an on-disk cache rooted under os.TempDir(); pass a
// no-op DiskCache implementation to disable disk caching entirely.
func WithDiskCache(c DiskCache) Option { return func(s *settings) { s.diskCache = c } }

// WithMemoryCache installs a decoded-response cache consulted before
// admission. Defaults to an in-process cache backed by go-cache.
func WithMemoryCache(c MemoryCache) Option { return func(s *settings) { s.memoryCache = c } }

// WithDecoderFactory installs the pipeline's image format support. This is
// the one collaborator every Pipeline must be given.
func WithDecoderFactory(f DecoderFactory) Option { return func(s *settings) { s.decoderFactory = f } }

// WithMeter routes the pipeline's aggregate OpenTelemetry instruments
// through meter instead of the no-op default.
func WithMeter(meter metric.Meter) Option { return func(s *settings) { s.meter = meter } }

// WithLogger installs the structured logger the pipeline uses for its
// internal diagnostic output (session lifecycle, failures, cancellation).
// Defaults to a no-op logger.
func WithLogger(l *logger.Logger) Option { return func(s *settings) { s.log = l } }
