package core

// Config enumerates the pipeline's behavioral switches and the concurrency
// caps for its three bounded queues, per the injected-collaborator model:
// the loader, caches, and decoder factory are supplied separately.
type Config struct {
	DeduplicationEnabled       bool
	RateLimiterEnabled         bool
	ProgressiveDecodingEnabled bool
	ResumableDataEnabled       bool
	AnimatedImageDataEnabled   bool

	DataLoadingQueueCap int
	DecodingQueueCap    int
	ProcessingQueueCap  int

	DiskCacheCountLimit int
	DiskCacheSizeLimit  int64
}

// DefaultConfig returns the pipeline's documented defaults.
func DefaultConfig() Config {
	return Config{
		DeduplicationEnabled:       true,
		RateLimiterEnabled:         true,
		ProgressiveDecodingEnabled: false,
		ResumableDataEnabled:       true,
		AnimatedImageDataEnabled:   false,

		DataLoadingQueueCap: 6,
		DecodingQueueCap:    1,
		ProcessingQueueCap:  2,

		DiskCacheCountLimit: 1000,
		DiskCacheSizeLimit:  100 * 1024 * 1024,
	}
}
