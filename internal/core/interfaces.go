package core

import (
	"context"
	"image"
)

// CancelFunc aborts an in-flight external operation (a data load or a disk
// cache lookup). It is safe to call more than once.
type CancelFunc func()

// DataLoader is the injected network transport. onChunk may be called zero
// or more times before onComplete; both are invoked off the pipeline
// context. Implementations own their own retry/timeout policy — the core
// imposes none.
type DataLoader interface {
	LoadData(
		ctx context.Context,
		req Request,
		onChunk func(chunk []byte, resp TransportResponse),
		onComplete func(err error),
	) CancelFunc
}

// DiskCache is the optional injected byte-cache keyed by URL string. Lookup
// is asynchronous; Store is fire-and-forget from the caller's perspective.
type DiskCache interface {
	Lookup(ctx context.Context, key string, onResult func(data []byte, found bool)) CancelFunc
	Store(key string, data []byte)
}

// MemoryCache is the optional injected decoded-response cache, expected to
// be synchronous and safe for concurrent use.
type MemoryCache interface {
	Get(req Request) (Response, bool)
	Put(req Request, resp Response)
}

// DecoderFactory constructs a Decoder from the first bytes seen for a
// session. It may return (nil, nil) when there is not yet enough sample
// data to decide, in which case the caller retries once more data arrives.
type DecoderFactory interface {
	NewDecoder(req Request, resp *TransportResponse, sample []byte) (Decoder, error)
}

// DecoderFactoryFunc adapts a plain function to DecoderFactory.
type DecoderFactoryFunc func(req Request, resp *TransportResponse, sample []byte) (Decoder, error)

func (f DecoderFactoryFunc) NewDecoder(req Request, resp *TransportResponse, sample []byte) (Decoder, error) {
	return f(req, resp, sample)
}

// Decoder turns accumulated bytes into an image. A single Decoder instance
// is created once per Load Session and reused for every subsequent call as
// more bytes arrive.
type Decoder interface {
	Decode(data []byte, isFinal bool) (Container, error)
}

// ScanCounter is an optional capability a Decoder may implement to report a
// monotonic scan number for progressive partial results.
type ScanCounter interface {
	NumberOfScans() int
}

// Processor transforms a decoded image on behalf of one request. Processors
// are compared by Identity, not by Go identity: two Processor values with
// the same Identity are treated as the same processing operation and share
// one Processing Session.
type Processor interface {
	Identity() string
	Process(ctx context.Context, c Container, req Request) (image.Image, error)
}
