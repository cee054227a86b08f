package core

import "image"

// TransportResponse carries the subset of HTTP-ish response metadata the
// pipeline needs to negotiate resumption and track progress. It is produced
// by a DataLoader and is opaque to everything downstream of decode.
type TransportResponse struct {
	StatusCode int
	// ExpectedLength is the total byte length the server reports, or -1 if
	// unknown (chunked transfer, no Content-Length).
	ExpectedLength int64
	// Validator is the resource version token (ETag or Last-Modified) used
	// to build a conditional range request on resume.
	Validator string
	// IsPartialContent reports whether this response is answering a range
	// request (HTTP 206): resumption was accepted by the server.
	IsPartialContent bool
}

// Container wraps one decoded image together with the bookkeeping needed
// to route it through processing.
type Container struct {
	Image image.Image
	// IsFinal reports whether Image was decoded from the complete byte
	// buffer, as opposed to a progressive partial scan.
	IsFinal bool
	// ScanNumber orders partial images from a progressive decoder. It is
	// absent (nil) for images that carry no scan information, including
	// every final image.
	ScanNumber *int
	// Animated flags a payload the decoder identified as an animation,
	// gating processing when animated-image handling is enabled.
	Animated bool
}

// Response is delivered to a task's completion handler.
type Response struct {
	Image             image.Image
	TransportResponse *TransportResponse
	// ScanNumber carries the decoder's scan number through to a progressive
	// partial delivery. Nil for a final image, or for a decoder that does
	// not implement ScanCounter.
	ScanNumber *int
}
