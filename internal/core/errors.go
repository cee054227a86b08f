package core

import "fmt"

// DataLoadingError wraps a transport failure. It fails every subscriber of
// the Load Session that owned the download.
type DataLoadingError struct{ Cause error }

func (e *DataLoadingError) Error() string { return fmt.Sprintf("data loading failed: %v", e.Cause) }
func (e *DataLoadingError) Unwrap() error { return e.Cause }

// DecodingError reports that no image could be produced from the final
// byte buffer, either because the decoder rejected it or none could be
// constructed. It fails every subscriber of the Load Session.
type DecodingError struct{ Reason string }

func (e *DecodingError) Error() string { return "decoding failed: " + e.Reason }

// ProcessingError reports that a Processor returned no image. It fails only
// the tasks subscribed to the Processing Session that produced it.
type ProcessingError struct{ Reason string }

func (e *ProcessingError) Error() string { return "processing failed: " + e.Reason }

// NewDataLoadingError wraps cause in the pipeline's error taxonomy.
func NewDataLoadingError(cause error) error { return &DataLoadingError{Cause: cause} }

// NewDecodingError builds a DecodingError with reason.
func NewDecodingError(reason string) error { return &DecodingError{Reason: reason} }

// NewProcessingError builds a ProcessingError with reason.
func NewProcessingError(reason string) error { return &ProcessingError{Reason: reason} }
