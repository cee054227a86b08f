// Package imagepipeline implements a concurrent, deduplicating,
// multi-stage image loading pipeline: fetch, decode, and process, shared
// across every caller asking for the same bytes.
//
// # Overview
//
// A Pipeline admits load requests, coalesces concurrent requests for the
// same URL into one network fetch and one decode, and fans processed
// results back out to every caller that asked for them:
//
//	p, err := imagepipeline.New(
//	    imagepipeline.WithDataLoader(loader.New(nil, loader.DefaultRetryConfig())),
//	    imagepipeline.WithDecoderFactory(myDecoders),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	task := p.LoadImage(imagepipeline.NewRequest(url), onProgress, onCompletion)
//	task.SetPriority(imagepipeline.PriorityHigh)
//
// # Deduplication
//
// Two requests fetching the same bytes share one Load Session; two
// requests additionally sharing the same Processor share one Processing
// Session on top of that. Cancelling one caller's Task never affects
// another caller sharing the same session — the underlying work is only
// cancelled once every subscriber has left.
//
// # Concurrency
//
// All session-state mutation is confined to a single pipeline goroutine;
// callbacks run on a second, separate goroutine so a slow handler never
// stalls scheduling. Three bounded, priority-aware admission queues cap
// concurrent network fetches, decodes, and processor runs independently.
package imagepipeline
