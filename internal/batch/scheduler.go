// Package batch runs item lists in bounded chunks with progress reporting.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"canvasbridge/engine/internal/logging"
	"canvasbridge/engine/internal/progress"
)

const DefaultChunkSize = 10

// SleepFunc pauses between chunks. It returns ctx.Err() when the wait is
// interrupted.
type SleepFunc func(ctx context.Context, wait time.Duration) error

func Sleep(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoSleep skips the inter-chunk pause but still observes cancellation.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

type Labels struct {
	Plan       func(total, chunks int) string
	ChunkStart func(current, chunks int) string
	ChunkDone  func(current, chunks int, o Outcome) string
	Complete   func(o Outcome) string
}

type Options struct {
	ChunkSize int
	Delay     time.Duration
	Sleep     SleepFunc
	Logger    *slog.Logger
	Labels    Labels
	// ChunkPayload adds fields to the post-chunk progress payload.
	ChunkPayload func(o Outcome, chunk []Result) map[string]any
	// CompletePayload adds fields to the completed event payload.
	CompletePayload func(o Outcome) map[string]any
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Sleep == nil {
		o.Sleep = Sleep
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	if o.Labels.Plan == nil {
		o.Labels.Plan = func(total, chunks int) string {
			return fmt.Sprintf("Found %d items to process. Will process in %d chunks.", total, chunks)
		}
	}
	if o.Labels.ChunkStart == nil {
		o.Labels.ChunkStart = func(current, chunks int) string {
			return fmt.Sprintf("Processing chunk %d/%d", current, chunks)
		}
	}
	if o.Labels.ChunkDone == nil {
		o.Labels.ChunkDone = func(current, chunks int, out Outcome) string {
			return fmt.Sprintf("Completed chunk %d/%d. %d successful, %d failed so far.", current, chunks, out.SuccessCount, out.FailureCount)
		}
	}
	if o.Labels.Complete == nil {
		o.Labels.Complete = func(out Outcome) string {
			return fmt.Sprintf("Batch complete: %d successful, %d failed", out.SuccessCount, out.FailureCount)
		}
	}
	return o
}

// Partition splits items into consecutive slices of at most size elements.
func Partition[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultChunkSize
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// Run processes items chunk by chunk. Items of one chunk run concurrently and
// their results are stored back in source order. A failing item never stops
// the batch. Cancellation of ctx is observed only between chunks; the
// returned Outcome then holds the results of the chunks that finished.
func Run[T any](ctx context.Context, tracker *progress.Tracker, items []T, key func(T) string, process func(context.Context, T) Result, opts Options) (Outcome, error) {
	opts = opts.withDefaults()
	chunks := Partition(items, opts.ChunkSize)
	out := Outcome{TotalChunks: len(chunks), TotalItems: len(items)}
	logger := opts.Logger.With("command_id", tracker.CommandID())

	tracker.SetTotal(len(items))
	tracker.Start(len(items), fmt.Sprintf("Starting batch of %d items", len(items)), nil)
	tracker.Progress(progress.PercentPlanned, 0, opts.Labels.Plan(len(items), len(chunks)), map[string]any{
		"totalItems":  len(items),
		"totalChunks": len(chunks),
		"chunkSize":   opts.ChunkSize,
	})
	logger.Debug("batch.planned", "items", len(items), "chunks", len(chunks), "chunk_size", opts.ChunkSize)

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return out, cancel(tracker, logger, out, err)
		}
		tracker.Progress(progress.ChunkPercent(i, len(chunks)), out.Processed(), opts.Labels.ChunkStart(i+1, len(chunks)), map[string]any{
			"currentChunk": i + 1,
			"totalChunks":  len(chunks),
			"chunkSize":    opts.ChunkSize,
			"successCount": out.SuccessCount,
			"failureCount": out.FailureCount,
		})

		results := runChunk(ctx, chunk, key, process)
		out.add(results)
		out.Chunks++

		payload := map[string]any{
			"currentChunk":   i + 1,
			"totalChunks":    len(chunks),
			"chunkSize":      opts.ChunkSize,
			"processedItems": out.Processed(),
			"successCount":   out.SuccessCount,
			"failureCount":   out.FailureCount,
			"chunkResults":   results,
		}
		if opts.ChunkPayload != nil {
			for k, v := range opts.ChunkPayload(out, results) {
				payload[k] = v
			}
		}
		tracker.Progress(progress.ChunkPercent(i+1, len(chunks)), out.Processed(), opts.Labels.ChunkDone(i+1, len(chunks), out), payload)
		logger.Debug("batch.chunk_done", "chunk", i+1, "chunks", len(chunks), "succeeded", out.SuccessCount, "failed", out.FailureCount)

		if i < len(chunks)-1 {
			if err := opts.Sleep(ctx, opts.Delay); err != nil {
				return out, cancel(tracker, logger, out, err)
			}
		}
	}

	payload := map[string]any{
		"results":           out.Results,
		"successCount":      out.SuccessCount,
		"failureCount":      out.FailureCount,
		"totalItems":        out.TotalItems,
		"completedInChunks": out.Chunks,
	}
	if opts.CompletePayload != nil {
		for k, v := range opts.CompletePayload(out) {
			payload[k] = v
		}
	}
	tracker.Complete(opts.Labels.Complete(out), payload)
	logger.Info("batch.completed", "succeeded", out.SuccessCount, "failed", out.FailureCount, "chunks", out.Chunks)
	return out, nil
}

func cancel(tracker *progress.Tracker, logger *slog.Logger, out Outcome, err error) error {
	logger.Warn("batch.canceled", "chunks_done", out.Chunks, "chunks", out.TotalChunks, "error", err.Error())
	tracker.Fail(fmt.Sprintf("Canceled after %d/%d chunks", out.Chunks, out.TotalChunks), map[string]any{
		"results":           out.Results,
		"successCount":      out.SuccessCount,
		"failureCount":      out.FailureCount,
		"completedInChunks": out.Chunks,
	})
	return err
}

func runChunk[T any](ctx context.Context, chunk []T, key func(T) string, process func(context.Context, T) Result) []Result {
	// A started chunk always finishes.
	itemCtx := context.WithoutCancel(ctx)
	results := make([]Result, len(chunk))
	var g errgroup.Group
	for i, item := range chunk {
		g.Go(func() error {
			results[i] = processOne(itemCtx, item, key, process)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func processOne[T any](ctx context.Context, item T, key func(T) string, process func(context.Context, T) Result) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failed(key(item), "panic: %v", r)
		}
	}()
	res = process(ctx, item)
	if res.NodeID == "" {
		res.NodeID = key(item)
	}
	return res
}
