package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/killallgit/echonote-api/internal/models"
	"github.com/killallgit/echonote-api/internal/services/recognition"
	"github.com/killallgit/echonote-api/internal/services/stitching"
	apperrors "github.com/killallgit/echonote-api/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// transcribeChunks fans the planned chunks out to the transcriber with at
// most maxParallel calls in flight and waits for all of them. The first
// chunk failure returns immediately and stops further dispatch; calls
// already in flight finish on their own and their chunk states are still
// recorded, but their segments are dropped.
func (o *Orchestrator) transcribeChunks(ctx context.Context, job *models.TranscriptJob, path string, planned []models.AudioChunk) ([]stitching.ChunkResult, error) {
	dispatchCtx, stop := context.WithCancel(ctx)
	defer stop()

	index := make(map[int]int, len(planned))
	for i, c := range planned {
		index[c.Seq] = i
	}

	// buffered so drained calls never block after an early return
	results := make(chan recognition.Result, len(planned))
	sem := semaphore.NewWeighted(o.maxParallel)

	var inFlight sync.WaitGroup
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		for _, chunk := range planned {
			if err := sem.Acquire(dispatchCtx, 1); err != nil {
				return
			}
			inFlight.Add(1)
			go func(chunk models.AudioChunk) {
				defer inFlight.Done()
				results <- o.transcribeChunk(dispatchCtx, job, path, chunk)
			}(chunk)
		}
	}()

	// after an early return the remaining results still update their rows
	drain := func() {
		go func() {
			<-dispatched
			inFlight.Wait()
			close(results)
			for res := range results {
				o.recordChunk(context.WithoutCancel(ctx), job, res)
			}
		}()
	}

	collected := make([]stitching.ChunkResult, len(planned))
	for done := 0; done < len(planned); {
		select {
		case <-ctx.Done():
			drain()
			return nil, context.Cause(ctx)
		case res := <-results:
			done++
			o.recordChunk(context.WithoutCancel(ctx), job, res)

			if res.Err != nil {
				drain()
				return nil, fmt.Errorf("chunk %d: %w", res.Chunk.Seq, res.Err)
			}

			collected[index[res.Chunk.Seq]] = stitching.ChunkResult{
				Seq:      res.Chunk.Seq,
				Segments: res.Segments,
			}
			// the slot is freed only once the result is accepted, so
			// nothing new starts between a failure and the short-circuit
			sem.Release(1)
			o.progress(ctx, job, progressPlanned+progressChunksSpan*done/len(planned))
		}
	}

	return collected, nil
}

func (o *Orchestrator) recordChunk(ctx context.Context, job *models.TranscriptJob, res recognition.Result) {
	if err := o.deps.Jobs.UpdateChunk(ctx, &res.Chunk); err != nil {
		log.Printf("[WARN] Job %s: %v", job.ID, err)
	}
}

func (o *Orchestrator) transcribeChunk(ctx context.Context, job *models.TranscriptJob, path string, chunk models.AudioChunk) recognition.Result {
	audio, err := o.deps.Extractor.ExtractFLAC(ctx, path, chunk.StartOffset, chunk.Duration, o.extractOpts)
	if err != nil {
		chunk.State = models.ChunkStateFailed
		chunk.Error = err.Error()
		return recognition.Result{Chunk: chunk, Err: apperrors.StorageError(job.AudioLocator, err)}
	}

	return o.deps.Transcriber.Transcribe(ctx, recognition.Request{
		JobID:    job.ID,
		Chunk:    chunk,
		Audio:    audio,
		Language: job.Language,
	})
}
