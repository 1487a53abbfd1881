package pipeline

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/dibuix-tech/dibuix/internal/doc"
)

// ParallelConfig holds configuration for parallel processing.
type ParallelConfig struct {
	MaxWorkers       int              // number of parallel workers (0 = runtime.NumCPU())
	ProgressCallback ProgressCallback // optional progress reporting
}

// DefaultParallelConfig returns sensible defaults for parallel processing.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{
		MaxWorkers:       runtime.NumCPU(),
		ProgressCallback: nil,
	}
}

// FileResult pairs an input path with its processing outcome.
type FileResult struct {
	Path   string
	Result *doc.Result
	Err    error
}

type fileJob struct {
	index int
	path  string
}

// ProcessFiles processes multiple files concurrently using a worker
// pool. Results come back in input order; per-file errors are recorded
// in the corresponding FileResult rather than aborting the batch.
func (p *Pipeline) ProcessFiles(ctx context.Context, paths []string) ([]FileResult, error) {
	if len(paths) == 0 {
		return nil, errors.New("no input files")
	}

	workers := p.cfg.Parallel.MaxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	cb := p.cfg.Parallel.ProgressCallback
	if cb == nil {
		cb = NoOpProgressCallback{}
	}
	cb.OnStart(len(paths))
	defer cb.OnComplete()

	jobs := make(chan fileJob, len(paths))
	out := make([]FileResult, len(paths))

	var wg sync.WaitGroup
	var mu sync.Mutex
	processed := 0

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				res, err := p.ProcessFile(ctx, job.path)
				out[job.index] = FileResult{Path: job.path, Result: res, Err: err}

				mu.Lock()
				processed++
				current := processed
				mu.Unlock()
				if err != nil {
					cb.OnError(current, err)
				}
				cb.OnProgress(current, len(paths))
			}
		}()
	}

	for i, path := range paths {
		select {
		case jobs <- fileJob{index: i, path: path}:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}
