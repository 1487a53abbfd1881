package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingCallback counts progress events for assertions.
type recordingCallback struct {
	mu        sync.Mutex
	started   int
	progress  int
	completed int
	errors    int
}

func (r *recordingCallback) OnStart(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = total
}

func (r *recordingCallback) OnProgress(current, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress++
}

func (r *recordingCallback) OnComplete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
}

func (r *recordingCallback) OnError(current int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors++
}

func TestProcessFiles(t *testing.T) {
	p := testPipeline(&fakeEngine{name: "fake"}, nil)
	dir := t.TempDir()
	paths := []string{
		writePNGFile(t, dir, "a.png"),
		writePNGFile(t, dir, "b.png"),
		writePNGFile(t, dir, "c.png"),
	}

	results, err := p.ProcessFiles(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// results keep input order
	for i, r := range results {
		assert.Equal(t, paths[i], r.Path)
		require.NoError(t, r.Err)
		assert.Equal(t, filepath.Base(paths[i]), r.Result.Filename)
	}
}

func TestProcessFiles_PerFileErrors(t *testing.T) {
	p := testPipeline(&fakeEngine{name: "fake"}, nil)
	dir := t.TempDir()
	good := writePNGFile(t, dir, "good.png")
	missing := filepath.Join(dir, "missing.png")

	cb := &recordingCallback{}
	p.cfg.Parallel.ProgressCallback = cb

	results, err := p.ProcessFiles(context.Background(), []string{good, missing})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.Nil(t, results[1].Result)

	assert.Equal(t, 2, cb.started)
	assert.Equal(t, 2, cb.progress)
	assert.Equal(t, 1, cb.completed)
	assert.Equal(t, 1, cb.errors)
}

func TestProcessFiles_NoInput(t *testing.T) {
	p := testPipeline(&fakeEngine{name: "fake"}, nil)
	_, err := p.ProcessFiles(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no input files")
}

func TestProcessFiles_CancelledContext(t *testing.T) {
	p := testPipeline(&fakeEngine{name: "fake"}, nil)
	dir := t.TempDir()
	paths := []string{writePNGFile(t, dir, "a.png")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ProcessFiles(ctx, paths)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultParallelConfig(t *testing.T) {
	cfg := DefaultParallelConfig()
	assert.Greater(t, cfg.MaxWorkers, 0)
	assert.Nil(t, cfg.ProgressCallback)
}
