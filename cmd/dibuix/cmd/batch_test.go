package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dibuix-tech/dibuix/internal/export"
	"github.com/dibuix-tech/dibuix/internal/pipeline"
)

func TestBatchProgress(t *testing.T) {
	_, console := batchProgress(false).(*pipeline.ConsoleProgressCallback)
	assert.True(t, console)

	_, logged := batchProgress(true).(*pipeline.LogProgressCallback)
	assert.True(t, logged)
}

func TestIsProcessableFile(t *testing.T) {
	assert.True(t, isProcessableFile("drawing.pdf"))
	assert.True(t, isProcessableFile("scan.PNG"))
	assert.True(t, isProcessableFile("photo.jpg"))
	assert.True(t, isProcessableFile("photo.jpeg"))
	assert.False(t, isProcessableFile("notes.txt"))
	assert.False(t, isProcessableFile("archive.zip"))
	assert.False(t, isProcessableFile("noext"))
}

func TestCollectInputFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pdf", "a.png", "skip.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "deep.pdf"), []byte("x"), 0o600))

	extra := filepath.Join(t.TempDir(), "direct.txt")
	require.NoError(t, os.WriteFile(extra, []byte("x"), 0o600))

	files, err := collectInputFiles([]string{dir, extra})
	require.NoError(t, err)

	// directory entries come back sorted and filtered; nested
	// directories are not descended into; explicit files pass through
	assert.Equal(t, []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "b.pdf"),
		extra,
	}, files)
}

func TestCollectInputFiles_Missing(t *testing.T) {
	_, err := collectInputFiles([]string{filepath.Join(t.TempDir(), "absent.pdf")})
	assert.Error(t, err)
}

func TestBatchOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("in", "drawing.json"),
		batchOutputPath(filepath.Join("in", "drawing.pdf"), "", export.FormatJSON))
	assert.Equal(t, filepath.Join("out", "drawing.csv"),
		batchOutputPath(filepath.Join("in", "drawing.pdf"), "out", export.FormatCSV))
	assert.Equal(t, filepath.Join("out", "scan.txt"),
		batchOutputPath("scan.png", "out", export.FormatText))
}
