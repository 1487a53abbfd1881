package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dibuix-tech/dibuix/internal/export"
	"github.com/dibuix-tech/dibuix/internal/pipeline"
)

// batchCmd represents the batch command.
var batchCmd = &cobra.Command{
	Use:   "batch [file|directory...]",
	Short: "Process multiple drawings in parallel",
	Long: `Process multiple PDF or image files with a worker pool and write
one result file per input into the output directory.

Directories are expanded to the PDF and image files they contain
(non-recursive).

Examples:
  dibuix batch ./drawings --output-dir ./results
  dibuix batch a.pdf b.pdf c.png --format json --workers 8
  dibuix batch ./drawings --continue-on-error=false`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringP("format", "f", "text", "output format (text, json, csv)")
	batchCmd.Flags().StringP("output-dir", "d", "", "directory for result files (default: alongside inputs)")
	batchCmd.Flags().String("pages", "", "page selection per document, e.g. '1-5'")
	batchCmd.Flags().Int("max-side", 0, "cap on the longest rendered page side in pixels")
	batchCmd.Flags().IntP("workers", "w", 0, "number of parallel document workers (0=config default)")
	batchCmd.Flags().Bool("continue-on-error", true, "keep processing remaining files after a failure")
	batchCmd.Flags().Bool("detector", false, "enable the technical element detector")
	batchCmd.Flags().String("detector-model", "", "override detector ONNX model path")
	batchCmd.Flags().String("onnx-lib", "", "override onnxruntime shared library path")
	batchCmd.Flags().Float64("conf-threshold", 0, "detector confidence threshold (0..1)")
	batchCmd.Flags().Float64("iou-threshold", 0, "detector IoU threshold for NMS (0..1)")
	batchCmd.Flags().Bool("quiet", false, "log progress instead of drawing a progress bar")
}

// runBatch handles the main batch processing logic.
func runBatch(cmd *cobra.Command, args []string) error {
	centralCfg := GetConfig()

	formatStr := centralCfg.Output.Format
	if cmd.Flags().Changed("format") {
		formatStr, _ = cmd.Flags().GetString("format")
	}
	format, err := export.ParseFormat(formatStr)
	if err != nil {
		return err
	}
	if format == export.FormatPDF {
		return errors.New("pdf reports are not supported in batch mode, use 'dibuix process --format pdf' per file")
	}

	outputDir := centralCfg.Batch.OutputDir
	if cmd.Flags().Changed("output-dir") {
		outputDir, _ = cmd.Flags().GetString("output-dir")
	}
	continueOnError := centralCfg.Batch.ContinueOnError
	if cmd.Flags().Changed("continue-on-error") {
		continueOnError, _ = cmd.Flags().GetBool("continue-on-error")
	}
	quiet, _ := cmd.Flags().GetBool("quiet")

	files, err := collectInputFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no processable files found (supported: .pdf, .png, .jpg, .jpeg)")
	}

	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	ctx := cmd.Context()
	p, err := buildPipelineFromConfig(ctx, centralCfg, cmd, batchProgress(quiet))
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer func() { _ = p.Close() }()

	results, err := p.ProcessFiles(ctx, files)
	if err != nil {
		return err
	}

	var failed int
	for _, fr := range results {
		if fr.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "FAILED %s: %v\n", fr.Path, fr.Err)
			if !continueOnError {
				return fmt.Errorf("processing %s: %w", fr.Path, fr.Err)
			}
			continue
		}
		out := batchOutputPath(fr.Path, outputDir, format)
		if err := writeBatchResult(out, fr, format); err != nil {
			return err
		}
	}

	fmt.Printf("Processed %d file(s), %d failed\n", len(results), failed)
	if failed > 0 && !continueOnError {
		return fmt.Errorf("%d file(s) failed", failed)
	}
	return nil
}

// batchProgress picks the progress reporter: a console bar by default,
// structured log lines with --quiet.
func batchProgress(quiet bool) pipeline.ProgressCallback {
	if quiet {
		return pipeline.NewLogProgressCallback(slog.Default(), slog.LevelDebug)
	}
	return pipeline.NewConsoleProgressCallback(os.Stderr, "Processing")
}

// collectInputFiles expands directories into their processable files.
func collectInputFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		var found []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if isProcessableFile(e.Name()) {
				found = append(found, filepath.Join(arg, e.Name()))
			}
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}

// isProcessableFile reports whether the filename has a supported extension.
func isProcessableFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

// batchOutputPath derives the result path for one input file.
func batchOutputPath(input, outputDir string, format export.Format) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	name := base + "." + format.Ext()
	if outputDir == "" {
		return filepath.Join(filepath.Dir(input), name)
	}
	return filepath.Join(outputDir, name)
}

// writeBatchResult writes one file result in the requested format.
func writeBatchResult(path string, fr pipeline.FileResult, format export.Format) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	if err := export.Write(f, fr.Result, format); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
