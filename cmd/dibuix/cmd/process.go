package cmd

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dibuix-tech/dibuix/internal/config"
	"github.com/dibuix-tech/dibuix/internal/doc"
	"github.com/dibuix-tech/dibuix/internal/docai"
	"github.com/dibuix-tech/dibuix/internal/export"
	"github.com/dibuix-tech/dibuix/internal/overlay"
	"github.com/dibuix-tech/dibuix/internal/pipeline"
)

// processCmd represents the process command.
var processCmd = &cobra.Command{
	Use:   "process [file]",
	Short: "Process a technical drawing (PDF or image)",
	Long: `Process a single PDF or image file: render pages, run OCR,
classify the extracted text into drawing elements and optionally
cross-check with the ONNX element detector.

Examples:
  dibuix process drawing.pdf
  dibuix process drawing.pdf --format json --output result.json
  dibuix process drawing.pdf --pages 1-3 --engine tesseract
  dibuix process drawing.pdf --format pdf --output report.pdf
  dibuix process drawing.pdf --overlay-dir ./overlays --overlay-mode heatmap`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringP("format", "f", "text", "output format (text, json, csv, pdf)")
	processCmd.Flags().StringP("output", "o", "", "output file (default: stdout; required for pdf)")
	processCmd.Flags().String("pages", "", "page selection, e.g. '1-5' or '1,3,5'")
	processCmd.Flags().Int("max-side", 0, "cap on the longest rendered page side in pixels")
	processCmd.Flags().Int("workers", 0, "max worker goroutines for page processing (0=NumCPU)")
	processCmd.Flags().Bool("detector", false, "enable the technical element detector")
	processCmd.Flags().String("detector-model", "", "override detector ONNX model path")
	processCmd.Flags().String("onnx-lib", "", "override onnxruntime shared library path")
	processCmd.Flags().Float64("conf-threshold", 0, "detector confidence threshold (0..1)")
	processCmd.Flags().Float64("iou-threshold", 0, "detector IoU threshold for NMS (0..1)")
	processCmd.Flags().String("overlay-dir", "", "directory to write per-page overlay PNGs")
	processCmd.Flags().String("overlay-mode", "", "overlay mode (outline, heatmap)")
	processCmd.Flags().Bool("show-order", false, "draw reading-order badges on overlays")
}

// processConfig holds the effective options for a process run.
type processConfig struct {
	format      export.Format
	outputFile  string
	pages       string
	maxSide     int
	workers     int
	detector    bool
	overlayDir  string
	overlayMode overlay.Mode
	showOrder   bool
}

// configToProcessConfig maps the centralized configuration to the process
// command options. CLI flags override config file values when set.
func configToProcessConfig(cfg *config.Config, cmd *cobra.Command) (*processConfig, error) {
	pc := &processConfig{
		outputFile:  cfg.Output.File,
		pages:       cfg.Render.Pages,
		maxSide:     cfg.Render.MaxSide,
		workers:     cfg.Batch.Workers,
		detector:    cfg.Detector.Enabled,
		showOrder:   cfg.Output.ShowOrder,
		overlayMode: overlay.Mode(cfg.Output.OverlayMode),
	}

	formatStr := cfg.Output.Format
	if cmd.Flags().Changed("format") {
		formatStr, _ = cmd.Flags().GetString("format")
	}
	format, err := export.ParseFormat(formatStr)
	if err != nil {
		return nil, err
	}
	pc.format = format

	if cmd.Flags().Changed("output") {
		pc.outputFile, _ = cmd.Flags().GetString("output")
	}
	if cmd.Flags().Changed("pages") {
		pc.pages, _ = cmd.Flags().GetString("pages")
	}
	if cmd.Flags().Changed("max-side") {
		pc.maxSide, _ = cmd.Flags().GetInt("max-side")
	}
	if cmd.Flags().Changed("workers") {
		pc.workers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Changed("detector") {
		pc.detector, _ = cmd.Flags().GetBool("detector")
	}
	if cmd.Flags().Changed("show-order") {
		pc.showOrder, _ = cmd.Flags().GetBool("show-order")
	}

	pc.overlayDir, _ = cmd.Flags().GetString("overlay-dir")
	if cmd.Flags().Changed("overlay-mode") {
		mode, _ := cmd.Flags().GetString("overlay-mode")
		pc.overlayMode = overlay.Mode(mode)
	}
	switch pc.overlayMode {
	case overlay.ModeOutline, overlay.ModeHeatmap:
	default:
		return nil, fmt.Errorf("invalid overlay mode: %s (must be outline or heatmap)", pc.overlayMode)
	}

	if pc.format == export.FormatPDF && pc.outputFile == "" {
		return nil, errors.New("--output is required for pdf format")
	}

	return pc, nil
}

// buildPipelineFromConfig constructs a pipeline from the centralized
// configuration plus flag overrides. Shared by process, batch and serve.
func buildPipelineFromConfig(ctx context.Context, cfg *config.Config, cmd *cobra.Command, progress pipeline.ProgressCallback) (*pipeline.Pipeline, error) {
	b := pipeline.NewBuilder().
		WithEngine(cfg.Engine).
		WithLanguage(cfg.Language).
		WithDocAI(docai.Config{
			ProjectID:       cfg.DocAI.ProjectID,
			Location:        cfg.DocAI.Location,
			ProcessorID:     cfg.DocAI.ProcessorID,
			CredentialsFile: cfg.DocAI.CredentialsFile,
		}).
		WithDetector(cfg.Detector.Enabled).
		WithDetectorModelPath(cfg.Detector.ModelPath).
		WithDetectorLibraryPath(cfg.Detector.LibraryPath).
		WithDetectorThresholds(cfg.Detector.ConfThreshold, cfg.Detector.IoUThreshold).
		WithPageRange(cfg.Render.Pages).
		WithMaxSide(cfg.Render.MaxSide).
		WithWorkers(cfg.Batch.Workers)

	if progress != nil {
		b.WithProgressCallback(progress)
	}

	if cmd != nil {
		if cmd.Flags().Changed("detector") {
			enabled, _ := cmd.Flags().GetBool("detector")
			b.WithDetector(enabled)
		}
		if cmd.Flags().Changed("detector-model") {
			path, _ := cmd.Flags().GetString("detector-model")
			b.WithDetectorModelPath(path)
		}
		if cmd.Flags().Changed("onnx-lib") {
			path, _ := cmd.Flags().GetString("onnx-lib")
			b.WithDetectorLibraryPath(path)
		}
		if cmd.Flags().Changed("conf-threshold") || cmd.Flags().Changed("iou-threshold") {
			conf, _ := cmd.Flags().GetFloat64("conf-threshold")
			iou, _ := cmd.Flags().GetFloat64("iou-threshold")
			b.WithDetectorThresholds(conf, iou)
		}
		if cmd.Flags().Changed("pages") {
			pages, _ := cmd.Flags().GetString("pages")
			b.WithPageRange(pages)
		}
		if cmd.Flags().Changed("max-side") {
			px, _ := cmd.Flags().GetInt("max-side")
			b.WithMaxSide(px)
		}
		if cmd.Flags().Changed("workers") {
			n, _ := cmd.Flags().GetInt("workers")
			b.WithWorkers(n)
		}
	}

	return b.Build(ctx)
}

// runProcess handles the main process logic.
func runProcess(cmd *cobra.Command, args []string) error {
	centralCfg := GetConfig()

	pc, err := configToProcessConfig(centralCfg, cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	p, err := buildPipelineFromConfig(ctx, centralCfg, cmd, nil)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer func() { _ = p.Close() }()

	input := args[0]
	res, err := p.ProcessFile(ctx, input)
	if err != nil {
		return err
	}

	if err := writeResult(p, res, input, pc); err != nil {
		return err
	}

	if pc.overlayDir != "" {
		if err := writeOverlays(p, res, input, pc); err != nil {
			return err
		}
	}
	return nil
}

// writeResult exports the result in the requested format.
func writeResult(p *pipeline.Pipeline, res *doc.Result, input string, pc *processConfig) error {
	opts := overlay.Options{Mode: pc.overlayMode, ShowOrder: pc.showOrder}

	if pc.outputFile != "" {
		f, err := os.Create(pc.outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if pc.format == export.FormatPDF {
			pages, err := p.RenderFile(input)
			if err != nil {
				return fmt.Errorf("failed to render pages for report: %w", err)
			}
			if err := export.WriteReport(f, res, pages, opts); err != nil {
				return err
			}
		} else if err := export.Write(f, res, pc.format); err != nil {
			return err
		}
		fmt.Printf("Results written to %s\n", pc.outputFile)
		return nil
	}

	return export.Write(os.Stdout, res, pc.format)
}

// writeOverlays renders one overlay PNG per page into the overlay dir.
func writeOverlays(p *pipeline.Pipeline, res *doc.Result, input string, pc *processConfig) error {
	if err := os.MkdirAll(pc.overlayDir, 0o750); err != nil {
		return fmt.Errorf("failed to create overlay directory: %w", err)
	}

	pages, err := p.RenderFile(input)
	if err != nil {
		return fmt.Errorf("failed to render pages for overlays: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	opts := overlay.Options{Mode: pc.overlayMode, ShowOrder: pc.showOrder}
	for _, page := range pages {
		img := overlay.Render(page.Image, res.Blocks, page.Number, opts)
		if img == nil {
			continue
		}
		name := filepath.Join(pc.overlayDir, fmt.Sprintf("%s_page%d.png", base, page.Number))
		f, err := os.Create(name)
		if err != nil {
			return fmt.Errorf("failed to create overlay file: %w", err)
		}
		if err := png.Encode(f, img); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to encode overlay: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	fmt.Printf("Overlays written to %s\n", pc.overlayDir)
	return nil
}
