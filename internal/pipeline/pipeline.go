// Package pipeline wires rendering, OCR, classification and element
// detection into a single document processing flow.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dibuix-tech/dibuix/internal/detector"
	"github.com/dibuix-tech/dibuix/internal/docai"
	"github.com/dibuix-tech/dibuix/internal/ocr"
	"github.com/dibuix-tech/dibuix/internal/render"
)

// Engine selection modes.
const (
	EngineAuto       = "auto"
	EngineDocumentAI = "documentai"
	EngineTesseract  = "tesseract"
)

// Config holds configuration for the processing pipeline and its components.
type Config struct {
	Engine   string // auto, documentai or tesseract
	Language string // tesseract language codes, "+"-separated

	DocAI    docai.Config
	Detector detector.Config
	Render   render.Options

	EnableDetector bool

	Parallel ParallelConfig
}

// DefaultConfig returns a pipeline config with component defaults.
func DefaultConfig() Config {
	return Config{
		Engine:   EngineAuto,
		Language: "eng",
		Detector: detector.DefaultConfig(),
		Render:   render.Options{MaxSide: 2000},
		Parallel: DefaultParallelConfig(),
	}
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg    Config
	logger *slog.Logger
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithEngine selects the OCR engine mode.
func (b *Builder) WithEngine(engine string) *Builder {
	if engine != "" {
		b.cfg.Engine = engine
	}
	return b
}

// WithLanguage sets the recognition language.
func (b *Builder) WithLanguage(lang string) *Builder {
	if lang != "" {
		b.cfg.Language = lang
	}
	return b
}

// WithDocAI sets the Document AI processor identity.
func (b *Builder) WithDocAI(cfg docai.Config) *Builder {
	b.cfg.DocAI = cfg
	return b
}

// WithDetector enables or disables the technical element detector.
func (b *Builder) WithDetector(enabled bool) *Builder {
	b.cfg.EnableDetector = enabled
	return b
}

// WithDetectorModelPath overrides the detector model path directly.
func (b *Builder) WithDetectorModelPath(path string) *Builder {
	if path != "" {
		b.cfg.Detector.ModelPath = path
	}
	return b
}

// WithDetectorLibraryPath overrides the onnxruntime shared library path.
func (b *Builder) WithDetectorLibraryPath(path string) *Builder {
	if path != "" {
		b.cfg.Detector.LibraryPath = path
	}
	return b
}

// WithDetectorThresholds sets confidence and IoU thresholds.
func (b *Builder) WithDetectorThresholds(conf, iou float64) *Builder {
	if conf > 0 {
		b.cfg.Detector.ConfThreshold = conf
	}
	if iou > 0 {
		b.cfg.Detector.IoUThreshold = iou
	}
	return b
}

// WithPageRange restricts processing to the given page selection.
func (b *Builder) WithPageRange(pages string) *Builder {
	b.cfg.Render.PageRange = pages
	return b
}

// WithMaxSide caps the longest rendered page side in pixels.
func (b *Builder) WithMaxSide(px int) *Builder {
	if px > 0 {
		b.cfg.Render.MaxSide = px
	}
	return b
}

// WithWorkers sets the number of parallel page workers.
func (b *Builder) WithWorkers(n int) *Builder {
	if n > 0 {
		b.cfg.Parallel.MaxWorkers = n
	}
	return b
}

// WithProgressCallback sets the progress callback for processing.
func (b *Builder) WithProgressCallback(callback ProgressCallback) *Builder {
	b.cfg.Parallel.ProgressCallback = callback
	return b
}

// WithLogger sets the logger used by the pipeline.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks that the configuration is usable.
func (b *Builder) Validate() error {
	switch b.cfg.Engine {
	case EngineAuto, EngineDocumentAI, EngineTesseract:
	default:
		return fmt.Errorf("unknown engine %q", b.cfg.Engine)
	}
	if b.cfg.Engine == EngineDocumentAI {
		if err := b.cfg.DocAI.Validate(); err != nil {
			return err
		}
	}
	if b.cfg.EnableDetector {
		if b.cfg.Detector.ModelPath == "" {
			return errors.New("detector model path is empty")
		}
		if _, err := os.Stat(b.cfg.Detector.ModelPath); err != nil {
			return fmt.Errorf("detector model not found: %s", b.cfg.Detector.ModelPath)
		}
	}
	if b.cfg.Render.PageRange != "" {
		if _, err := render.ParsePageRange(b.cfg.Render.PageRange); err != nil {
			return err
		}
	}
	return nil
}

// Pipeline wires together page rendering, OCR engines and the detector.
type Pipeline struct {
	cfg      Config
	logger   *slog.Logger
	primary  ocr.Engine
	fallback ocr.Engine
	cloud    *docai.Client
	Detector *detector.Detector
}

// Build initializes the pipeline components.
func (b *Builder) Build(ctx context.Context) (*Pipeline, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{cfg: b.cfg, logger: logger}

	local := ocr.NewTesseractEngine()

	// Document AI is used when fully configured; tesseract stays
	// available as the fallback in auto mode.
	useCloud := b.cfg.Engine == EngineDocumentAI ||
		(b.cfg.Engine == EngineAuto && b.cfg.DocAI.Validate() == nil)
	if useCloud {
		cloud, err := docai.New(ctx, b.cfg.DocAI)
		if err != nil {
			if b.cfg.Engine == EngineDocumentAI {
				return nil, fmt.Errorf("init document ai: %w", err)
			}
			logger.Warn("document ai unavailable, using tesseract", "error", err)
		} else {
			p.cloud = cloud
			p.primary = cloud
			if b.cfg.Engine == EngineAuto {
				p.fallback = local
			}
		}
	}
	if p.primary == nil {
		p.primary = local
	}

	if b.cfg.EnableDetector {
		det, err := detector.New(b.cfg.Detector)
		if err != nil {
			if p.cloud != nil {
				_ = p.cloud.Close()
			}
			return nil, fmt.Errorf("init detector: %w", err)
		}
		p.Detector = det
	}

	return p, nil
}

// Close releases all resources.
func (p *Pipeline) Close() error {
	var firstErr error
	if p.Detector != nil {
		if err := p.Detector.Close(); err != nil {
			firstErr = err
		}
		p.Detector = nil
	}
	if p.cloud != nil {
		if err := p.cloud.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.cloud = nil
	}
	p.primary = nil
	p.fallback = nil
	return firstErr
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// EngineName reports the OCR engine the pipeline will try first.
func (p *Pipeline) EngineName() string {
	if p.primary == nil {
		return ""
	}
	return p.primary.Name()
}

// Info returns a map with key pipeline properties.
func (p *Pipeline) Info() map[string]interface{} {
	info := map[string]interface{}{
		"engine":   p.cfg.Engine,
		"language": p.cfg.Language,
		"workers":  p.cfg.Parallel.MaxWorkers,
	}
	if p.primary != nil {
		info["primary"] = p.primary.Name()
	}
	if p.fallback != nil {
		info["fallback"] = p.fallback.Name()
	}
	info["detector"] = map[string]interface{}{
		"enabled":        p.Detector != nil,
		"model_path":     p.cfg.Detector.ModelPath,
		"conf_threshold": p.cfg.Detector.ConfThreshold,
		"iou_threshold":  p.cfg.Detector.IoUThreshold,
	}
	return info
}
