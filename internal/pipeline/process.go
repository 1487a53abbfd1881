package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/dibuix-tech/dibuix/internal/detector"
	"github.com/dibuix-tech/dibuix/internal/doc"
	"github.com/dibuix-tech/dibuix/internal/ocr"
	"github.com/dibuix-tech/dibuix/internal/render"
)

// ProcessFile runs the full pipeline on a PDF or image file.
func (p *Pipeline) ProcessFile(ctx context.Context, filename string) (*doc.Result, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return p.ProcessBytes(ctx, filepath.Base(filename), data, mimeForFile(filename), filename)
}

// ProcessBytes runs the full pipeline on in-memory document bytes.
// path may be empty; when set it is used for PDF page rendering.
func (p *Pipeline) ProcessBytes(ctx context.Context, name string, data []byte, mime, path string) (*doc.Result, error) {
	if len(data) == 0 {
		return nil, ocr.ErrNoInput
	}
	total := time.Now()
	progress := pageProgress(ctx)

	pages, renderNs, err := p.renderPages(data, mime, path)
	if err != nil {
		return nil, err
	}
	progress(StageRender, len(pages), len(pages))

	ocrStart := time.Now()
	res, err := p.runOCR(ctx, ocr.Request{
		Filename: name,
		Data:     data,
		MIMEType: mime,
		Pages:    pages,
		Language: p.cfg.Language,
	})
	if err != nil {
		return nil, err
	}
	res.Processing.RenderNs = renderNs
	res.Processing.OCRNs = time.Since(ocrStart).Nanoseconds()
	progress(StageOCR, len(pages), len(pages))

	if verr := doc.Validate(res); verr != nil {
		p.logger.Warn("engine result failed validation", "engine", res.Engine, "error", verr)
	}

	if p.Detector != nil && len(pages) > 0 {
		if err := p.detectAndMerge(ctx, res, pages); err != nil {
			return nil, err
		}
	}

	doc.SortReadingOrder(res.Blocks)
	res.Stats = doc.ComputeStats(res.Blocks, len(res.Pages))
	res.Stats.DetectionCount = len(res.Detections)
	for _, b := range res.Blocks {
		if b.DetectedKind != "" {
			res.Stats.DetectionCount++
		}
	}
	res.Processing.TotalNs = time.Since(total).Nanoseconds()

	p.logger.Info("document processed",
		"file", name,
		"engine", res.Engine,
		"pages", len(res.Pages),
		"blocks", len(res.Blocks),
		"duration", time.Duration(res.Processing.TotalNs).Round(time.Millisecond))
	return res, nil
}

// RenderFile rasterizes a document file into page images using the
// pipeline's render options, for overlay drawing and PDF reports.
func (p *Pipeline) RenderFile(filename string) ([]ocr.PageImage, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	pages, _, err := p.renderPages(data, mimeForFile(filename), filename)
	return pages, err
}

// renderPages rasterizes the input so that tesseract and the detector
// have page images to work on. PDFs need a file on disk for extraction;
// single images are decoded in place.
func (p *Pipeline) renderPages(data []byte, mime, path string) ([]ocr.PageImage, int64, error) {
	start := time.Now()
	switch mime {
	case ocr.MIMEPDF:
		if path == "" {
			tmp, err := os.CreateTemp("", "dibuix-*.pdf")
			if err != nil {
				return nil, 0, fmt.Errorf("stage pdf: %w", err)
			}
			defer func() { _ = os.Remove(tmp.Name()) }()
			if _, err := tmp.Write(data); err != nil {
				_ = tmp.Close()
				return nil, 0, fmt.Errorf("stage pdf: %w", err)
			}
			_ = tmp.Close()
			path = tmp.Name()
		}
		rendered, err := render.Pages(path, p.cfg.Render)
		if err != nil {
			return nil, 0, fmt.Errorf("render pages: %w", err)
		}
		pages := make([]ocr.PageImage, 0, len(rendered))
		for _, r := range rendered {
			pages = append(pages, ocr.PageImage{Number: r.Number, Image: r.Image})
		}
		return pages, time.Since(start).Nanoseconds(), nil
	case ocr.MIMEPNG, ocr.MIMEJPEG:
		img, err := imaging.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, 0, fmt.Errorf("decode image: %w", err)
		}
		return []ocr.PageImage{{Number: 1, Image: img}}, time.Since(start).Nanoseconds(), nil
	default:
		return nil, 0, fmt.Errorf("unsupported input type %q", mime)
	}
}

// runOCR tries the primary engine and falls back to the secondary one
// when configured for auto mode.
func (p *Pipeline) runOCR(ctx context.Context, req ocr.Request) (*doc.Result, error) {
	res, err := p.primary.Process(ctx, req)
	if err == nil {
		return res, nil
	}
	if p.fallback == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%s: %w", p.primary.Name(), err)
	}
	p.logger.Warn("primary engine failed, falling back",
		"primary", p.primary.Name(),
		"fallback", p.fallback.Name(),
		"error", err)
	res, ferr := p.fallback.Process(ctx, req)
	if ferr != nil {
		return nil, fmt.Errorf("%s: %w (primary %s: %v)", p.fallback.Name(), ferr, p.primary.Name(), err)
	}
	return res, nil
}

type detectJob struct {
	index int
	page  ocr.PageImage
}

type detectResult struct {
	index   int
	dets    []detector.Detection
	elapsed time.Duration
	err     error
}

// detectAndMerge runs the element detector over all pages in parallel
// and reconciles the hits with the OCR blocks.
func (p *Pipeline) detectAndMerge(ctx context.Context, res *doc.Result, pages []ocr.PageImage) error {
	workers := p.cfg.Parallel.MaxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(pages) {
		workers = len(pages)
	}

	jobs := make(chan detectJob, len(pages))
	results := make(chan detectResult, len(pages))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				select {
				case <-ctx.Done():
					results <- detectResult{index: job.index, err: ctx.Err()}
					continue
				default:
				}
				dets, elapsed, err := p.Detector.Detect(job.page.Image, job.page.Number)
				results <- detectResult{index: job.index, dets: dets, elapsed: elapsed, err: err}
			}
		}()
	}
	for i, pg := range pages {
		jobs <- detectJob{index: i, page: pg}
	}
	close(jobs)
	go func() {
		wg.Wait()
		close(results)
	}()

	progress := pageProgress(ctx)
	var all []detector.Detection
	var inference time.Duration
	var firstErr error
	done := 0
	for r := range results {
		done++
		progress(StageDetect, done, len(pages))
		if r.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("detect page %d: %w", pages[r.index].Number, r.err)
			}
			continue
		}
		all = append(all, r.dets...)
		inference += r.elapsed
	}
	if firstErr != nil {
		return firstErr
	}
	res.Processing.DetectNs = inference.Nanoseconds()

	merged := detector.Merge(res.Blocks, all, p.cfg.Detector.MaxMergeDist)
	res.Detections = merged.Unmatched
	if !merged.Coherence.Coherent {
		p.logger.Warn("dimension counts diverge between ocr and detector",
			"ocr", merged.Coherence.OCRDimensions,
			"detector", merged.Coherence.DetectorDimensions)
	}
	return nil
}

func mimeForFile(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return ocr.MIMEPNG
	case ".jpg", ".jpeg":
		return ocr.MIMEJPEG
	default:
		return ocr.MIMEPDF
	}
}
