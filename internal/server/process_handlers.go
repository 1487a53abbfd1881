package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/disintegration/imaging"

	"github.com/dibuix-tech/dibuix/internal/export"
	"github.com/dibuix-tech/dibuix/internal/ocr"
	"github.com/dibuix-tech/dibuix/internal/overlay"
	"github.com/dibuix-tech/dibuix/internal/pipeline"
	"github.com/dibuix-tech/dibuix/internal/render"
	"github.com/dibuix-tech/dibuix/internal/store"
)

// processHandler starts an asynchronous processing job for a stored
// document. Progress is published on the WebSocket feed and the final
// state is polled via GET /documents/{id}.
func (s *Server) processHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	d, err := s.store.GetDocument(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if d.Status == store.StatusProcessing {
		s.writeError(w, "document is already being processed", http.StatusConflict)
		return
	}
	content, err := s.store.GetContent(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if err := s.store.SetStatus(r.Context(), id, store.StatusProcessing, ""); err != nil {
		s.writeStoreError(w, err)
		return
	}

	go s.runJob(id, d.Filename, d.MIMEType, content)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	s.encodeJSON(w, UploadResponse{ID: id, Filename: d.Filename, Status: store.StatusProcessing})
}

// runJob executes one processing job outside the request lifecycle.
// Status and result writes use a context detached from the processing
// timeout so a timed-out job still transitions to failed instead of
// staying in processing.
func (s *Server) runJob(id, filename, mime string, content []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ProcessTimeout)
	defer cancel()
	storeCtx := context.WithoutCancel(ctx)

	s.hub.Broadcast(id, ProgressEvent{DocumentID: id, Status: store.StatusProcessing, Progress: 0.1})
	ctx = pipeline.WithPageProgress(ctx, func(stage string, done, total int) {
		s.hub.Broadcast(id, ProgressEvent{
			DocumentID: id,
			Status:     store.StatusProcessing,
			Stage:      stage,
			Progress:   jobProgress(stage, done, total),
		})
	})

	start := time.Now()
	res, err := s.processor.ProcessBytes(ctx, filename, content, mime, "")
	if err != nil {
		processingTotal.WithLabelValues("error").Inc()
		s.logger.Error("processing failed", "document", id, "error", err)
		if serr := s.store.SetStatus(storeCtx, id, store.StatusFailed, err.Error()); serr != nil {
			s.logger.Error("status update failed", "document", id, "error", serr)
		}
		s.hub.Broadcast(id, ProgressEvent{DocumentID: id, Status: store.StatusFailed, Progress: 1, Error: err.Error()})
		return
	}

	s.hub.Broadcast(id, ProgressEvent{DocumentID: id, Status: store.StatusProcessing, Progress: 0.9})

	if err := s.store.SaveResult(storeCtx, id, res); err != nil {
		processingTotal.WithLabelValues("error").Inc()
		s.logger.Error("saving result failed", "document", id, "error", err)
		if serr := s.store.SetStatus(storeCtx, id, store.StatusFailed, err.Error()); serr != nil {
			s.logger.Error("status update failed", "document", id, "error", serr)
		}
		s.hub.Broadcast(id, ProgressEvent{DocumentID: id, Status: store.StatusFailed, Progress: 1, Error: err.Error()})
		return
	}
	if err := s.store.SetStatus(storeCtx, id, store.StatusDone, ""); err != nil {
		s.logger.Error("status update failed", "document", id, "error", err)
	}

	processingTotal.WithLabelValues("success").Inc()
	processingDuration.Observe(time.Since(start).Seconds())
	blocksExtracted.Observe(float64(len(res.Blocks)))

	s.hub.Broadcast(id, ProgressEvent{
		DocumentID: id,
		Status:     store.StatusDone,
		Progress:   1,
		Blocks:     len(res.Blocks),
		Pages:      len(res.Pages),
	})
}

// jobProgress maps stage completion onto the overall job scale between
// the accepted (0.1) and pre-save (0.9) milestones. Detection is the
// only stage with real per-page granularity.
func jobProgress(stage string, done, total int) float64 {
	frac := 1.0
	if total > 0 {
		frac = float64(done) / float64(total)
	}
	switch stage {
	case pipeline.StageRender:
		return 0.1 + 0.2*frac
	case pipeline.StageOCR:
		return 0.3 + 0.4*frac
	case pipeline.StageDetect:
		return 0.7 + 0.2*frac
	default:
		return 0.9
	}
}

// exportHandler streams a finished result in the requested format.
func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	format, err := export.ParseFormat(defaultString(r.URL.Query().Get("format"), "json"))
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	d, err := s.store.GetDocument(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if d.Status != store.StatusDone {
		s.writeError(w, "document has no result yet", http.StatusConflict)
		return
	}
	res, err := s.store.GetResult(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	var buf bytes.Buffer
	if format == export.FormatPDF {
		pages, err := s.renderStoredPages(r.Context(), id, d.MIMEType)
		if err != nil {
			s.logger.Error("report rendering failed", "document", id, "error", err)
			s.writeError(w, "failed to render report pages", http.StatusInternalServerError)
			return
		}
		err = export.WriteReport(&buf, res, pages, overlay.Options{Mode: overlay.ModeOutline, ShowOrder: true})
		if err != nil {
			s.logger.Error("report export failed", "document", id, "error", err)
			s.writeError(w, "failed to build report", http.StatusInternalServerError)
			return
		}
	} else if err := export.Write(&buf, res, format); err != nil {
		s.logger.Error("export failed", "document", id, "format", format, "error", err)
		s.writeError(w, "failed to export result", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", exportFilename(d.Filename, format)))
	_, _ = w.Write(buf.Bytes())
}

// overlayHandler renders one page with its overlay as PNG.
func (s *Server) overlayHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	page, err := strconv.Atoi(r.PathValue("page"))
	if err != nil || page < 1 {
		s.writeError(w, "invalid page number", http.StatusBadRequest)
		return
	}

	opts := overlay.Options{Mode: overlay.ModeOutline, Zoom: 1}
	switch mode := r.URL.Query().Get("mode"); mode {
	case "", string(overlay.ModeOutline):
	case string(overlay.ModeHeatmap):
		opts.Mode = overlay.ModeHeatmap
	default:
		s.writeError(w, "unknown overlay mode "+mode, http.StatusBadRequest)
		return
	}
	if z := r.URL.Query().Get("zoom"); z != "" {
		zoom, err := strconv.ParseFloat(z, 64)
		if err != nil || zoom <= 0 || zoom > 8 {
			s.writeError(w, "invalid zoom factor", http.StatusBadRequest)
			return
		}
		opts.Zoom = zoom
	}
	opts.ShowOrder = r.URL.Query().Get("order") == "1"
	opts.SelectedID = r.URL.Query().Get("selected")

	d, err := s.store.GetDocument(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if d.Status != store.StatusDone {
		s.writeError(w, "document has no result yet", http.StatusConflict)
		return
	}
	res, err := s.store.GetResult(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if _, ok := res.PageDim(page); !ok {
		s.writeError(w, "page not found", http.StatusNotFound)
		return
	}

	pages, err := s.renderStoredPages(r.Context(), id, d.MIMEType)
	if err != nil {
		s.logger.Error("overlay rendering failed", "document", id, "error", err)
		s.writeError(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	for _, p := range pages {
		if p.Number != page {
			continue
		}
		img := overlay.Render(p.Image, res.Blocks, page, opts)
		w.Header().Set("Content-Type", "image/png")
		if err := png.Encode(w, img); err != nil {
			s.logger.Error("overlay encode failed", "document", id, "error", err)
		}
		return
	}
	s.writeError(w, "page not found", http.StatusNotFound)
}

// correctBlockHandler applies a manual text correction to one block.
func (s *Server) correctBlockHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	blockID := r.PathValue("blockID")

	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := s.store.CorrectBlock(r.Context(), id, blockID, body.Text)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	for _, b := range res.Blocks {
		if b.ID == blockID {
			w.Header().Set("Content-Type", "application/json")
			s.encodeJSON(w, map[string]interface{}{
				"block":      b,
				"statistics": res.Stats,
			})
			return
		}
	}
	s.writeError(w, "block not found", http.StatusNotFound)
}

// renderStoredPages re-rasterizes a stored document for overlay and
// report output.
func (s *Server) renderStoredPages(ctx context.Context, id, mime string) ([]ocr.PageImage, error) {
	content, err := s.store.GetContent(ctx, id)
	if err != nil {
		return nil, err
	}
	switch mime {
	case ocr.MIMEPDF:
		tmp, err := os.CreateTemp("", "dibuix-*.pdf")
		if err != nil {
			return nil, err
		}
		defer func() { _ = os.Remove(tmp.Name()) }()
		if _, err := tmp.Write(content); err != nil {
			_ = tmp.Close()
			return nil, err
		}
		_ = tmp.Close()
		rendered, err := render.Pages(tmp.Name(), render.Options{MaxSide: 2000})
		if err != nil {
			return nil, err
		}
		pages := make([]ocr.PageImage, 0, len(rendered))
		for _, p := range rendered {
			pages = append(pages, ocr.PageImage{Number: p.Number, Image: p.Image})
		}
		return pages, nil
	default:
		img, err := imaging.Decode(bytes.NewReader(content))
		if err != nil {
			return nil, err
		}
		return []ocr.PageImage{{Number: 1, Image: img}}, nil
	}
}

func exportFilename(original string, format export.Format) string {
	base := original
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '.' {
			base = base[:i]
			break
		}
	}
	if base == "" {
		base = "result"
	}
	return base + "." + format.Ext()
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
