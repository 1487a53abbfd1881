package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dibuix-tech/dibuix/internal/doc"
	"github.com/dibuix-tech/dibuix/internal/export"
	"github.com/dibuix-tech/dibuix/internal/pipeline"
	"github.com/dibuix-tech/dibuix/internal/store"
)

// stubProcessor returns a canned result or error, reporting stage
// progress the way the real pipeline does.
type stubProcessor struct {
	res *doc.Result
	err error
}

func (p *stubProcessor) ProcessBytes(ctx context.Context, name string, data []byte, mime, path string) (*doc.Result, error) {
	if p.err != nil {
		return nil, p.err
	}
	res := *p.res
	res.Filename = name
	if fn := pipeline.PageProgressFrom(ctx); fn != nil {
		fn(pipeline.StageRender, len(res.Pages), len(res.Pages))
		fn(pipeline.StageOCR, len(res.Pages), len(res.Pages))
	}
	return &res, nil
}

func (p *stubProcessor) Close() error { return nil }

// blockingProcessor holds the job until its context expires.
type blockingProcessor struct{}

func (p *blockingProcessor) ProcessBytes(ctx context.Context, name string, data []byte, mime, path string) (*doc.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (p *blockingProcessor) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func serverResult() *doc.Result {
	res := &doc.Result{
		Filename: "drawing.png",
		Engine:   "tesseract",
		Pages:    []doc.Page{{Number: 1, Width: 100, Height: 80}},
		Blocks: []doc.Block{
			{
				ID: "b0001", Page: 1, Kind: doc.KindAnnotation,
				Text: "see detail A", Confidence: 0.61,
				Box: doc.Box{X1: 10, Y1: 10, X2: 60, Y2: 30},
			},
		},
	}
	res.Stats = doc.ComputeStats(res.Blocks, 1)
	return res
}

func newTestServer(t *testing.T, proc Processor) (*Server, *http.ServeMux, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	if proc == nil {
		proc = &stubProcessor{res: serverResult()}
	}
	srv := NewServer(DefaultConfig(), proc, st, testLogger())
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)
	return srv, mux, st
}

func multipartUpload(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("document", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func uploadDocument(t *testing.T, mux *http.ServeMux, filename string, content []byte) string {
	t.Helper()
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, multipartUpload(t, filename, content))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
	return resp.ID
}

func TestHealthHandler(t *testing.T) {
	_, mux, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.NotEmpty(t, resp.Time)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestUploadHandler(t *testing.T) {
	_, mux, st := newTestServer(t, nil)

	id := uploadDocument(t, mux, "drawing.png", pngBytes(t, 100, 80))

	d, err := st.GetDocument(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "drawing.png", d.Filename)
	assert.Equal(t, "image/png", d.MIMEType)
	assert.Equal(t, store.StatusPending, d.Status)
}

func TestUploadHandler_UnsupportedType(t *testing.T) {
	_, mux, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, multipartUpload(t, "notes.docx", []byte("hi")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unsupported file type")
}

func TestUploadHandler_MissingFile(t *testing.T) {
	_, mux, _ := newTestServer(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("other", "value"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "no document file")
}

func TestListAndGetHandlers(t *testing.T) {
	_, mux, st := newTestServer(t, nil)
	id := uploadDocument(t, mux, "drawing.png", pngBytes(t, 100, 80))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Documents []store.Document `json:"documents"`
		Count     int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
	require.Len(t, list.Documents, 1)
	assert.Equal(t, id, list.Documents[0].ID)

	// pending document carries no result
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/"+id, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var resp DocumentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Nil(t, resp.Result)

	// once done, the result is attached
	ctx := context.Background()
	require.NoError(t, st.SaveResult(ctx, id, serverResult()))
	require.NoError(t, st.SetStatus(ctx, id, store.StatusDone, ""))

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/"+id, nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Result)
	assert.Len(t, resp.Result.Blocks, 1)
}

func TestGetHandler_NotFound(t *testing.T) {
	_, mux, _ := newTestServer(t, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteHandler(t *testing.T) {
	_, mux, _ := newTestServer(t, nil)
	id := uploadDocument(t, mux, "drawing.png", pngBytes(t, 100, 80))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/documents/"+id, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/documents/"+id, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProcessHandler(t *testing.T) {
	_, mux, st := newTestServer(t, &stubProcessor{res: serverResult()})
	id := uploadDocument(t, mux, "drawing.png", pngBytes(t, 100, 80))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/documents/"+id+"/process", nil))
	require.Equal(t, http.StatusAccepted, w.Code)

	// the job runs asynchronously; poll for completion
	ctx := context.Background()
	require.Eventually(t, func() bool {
		d, err := st.GetDocument(ctx, id)
		return err == nil && d.Status == store.StatusDone
	}, 5*time.Second, 10*time.Millisecond)

	res, err := st.GetResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "drawing.png", res.Filename)

	// a second start while processing is rejected
	require.NoError(t, st.SetStatus(ctx, id, store.StatusProcessing, ""))
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/documents/"+id+"/process", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestProcessHandler_Failure(t *testing.T) {
	_, mux, st := newTestServer(t, &stubProcessor{err: errors.New("engine exploded")})
	id := uploadDocument(t, mux, "drawing.png", pngBytes(t, 100, 80))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/documents/"+id+"/process", nil))
	require.Equal(t, http.StatusAccepted, w.Code)

	ctx := context.Background()
	require.Eventually(t, func() bool {
		d, err := st.GetDocument(ctx, id)
		return err == nil && d.Status == store.StatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	d, err := st.GetDocument(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, d.Error, "engine exploded")
}

func TestProcessHandler_StreamsStageProgress(t *testing.T) {
	srv, mux, _ := newTestServer(t, &stubProcessor{res: serverResult()})
	id := uploadDocument(t, mux, "drawing.png", pngBytes(t, 100, 80))

	client := &wsClient{documentID: id, send: make(chan ProgressEvent, 16)}
	srv.hub.add(client)
	defer srv.hub.remove(client)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/documents/"+id+"/process", nil))
	require.Equal(t, http.StatusAccepted, w.Code)

	var events []ProgressEvent
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-client.send:
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("no terminal event, got %v", events)
		}
		if n := len(events); n > 0 && events[n-1].Status == store.StatusDone {
			break
		}
	}

	stages := make(map[string]float64)
	for _, ev := range events {
		if ev.Stage != "" {
			stages[ev.Stage] = ev.Progress
		}
	}
	assert.InDelta(t, 0.3, stages[pipeline.StageRender], 1e-9)
	assert.InDelta(t, 0.7, stages[pipeline.StageOCR], 1e-9)

	last := events[len(events)-1]
	assert.Equal(t, 1.0, last.Progress)
	assert.Equal(t, 1, last.Pages)
}

func TestJobProgress(t *testing.T) {
	assert.InDelta(t, 0.3, jobProgress(pipeline.StageRender, 2, 2), 1e-9)
	assert.InDelta(t, 0.5, jobProgress(pipeline.StageOCR, 1, 2), 1e-9)
	assert.InDelta(t, 0.8, jobProgress(pipeline.StageDetect, 1, 2), 1e-9)
	assert.InDelta(t, 0.9, jobProgress(pipeline.StageDetect, 0, 0), 1e-9)
	assert.InDelta(t, 0.9, jobProgress("unknown", 1, 1), 1e-9)
}

func TestProcessHandler_TimeoutMarksFailed(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := DefaultConfig()
	cfg.ProcessTimeout = 20 * time.Millisecond
	srv := NewServer(cfg, &blockingProcessor{}, st, testLogger())
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	id := uploadDocument(t, mux, "drawing.png", pngBytes(t, 100, 80))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/documents/"+id+"/process", nil))
	require.Equal(t, http.StatusAccepted, w.Code)

	// the timed-out job must end up failed, not stuck in processing
	ctx := context.Background()
	require.Eventually(t, func() bool {
		d, err := st.GetDocument(ctx, id)
		return err == nil && d.Status == store.StatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	d, err := st.GetDocument(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, d.Error, "context deadline exceeded")

	// a retry is accepted once the document left the processing state
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/documents/"+id+"/process", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestExportHandler(t *testing.T) {
	_, mux, st := newTestServer(t, nil)
	id := uploadDocument(t, mux, "drawing.png", pngBytes(t, 100, 80))
	ctx := context.Background()

	// not processed yet
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/"+id+"/export", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	require.NoError(t, st.SaveResult(ctx, id, serverResult()))
	require.NoError(t, st.SetStatus(ctx, id, store.StatusDone, ""))

	tests := []struct {
		name        string
		query       string
		contentType string
		bodyCheck   string
	}{
		{name: "default json", query: "", contentType: "application/json", bodyCheck: `"version": "2.0"`},
		{name: "text", query: "?format=text", contentType: "text/plain; charset=utf-8", bodyCheck: "OCR EXTRACTION RESULT"},
		{name: "csv", query: "?format=csv", contentType: "text/csv", bodyCheck: "id,page,kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/"+id+"/export"+tt.query, nil))
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.contentType, w.Header().Get("Content-Type"))
			assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
			assert.Contains(t, w.Body.String(), tt.bodyCheck)
		})
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/"+id+"/export?format=weird", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportHandler_PDFReport(t *testing.T) {
	_, mux, st := newTestServer(t, nil)
	id := uploadDocument(t, mux, "drawing.png", pngBytes(t, 100, 80))
	ctx := context.Background()
	require.NoError(t, st.SaveResult(ctx, id, serverResult()))
	require.NoError(t, st.SetStatus(ctx, id, store.StatusDone, ""))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/"+id+"/export?format=pdf", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))
}

func TestOverlayHandler(t *testing.T) {
	_, mux, st := newTestServer(t, nil)
	id := uploadDocument(t, mux, "drawing.png", pngBytes(t, 100, 80))
	ctx := context.Background()
	require.NoError(t, st.SaveResult(ctx, id, serverResult()))
	require.NoError(t, st.SetStatus(ctx, id, store.StatusDone, ""))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/"+id+"/pages/1/overlay?mode=heatmap&zoom=1&order=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	img, err := png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())

	// unknown page
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/"+id+"/pages/9/overlay", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	// bad mode and zoom
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/"+id+"/pages/1/overlay?mode=neon", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/"+id+"/pages/1/overlay?zoom=99", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCorrectBlockHandler(t *testing.T) {
	_, mux, st := newTestServer(t, nil)
	id := uploadDocument(t, mux, "drawing.png", pngBytes(t, 100, 80))
	ctx := context.Background()
	require.NoError(t, st.SaveResult(ctx, id, serverResult()))
	require.NoError(t, st.SetStatus(ctx, id, store.StatusDone, ""))

	body := strings.NewReader(`{"text":"125.5 mm"}`)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/documents/"+id+"/blocks/b0001", body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Block      doc.Block      `json:"block"`
		Statistics doc.Statistics `json:"statistics"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "125.5 mm", resp.Block.Text)
	assert.Equal(t, doc.KindDimension, resp.Block.Kind)
	assert.Equal(t, 1.0, resp.Block.Confidence)
	assert.Equal(t, "manual", resp.Block.Source)

	// history is exposed
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/"+id+"/corrections", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var corr struct {
		Corrections []store.Correction `json:"corrections"`
		Count       int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &corr))
	assert.Equal(t, 1, corr.Count)

	// invalid body
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/documents/"+id+"/blocks/b0001", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// unknown block
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/documents/"+id+"/blocks/nope", strings.NewReader(`{"text":"x"}`)))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSMiddleware(t *testing.T) {
	_, mux, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/anything", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestExportFilename(t *testing.T) {
	assert.Equal(t, "drawing.json", exportFilename("drawing.pdf", export.FormatJSON))
	assert.Equal(t, "drawing.txt", exportFilename("drawing.pdf", export.FormatText))
	assert.Equal(t, "result.csv", exportFilename(".hidden", export.FormatCSV))
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1", getClientIP(req))

	req.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "10.0.0.3, 10.0.0.4")
	assert.Equal(t, "10.0.0.3", getClientIP(req))
}
