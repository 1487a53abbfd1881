package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dibuix-tech/dibuix/internal/ocr"
	"github.com/dibuix-tech/dibuix/internal/store"
	"github.com/dibuix-tech/dibuix/internal/version"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	s.encodeJSON(w, HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// uploadHandler accepts a multipart upload and stores the document in
// pending state.
func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.cfg.MaxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "too large") {
			s.writeError(w, "file too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeError(w, "failed to parse form data", http.StatusBadRequest)
		}
		return
	}

	file, header, err := r.FormFile("document")
	if err != nil {
		s.writeError(w, "no document file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	if header.Size > maxBytes {
		s.writeError(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	}

	mime := mimeForUpload(header.Filename)
	if mime == "" {
		s.writeError(w, "unsupported file type, expected pdf, png or jpeg", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, "failed to read upload", http.StatusInternalServerError)
		return
	}
	uploadSizeBytes.Observe(float64(len(data)))

	id, err := s.store.CreateDocument(r.Context(), filepath.Base(header.Filename), mime, data)
	if err != nil {
		s.logger.Error("store upload failed", "error", err)
		s.writeError(w, "failed to store document", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	s.encodeJSON(w, UploadResponse{
		ID:       id,
		Filename: header.Filename,
		Status:   store.StatusPending,
	})
}

// listHandler returns all documents, newest first.
func (s *Server) listHandler(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.ListDocuments(r.Context())
	if err != nil {
		s.logger.Error("list documents failed", "error", err)
		s.writeError(w, "failed to list documents", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	s.encodeJSON(w, map[string]interface{}{
		"documents": docs,
		"count":     len(docs),
	})
}

// getHandler returns one document and, when processing has finished,
// its result.
func (s *Server) getHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	d, err := s.store.GetDocument(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	resp := DocumentResponse{Document: d}
	if d.Status == store.StatusDone {
		res, err := s.store.GetResult(r.Context(), id)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("load result failed", "document", id, "error", err)
			s.writeError(w, "failed to load result", http.StatusInternalServerError)
			return
		}
		resp.Result = res
	}

	w.Header().Set("Content-Type", "application/json")
	s.encodeJSON(w, resp)
}

// deleteHandler removes a document and its results.
func (s *Server) deleteHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteDocument(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// correctionsHandler returns the manual edit history of a document.
func (s *Server) correctionsHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetDocument(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	corrections, err := s.store.ListCorrections(r.Context(), id)
	if err != nil {
		s.logger.Error("list corrections failed", "document", id, "error", err)
		s.writeError(w, "failed to list corrections", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	s.encodeJSON(w, map[string]interface{}{
		"corrections": corrections,
		"count":       len(corrections),
	})
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	s.encodeJSON(w, ErrorResponse{Error: message})
}

// writeStoreError maps store errors to HTTP status codes.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, "document not found", http.StatusNotFound)
		return
	}
	s.logger.Error("store error", "error", err)
	s.writeError(w, fmt.Sprintf("storage error: %v", err), http.StatusInternalServerError)
}

// mimeForUpload maps an upload filename to its MIME type, empty when
// the type is not supported.
func mimeForUpload(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return ocr.MIMEPDF
	case ".png":
		return ocr.MIMEPNG
	case ".jpg", ".jpeg":
		return ocr.MIMEJPEG
	}
	return ""
}
