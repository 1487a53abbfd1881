// Package ocr defines the engine abstraction over OCR backends. The
// primary backend is the cloud Document AI client (internal/docai);
// a local Tesseract engine serves as fallback when no cloud processor
// is configured.
package ocr

import (
	"context"
	"errors"
	"image"

	"github.com/dibuix-tech/dibuix/internal/doc"
)

// MIME types accepted by engines.
const (
	MIMEPDF  = "application/pdf"
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
)

// PageImage pairs a rendered page image with its 1-based page number.
type PageImage struct {
	Number int
	Image  image.Image
}

// Request carries a document to an OCR engine. Cloud engines consume
// the raw document bytes; local engines consume the rendered pages.
type Request struct {
	Filename string
	Data     []byte
	MIMEType string
	Pages    []PageImage
	Language string
}

// Engine performs OCR on a document and returns structured blocks.
type Engine interface {
	Name() string
	Process(ctx context.Context, req Request) (*doc.Result, error)
}

// ErrNoInput is returned when a request carries neither document bytes
// nor rendered pages usable by the engine.
var ErrNoInput = errors.New("ocr: request has no usable input")
