package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/dibuix-tech/dibuix/internal/doc"
)

// TesseractEngine runs OCR locally through the Tesseract C API. It
// operates on rendered page images and reports word-level boxes.
type TesseractEngine struct {
	clientFactory func() *gosseract.Client
}

// NewTesseractEngine constructs the local fallback engine.
func NewTesseractEngine() *TesseractEngine {
	return &TesseractEngine{clientFactory: gosseract.NewClient}
}

// Name implements Engine.
func (e *TesseractEngine) Name() string { return "tesseract" }

// Process implements Engine. Pages are processed sequentially with a
// single client to amortize setup cost.
func (e *TesseractEngine) Process(ctx context.Context, req Request) (*doc.Result, error) {
	if len(req.Pages) == 0 {
		return nil, ErrNoInput
	}

	client := e.clientFactory()
	defer func() { _ = client.Close() }()

	if req.Language != "" {
		if err := client.SetLanguage(strings.Split(req.Language, "+")...); err != nil {
			return nil, fmt.Errorf("set language: %w", err)
		}
	}

	res := &doc.Result{Filename: req.Filename, Engine: e.Name()}
	var fullText strings.Builder

	for _, page := range req.Pages {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		bounds := page.Image.Bounds()
		res.Pages = append(res.Pages, doc.Page{
			Number: page.Number,
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
		})

		var buf bytes.Buffer
		if err := png.Encode(&buf, page.Image); err != nil {
			return nil, fmt.Errorf("encode page %d: %w", page.Number, err)
		}
		if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
			return nil, fmt.Errorf("set page %d image: %w", page.Number, err)
		}

		text, err := client.Text()
		if err != nil {
			return nil, fmt.Errorf("recognize page %d: %w", page.Number, err)
		}
		if text != "" {
			fullText.WriteString(text)
			fullText.WriteString("\n")
		}

		boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
		if err != nil {
			return nil, fmt.Errorf("page %d boxes: %w", page.Number, err)
		}
		for i, bb := range boxes {
			word := strings.TrimSpace(bb.Word)
			if word == "" {
				continue
			}
			res.Blocks = append(res.Blocks, doc.Block{
				ID:   fmt.Sprintf("p%d_w%d", page.Number, i+1),
				Kind: doc.KindTextLine,
				Text: word,
				// Tesseract reports percentages.
				Confidence: doc.ClampConfidence(bb.Confidence / 100),
				Box: doc.Box{
					X1: float64(bb.Box.Min.X),
					Y1: float64(bb.Box.Min.Y),
					X2: float64(bb.Box.Max.X),
					Y2: float64(bb.Box.Max.Y),
				}.Clamp(float64(bounds.Dx()), float64(bounds.Dy())),
				Page:   page.Number,
				Source: e.Name(),
			})
		}
	}

	res.Text = fullText.String()
	res.Blocks = doc.Classify(res.Blocks)
	res.Stats = doc.ComputeStats(res.Blocks, len(res.Pages))
	return res, nil
}
