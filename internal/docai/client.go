// Package docai wraps the Google Cloud Document AI processor API and
// maps its structured response onto the internal block model.
package docai

import (
	"context"
	"errors"
	"fmt"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/dibuix-tech/dibuix/internal/doc"
	"github.com/dibuix-tech/dibuix/internal/ocr"
)

// Config identifies a Document AI processor.
type Config struct {
	ProjectID       string
	Location        string // "us" or "eu"
	ProcessorID     string
	CredentialsFile string // optional; ADC is used when empty
}

// Validate checks that the processor is fully identified.
func (c Config) Validate() error {
	if c.ProjectID == "" {
		return errors.New("docai: project id is empty")
	}
	if c.Location == "" {
		return errors.New("docai: location is empty")
	}
	if c.ProcessorID == "" {
		return errors.New("docai: processor id is empty")
	}
	return nil
}

// processorName builds the fully qualified processor resource name.
func (c Config) processorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		c.ProjectID, c.Location, c.ProcessorID)
}

// Client is an ocr.Engine backed by a Document AI processor.
type Client struct {
	cfg    Config
	client *documentai.DocumentProcessorClient
}

// New connects to the regional Document AI endpoint for the configured
// location. The returned client must be closed after use.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := []option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)),
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	c, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("docai: init client: %w", err)
	}
	return &Client{cfg: cfg, client: c}, nil
}

// Name implements ocr.Engine.
func (c *Client) Name() string { return "documentai" }

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Process implements ocr.Engine: it sends the raw document bytes to the
// processor and converts the response into blocks.
func (c *Client) Process(ctx context.Context, req ocr.Request) (*doc.Result, error) {
	if len(req.Data) == 0 {
		return nil, ocr.ErrNoInput
	}
	mime := req.MIMEType
	if mime == "" {
		mime = ocr.MIMEPDF
	}

	resp, err := c.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: c.cfg.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  req.Data,
				MimeType: mime,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("docai: process document: %w", err)
	}

	res := ExtractResult(resp.GetDocument())
	res.Filename = req.Filename
	res.Engine = c.Name()

	// Pages rendered alongside the request override the engine's page
	// dimensions so block coordinates line up with the raster images.
	for _, p := range req.Pages {
		b := p.Image.Bounds()
		rescalePage(res, p.Number, b.Dx(), b.Dy())
	}
	return res, nil
}

// rescalePage maps a page's dimensions and block boxes onto a new
// raster size, preserving relative positions.
func rescalePage(res *doc.Result, page, width, height int) {
	for i := range res.Pages {
		if res.Pages[i].Number != page {
			continue
		}
		oldW, oldH := float64(res.Pages[i].Width), float64(res.Pages[i].Height)
		if oldW <= 0 || oldH <= 0 {
			return
		}
		sx, sy := float64(width)/oldW, float64(height)/oldH
		for j := range res.Blocks {
			if res.Blocks[j].Page != page {
				continue
			}
			b := res.Blocks[j].Box
			res.Blocks[j].Box = doc.Box{
				X1: b.X1 * sx, Y1: b.Y1 * sy,
				X2: b.X2 * sx, Y2: b.Y2 * sy,
			}
		}
		res.Pages[i].Width = width
		res.Pages[i].Height = height
		return
	}
}
