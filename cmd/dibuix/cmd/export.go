package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/dibuix-tech/dibuix/internal/export"
	"github.com/dibuix-tech/dibuix/internal/ocr"
	"github.com/dibuix-tech/dibuix/internal/overlay"
	"github.com/dibuix-tech/dibuix/internal/render"
	"github.com/dibuix-tech/dibuix/internal/store"
)

// exportCmd represents the export command.
var exportCmd = &cobra.Command{
	Use:   "export [document-id]",
	Short: "Export a processed document from the local store",
	Long: `Export the stored processing result of a document that was
uploaded and processed through the web server.

Examples:
  dibuix export 3f2a9c1e4b5d6a7f --format json
  dibuix export 3f2a9c1e4b5d6a7f --format pdf --output report.pdf
  dibuix export 3f2a9c1e4b5d6a7f --store ./dibuix.db`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringP("format", "f", "json", "output format (text, json, csv, pdf)")
	exportCmd.Flags().StringP("output", "o", "", "output file (default: stdout; required for pdf)")
	exportCmd.Flags().String("store", "", "path to the document store database")
	exportCmd.Flags().String("overlay-mode", "", "overlay mode for pdf reports (outline, heatmap)")
}

// runExport handles the main export logic.
func runExport(cmd *cobra.Command, args []string) error {
	centralCfg := GetConfig()
	ctx := cmd.Context()
	id := args[0]

	formatStr, _ := cmd.Flags().GetString("format")
	format, err := export.ParseFormat(formatStr)
	if err != nil {
		return err
	}
	outputFile, _ := cmd.Flags().GetString("output")
	if format == export.FormatPDF && outputFile == "" {
		return errors.New("--output is required for pdf format")
	}

	storePath := centralCfg.Store.Path
	if cmd.Flags().Changed("store") {
		storePath, _ = cmd.Flags().GetString("store")
	}

	st, err := store.Open(storePath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	res, err := st.GetResult(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no stored result for document %s", id)
		}
		return err
	}

	out := os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	if format == export.FormatPDF {
		mode := overlay.Mode(centralCfg.Output.OverlayMode)
		if cmd.Flags().Changed("overlay-mode") {
			m, _ := cmd.Flags().GetString("overlay-mode")
			mode = overlay.Mode(m)
		}
		pages, err := renderStoredDocument(cmd, st, id, centralCfg.Render.MaxSide)
		if err != nil {
			return err
		}
		opts := overlay.Options{Mode: mode, ShowOrder: centralCfg.Output.ShowOrder}
		if err := export.WriteReport(out, res, pages, opts); err != nil {
			return err
		}
	} else if err := export.Write(out, res, format); err != nil {
		return err
	}

	if outputFile != "" {
		fmt.Printf("Results written to %s\n", outputFile)
	}
	return nil
}

// renderStoredDocument rasterizes the stored document content so the
// PDF report can draw overlays on the original pages.
func renderStoredDocument(cmd *cobra.Command, st *store.Store, id string, maxSide int) ([]ocr.PageImage, error) {
	ctx := cmd.Context()
	docRow, err := st.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	content, err := st.GetContent(ctx, id)
	if err != nil {
		return nil, err
	}

	if docRow.MIMEType != ocr.MIMEPDF {
		img, err := imaging.Decode(bytes.NewReader(content))
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", docRow.Filename, err)
		}
		return []ocr.PageImage{{Number: 1, Image: img}}, nil
	}

	tmp, err := os.CreateTemp("", "dibuix-*.pdf")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	pages, err := render.Pages(tmp.Name(), render.Options{MaxSide: maxSide})
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", filepath.Base(docRow.Filename), err)
	}
	out := make([]ocr.PageImage, len(pages))
	for i, pg := range pages {
		out[i] = ocr.PageImage{Number: pg.Number, Image: pg.Image}
	}
	return out, nil
}
