// Package render turns PDF pages into raster images for overlay
// drawing and local OCR, using pdfcpu's page image extraction.
package render

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Options control rasterization.
type Options struct {
	PageRange string // e.g. "1-5", "1,3,7"; empty means all pages
	MaxSide   int    // longest image side in pixels; 0 keeps native size
}

// PageImage is one rendered (or extracted) page image.
type PageImage struct {
	Number int
	Image  image.Image
}

// Pages extracts page images from a PDF file, grouped and ordered by
// page number. Pages with multiple embedded images keep the largest.
func Pages(filename string, opts Options) ([]PageImage, error) {
	byPage, err := extractImages(filename, opts.PageRange)
	if err != nil {
		return nil, err
	}
	if len(byPage) == 0 {
		return nil, fmt.Errorf("no page images found in %s", filepath.Base(filename))
	}

	nums := make([]int, 0, len(byPage))
	for n := range byPage {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	out := make([]PageImage, 0, len(nums))
	for _, n := range nums {
		img := largestImage(byPage[n])
		if img == nil {
			continue
		}
		if opts.MaxSide > 0 {
			img = fitToSide(img, opts.MaxSide)
		}
		out = append(out, PageImage{Number: n, Image: img})
	}
	return out, nil
}

// largestImage picks the image with the biggest pixel area; scanned
// drawings carry one full-page image but some PDFs embed extra logos.
func largestImage(imgs []image.Image) image.Image {
	var best image.Image
	bestArea := 0
	for _, img := range imgs {
		b := img.Bounds()
		if area := b.Dx() * b.Dy(); area > bestArea {
			best, bestArea = img, area
		}
	}
	return best
}

// fitToSide downscales an image so neither side exceeds max, keeping
// the aspect ratio. Smaller images pass through untouched.
func fitToSide(img image.Image, max int) image.Image {
	b := img.Bounds()
	if b.Dx() <= max && b.Dy() <= max {
		return img
	}
	if b.Dx() >= b.Dy() {
		return imaging.Resize(img, max, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, max, imaging.Lanczos)
}

// extractImages extracts all images from a PDF file using pdfcpu.
func extractImages(filename string, pageRange string) (map[int][]image.Image, error) {
	pageNumbers, err := ParsePageRange(pageRange)
	if err != nil {
		return nil, fmt.Errorf("invalid page range %q: %w", pageRange, err)
	}

	tempDir, err := os.MkdirTemp("", "dibuix-render-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	var pageStrings []string
	if len(pageNumbers) > 0 {
		pageStrings = make([]string, len(pageNumbers))
		for i, pageNum := range pageNumbers {
			pageStrings[i] = strconv.Itoa(pageNum)
		}
	}

	if err := api.ExtractImagesFile(filename, tempDir, pageStrings, nil); err != nil {
		return nil, fmt.Errorf("failed to extract images from PDF: %w", err)
	}

	result, err := collectExtractedImages(tempDir)
	if err != nil {
		return nil, fmt.Errorf("failed to process extracted images: %w", err)
	}
	return result, nil
}

func loadImageFile(path string) (image.Image, error) {
	file, err := os.Open(path) //nolint:gosec // G304: user-provided path is expected
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	img, _, err := image.Decode(file)
	return img, err
}

// collectExtractedImages walks the given directory and groups images by
// page number. pdfcpu names files page_<num>_image_<idx>.<ext>.
func collectExtractedImages(dir string) (map[int][]image.Image, error) {
	result := make(map[int][]image.Image)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		pageNum, err := parsePageFromFilename(info.Name())
		if err != nil {
			return nil // not a page image
		}
		img, err := loadImageFile(path)
		if err != nil {
			return nil // skip unreadable images
		}
		result[pageNum] = append(result[pageNum], img)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func parsePageFromFilename(filename string) (int, error) {
	if !strings.HasPrefix(filename, "page_") {
		return 0, errors.New("not a page file")
	}
	parts := strings.Split(filename, "_")
	if len(parts) < 2 {
		return 0, errors.New("invalid filename format")
	}
	pageNum, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, errors.New("invalid page number")
	}
	return pageNum, nil
}

// ParsePageRange parses a page range string like "1-5" or "1,3,5".
// Empty input means all pages.
func ParsePageRange(pageRange string) ([]int, error) {
	if pageRange == "" {
		return nil, nil
	}
	var pages []int
	for _, part := range strings.Split(pageRange, ",") {
		tokenPages, err := parseRangeToken(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		pages = append(pages, tokenPages...)
	}
	return pages, nil
}

// parseRangeToken parses a single page ("3") or a range ("1-5").
func parseRangeToken(part string) ([]int, error) {
	if strings.Contains(part, "-") {
		rangeParts := strings.Split(part, "-")
		if len(rangeParts) != 2 {
			return nil, fmt.Errorf("invalid range format: %s", part)
		}
		start, err := strconv.Atoi(strings.TrimSpace(rangeParts[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid start page: %s", rangeParts[0])
		}
		end, err := strconv.Atoi(strings.TrimSpace(rangeParts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid end page: %s", rangeParts[1])
		}
		if start > end {
			return nil, fmt.Errorf("start page %d greater than end page %d", start, end)
		}
		out := make([]int, 0, end-start+1)
		for i := start; i <= end; i++ {
			out = append(out, i)
		}
		return out, nil
	}
	page, err := strconv.Atoi(part)
	if err != nil {
		return nil, fmt.Errorf("invalid page number: %s", part)
	}
	if page < 1 {
		return nil, fmt.Errorf("page number must be positive: %d", page)
	}
	return []int{page}, nil
}
