// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package parsing

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
)

type pdfParser struct{}

// Parse extracts per-page text (teacher-style, "\n\n"-joined) plus one
// ItemImage DocItem per rendered page, upscaled 2x and saved under
// cacheDir as page-N.png. Captioning those images is the
// ChunkPipeline's job (it owns the ModelGateway), so ItemImage.Text is
// left empty here.
func (pdfParser) Parse(filePath, cacheDir string) (Parsed, error) {
	doc, err := fitz.New(filePath)
	if err != nil {
		return Parsed{}, fmt.Errorf("open PDF: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	var pages []string
	items := make([]DocItem, 0, pageCount*2)

	if cacheDir != "" {
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return Parsed{}, fmt.Errorf("create image cache dir: %w", err)
		}
	}

	for n := 0; n < pageCount; n++ {
		text, err := doc.Text(n)
		if err != nil {
			return Parsed{}, fmt.Errorf("extract text from page %d: %w", n, err)
		}
		text = strings.TrimSpace(text)
		if text != "" {
			pages = append(pages, text)
			items = append(items, DocItem{Kind: ItemText, Text: text})
		}

		img, err := doc.Image(n)
		if err != nil || img == nil {
			continue
		}
		if cacheDir == "" {
			continue
		}
		upscaled := upscale2x(img)
		imagePath := filepath.Join(cacheDir, fmt.Sprintf("page-%d.png", n+1))
		if err := writePNG(imagePath, upscaled); err != nil {
			continue
		}
		items = append(items, DocItem{Kind: ItemImage, ImagePath: imagePath})
	}

	flat := strings.Join(pages, "\n\n")
	if flat == "" && len(items) == 0 {
		return Parsed{}, fmt.Errorf("no content extracted from PDF: %s", filePath)
	}

	return Parsed{FlatText: flat, Items: items}, nil
}

// upscale2x doubles page-render resolution (nearest-neighbor) so small
// captions and diagrams survive the downstream vision model's own
// downsampling.
func upscale2x(src image.Image) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w*2, h*2))
	for y := 0; y < h*2; y++ {
		for x := 0; x < w*2; x++ {
			dst.Set(x, y, src.At(b.Min.X+x/2, b.Min.Y+y/2))
		}
	}
	return dst
}

func writePNG(path string, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode page image: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
