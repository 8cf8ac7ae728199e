package extract

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"

	_ "image/jpeg"

	"github.com/disintegration/gift"
	"github.com/otiai10/gosseract/v2"
)

// minOCRDimension is the smallest acceptable image side after upscaling.
const minOCRDimension = 1000

// ImageExtractor OCRs scanned receipts and photos. OCR is CPU-bound so the
// extractor holds a bounded semaphore shared across the worker pool.
type ImageExtractor struct {
	language string
	slots    chan struct{}
}

// NewImageExtractor creates an extractor limited to maxConcurrent parallel
// OCR runs (minimum 1).
func NewImageExtractor(maxConcurrent int) *ImageExtractor {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &ImageExtractor{
		language: "eng",
		slots:    make(chan struct{}, maxConcurrent),
	}
}

func (e *ImageExtractor) Name() string         { return "image" }
func (e *ImageExtractor) Extensions() []string { return []string{"png", "jpg", "jpeg"} }
func (e *ImageExtractor) CanHandle(path string) bool {
	switch normalizeExt(path) {
	case "png", "jpg", "jpeg":
		return true
	}
	return false
}

func (e *ImageExtractor) Extract(ctx context.Context, path string) (*RawExtraction, error) {
	select {
	case e.slots <- struct{}{}:
		defer func() { <-e.slots }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapError(ErrInvalidFile, err, "read %s", filepath.Base(path))
	}

	prepared, err := preprocessImage(data)
	if err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(e.language); err != nil {
		return nil, wrapError(ErrOCRFailure, err, "set OCR language")
	}
	if err := client.SetImageFromBytes(prepared); err != nil {
		return nil, wrapError(ErrOCRFailure, err, "load image into OCR")
	}

	text, err := client.Text()
	if err != nil {
		return nil, wrapError(ErrOCRFailure, err, "run OCR")
	}

	// Per-word confidences, aggregated into one score for the scorer.
	confidence := 0.0
	wordCount := 0
	if boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD); err == nil && len(boxes) > 0 {
		sum := 0.0
		for _, b := range boxes {
			sum += b.Confidence
		}
		wordCount = len(boxes)
		confidence = sum / float64(wordCount) / 100.0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &RawExtraction{
		RawText: text,
		Structured: map[string]any{
			"confidence_score": confidence,
			"word_count":       wordCount,
		},
		Metadata: map[string]any{
			"extractor": "image",
			"language":  e.language,
			"file_size": int64(len(data)),
		},
	}, nil
}

// preprocessImage runs the OCR preparation chain: grayscale, upscale until the
// short side is at least minOCRDimension, contrast and sharpen, median
// denoise, then a binary threshold at 128/255.
func preprocessImage(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, wrapError(ErrInvalidFile, err, "decode image")
	}

	filters := []gift.Filter{gift.Grayscale()}

	bounds := src.Bounds()
	minDim := bounds.Dx()
	if bounds.Dy() < minDim {
		minDim = bounds.Dy()
	}
	if minDim > 0 && minDim < minOCRDimension {
		scale := float64(minOCRDimension) / float64(minDim)
		width := int(float64(bounds.Dx())*scale + 0.5)
		filters = append(filters, gift.Resize(width, 0, gift.LanczosResampling))
	}

	filters = append(filters,
		gift.Contrast(30),
		gift.UnsharpMask(1.0, 1.0, 0.05),
		gift.Median(3, true),
		gift.Threshold(50), // percent of full scale, i.e. 128/255
	)

	g := gift.New(filters...)
	dst := image.NewGray(g.Bounds(src.Bounds()))
	g.Draw(dst, src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, wrapError(ErrParseFailure, err, "encode preprocessed image")
	}
	return buf.Bytes(), nil
}
