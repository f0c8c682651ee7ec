// Package extract converts document sources into raw text for chunking.
//
// Text-bearing formats (plain text, PDF, DOCX, ODT, RTF, XLSX) are handled
// in-process. Images and audio require injected OCR and transcription
// providers; without them those types fail with models.ErrExtraction.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kioku/internal/models"
)

// OCRProvider extracts text from an image source. External capability.
type OCRProvider interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// Transcriber converts an audio source to text. External capability.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// Extractor routes a (source, type) pair to the right decoder.
type Extractor struct {
	ocr         OCRProvider
	transcriber Transcriber
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithOCR sets the OCR provider used for image sources.
func WithOCR(p OCRProvider) Option {
	return func(e *Extractor) { e.ocr = p }
}

// WithTranscriber sets the transcriber used for audio sources.
func WithTranscriber(t Transcriber) Option {
	return func(e *Extractor) { e.transcriber = t }
}

// New returns an Extractor. OCR and transcription providers are optional.
func New(opts ...Option) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DetectType maps a source path to a document type by extension.
// Unknown extensions default to text.
func DetectType(path string) models.DocumentType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return models.TypePDF
	case ".jpg", ".jpeg", ".png":
		return models.TypeImage
	case ".wav", ".mp3", ".m4a":
		return models.TypeAudio
	default:
		return models.TypeText
	}
}

// Extract reads the source at path and returns its text content according to
// typ. TypeAuto detects the type from the file extension. All failures wrap
// models.ErrExtraction.
func (e *Extractor) Extract(ctx context.Context, path string, typ models.DocumentType) (string, models.DocumentType, error) {
	if !typ.Valid() {
		return "", typ, fmt.Errorf("%w: unknown document type %q", models.ErrInvalidArgument, typ)
	}
	if typ == models.TypeAuto {
		typ = DetectType(path)
	}
	switch typ {
	case models.TypeImage:
		if e.ocr == nil {
			return "", typ, fmt.Errorf("%w: no OCR provider configured for image source %s", models.ErrExtraction, path)
		}
		text, err := e.ocr.ExtractText(ctx, path)
		if err != nil {
			return "", typ, fmt.Errorf("%w: ocr %s: %v", models.ErrExtraction, path, err)
		}
		return text, typ, nil
	case models.TypeAudio:
		if e.transcriber == nil {
			return "", typ, fmt.Errorf("%w: no transcriber configured for audio source %s", models.ErrExtraction, path)
		}
		text, err := e.transcriber.Transcribe(ctx, path)
		if err != nil {
			return "", typ, fmt.Errorf("%w: transcribe %s: %v", models.ErrExtraction, path, err)
		}
		return text, typ, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", typ, fmt.Errorf("%w: read %s: %v", models.ErrExtraction, path, err)
	}
	var text string
	if typ == models.TypePDF {
		text, err = extractPDF(content)
	} else {
		text, err = e.extractText(path, content)
	}
	if err != nil {
		// Decoder errors already carry models.ErrExtraction.
		return "", typ, fmt.Errorf("%s: %w", path, err)
	}
	return text, typ, nil
}

// extractText handles the text family, routing office formats by extension.
func (e *Extractor) extractText(path string, content []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".docx":
		return extractDOCX(content)
	case ".odt", ".rtf":
		return extractOffice(path)
	case ".xlsx":
		return extractExcel(content)
	default:
		return extractPlain(content)
	}
}
