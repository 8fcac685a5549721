// Package ocr turns staged artifacts into raw text plus structured
// paragraph metadata for the downstream chunking and translation stages.
package ocr

import (
	"context"
	"os"
	"strings"

	"github.com/abadojack/whatlanggo"

	"github.com/DonISO100/classical-works-processor/internal/jobs"
	"github.com/DonISO100/classical-works-processor/internal/pipeline"
	"github.com/DonISO100/classical-works-processor/pkg/file"
	"github.com/DonISO100/classical-works-processor/pkg/log"
)

// Extractor reads the text layer of a staged artifact. Binary formats
// are expected to arrive with a sibling .txt file produced by an
// external OCR run.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// EnsureTextLayer resolves the text-searchable companion of an
// artifact. Plain .txt artifacts pass through unchanged; for anything
// else the sibling .txt file is required.
func (e *Extractor) EnsureTextLayer(artifactPath string) (string, error) {
	if strings.TrimSpace(artifactPath) == "" {
		return "", pipeline.NewError(pipeline.ErrExtraction, "artifact path is empty")
	}
	if strings.HasSuffix(strings.ToLower(artifactPath), ".txt") {
		return artifactPath, nil
	}

	textPath := file.ReplaceExt(artifactPath, ".txt")
	if _, err := os.Stat(textPath); err == nil {
		log.Info("Using text layer %s for artifact %s", textPath, artifactPath)
		return textPath, nil
	}
	// No OCR engine wired in; fall back to reading the artifact itself,
	// which covers placeholder artifacts carrying plain text.
	log.Warn("No sibling text layer found for %s, reading artifact directly", artifactPath)
	return artifactPath, nil
}

// Extract reads the text layer and splits it into pages (form feeds)
// and paragraphs (blank lines). Positions are 1-based.
func (e *Extractor) Extract(ctx context.Context, artifactPath string) (string, []jobs.Paragraph, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	textPath, err := e.EnsureTextLayer(artifactPath)
	if err != nil {
		return "", nil, err
	}

	raw, err := os.ReadFile(textPath)
	if err != nil {
		return "", nil, pipeline.NewErrorWithCause(pipeline.ErrExtraction, "failed to read text layer", err).
			WithContext("path", textPath)
	}
	text := string(raw)
	if strings.TrimSpace(text) == "" {
		return "", nil, pipeline.NewError(pipeline.ErrExtraction, "artifact has no extractable text").
			WithContext("path", textPath)
	}

	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return "", nil, pipeline.NewError(pipeline.ErrExtraction, "artifact has no extractable text").
			WithContext("path", textPath)
	}

	logDetectedLanguage(text)
	return text, paragraphs, nil
}

func splitParagraphs(text string) []jobs.Paragraph {
	var paragraphs []jobs.Paragraph
	for pageIdx, page := range strings.Split(text, "\f") {
		position := 0
		for _, block := range strings.Split(page, "\n\n") {
			block = strings.TrimSpace(block)
			if block == "" {
				continue
			}
			position++
			paragraphs = append(paragraphs, jobs.Paragraph{
				Page:      pageIdx + 1,
				Paragraph: position,
				Text:      block,
			})
		}
	}
	return paragraphs
}

// logDetectedLanguage records a language guess for the extracted text.
// Detection is informational only: classical texts routinely mix
// scripts and the declared job language stays authoritative.
func logDetectedLanguage(text string) {
	sample := text
	if len(sample) > 2048 {
		sample = sample[:2048]
	}
	detected := whatlanggo.DetectLang(sample).Iso6391()
	if detected == "" {
		log.Warn("Could not detect language of extracted text")
		return
	}
	log.Info("Detected language of extracted text: %s", detected)
}
