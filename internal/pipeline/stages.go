package pipeline

import (
	"context"
	"strings"

	"github.com/DonISO100/classical-works-processor/internal/jobs"
)

// Chunk groups consecutive source paragraphs into one translation and
// indexing unit. Transient: never persisted beyond the run.
type Chunk struct {
	Content  string
	Metadata []jobs.Paragraph
}

// TranslatedChunk pairs a chunk's original text with its translation,
// one-to-one with the input chunk order.
type TranslatedChunk struct {
	Original    string
	Translation string
	Metadata    []jobs.Paragraph
}

// DownloadRequest carries the work identity the download stage resolves.
type DownloadRequest struct {
	Title     string
	Author    string
	Year      *int
	Language  string
	TargetDir string
}

// DownloadResult is the resolved metadata plus the fetched artifact.
// Metadata includes at least title, author, language and public_domain.
type DownloadResult struct {
	Metadata     jobs.Metadata
	ArtifactPath string
}

// Downloader resolves source metadata and fetches the work's artifact.
// Failures carry the Download error kind.
type Downloader interface {
	Download(ctx context.Context, req DownloadRequest) (*DownloadResult, error)
}

// Extractor turns a downloaded artifact into raw text plus an ordered
// sequence of structured paragraphs. Failures carry the Extraction kind.
type Extractor interface {
	Extract(ctx context.Context, artifactPath string) (string, []jobs.Paragraph, error)
}

// Segmenter groups paragraphs into chunks. Pure: no failure expected,
// empty input yields an empty sequence.
type Segmenter interface {
	Segment(paragraphs []jobs.Paragraph) []Chunk
}

// Translator translates chunks from the job's source language, preserving
// input order one-to-one. Failures carry the Translation kind.
type Translator interface {
	TranslateChunks(ctx context.Context, chunks []Chunk, sourceLanguage string) ([]TranslatedChunk, error)
}

// Indexer stores chunk embeddings for later retrieval. Failures carry
// the Indexing kind.
type Indexer interface {
	IndexChunks(ctx context.Context, jobID string, chunks []Chunk) error
}

// Stages bundles the five collaborators one orchestrator run drives.
type Stages struct {
	Download  Downloader
	Extract   Extractor
	Segment   Segmenter
	Translate Translator
	Index     Indexer
}

// combineTranslations joins chunk translations with a blank-line
// separator, preserving input order.
func combineTranslations(translated []TranslatedChunk) string {
	parts := make([]string, 0, len(translated))
	for _, item := range translated {
		parts = append(parts, item.Translation)
	}
	return strings.Join(parts, "\n\n")
}

// buildSections maps translated chunks to aligned output sections in the
// same order.
func buildSections(translated []TranslatedChunk) jobs.StructuredOutput {
	sections := make([]jobs.Section, 0, len(translated))
	for _, item := range translated {
		sections = append(sections, jobs.Section{
			Metadata:    item.Metadata,
			Original:    item.Original,
			Translation: item.Translation,
		})
	}
	return jobs.StructuredOutput{Sections: sections}
}
