// Package chunker groups extracted paragraphs into translation-sized
// chunks while preserving paragraph metadata and order.
package chunker

import (
	"strings"

	"github.com/DonISO100/classical-works-processor/internal/jobs"
	"github.com/DonISO100/classical-works-processor/internal/pipeline"
	"github.com/DonISO100/classical-works-processor/pkg/log"
)

// DefaultGroupSize is the number of consecutive paragraphs per chunk.
const DefaultGroupSize = 3

type Chunker struct {
	groupSize int
}

func New(groupSize int) *Chunker {
	if groupSize <= 0 {
		groupSize = DefaultGroupSize
	}
	return &Chunker{groupSize: groupSize}
}

// Segment groups consecutive paragraphs into chunks of at most
// groupSize, with a trailing partial chunk for the remainder. Chunk
// content joins paragraph texts with newlines.
func (c *Chunker) Segment(paragraphs []jobs.Paragraph) []pipeline.Chunk {
	log.Info("Chunking %d paragraphs into groups of %d", len(paragraphs), c.groupSize)

	chunks := make([]pipeline.Chunk, 0, (len(paragraphs)+c.groupSize-1)/c.groupSize)
	for start := 0; start < len(paragraphs); start += c.groupSize {
		end := start + c.groupSize
		if end > len(paragraphs) {
			end = len(paragraphs)
		}
		group := paragraphs[start:end]

		texts := make([]string, 0, len(group))
		for _, paragraph := range group {
			texts = append(texts, paragraph.Text)
		}
		metadata := make([]jobs.Paragraph, len(group))
		copy(metadata, group)

		chunks = append(chunks, pipeline.Chunk{
			Content:  strings.Join(texts, "\n"),
			Metadata: metadata,
		})
	}
	return chunks
}
