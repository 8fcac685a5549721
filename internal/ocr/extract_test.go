package ocr

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DonISO100/classical-works-processor/internal/pipeline"
)

func writeArtifact(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEnsureTextLayerPassesThroughTextFiles(t *testing.T) {
	path := writeArtifact(t, "work.txt", "Gallia est omnis divisa in partes tres.")

	got, err := NewExtractor().EnsureTextLayer(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestEnsureTextLayerPrefersSiblingText(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "work.pdf")
	txtPath := filepath.Join(dir, "work.txt")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4 binary"), 0o644))
	require.NoError(t, os.WriteFile(txtPath, []byte("extracted text"), 0o644))

	got, err := NewExtractor().EnsureTextLayer(pdfPath)
	require.NoError(t, err)
	assert.Equal(t, txtPath, got)
}

func TestEnsureTextLayerFallsBackToArtifact(t *testing.T) {
	path := writeArtifact(t, "work.pdf", "placeholder body")

	got, err := NewExtractor().EnsureTextLayer(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestExtractSplitsPagesAndParagraphs(t *testing.T) {
	content := "First paragraph of page one.\n\nSecond paragraph of page one.\fOnly paragraph of page two."
	path := writeArtifact(t, "work.txt", content)

	raw, paragraphs, err := NewExtractor().Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, content, raw)
	require.Len(t, paragraphs, 3)

	assert.Equal(t, 1, paragraphs[0].Page)
	assert.Equal(t, 1, paragraphs[0].Paragraph)
	assert.Equal(t, "First paragraph of page one.", paragraphs[0].Text)

	assert.Equal(t, 1, paragraphs[1].Page)
	assert.Equal(t, 2, paragraphs[1].Paragraph)

	assert.Equal(t, 2, paragraphs[2].Page)
	assert.Equal(t, 1, paragraphs[2].Paragraph)
	assert.Equal(t, "Only paragraph of page two.", paragraphs[2].Text)
}

func TestExtractSkipsBlankBlocks(t *testing.T) {
	path := writeArtifact(t, "work.txt", "\n\nAlpha.\n\n\n\n   \n\nBeta.\n\n")

	_, paragraphs, err := NewExtractor().Extract(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, paragraphs, 2)
	assert.Equal(t, "Alpha.", paragraphs[0].Text)
	assert.Equal(t, "Beta.", paragraphs[1].Text)
}

func TestExtractEmptyArtifact(t *testing.T) {
	path := writeArtifact(t, "work.txt", "   \n\n  ")

	_, _, err := NewExtractor().Extract(context.Background(), path)
	require.Error(t, err)
	assert.True(t, pipeline.IsErrorType(err, pipeline.ErrExtraction))
}

func TestExtractMissingFile(t *testing.T) {
	_, _, err := NewExtractor().Extract(context.Background(), filepath.Join(t.TempDir(), "absent.txt"))
	require.Error(t, err)
	assert.True(t, pipeline.IsErrorType(err, pipeline.ErrExtraction))
}
