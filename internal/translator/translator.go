// Package translator renders source-language chunks into English, either
// through an LLM backend or a deterministic echo fallback for offline runs.
package translator

import (
	"context"
	"fmt"
	"sync"

	"github.com/DonISO100/classical-works-processor/internal/llm"
	"github.com/DonISO100/classical-works-processor/internal/pipeline"
	"github.com/DonISO100/classical-works-processor/pkg/log"
)

const systemPromptTemplate = "You are an expert translator of classical texts. " +
	"Translate the following %s passage into clear, faithful English prose. " +
	"Preserve paragraph breaks. Return only the translation."

// chatClient is the slice of the LLM client the translator needs.
type chatClient interface {
	SimpleChat(ctx context.Context, prompt string, systemPrompt string) (string, error)
}

// ChunkTranslator translates chunks one at a time through a chat
// completion backend.
type ChunkTranslator struct {
	client chatClient
}

func NewChunkTranslator(client chatClient) *ChunkTranslator {
	return &ChunkTranslator{client: client}
}

func (t *ChunkTranslator) TranslateChunks(ctx context.Context, chunks []pipeline.Chunk, sourceLanguage string) ([]pipeline.TranslatedChunk, error) {
	systemPrompt := fmt.Sprintf(systemPromptTemplate, sourceLanguage)

	translated := make([]pipeline.TranslatedChunk, 0, len(chunks))
	for i, chunk := range chunks {
		log.Info("Translating chunk %d/%d from %s", i+1, len(chunks), sourceLanguage)

		translation, err := t.client.SimpleChat(ctx, chunk.Content, systemPrompt)
		if err != nil {
			return nil, pipeline.NewErrorWithCause(pipeline.ErrTranslation, "chunk translation failed", err).
				WithContext("chunk", fmt.Sprintf("%d", i)).
				WithContext("source_language", sourceLanguage)
		}
		if translation == "" {
			return nil, pipeline.NewError(pipeline.ErrTranslation, "translation backend returned empty content").
				WithContext("chunk", fmt.Sprintf("%d", i))
		}

		translated = append(translated, pipeline.TranslatedChunk{
			Original:    chunk.Content,
			Translation: translation,
			Metadata:    chunk.Metadata,
		})
	}
	return translated, nil
}

// EchoTranslator is the offline backend: it tags each chunk with the
// source and target language instead of calling an LLM.
type EchoTranslator struct{}

func NewEchoTranslator() *EchoTranslator {
	return &EchoTranslator{}
}

func (t *EchoTranslator) TranslateChunks(_ context.Context, chunks []pipeline.Chunk, sourceLanguage string) ([]pipeline.TranslatedChunk, error) {
	translated := make([]pipeline.TranslatedChunk, 0, len(chunks))
	for _, chunk := range chunks {
		translated = append(translated, pipeline.TranslatedChunk{
			Original:    chunk.Content,
			Translation: fmt.Sprintf("[Translated %s -> English] %s", sourceLanguage, chunk.Content),
			Metadata:    chunk.Metadata,
		})
	}
	return translated, nil
}

// Reloadable wraps a backend so runtime settings updates can swap it
// while pipelines keep running. Each run reads the backend once, so an
// in-flight job finishes on the backend it started with.
type Reloadable struct {
	mu    sync.RWMutex
	inner pipeline.Translator
}

func NewReloadable(inner pipeline.Translator) *Reloadable {
	return &Reloadable{inner: inner}
}

func (r *Reloadable) Swap(inner pipeline.Translator) {
	r.mu.Lock()
	r.inner = inner
	r.mu.Unlock()
}

func (r *Reloadable) TranslateChunks(ctx context.Context, chunks []pipeline.Chunk, sourceLanguage string) ([]pipeline.TranslatedChunk, error) {
	r.mu.RLock()
	inner := r.inner
	r.mu.RUnlock()
	return inner.TranslateChunks(ctx, chunks, sourceLanguage)
}

// NewFromConfig picks the backend: the LLM-backed translator when an
// API key is configured, the echo translator otherwise.
func NewFromConfig(cfg *llm.Config) (pipeline.Translator, error) {
	if cfg == nil || cfg.APIKey == "" {
		log.Warn("No LLM API key configured, using echo translation backend")
		return NewEchoTranslator(), nil
	}

	client, err := llm.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("build LLM client: %w", err)
	}
	return NewChunkTranslator(client), nil
}
