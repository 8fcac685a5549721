package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/DonISO100/classical-works-processor/internal/jobs"
)

// memoryStore is an in-memory jobs.Store recording every status write in
// order, so tests can assert transition sequencing.
type memoryStore struct {
	mu            sync.Mutex
	jobs          map[string]*jobs.Job
	works         map[string]*jobs.ProcessedWork
	statusHistory map[string][]jobs.Status
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		jobs:          make(map[string]*jobs.Job),
		works:         make(map[string]*jobs.ProcessedWork),
		statusHistory: make(map[string][]jobs.Status),
	}
}

func (m *memoryStore) UpsertJob(_ context.Context, job *jobs.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = jobs.CloneJob(job)
	m.statusHistory[job.ID] = append(m.statusHistory[job.ID], job.Status)
	return nil
}

func (m *memoryStore) GetJob(_ context.Context, jobID string) (*jobs.Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, false, nil
	}
	return jobs.CloneJob(job), true, nil
}

func (m *memoryStore) ListJobs(_ context.Context) ([]*jobs.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]*jobs.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		ret = append(ret, jobs.CloneJob(job))
	}
	return ret, nil
}

func (m *memoryStore) ListStaleJobs(_ context.Context, cutoff time.Time) ([]*jobs.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]*jobs.Job, 0)
	for _, job := range m.jobs {
		if !job.Status.Terminal() && !job.UpdatedAt.After(cutoff) {
			ret = append(ret, jobs.CloneJob(job))
		}
	}
	return ret, nil
}

func (m *memoryStore) PutProcessedWork(_ context.Context, work *jobs.ProcessedWork) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.works[work.JobID]; exists {
		return fmt.Errorf("processed work already exists for job %s", work.JobID)
	}
	tmp := *work
	m.works[work.JobID] = &tmp
	return nil
}

func (m *memoryStore) GetProcessedWorkByJob(_ context.Context, jobID string) (*jobs.ProcessedWork, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	work, ok := m.works[jobID]
	if !ok {
		return nil, false, nil
	}
	tmp := *work
	return &tmp, true, nil
}

func (m *memoryStore) history(jobID string) []jobs.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]jobs.Status(nil), m.statusHistory[jobID]...)
}

// fakeStages implements all five stage contracts with overridable hooks
// and defaults that mimic the real placeholder behavior.
type fakeStages struct {
	paragraphs []jobs.Paragraph

	downloadFn  func(ctx context.Context, req DownloadRequest) (*DownloadResult, error)
	extractFn   func(ctx context.Context, artifactPath string) (string, []jobs.Paragraph, error)
	translateFn func(ctx context.Context, chunks []Chunk, sourceLanguage string) ([]TranslatedChunk, error)
	indexFn     func(ctx context.Context, jobID string, chunks []Chunk) error

	mu           sync.Mutex
	indexedJobID string
	indexedCount int
}

func newFakeStages(paragraphCount int) *fakeStages {
	paragraphs := make([]jobs.Paragraph, 0, paragraphCount)
	for i := 0; i < paragraphCount; i++ {
		paragraphs = append(paragraphs, jobs.Paragraph{
			Page:      1 + i/4,
			Paragraph: i + 1,
			Text:      fmt.Sprintf("paragraphus %d", i+1),
		})
	}
	return &fakeStages{paragraphs: paragraphs}
}

func (f *fakeStages) Download(ctx context.Context, req DownloadRequest) (*DownloadResult, error) {
	if f.downloadFn != nil {
		return f.downloadFn(ctx, req)
	}
	return &DownloadResult{
		Metadata: jobs.Metadata{
			"title":         req.Title,
			"author":        req.Author,
			"language":      req.Language,
			"public_domain": true,
		},
		ArtifactPath: "/tmp/fake-artifact.txt",
	}, nil
}

func (f *fakeStages) Extract(ctx context.Context, artifactPath string) (string, []jobs.Paragraph, error) {
	if f.extractFn != nil {
		return f.extractFn(ctx, artifactPath)
	}
	texts := make([]string, 0, len(f.paragraphs))
	for _, p := range f.paragraphs {
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, "\n\n"), f.paragraphs, nil
}

func (f *fakeStages) Segment(paragraphs []jobs.Paragraph) []Chunk {
	chunks := make([]Chunk, 0)
	for start := 0; start < len(paragraphs); start += 3 {
		end := min(start+3, len(paragraphs))
		group := paragraphs[start:end]
		texts := make([]string, 0, len(group))
		for _, p := range group {
			texts = append(texts, p.Text)
		}
		chunks = append(chunks, Chunk{
			Content:  strings.Join(texts, "\n"),
			Metadata: append([]jobs.Paragraph(nil), group...),
		})
	}
	return chunks
}

func (f *fakeStages) TranslateChunks(ctx context.Context, chunks []Chunk, sourceLanguage string) ([]TranslatedChunk, error) {
	if f.translateFn != nil {
		return f.translateFn(ctx, chunks, sourceLanguage)
	}
	translated := make([]TranslatedChunk, 0, len(chunks))
	for _, chunk := range chunks {
		translated = append(translated, TranslatedChunk{
			Original:    chunk.Content,
			Translation: fmt.Sprintf("[Translated %s -> English] %s", sourceLanguage, chunk.Content),
			Metadata:    chunk.Metadata,
		})
	}
	return translated, nil
}

func (f *fakeStages) IndexChunks(ctx context.Context, jobID string, chunks []Chunk) error {
	if f.indexFn != nil {
		return f.indexFn(ctx, jobID, chunks)
	}
	f.mu.Lock()
	f.indexedJobID = jobID
	f.indexedCount = len(chunks)
	f.mu.Unlock()
	return nil
}

func (f *fakeStages) indexed() (string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.indexedJobID, f.indexedCount
}

func (f *fakeStages) asStages() Stages {
	return Stages{
		Download:  f,
		Extract:   f,
		Segment:   f,
		Translate: f,
		Index:     f,
	}
}
