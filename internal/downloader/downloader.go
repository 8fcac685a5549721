// Package downloader retrieves source works from an external metadata
// catalogue and stages the artifact on local disk for extraction.
package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DonISO100/classical-works-processor/internal/jobs"
	"github.com/DonISO100/classical-works-processor/internal/pipeline"
	"github.com/DonISO100/classical-works-processor/pkg/log"
)

// placeholderArtifact is staged when the catalogue entry carries no
// download URL, so downstream stages always have a file to work on.
var placeholderArtifact = []byte("%PDF-1.4\n% staged placeholder artifact\n")

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client looks up work metadata and downloads the artifact. An empty
// apiBase switches the client to offline mode: metadata is synthesized
// from the request and a placeholder artifact is staged.
type Client struct {
	apiBase    string
	httpClient *http.Client
}

func New(apiBase string, opts ...Option) *Client {
	c := &Client{
		apiBase: strings.TrimRight(strings.TrimSpace(apiBase), "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Download(ctx context.Context, req pipeline.DownloadRequest) (*pipeline.DownloadResult, error) {
	log.Info("Searching metadata catalogue for '%s' by %s", req.Title, req.Author)

	metadata, err := c.lookupMetadata(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := verifyPublicDomain(metadata); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(req.TargetDir, 0o755); err != nil {
		return nil, pipeline.NewErrorWithCause(
			pipeline.ErrDownload,
			"failed to create staging directory",
			err,
		).WithContext("dir", req.TargetDir)
	}

	artifactPath := filepath.Join(req.TargetDir, artifactName(req.Title))
	downloadURL, _ := metadata["download_url"].(string)
	if err := c.stageArtifact(ctx, downloadURL, artifactPath); err != nil {
		return nil, err
	}
	log.Info("Staged artifact for '%s' at %s", req.Title, artifactPath)

	return &pipeline.DownloadResult{
		Metadata:     metadata,
		ArtifactPath: artifactPath,
	}, nil
}

// verifyPublicDomain rejects works the catalogue marks as still under
// copyright. Absent flags are treated as public domain.
func verifyPublicDomain(metadata jobs.Metadata) error {
	if publicDomain, ok := metadata["public_domain"].(bool); ok && !publicDomain {
		return pipeline.NewError(
			pipeline.ErrDownload,
			"work is not in the public domain; aborting ingestion",
		)
	}
	return nil
}

type catalogueEntry struct {
	Title        string `json:"title"`
	Author       string `json:"author"`
	Year         *int   `json:"year"`
	Language     string `json:"language"`
	PublicDomain *bool  `json:"public_domain"`
	Source       string `json:"source"`
	DownloadURL  string `json:"download_url"`
}

func (c *Client) lookupMetadata(ctx context.Context, req pipeline.DownloadRequest) (jobs.Metadata, error) {
	if c.apiBase == "" {
		log.Warn("No metadata catalogue configured, synthesizing metadata for '%s'", req.Title)
		return jobs.Metadata{
			"title":         req.Title,
			"author":        req.Author,
			"year":          req.Year,
			"language":      req.Language,
			"public_domain": true,
			"source":        "local",
			"download_url":  "",
		}, nil
	}

	query := url.Values{}
	query.Set("title", req.Title)
	query.Set("author", req.Author)
	searchURL := fmt.Sprintf("%s/search?%s", c.apiBase, query.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, pipeline.NewErrorWithCause(pipeline.ErrDownload, "failed to build catalogue request", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pipeline.NewErrorWithCause(pipeline.ErrDownload, "metadata catalogue unreachable", err).
			WithContext("url", searchURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, pipeline.NewError(pipeline.ErrDownload, "metadata catalogue returned an error").
			WithContext("status", fmt.Sprintf("%d", resp.StatusCode)).
			WithContext("body", string(body))
	}

	var entry catalogueEntry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		return nil, pipeline.NewErrorWithCause(pipeline.ErrDownload, "failed to decode catalogue response", err)
	}

	metadata := jobs.Metadata{
		"title":         firstNonEmpty(entry.Title, req.Title),
		"author":        firstNonEmpty(entry.Author, req.Author),
		"year":          req.Year,
		"language":      firstNonEmpty(entry.Language, req.Language),
		"public_domain": entry.PublicDomain == nil || *entry.PublicDomain,
		"source":        firstNonEmpty(entry.Source, c.apiBase),
		"download_url":  entry.DownloadURL,
	}
	if entry.Year != nil {
		metadata["year"] = entry.Year
	}
	return metadata, nil
}

// stageArtifact streams the remote file to disk, or writes a
// placeholder when the catalogue entry has no download URL.
func (c *Client) stageArtifact(ctx context.Context, downloadURL, artifactPath string) error {
	if downloadURL == "" {
		if err := os.WriteFile(artifactPath, placeholderArtifact, 0o644); err != nil {
			return pipeline.NewErrorWithCause(pipeline.ErrDownload, "failed to stage placeholder artifact", err).
				WithContext("path", artifactPath)
		}
		return nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return pipeline.NewErrorWithCause(pipeline.ErrDownload, "failed to build download request", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pipeline.NewErrorWithCause(pipeline.ErrDownload, "artifact download failed", err).
			WithContext("url", downloadURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return pipeline.NewError(pipeline.ErrDownload, "artifact download returned an error").
			WithContext("url", downloadURL).
			WithContext("status", fmt.Sprintf("%d", resp.StatusCode))
	}

	out, err := os.Create(artifactPath)
	if err != nil {
		return pipeline.NewErrorWithCause(pipeline.ErrDownload, "failed to create artifact file", err).
			WithContext("path", artifactPath)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return pipeline.NewErrorWithCause(pipeline.ErrDownload, "failed to write artifact file", err).
			WithContext("path", artifactPath)
	}
	return nil
}

func artifactName(title string) string {
	return strings.ReplaceAll(title, " ", "_") + ".pdf"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
