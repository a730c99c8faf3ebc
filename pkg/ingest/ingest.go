// Package ingest sequences one document's journey into the vector store:
// fetch, extract, chunk, label, upsert.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/tkhr/ragdex/internal/models"
	"github.com/tkhr/ragdex/internal/types"
	"github.com/tkhr/ragdex/pkg/chunker"
	"github.com/tkhr/ragdex/pkg/fetch"
	"github.com/tkhr/ragdex/pkg/labeler"
	"github.com/tkhr/ragdex/pkg/registry"
	"github.com/tkhr/ragdex/pkg/retry"
)

type OrchestratorConfig struct {
	TmpDir    string
	Fetcher   *fetch.Fetcher
	Extractor types.Extractor
	Chunker   *chunker.Chunker
	Registry  *registry.Registry
	Retry     retry.Config
	Logger    *slog.Logger
}

type Orchestrator struct {
	config OrchestratorConfig
	logger *slog.Logger
}

func NewWithConfig(config OrchestratorConfig) (*Orchestrator, error) {
	if config.Fetcher == nil || config.Extractor == nil || config.Chunker == nil || config.Registry == nil {
		return nil, fmt.Errorf("orchestrator requires fetcher, extractor, chunker and registry")
	}
	if config.TmpDir == "" {
		config.TmpDir = filepath.Join(os.TempDir(), "ragdex")
	}
	if err := os.MkdirAll(config.TmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create tmp dir: %w", err)
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = retry.Default()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Orchestrator{config: config, logger: config.Logger}, nil
}

// Ingest downloads the document at sourceURL and indexes its fragments in
// the tenant's index under the project namespace. The on-disk artifact is
// removed after extraction regardless of downstream outcome.
func (o *Orchestrator) Ingest(ctx context.Context, sourceURL, tenant, project string) (models.IngestResult, error) {
	sourceName, err := sourceNameFromURL(sourceURL)
	if err != nil {
		return models.IngestResult{}, err
	}

	// Microsecond timestamp prefixes the artifact so concurrent ingests of
	// same-named files never collide on disk.
	timestamp := time.Now().UTC().UnixMicro()
	dest := filepath.Join(o.config.TmpDir, fmt.Sprintf("%d_%s", timestamp, sourceName))

	if err := o.config.Fetcher.Fetch(ctx, sourceURL, dest); err != nil {
		return models.IngestResult{}, err
	}

	doc, err := o.config.Extractor.Extract(ctx, sourceName)

	if removeErr := os.Remove(dest); removeErr == nil {
		o.logger.Debug("cleaned up downloaded artifact", "path", dest)
	}
	if err != nil {
		return models.IngestResult{}, fmt.Errorf("failed to extract %q: %w", sourceName, err)
	}

	fragments, err := o.config.Chunker.Chunk(doc)
	if err != nil {
		return models.IngestResult{}, err
	}
	o.logger.Info("split content into fragments", "name", sourceName, "count", len(fragments))

	ids, labeled := labeler.Label(fragments, sourceName, timestamp)

	index, err := o.config.Registry.GetOrCreateIndex(ctx, tenant)
	if err != nil {
		return models.IngestResult{}, err
	}

	// an unrecognized document yields no fragments; the index still exists
	// but there is nothing to send
	if len(labeled) > 0 {
		cfg := o.config.Retry
		cfg.Logger = o.logger
		start := time.Now()
		err = retry.Do(ctx, "upsert", cfg, func(ctx context.Context) error {
			err := index.Upsert(ctx, project, ids, labeled)
			if errors.Is(err, types.ErrUnauthorized) {
				return retry.Permanent(err)
			}
			return err
		})
		if err != nil {
			return models.IngestResult{}, fmt.Errorf("failed to upsert fragments: %w", err)
		}
		o.logger.Info("upserted fragments",
			"tenant", tenant, "namespace", project, "count", len(labeled), "elapsed", time.Since(start))
	}

	return models.IngestResult{
		IDs:        ids,
		Timestamp:  timestamp,
		SourceName: sourceName,
		Message: fmt.Sprintf("Successfully added document to vector store under index %q with namespace %q",
			tenant, project),
	}, nil
}

func sourceNameFromURL(sourceURL string) (string, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", fmt.Errorf("invalid source url %q: %w", sourceURL, err)
	}
	name, err := url.PathUnescape(path.Base(u.Path))
	if err != nil {
		return "", fmt.Errorf("invalid source url path %q: %w", u.Path, err)
	}
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("source url %q has no file name", sourceURL)
	}
	return name, nil
}
