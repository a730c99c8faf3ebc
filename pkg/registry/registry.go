// Package registry manages per-tenant vector index handles. Handles are
// created lazily against the remote service and memoized for the process
// lifetime in a small LRU cache, with creation serialized per tenant.
//
// Known limitation: if a remote index is deleted out-of-band after caching,
// the registry will not notice until the entry is evicted.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tkhr/ragdex/internal/cache"
	"github.com/tkhr/ragdex/internal/types"
)

// Dimensions maps embedding model names to their output dimensionality.
// Only OpenAI embedding models are wired up at the moment; an unknown model
// is a configuration error, never a silent default.
var Dimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

type RegistryConfig struct {
	Service        types.IndexService
	EmbeddingModel string
	Metric         string
	Cloud          string
	Region         string
	Capacity       int
	Logger         *slog.Logger
}

type Registry struct {
	config  RegistryConfig
	handles *cache.Cache[string, types.Index]
	logger  *slog.Logger
}

func NewWithConfig(config RegistryConfig) (*Registry, error) {
	if config.Service == nil {
		return nil, fmt.Errorf("registry requires an index service")
	}
	if _, ok := Dimensions[config.EmbeddingModel]; !ok {
		return nil, fmt.Errorf("unknown embedding model %q, no dimension configured", config.EmbeddingModel)
	}
	if config.Metric == "" {
		config.Metric = "cosine"
	}
	if config.Cloud == "" {
		config.Cloud = "aws"
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}
	if config.Capacity == 0 {
		config.Capacity = 8
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Registry{
		config:  config,
		handles: cache.New[string, types.Index](config.Capacity),
		logger:  config.Logger,
	}, nil
}

// GetOrCreateIndex returns the tenant's index handle, creating the remote
// index on first use if it does not exist. Concurrent first requests for the
// same tenant result in exactly one create call.
func (r *Registry) GetOrCreateIndex(ctx context.Context, tenant string) (types.Index, error) {
	return r.handles.GetOrCreate(tenant, func() (types.Index, error) {
		existing, err := r.config.Service.ListIndexes(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list indexes: %w", err)
		}

		found := false
		for _, name := range existing {
			if name == tenant {
				found = true
				break
			}
		}

		if !found {
			dimension := Dimensions[r.config.EmbeddingModel]
			err := r.config.Service.CreateIndex(ctx, tenant, dimension,
				r.config.Metric, r.config.Cloud, r.config.Region)
			if err != nil {
				return nil, fmt.Errorf("failed to create index for tenant %q: %w", tenant, err)
			}
			r.logger.Info("created index", "tenant", tenant, "dimension", dimension)
		} else {
			r.logger.Debug("index exists", "tenant", tenant)
		}

		return r.config.Service.Connect(ctx, tenant)
	})
}
