package types

import (
	"context"
	"errors"

	"github.com/tkhr/ragdex/internal/models"
)

// ErrUnauthorized reports rejected credentials from a remote service.
// Retrying cannot fix it.
var ErrUnauthorized = errors.New("unauthorized")

// Extractor produces the raw text of a named source document. Unknown names
// yield an empty document, not an error.
type Extractor interface {
	Extract(ctx context.Context, name string) (models.Document, error)
}

// Embedder turns texts into vectors for one configured embedding model.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Generator produces an answer for a fully rendered prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// IndexAdmin is the control-plane surface of the vector index service.
type IndexAdmin interface {
	ListIndexes(ctx context.Context) ([]string, error)
	CreateIndex(ctx context.Context, name string, dimension int, metric, cloud, region string) error
}

// Index is a connection to one tenant's vector index.
type Index interface {
	Upsert(ctx context.Context, namespace string, ids []string, fragments []models.Fragment) error
	Search(ctx context.Context, namespace, query string, k int, filter map[string]string) ([]models.Match, error)
}

// IndexService combines index administration with per-tenant connections.
type IndexService interface {
	IndexAdmin
	Connect(ctx context.Context, name string) (Index, error)
}
