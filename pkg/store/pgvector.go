// Package store provides a pgvector-backed implementation of the index
// service for local deployments. Each tenant maps to one table; the project
// namespace is a column, and fragment metadata lives in a JSONB column.
package store

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/tkhr/ragdex/internal/models"
	"github.com/tkhr/ragdex/internal/types"
)

var tenantNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

type VectorStoreConfig struct {
	ConnString string
	Embedder   types.Embedder
}

type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	if config.Embedder == nil {
		return nil, fmt.Errorf("vector store requires an embedder")
	}
	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	vs := &VectorStore{config: config, pool: pool}

	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create vector extension: %w", err)
	}
	return vs, nil
}

func (vs *VectorStore) ListIndexes(ctx context.Context) ([]string, error) {
	rows, err := vs.pool.Query(ctx, `
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public' AND tablename LIKE 'ragdex_%'`)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			return nil, err
		}
		names = append(names, table[len("ragdex_"):])
	}
	return names, rows.Err()
}

// CreateIndex provisions the tenant table and its cosine ivfflat index.
// The metric and cloud/region arguments exist for interface parity with the
// remote service; only cosine is supported locally.
func (vs *VectorStore) CreateIndex(ctx context.Context, name string, dimension int, metric, cloud, region string) error {
	table, err := tableName(name)
	if err != nil {
		return err
	}
	if metric != "" && metric != "cosine" {
		return fmt.Errorf("unsupported metric %q, pgvector backend is cosine-only", metric)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT NOT NULL,
			namespace TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d),
			metadata JSONB,
			PRIMARY KEY (id, namespace)
		)`, table, dimension)
	if _, err := vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`, table, table)
	if _, err := vs.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

func (vs *VectorStore) Connect(ctx context.Context, name string) (types.Index, error) {
	table, err := tableName(name)
	if err != nil {
		return nil, err
	}
	return &tenantIndex{store: vs, table: table}, nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

type tenantIndex struct {
	store *VectorStore
	table string
}

func (ix *tenantIndex) Upsert(ctx context.Context, namespace string, ids []string, fragments []models.Fragment) error {
	if len(ids) != len(fragments) {
		return fmt.Errorf("store: %d ids for %d fragments", len(ids), len(fragments))
	}
	if len(fragments) == 0 {
		return nil
	}
	texts := make([]string, len(fragments))
	for i, frag := range fragments {
		texts[i] = frag.Content
	}
	vectors, err := ix.store.config.Embedder.CreateEmbedding(ctx, texts)
	if err != nil {
		return err
	}

	tx, err := ix.store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, namespace, content, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id, namespace) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`, ix.table)

	for i, frag := range fragments {
		_, err := tx.Exec(ctx, stmt,
			ids[i], namespace, frag.Content, pgvector.NewVector(vectors[i]), frag.Metadata)
		if err != nil {
			return fmt.Errorf("failed to upsert fragment: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (ix *tenantIndex) Search(ctx context.Context, namespace, query string, k int, filter map[string]string) ([]models.Match, error) {
	vectors, err := ix.store.config.Embedder.CreateEmbedding(ctx, []string{query})
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`
		SELECT id, content, metadata, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE namespace = $2`, ix.table)
	args := []interface{}{pgvector.NewVector(vectors[0]), namespace}
	for key, val := range filter {
		sql += fmt.Sprintf(" AND metadata->>($%d::text) = $%d", len(args)+1, len(args)+2)
		args = append(args, key, val)
	}
	sql += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT %d", k)

	rows, err := ix.store.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fragments: %w", err)
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		var m models.Match
		if err := rows.Scan(&m.ID, &m.Content, &m.Metadata, &m.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func tableName(tenant string) (string, error) {
	if !tenantNamePattern.MatchString(tenant) {
		return "", fmt.Errorf("invalid tenant name %q", tenant)
	}
	return "ragdex_" + tenant, nil
}
