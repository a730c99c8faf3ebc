// Package pinecone is a minimal REST client for the Pinecone vector index
// service: control-plane index management plus per-index upsert and
// similarity search. Fragment text travels in vector metadata so retrieval
// can return the original content.
package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tkhr/ragdex/internal/models"
	"github.com/tkhr/ragdex/internal/types"
)

const (
	defaultControlPlaneURL = "https://api.pinecone.io"
	apiVersion             = "2024-07"
	contentKey             = "text"
)

// ErrUnauthorized reports rejected credentials. Retrying cannot fix it.
var ErrUnauthorized = types.ErrUnauthorized

type Config struct {
	APIKey string
	// ControlPlaneURL overrides the public API host, mainly for tests.
	ControlPlaneURL string
	Timeout         time.Duration
	Embedder        types.Embedder
}

type Client struct {
	config Config
	client *http.Client
}

func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("pinecone API key is required")
	}
	if config.Embedder == nil {
		return nil, fmt.Errorf("pinecone client requires an embedder")
	}
	if config.ControlPlaneURL == "" {
		config.ControlPlaneURL = defaultControlPlaneURL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	return &Client{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}, nil
}

func (c *Client) ListIndexes(ctx context.Context) ([]string, error) {
	var resp struct {
		Indexes []struct {
			Name string `json:"name"`
		} `json:"indexes"`
	}
	if err := c.do(ctx, http.MethodGet, c.config.ControlPlaneURL+"/indexes", nil, &resp); err != nil {
		return nil, err
	}
	names := make([]string, len(resp.Indexes))
	for i, idx := range resp.Indexes {
		names[i] = idx.Name
	}
	return names, nil
}

func (c *Client) CreateIndex(ctx context.Context, name string, dimension int, metric, cloud, region string) error {
	body := map[string]interface{}{
		"name":      name,
		"dimension": dimension,
		"metric":    metric,
		"spec": map[string]interface{}{
			"serverless": map[string]interface{}{
				"cloud":  cloud,
				"region": region,
			},
		},
	}
	return c.do(ctx, http.MethodPost, c.config.ControlPlaneURL+"/indexes", body, nil)
}

// Connect resolves the index's data-plane host and returns a connection.
func (c *Client) Connect(ctx context.Context, name string) (types.Index, error) {
	var resp struct {
		Host string `json:"host"`
	}
	if err := c.do(ctx, http.MethodGet, c.config.ControlPlaneURL+"/indexes/"+name, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Host == "" {
		return nil, fmt.Errorf("pinecone: index %q has no host", name)
	}
	host := resp.Host
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	return &Index{client: c, host: host}, nil
}

// Index is a connection to one index's data plane.
type Index struct {
	client *Client
	host   string
}

func (ix *Index) Upsert(ctx context.Context, namespace string, ids []string, fragments []models.Fragment) error {
	if len(ids) != len(fragments) {
		return fmt.Errorf("pinecone: %d ids for %d fragments", len(ids), len(fragments))
	}
	// the API rejects an empty vectors array, and there is nothing to embed
	if len(fragments) == 0 {
		return nil
	}
	texts := make([]string, len(fragments))
	for i, frag := range fragments {
		texts[i] = frag.Content
	}
	vectors, err := ix.client.config.Embedder.CreateEmbedding(ctx, texts)
	if err != nil {
		return err
	}

	type vector struct {
		ID       string                 `json:"id"`
		Values   []float32              `json:"values"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	payload := make([]vector, len(fragments))
	for i, frag := range fragments {
		metadata := make(map[string]interface{}, len(frag.Metadata)+1)
		for k, v := range frag.Metadata {
			metadata[k] = v
		}
		metadata[contentKey] = frag.Content
		payload[i] = vector{ID: ids[i], Values: vectors[i], Metadata: metadata}
	}
	body := map[string]interface{}{"vectors": payload, "namespace": namespace}
	return ix.client.do(ctx, http.MethodPost, ix.host+"/vectors/upsert", body, nil)
}

func (ix *Index) Search(ctx context.Context, namespace, query string, k int, filter map[string]string) ([]models.Match, error) {
	vectors, err := ix.client.config.Embedder.CreateEmbedding(ctx, []string{query})
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"vector":          vectors[0],
		"topK":            k,
		"namespace":       namespace,
		"includeMetadata": true,
	}
	if len(filter) > 0 {
		conds := make(map[string]interface{}, len(filter))
		for key, val := range filter {
			conds[key] = map[string]interface{}{"$eq": val}
		}
		body["filter"] = conds
	}

	var resp struct {
		Matches []struct {
			ID       string                 `json:"id"`
			Score    float32                `json:"score"`
			Metadata map[string]interface{} `json:"metadata"`
		} `json:"matches"`
	}
	if err := ix.client.do(ctx, http.MethodPost, ix.host+"/query", body, &resp); err != nil {
		return nil, err
	}

	matches := make([]models.Match, len(resp.Matches))
	for i, m := range resp.Matches {
		content, ok := m.Metadata[contentKey].(string)
		if !ok {
			return nil, fmt.Errorf("pinecone: match %q has no %s metadata", m.ID, contentKey)
		}
		matches[i] = models.Match{ID: m.ID, Score: m.Score, Content: content, Metadata: m.Metadata}
	}
	return matches, nil
}

func (c *Client) do(ctx context.Context, method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Api-Key", c.config.APIKey)
	req.Header.Set("X-Pinecone-API-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w (status %s)", ErrUnauthorized, resp.Status)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("pinecone: %s %s failed with status %s: %s", method, url, resp.Status, data)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("pinecone: failed to decode response: %w", err)
		}
	}
	return nil
}
