package ingest_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkhr/ragdex/internal/models"
	"github.com/tkhr/ragdex/internal/types"
	"github.com/tkhr/ragdex/pkg/chunker"
	"github.com/tkhr/ragdex/pkg/extract"
	"github.com/tkhr/ragdex/pkg/fetch"
	"github.com/tkhr/ragdex/pkg/ingest"
	"github.com/tkhr/ragdex/pkg/labeler"
	"github.com/tkhr/ragdex/pkg/registry"
	"github.com/tkhr/ragdex/pkg/retry"
)

type upsertCall struct {
	namespace string
	ids       []string
	fragments []models.Fragment
}

type recordingIndex struct {
	mu      sync.Mutex
	upserts []upsertCall
	fail    int // fail this many upserts before succeeding
}

func (r *recordingIndex) Upsert(ctx context.Context, ns string, ids []string, frags []models.Fragment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail > 0 {
		r.fail--
		return fmt.Errorf("transient upsert failure")
	}
	r.upserts = append(r.upserts, upsertCall{namespace: ns, ids: ids, fragments: frags})
	return nil
}

func (r *recordingIndex) Search(ctx context.Context, ns, q string, k int, f map[string]string) ([]models.Match, error) {
	return nil, nil
}

type singleIndexService struct {
	index *recordingIndex
}

func (s *singleIndexService) ListIndexes(ctx context.Context) ([]string, error) { return nil, nil }

func (s *singleIndexService) CreateIndex(ctx context.Context, name string, dim int, metric, cloud, region string) error {
	return nil
}

func (s *singleIndexService) Connect(ctx context.Context, name string) (types.Index, error) {
	return s.index, nil
}

func newOrchestrator(t *testing.T, index *recordingIndex, samplesDir string) (*ingest.Orchestrator, string) {
	t.Helper()

	reg, err := registry.NewWithConfig(registry.RegistryConfig{
		Service:        &singleIndexService{index: index},
		EmbeddingModel: "text-embedding-3-small",
	})
	require.NoError(t, err)

	splitter, err := chunker.NewWithConfig(chunker.ChunkerConfig{
		ChunkSize:    5,
		ChunkOverlap: 2,
		LenFunc:      func(s string) int { return len(strings.Fields(s)) },
	})
	require.NoError(t, err)

	fastRetry := retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		BackoffBase:  2,
		Unit:         time.Millisecond,
	}

	tmpDir := t.TempDir()
	orchestrator, err := ingest.NewWithConfig(ingest.OrchestratorConfig{
		TmpDir:    tmpDir,
		Fetcher:   fetch.NewWithConfig(fetch.FetcherConfig{Retry: fastRetry}),
		Extractor: extract.NewFixtureExtractor(extract.FixtureConfig{SamplesDir: samplesDir}),
		Chunker:   splitter,
		Registry:  reg,
		Retry:     fastRetry,
	})
	require.NoError(t, err)
	return orchestrator, tmpDir
}

func TestIngest_EndToEnd(t *testing.T) {
	content := "Sentence one. Sentence two, with a comma. Sentence three closes out the sample document body."
	samplesDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(samplesDir, "report.txt"), []byte(content), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, content)
	}))
	defer srv.Close()

	index := &recordingIndex{}
	orchestrator, tmpDir := newOrchestrator(t, index, samplesDir)

	result, err := orchestrator.Ingest(context.Background(), srv.URL+"/files/report.txt", "acme", "proj")
	require.NoError(t, err)

	assert.Equal(t, "report.txt", result.SourceName)
	assert.Greater(t, result.Timestamp, int64(0))
	assert.Contains(t, result.Message, `"acme"`)
	assert.Contains(t, result.Message, `"proj"`)
	require.GreaterOrEqual(t, len(result.IDs), 2)

	require.Len(t, index.upserts, 1)
	call := index.upserts[0]
	assert.Equal(t, "proj", call.namespace)
	assert.Equal(t, result.IDs, call.ids)

	for i, frag := range call.fragments {
		assert.Equal(t, labeler.HashString(fmt.Sprintf("%d_report.txt", i)), call.ids[i])
		assert.Equal(t, i, frag.Metadata["chunk_id"])
		assert.Equal(t, "report.txt", frag.Metadata["name"])
		assert.Equal(t, result.Timestamp, frag.Metadata["timestamp"])
	}

	// downloaded artifact is cleaned up after extraction
	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIngest_PercentEncodedSourceName(t *testing.T) {
	samplesDir := t.TempDir()
	name := "建築基準法施行令.txt"
	require.NoError(t, os.WriteFile(filepath.Join(samplesDir, name), []byte("第一条です。"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "raw bytes")
	}))
	defer srv.Close()

	index := &recordingIndex{}
	orchestrator, _ := newOrchestrator(t, index, samplesDir)

	result, err := orchestrator.Ingest(context.Background(),
		srv.URL+"/files/%E5%BB%BA%E7%AF%89%E5%9F%BA%E6%BA%96%E6%B3%95%E6%96%BD%E8%A1%8C%E4%BB%A4.txt",
		"acme", "proj")
	require.NoError(t, err)
	assert.Equal(t, name, result.SourceName)
	require.NotEmpty(t, result.IDs)
	assert.Equal(t, labeler.HashString("0_"+name), result.IDs[0])
}

func TestIngest_UnknownDocumentYieldsNoFragments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "some binary")
	}))
	defer srv.Close()

	index := &recordingIndex{}
	orchestrator, _ := newOrchestrator(t, index, t.TempDir())

	result, err := orchestrator.Ingest(context.Background(), srv.URL+"/files/unknown.bin", "acme", "proj")
	require.NoError(t, err)
	assert.Empty(t, result.IDs)
	assert.Empty(t, index.upserts, "nothing to index, the store must not be called")
}

func TestIngest_DownloadFailureAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	index := &recordingIndex{}
	orchestrator, _ := newOrchestrator(t, index, t.TempDir())

	_, err := orchestrator.Ingest(context.Background(), srv.URL+"/files/report.txt", "acme", "proj")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to download")
	assert.Empty(t, index.upserts)
}

func TestIngest_UpsertRetriesThenSucceeds(t *testing.T) {
	content := "Sentence one. Sentence two, with a comma."
	samplesDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(samplesDir, "report.txt"), []byte(content), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, content)
	}))
	defer srv.Close()

	index := &recordingIndex{fail: 2}
	orchestrator, _ := newOrchestrator(t, index, samplesDir)

	result, err := orchestrator.Ingest(context.Background(), srv.URL+"/report.txt", "acme", "proj")
	require.NoError(t, err)
	require.Len(t, index.upserts, 1)
	assert.Equal(t, result.IDs, index.upserts[0].ids)
}

func TestIngest_ReingestSameSourceYieldsSameIDs(t *testing.T) {
	content := "Sentence one. Sentence two, with a comma."
	samplesDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(samplesDir, "report.txt"), []byte(content), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, content)
	}))
	defer srv.Close()

	index := &recordingIndex{}
	orchestrator, _ := newOrchestrator(t, index, samplesDir)

	first, err := orchestrator.Ingest(context.Background(), srv.URL+"/report.txt", "acme", "proj")
	require.NoError(t, err)
	second, err := orchestrator.Ingest(context.Background(), srv.URL+"/report.txt", "acme", "proj")
	require.NoError(t, err)

	// same ids on re-ingest means upserts overwrite instead of duplicating
	assert.Equal(t, first.IDs, second.IDs)
	assert.NotEqual(t, first.Timestamp, second.Timestamp)
}
