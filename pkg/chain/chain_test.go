package chain_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkhr/ragdex/internal/models"
	"github.com/tkhr/ragdex/internal/types"
	"github.com/tkhr/ragdex/pkg/chain"
	"github.com/tkhr/ragdex/pkg/registry"
)

type rankedIndex struct {
	matches    []models.Match
	lastFilter map[string]string
	lastK      int
	searchErr  error
}

func (r *rankedIndex) Upsert(ctx context.Context, ns string, ids []string, frags []models.Fragment) error {
	return nil
}

func (r *rankedIndex) Search(ctx context.Context, ns, q string, k int, filter map[string]string) ([]models.Match, error) {
	r.lastFilter = filter
	r.lastK = k
	if r.searchErr != nil {
		return nil, r.searchErr
	}
	if k > len(r.matches) {
		k = len(r.matches)
	}
	return r.matches[:k], nil
}

type staticService struct{ index types.Index }

func (s *staticService) ListIndexes(ctx context.Context) ([]string, error) {
	return []string{"acme"}, nil
}

func (s *staticService) CreateIndex(ctx context.Context, name string, dim int, metric, cloud, region string) error {
	return nil
}

func (s *staticService) Connect(ctx context.Context, name string) (types.Index, error) {
	return s.index, nil
}

type echoGenerator struct {
	answer     string
	lastPrompt string
	calls      int
}

func (g *echoGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.calls++
	g.lastPrompt = prompt
	if g.answer == "" {
		return "", fmt.Errorf("generation shape failure")
	}
	return g.answer, nil
}

func promptFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "query_prompt.txt")
	require.NoError(t, os.WriteFile(path,
		[]byte("Context:\n{{.context}}\n\nQuestion: {{.question}}\n"), 0o644))
	return path
}

func newComposer(t *testing.T, index types.Index, gen types.Generator) *chain.Composer {
	t.Helper()
	reg, err := registry.NewWithConfig(registry.RegistryConfig{
		Service:        &staticService{index: index},
		EmbeddingModel: "text-embedding-3-small",
	})
	require.NoError(t, err)

	composer, err := chain.NewComposerWithConfig(chain.ComposerConfig{
		Registry:  reg,
		Generator: gen,
	})
	require.NoError(t, err)
	return composer
}

func TestInvoke_AnswerAndRankedContext(t *testing.T) {
	index := &rankedIndex{matches: []models.Match{
		{ID: "id-0", Score: 0.92, Content: "Fragment about safety."},
		{ID: "id-1", Score: 0.81, Content: "Fragment about permits."},
		{ID: "id-2", Score: 0.55, Content: "Fragment about zoning."},
	}}
	gen := &echoGenerator{answer: "Permits are covered in section two."}
	composer := newComposer(t, index, gen)

	pipeline, err := composer.BuildPipeline(context.Background(),
		"acme", "proj", "report.txt", promptFile(t), []string{"context", "question"})
	require.NoError(t, err)

	result, err := pipeline.Invoke(context.Background(), "what about permits?")
	require.NoError(t, err)

	assert.Equal(t, "Permits are covered in section two.", result.Answer)
	assert.Equal(t, []string{
		"Fragment about safety.",
		"Fragment about permits.",
		"Fragment about zoning.",
	}, result.Context)

	// retrieval is scoped to the pipeline's document
	assert.Equal(t, map[string]string{"name": "report.txt"}, index.lastFilter)
	assert.Equal(t, 3, index.lastK)

	// the rendered prompt carries the double-newline-joined context
	assert.Contains(t, gen.lastPrompt, "Fragment about safety.\n\nFragment about permits.")
	assert.Contains(t, gen.lastPrompt, "Question: what about permits?")
}

func TestBuildPipeline_MemoizedByFullKey(t *testing.T) {
	index := &rankedIndex{}
	composer := newComposer(t, index, &echoGenerator{answer: "ok"})
	prompt := promptFile(t)

	first, err := composer.BuildPipeline(context.Background(),
		"acme", "proj", "report.txt", prompt, []string{"context", "question"})
	require.NoError(t, err)
	second, err := composer.BuildPipeline(context.Background(),
		"acme", "proj", "report.txt", prompt, []string{"context", "question"})
	require.NoError(t, err)
	assert.Same(t, first, second)

	other, err := composer.BuildPipeline(context.Background(),
		"acme", "proj", "other.txt", prompt, []string{"context", "question"})
	require.NoError(t, err)
	assert.NotSame(t, first, other)
}

func TestBuildPipeline_RejectsUnbindableInputs(t *testing.T) {
	composer := newComposer(t, &rankedIndex{}, &echoGenerator{answer: "ok"})
	prompt := promptFile(t)

	_, err := composer.BuildPipeline(context.Background(),
		"acme", "proj", "report.txt", prompt, []string{"passage", "query"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")

	// order does not matter, only the names do
	_, err = composer.BuildPipeline(context.Background(),
		"acme", "proj", "report.txt", prompt, []string{"question", "context"})
	require.NoError(t, err)
}

func TestBuildPipeline_MissingPromptFile(t *testing.T) {
	composer := newComposer(t, &rankedIndex{}, &echoGenerator{answer: "ok"})
	_, err := composer.BuildPipeline(context.Background(),
		"acme", "proj", "report.txt", "/nonexistent/prompt.txt", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt template")
}

func TestInvoke_GenerationFailureSurfaces(t *testing.T) {
	index := &rankedIndex{matches: []models.Match{{ID: "id-0", Content: "ctx"}}}
	gen := &echoGenerator{} // empty answer forces a failure
	composer := newComposer(t, index, gen)

	pipeline, err := composer.BuildPipeline(context.Background(),
		"acme", "proj", "report.txt", promptFile(t), nil)
	require.NoError(t, err)

	_, err = pipeline.Invoke(context.Background(), "question?")
	require.Error(t, err)
	assert.Equal(t, 1, gen.calls)
}

func TestInvoke_RetrievalFailureSurfaces(t *testing.T) {
	index := &rankedIndex{searchErr: fmt.Errorf("index unavailable")}
	gen := &echoGenerator{answer: "never used"}
	composer := newComposer(t, index, gen)

	pipeline, err := composer.BuildPipeline(context.Background(),
		"acme", "proj", "report.txt", promptFile(t), nil)
	require.NoError(t, err)

	_, err = pipeline.Invoke(context.Background(), "question?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrieval failed")
	assert.Equal(t, 0, gen.calls)
}
