// Package chain composes retrieval and answer generation into per-document
// pipelines. Building a pipeline loads the prompt template and resolves the
// tenant's index handle, so built pipelines are memoized by their full key.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"github.com/tkhr/ragdex/internal/cache"
	"github.com/tkhr/ragdex/internal/models"
	"github.com/tkhr/ragdex/internal/types"
	"github.com/tkhr/ragdex/pkg/registry"
)

const (
	contextInput  = "context"
	questionInput = "question"
)

type ComposerConfig struct {
	Registry  *registry.Registry
	Generator types.Generator
	TopK      int
	Capacity  int
	Logger    *slog.Logger
}

type pipelineKey struct {
	tenant       string
	project      string
	source       string
	promptPath   string
	promptInputs string
}

type Composer struct {
	config    ComposerConfig
	pipelines *cache.Cache[pipelineKey, *Pipeline]
	logger    *slog.Logger
}

func NewComposerWithConfig(config ComposerConfig) (*Composer, error) {
	if config.Registry == nil || config.Generator == nil {
		return nil, fmt.Errorf("composer requires a registry and a generator")
	}
	if config.TopK == 0 {
		config.TopK = 3
	}
	if config.Capacity == 0 {
		config.Capacity = 124
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Composer{
		config:    config,
		pipelines: cache.New[pipelineKey, *Pipeline](config.Capacity),
		logger:    config.Logger,
	}, nil
}

// BuildPipeline returns the pipeline for (tenant, project, sourceName,
// promptPath, promptInputs), building and caching it on first use. Cached
// pipelines are never invalidated mid-process.
func (c *Composer) BuildPipeline(ctx context.Context, tenant, project, sourceName, promptPath string, promptInputs []string) (*Pipeline, error) {
	key := pipelineKey{
		tenant:       tenant,
		project:      project,
		source:       sourceName,
		promptPath:   promptPath,
		promptInputs: strings.Join(promptInputs, "\x00"),
	}
	return c.pipelines.GetOrCreate(key, func() (*Pipeline, error) {
		index, err := c.config.Registry.GetOrCreateIndex(ctx, tenant)
		if err != nil {
			return nil, err
		}

		data, err := os.ReadFile(promptPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt template: %w", err)
		}
		inputs := promptInputs
		if len(inputs) == 0 {
			inputs = []string{contextInput, questionInput}
		} else if !bindableInputs(inputs) {
			return nil, fmt.Errorf("prompt inputs %v not supported, the pipeline binds %q and %q",
				inputs, contextInput, questionInput)
		}
		template := prompts.NewPromptTemplate(string(data), inputs)

		c.logger.Debug("built pipeline",
			"tenant", tenant, "project", project, "source", sourceName)
		return &Pipeline{
			index:     index,
			namespace: project,
			source:    sourceName,
			topK:      c.config.TopK,
			template:  template,
			generator: c.config.Generator,
			logger:    c.logger,
		}, nil
	})
}

// bindableInputs reports whether Invoke can supply every named input. The
// pipeline only has the retrieved context and the question to offer.
func bindableInputs(inputs []string) bool {
	if len(inputs) != 2 {
		return false
	}
	return (inputs[0] == contextInput && inputs[1] == questionInput) ||
		(inputs[0] == questionInput && inputs[1] == contextInput)
}

// Pipeline answers questions about one document. Immutable once built.
type Pipeline struct {
	index     types.Index
	namespace string
	source    string
	topK      int
	template  prompts.PromptTemplate
	generator types.Generator
	logger    *slog.Logger
}

// Invoke retrieves the top-k fragments of the pipeline's document, feeds
// them with the question through the prompt template into the generator, and
// returns the answer plus the raw fragment contents in retrieval rank order.
func (p *Pipeline) Invoke(ctx context.Context, question string) (models.QueryResult, error) {
	matches, err := p.index.Search(ctx, p.namespace, question, p.topK,
		map[string]string{"name": p.source})
	if err != nil {
		return models.QueryResult{}, fmt.Errorf("retrieval failed: %w", err)
	}

	contexts := make([]string, len(matches))
	for i, m := range matches {
		contexts[i] = m.Content
	}

	prompt, err := p.template.Format(map[string]any{
		contextInput:  strings.Join(contexts, "\n\n"),
		questionInput: question,
	})
	if err != nil {
		return models.QueryResult{}, fmt.Errorf("failed to render prompt: %w", err)
	}

	answer, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return models.QueryResult{}, err
	}
	if answer == "" {
		return models.QueryResult{}, fmt.Errorf("generation returned no answer")
	}

	p.logger.Debug("answered question", "source", p.source, "contexts", len(contexts))
	return models.QueryResult{Answer: answer, Context: contexts}, nil
}
