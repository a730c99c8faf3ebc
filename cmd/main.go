package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/tkhr/ragdex/internal/types"
	"github.com/tkhr/ragdex/pkg/chain"
	"github.com/tkhr/ragdex/pkg/chunker"
	cfgPkg "github.com/tkhr/ragdex/pkg/config"
	"github.com/tkhr/ragdex/pkg/extract"
	"github.com/tkhr/ragdex/pkg/fetch"
	"github.com/tkhr/ragdex/pkg/ingest"
	"github.com/tkhr/ragdex/pkg/llm"
	"github.com/tkhr/ragdex/pkg/pinecone"
	"github.com/tkhr/ragdex/pkg/registry"
	"github.com/tkhr/ragdex/pkg/store"
	"github.com/tkhr/ragdex/server"
)

type flags struct {
	configPath string
	ingestURL  string
	query      string
	client     string
	project    string
	fileName   string
	serve      bool
}

func main() {
	if err := run(parseFlags()); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "Path to config file")
	flag.StringVar(&f.ingestURL, "ingest", "", "URL of a document to ingest")
	flag.StringVar(&f.query, "query", "", "Question to ask about an ingested document")
	flag.StringVar(&f.client, "client", "", "Tenant/index name")
	flag.StringVar(&f.project, "project", "", "Project namespace")
	flag.StringVar(&f.fileName, "file", "", "Document name to query against")
	flag.BoolVar(&f.serve, "serve", false, "Run the HTTP server")
	flag.Parse()
	return f
}

func run(f flags) error {
	// .env is optional, real env vars win either way
	_ = godotenv.Load()

	cfg, err := cfgPkg.LoadConfig(f.configPath)
	if err != nil {
		return err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %v", e)
		}
		return fmt.Errorf("invalid configuration")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:   cfg.LLM.EmbeddingModel,
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
	})
	if err != nil {
		return err
	}

	service, err := newIndexService(cfg, embedder)
	if err != nil {
		return err
	}

	reg, err := registry.NewWithConfig(registry.RegistryConfig{
		Service:        service,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Cloud:          cfg.Store.Cloud,
		Region:         cfg.Store.Region,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	splitter, err := chunker.NewWithConfig(chunker.ChunkerConfig{
		Encoding:     cfg.Chunker.Encoding,
		ChunkSize:    cfg.Chunker.ChunkSize,
		ChunkOverlap: cfg.Chunker.ChunkOverlap,
	})
	if err != nil {
		return err
	}

	orchestrator, err := ingest.NewWithConfig(ingest.OrchestratorConfig{
		TmpDir:  cfg.Ingest.TmpDir,
		Fetcher: fetch.NewWithConfig(fetch.FetcherConfig{Logger: logger}),
		Extractor: extract.NewFixtureExtractor(extract.FixtureConfig{
			SamplesDir: cfg.Ingest.SamplesDir,
			Logger:     logger,
		}),
		Chunker:  splitter,
		Registry: reg,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	chatEngine, err := llm.NewWithConfig(llm.ChatConfig{
		Model:       cfg.LLM.ChatModel,
		Temperature: cfg.LLM.Temperature,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
	})
	if err != nil {
		return err
	}

	composer, err := chain.NewComposerWithConfig(chain.ComposerConfig{
		Registry:  reg,
		Generator: chatEngine,
		TopK:      cfg.Query.TopK,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	ctx := context.Background()

	switch {
	case f.ingestURL != "":
		return runIngest(ctx, orchestrator, f)
	case f.query != "":
		return runQuery(ctx, composer, cfg.Query.PromptPath, f)
	default:
		srv, err := server.NewWithConfig(server.Config{
			Orchestrator: orchestrator,
			Composer:     composer,
			PromptPath:   cfg.Query.PromptPath,
			Logger:       logger,
		})
		if err != nil {
			return err
		}
		return srv.ListenAndServe(cfg.Server.Port)
	}
}

func newIndexService(cfg *cfgPkg.Config, embedder types.Embedder) (types.IndexService, error) {
	switch cfg.Store.Backend {
	case "pgvector":
		return store.NewWithConfig(context.Background(), store.VectorStoreConfig{
			ConnString: cfg.Store.DatabaseURL,
			Embedder:   embedder,
		})
	default:
		return pinecone.NewClient(pinecone.Config{
			APIKey:   cfg.Store.PineconeAPIKey,
			Embedder: embedder,
		})
	}
}

func runIngest(ctx context.Context, orchestrator *ingest.Orchestrator, f flags) error {
	if f.client == "" || f.project == "" {
		return fmt.Errorf("-ingest requires -client and -project")
	}

	spinner := getSpinner("Ingesting document...")
	result, err := orchestrator.Ingest(ctx, f.ingestURL, f.client, f.project)
	spinner.Finish()
	if err != nil {
		return err
	}

	color.Green("✓ Indexed %d fragments of %s", len(result.IDs), result.SourceName)
	fmt.Println(result.Message)
	return nil
}

func runQuery(ctx context.Context, composer *chain.Composer, promptPath string, f flags) error {
	if f.client == "" || f.project == "" || f.fileName == "" {
		return fmt.Errorf("-query requires -client, -project and -file")
	}

	pipeline, err := composer.BuildPipeline(ctx, f.client, f.project, f.fileName,
		promptPath, []string{"context", "question"})
	if err != nil {
		return err
	}

	spinner := getSpinner("Searching and generating answer...")
	result, err := pipeline.Invoke(ctx, f.query)
	spinner.Finish()
	if err != nil {
		return err
	}

	answerPrompt := color.New(color.FgCyan).PrintfFunc()
	answerPrompt("\nAnswer: %s\n", result.Answer)
	color.Blue("\nContext used (%d fragments):", len(result.Context))
	for i, c := range result.Context {
		fmt.Printf("%d. %s\n", i+1, c)
	}
	return nil
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
