package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		APIKey         string  `yaml:"api_key"`
		BaseURL        string  `yaml:"base_url"`
		ChatModel      string  `yaml:"chat_model"`
		EmbeddingModel string  `yaml:"embedding_model"`
		Temperature    float64 `yaml:"temperature"`
	} `yaml:"llm"`

	Store struct {
		Backend        string `yaml:"backend"` // pinecone or pgvector
		PineconeAPIKey string `yaml:"pinecone_api_key"`
		Cloud          string `yaml:"cloud"`
		Region         string `yaml:"region"`
		DatabaseURL    string `yaml:"database_url"`
	} `yaml:"store"`

	Chunker struct {
		Encoding     string `yaml:"encoding"`
		ChunkSize    int    `yaml:"chunk_size"`
		ChunkOverlap int    `yaml:"chunk_overlap"`
	} `yaml:"chunker"`

	Ingest struct {
		TmpDir     string `yaml:"tmp_dir"`
		SamplesDir string `yaml:"samples_dir"`
	} `yaml:"ingest"`

	Query struct {
		TopK       int    `yaml:"top_k"`
		PromptPath string `yaml:"prompt_path"`
	} `yaml:"query"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/ragdex/config.yaml"),
			"/etc/ragdex/config.yaml",
		}
		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	config := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.ChatModel == "" {
		config.LLM.ChatModel = "gpt-4o-mini"
	}
	if config.LLM.EmbeddingModel == "" {
		config.LLM.EmbeddingModel = "text-embedding-3-small"
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}

	if config.Store.Backend == "" {
		config.Store.Backend = "pinecone"
	}
	if config.Store.Cloud == "" {
		config.Store.Cloud = "aws"
	}
	if config.Store.Region == "" {
		config.Store.Region = "us-east-1"
	}

	if config.Chunker.Encoding == "" {
		config.Chunker.Encoding = "cl100k_base"
	}
	if config.Chunker.ChunkSize == 0 {
		config.Chunker.ChunkSize = 8191
		// overlap defaults with the size; an explicit size keeps a zero
		// overlap as-is
		if config.Chunker.ChunkOverlap == 0 {
			config.Chunker.ChunkOverlap = 100
		}
	}

	if config.Ingest.TmpDir == "" {
		config.Ingest.TmpDir = filepath.Join(os.TempDir(), "ragdex")
	}
	if config.Ingest.SamplesDir == "" {
		config.Ingest.SamplesDir = "etc/samples"
	}

	if config.Query.TopK == 0 {
		config.Query.TopK = 3
	}
	if config.Query.PromptPath == "" {
		config.Query.PromptPath = "etc/query_prompt.txt"
	}

	if config.Server.Port == "" {
		config.Server.Port = "8080"
	}
}

func mergeWithEnv(config *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.LLM.APIKey = key
	}
	if model := os.Getenv("EMBEDDING_MODEL"); model != "" {
		config.LLM.EmbeddingModel = model
	}
	if key := os.Getenv("PINECONE_API_KEY"); key != "" {
		config.Store.PineconeAPIKey = key
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Store.DatabaseURL = dbURL
	}
}
