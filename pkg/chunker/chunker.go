// Package chunker splits raw document text into ordered, overlapping
// fragments. Separators run from coarsest (paragraph break) to finest,
// including Japanese full-width punctuation, with a character-level split as
// the last resort. Size is measured in tokens of the embedding model's
// encoding, not in characters.
package chunker

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/tkhr/ragdex/internal/models"
)

// DefaultSeparators layers paragraph and line breaks over Western and
// East-Asian sentence/clause punctuation. The empty string means "split
// anywhere" and keeps indivisible oversized units within the size bound.
var DefaultSeparators = []string{
	"\n\n",
	"\n",
	" ",
	".",
	",",
	"​", // zero-width space
	"，", // fullwidth comma
	"、", // ideographic comma
	"．", // fullwidth full stop
	"。", // ideographic full stop
	"",
}

type ChunkerConfig struct {
	// Encoding names the tokenizer; cl100k_base matches the 3rd-gen OpenAI
	// embedding models.
	Encoding     string
	ChunkSize    int
	ChunkOverlap int
	Separators   []string

	// LenFunc overrides the tokenizer-based measure, mainly for tests.
	LenFunc func(string) int
}

type Chunker struct {
	config   ChunkerConfig
	splitter textsplitter.RecursiveCharacter
}

func NewWithConfig(config ChunkerConfig) (*Chunker, error) {
	if config.Encoding == "" {
		config.Encoding = "cl100k_base"
	}
	if config.ChunkSize == 0 {
		config.ChunkSize = 8191 // input limit of the 3rd-gen OpenAI embedding models
		// the overlap default only pairs with the default size; an explicit
		// size keeps whatever overlap was given, including zero
		if config.ChunkOverlap == 0 {
			config.ChunkOverlap = 100
		}
	}
	if len(config.Separators) == 0 {
		config.Separators = DefaultSeparators
	}
	if config.ChunkOverlap < 0 {
		return nil, fmt.Errorf("chunk overlap %d must not be negative", config.ChunkOverlap)
	}
	if config.ChunkOverlap >= config.ChunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d",
			config.ChunkOverlap, config.ChunkSize)
	}

	lenFunc := config.LenFunc
	if lenFunc == nil {
		enc, err := tiktoken.GetEncoding(config.Encoding)
		if err != nil {
			return nil, fmt.Errorf("failed to load encoding %q: %w", config.Encoding, err)
		}
		lenFunc = func(s string) int {
			return len(enc.Encode(s, nil, nil))
		}
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(config.ChunkSize),
		textsplitter.WithChunkOverlap(config.ChunkOverlap),
		textsplitter.WithSeparators(config.Separators),
		textsplitter.WithLenFunc(lenFunc),
	)

	return &Chunker{config: config, splitter: splitter}, nil
}

// Chunk splits doc into fragments in document order. Empty fragments are
// dropped; each fragment records its start offset in the source text.
func (c *Chunker) Chunk(doc models.Document) ([]models.Fragment, error) {
	pieces, err := c.splitter.SplitText(doc.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to split content: %w", err)
	}

	fragments := make([]models.Fragment, 0, len(pieces))
	searchFrom := 0
	for _, piece := range pieces {
		if strings.TrimSpace(piece) == "" {
			continue
		}
		offset := strings.Index(doc.Content[searchFrom:], piece)
		if offset >= 0 {
			offset += searchFrom
			// overlapping chunks may share a prefix, so advance past the
			// current start only
			searchFrom = offset + 1
		}
		fragments = append(fragments, models.Fragment{
			Content:     piece,
			Metadata:    map[string]interface{}{},
			StartOffset: offset,
		})
	}
	return fragments, nil
}
