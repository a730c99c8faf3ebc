// Package extract resolves a document name to its raw text. It stands in
// for a real OCR service: known names map to fixture files under a samples
// directory, and unknown names yield an empty document by design.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/tkhr/ragdex/internal/models"
)

// ocrPayload is the shape of the stored OCR sample documents.
type ocrPayload struct {
	AnalyzeResult struct {
		Content string `json:"content"`
	} `json:"analyzeResult"`
}

type FixtureConfig struct {
	// SamplesDir holds the fixture files. A name maps to the file with the
	// same base name; PDFs map to their pre-extracted .json OCR payload.
	SamplesDir string
	Logger     *slog.Logger
}

type FixtureExtractor struct {
	config FixtureConfig
	logger *slog.Logger
}

func NewFixtureExtractor(config FixtureConfig) *FixtureExtractor {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &FixtureExtractor{config: config, logger: config.Logger}
}

// Extract returns the text for name. Supported fixture kinds: .txt read
// verbatim, .html/.htm reduced to visible text, .pdf resolved via a .json
// OCR payload next to it. Anything else is an empty document.
func (e *FixtureExtractor) Extract(ctx context.Context, name string) (models.Document, error) {
	var (
		content string
		err     error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt":
		content, err = e.readText(name)
	case ".html", ".htm":
		content, err = e.readHTML(name)
	case ".pdf":
		content, err = e.readOCRPayload(name)
	default:
		e.logger.Debug("no fixture kind for document, returning empty content", "name", name)
	}
	if err != nil {
		return models.Document{}, err
	}

	e.logger.Info("extracted document", "name", name, "bytes", len(content))
	return models.Document{Content: content, Metadata: map[string]interface{}{}}, nil
}

func (e *FixtureExtractor) readText(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(e.config.SamplesDir, filepath.Base(name)))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read sample %q: %w", name, err)
	}
	return string(data), nil
}

func (e *FixtureExtractor) readHTML(name string) (string, error) {
	f, err := os.Open(filepath.Join(e.config.SamplesDir, filepath.Base(name)))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read sample %q: %w", name, err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", fmt.Errorf("failed to parse html sample %q: %w", name, err)
	}
	doc.Find("script, style").Remove()
	return strings.TrimSpace(doc.Text()), nil
}

func (e *FixtureExtractor) readOCRPayload(name string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	data, err := os.ReadFile(filepath.Join(e.config.SamplesDir, base+".json"))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read OCR sample for %q: %w", name, err)
	}

	var payload ocrPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("failed to parse OCR sample for %q: %w", name, err)
	}
	return payload.AnalyzeResult.Content, nil
}
