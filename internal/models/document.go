package models

// Document is the raw output of the extraction step: the full text of one
// source plus free-form metadata.
type Document struct {
	Content  string
	Metadata map[string]interface{}
}

// Fragment is one bounded slice of a document, the unit of embedding and
// retrieval. Metadata carries name, chunk_id and timestamp once labeled;
// StartOffset is the byte offset of the fragment in the source text.
type Fragment struct {
	Content     string
	Metadata    map[string]interface{}
	StartOffset int
}

// IngestResult summarizes one completed ingestion.
type IngestResult struct {
	IDs        []string `json:"ids"`
	Timestamp  int64    `json:"timestamp"`
	SourceName string   `json:"file_name"`
	Message    string   `json:"details"`
}

// QueryResult is the answer to one question plus the fragment contents that
// grounded it, in retrieval rank order.
type QueryResult struct {
	Answer  string   `json:"answer"`
	Context []string `json:"context"`
}

// Match is a single similarity-search hit.
type Match struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]interface{}
}
