package models

import "time"

// IngestStatus tracks an artifact through extraction and enrichment.
type IngestStatus string

// Ingest statuses.
const (
	IngestParsed IngestStatus = "parsed"
	IngestLinked IngestStatus = "linked"
	IngestError  IngestStatus = "error"
)

// MaxArtifactText caps extracted artifact text, in runes.
const MaxArtifactText = 200_000

// Artifact is an ingested file with extracted text and a content checksum.
type Artifact struct {
	ID           string         `json:"id"`
	SourceType   string         `json:"source_type"`
	Title        string         `json:"title"`
	MimeType     string         `json:"mime_type"`
	TextContent  *string        `json:"text_content,omitempty"`
	ObjectKey    string         `json:"object_key"`
	Checksum     string         `json:"checksum"`
	SizeBytes    int64          `json:"size_bytes"`
	OriginalPath string         `json:"original_path"`
	IngestStatus IngestStatus   `json:"ingest_status"`
	Description  string         `json:"description,omitempty"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// EnrichmentText returns the text fed to the enrichment pipeline.
func (a *Artifact) EnrichmentText() string {
	if a.TextContent == nil || *a.TextContent == "" {
		return a.Title
	}

	return a.Title + "\n\n" + *a.TextContent
}

// IngestReport aggregates the outcome of one intake scan.
type IngestReport struct {
	Scanned  int `json:"scanned"`
	Created  int `json:"created"`
	Existing int `json:"existing"`
	Requeued int `json:"requeued"`
	Skipped  int `json:"skipped"`
	Errored  int `json:"errored"`
}
