package client

import (
	"encoding/json"
	"time"
)

// SourceRef points at the record a block was derived from.
type SourceRef struct {
	V      int            `json:"v"`
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Extras map[string]any `json:"extras,omitempty"`
}

// Block is a user-written or mua-derived block.
type Block struct {
	ID          string         `json:"id"`
	AuthorType  string         `json:"author_type"`
	Content     string         `json:"content"`
	Visibility  string         `json:"visibility"`
	Source      string         `json:"source"`
	SourceRef   *SourceRef     `json:"source_ref,omitempty"`
	Metadata    map[string]any `json:"metadata"`
	Kind        string         `json:"block_kind,omitempty"`
	Confidence  float64        `json:"confidence"`
	DedupeKey   *string        `json:"dedupe_key,omitempty"`
	ContentHash string         `json:"content_hash"`
	Revision    int            `json:"revision,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// BlockVersion is one saved checkpoint of a user block.
type BlockVersion struct {
	BlockID       string    `json:"block_id"`
	VersionNo     int       `json:"version_no"`
	Content       string    `json:"content"`
	ContentHash   string    `json:"content_hash"`
	CaptureReason string    `json:"capture_reason"`
	CreatedAt     time.Time `json:"created_at"`
}

// CreateBlockRequest creates a user block.
type CreateBlockRequest struct {
	Content    string         `json:"content"`
	Visibility string         `json:"visibility,omitempty"`
	Source     string         `json:"source,omitempty"`
	SourceRef  *SourceRef     `json:"source_ref,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// UpdateBlockRequest re-saves a user block. Reason is autosave or finalize.
type UpdateBlockRequest struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Reason   string         `json:"reason,omitempty"`
}

// SearchRequest is a hybrid retrieval query.
type SearchRequest struct {
	Query       string   `json:"query"`
	Scope       string   `json:"scope,omitempty"`
	Limit       int      `json:"limit,omitempty"`
	Offset      int      `json:"offset,omitempty"`
	ExcludeKeys []string `json:"exclude_keys,omitempty"`
}

// SearchResult is one fused retrieval hit.
type SearchResult struct {
	Key          string   `json:"key"`
	Block        Block    `json:"block"`
	Score        float64  `json:"score"`
	LexicalScore *float64 `json:"lexical_score,omitempty"`
	VectorScore  *float64 `json:"vector_score,omitempty"`
}

// ClarificationOption is one numbered answer.
type ClarificationOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ClarificationItem is a queued question.
type ClarificationItem struct {
	ID          string                `json:"id"`
	Question    string                `json:"question"`
	Options     []ClarificationOption `json:"options"`
	Context     json.RawMessage       `json:"context"`
	Status      string                `json:"status"`
	AnswerIndex *int                  `json:"answer_index,omitempty"`
	AnswerValue *string               `json:"answer_value,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

// Digest is the rendered list of newly asked questions.
type Digest struct {
	Items []ClarificationItem `json:"items"`
	Text  string              `json:"text"`
}

// Entity is a resolved person or other named thing.
type Entity struct {
	ID            string   `json:"id"`
	EntityType    string   `json:"entity_type"`
	CanonicalName string   `json:"canonical_name"`
	Aliases       []string `json:"aliases"`
	Verified      bool     `json:"verified"`
	Confidence    float64  `json:"confidence"`
}

// TimelineItem is one block in a person's timeline.
type TimelineItem struct {
	Key        string    `json:"key"`
	AuthorType string    `json:"author_type"`
	BlockID    string    `json:"block_id"`
	Content    string    `json:"content"`
	Kind       string    `json:"block_kind,omitempty"`
	LinkType   string    `json:"link_type"`
	CreatedAt  time.Time `json:"created_at"`
}

// PersonSummary is one CRM row.
type PersonSummary struct {
	Entity           Entity         `json:"entity"`
	Timeline         []TimelineItem `json:"timeline"`
	DaysSinceContact *int           `json:"days_since_contact"`
	OpenLoops        int            `json:"open_loops"`
	RecentTopics     []string       `json:"recent_topics"`
	ROIScore         float64        `json:"roi_score"`
}

// CRMOptions filters a CRM summary.
type CRMOptions struct {
	Name  string
	Topic string
	Limit int
}

// BatchReport counts the outcomes of one enrichment batch.
type BatchReport struct {
	Scanned   int `json:"scanned"`
	Processed int `json:"processed"`
	Errored   int `json:"errored"`
	Skipped   int `json:"skipped"`
}

// Artifact is an ingested file.
type Artifact struct {
	ID           string         `json:"id"`
	SourceType   string         `json:"source_type"`
	Title        string         `json:"title"`
	MimeType     string         `json:"mime_type"`
	ObjectKey    string         `json:"object_key"`
	Checksum     string         `json:"checksum"`
	SizeBytes    int64          `json:"size_bytes"`
	OriginalPath string         `json:"original_path"`
	IngestStatus string         `json:"ingest_status"`
	Description  string         `json:"description,omitempty"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

// IngestReport counts the outcomes of an intake scan.
type IngestReport struct {
	Scanned  int `json:"scanned"`
	Created  int `json:"created"`
	Existing int `json:"existing"`
	Requeued int `json:"requeued"`
	Skipped  int `json:"skipped"`
	Errored  int `json:"errored"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status              string  `json:"status"`
	Version             string  `json:"version"`
	Database            string  `json:"database"`
	Embeddings          string  `json:"embeddings"`
	EmbeddingDimensions int     `json:"embedding_dimensions"`
	SchemaVersion       int     `json:"schema_version"`
	WSClients           int     `json:"ws_clients"`
	UptimeSeconds       float64 `json:"uptime_seconds"`
}

// StatsResponse holds aggregate store counts.
type StatsResponse struct {
	UserBlocks         int `json:"user_blocks"`
	MuaBlocks          int `json:"mua_blocks"`
	Entities           int `json:"entities"`
	Links              int `json:"links"`
	Artifacts          int `json:"artifacts"`
	OpenClarifications int `json:"open_clarifications"`
	EmbeddingsComplete int `json:"embeddings_complete"`
}
