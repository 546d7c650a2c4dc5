package models

import "time"

// SubjectType names what a processing row tracks.
type SubjectType string

// Subject types.
const (
	SubjectUserBlock SubjectType = "user_block"
	SubjectArtifact  SubjectType = "artifact"
)

// NodeType returns the link endpoint type for the subject.
func (s SubjectType) NodeType() NodeType {
	if s == SubjectArtifact {
		return NodeArtifact
	}

	return NodeUserBlock
}

// ProcessingStatus is the enrichment state of a subject.
type ProcessingStatus string

// Processing states.
const (
	StatePending    ProcessingStatus = "pending"
	StateProcessing ProcessingStatus = "processing"
	StateProcessed  ProcessingStatus = "processed"
	StateError      ProcessingStatus = "error"
)

// ProcessingState is the enrichment record for one subject.
type ProcessingState struct {
	SubjectType       SubjectType      `json:"subject_type"`
	SubjectID         string           `json:"subject_id"`
	State             ProcessingStatus `json:"state"`
	Attempts          int              `json:"attempts"`
	InputHash         string           `json:"input_hash"`
	LastProcessedHash *string          `json:"last_processed_hash,omitempty"`
	LastError         *string          `json:"last_error,omitempty"`
	LastAnalysis      *string          `json:"last_analysis,omitempty"`
	ClaimToken        *string          `json:"-"`
	ClaimedAt         *time.Time       `json:"claimed_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// BatchReport aggregates the outcome of one enrichment batch.
type BatchReport struct {
	Scanned   int `json:"scanned"`
	Processed int `json:"processed"`
	Errored   int `json:"errored"`
	Skipped   int `json:"skipped"`
}
