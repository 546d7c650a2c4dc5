// Package models defines data types for the mua knowledge store.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// AuthorType distinguishes user-written blocks from system-derived ones.
type AuthorType string

// Author types.
const (
	AuthorUser AuthorType = "user"
	AuthorMua  AuthorType = "mua"
)

// Visibility controls whether a block may be shown outside the owner's views.
type Visibility string

// Visibility values.
const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// BlockKind classifies mua blocks.
type BlockKind string

// Block kinds.
const (
	KindNote         BlockKind = "note"
	KindActionOpen   BlockKind = "action_open"
	KindActionClosed BlockKind = "action_closed"
)

// Valid reports whether k is a known block kind.
func (k BlockKind) Valid() bool {
	switch k {
	case KindNote, KindActionOpen, KindActionClosed:
		return true
	}

	return false
}

// CaptureReason records why a user block version was written.
type CaptureReason string

// Capture reasons.
const (
	ReasonCreate   CaptureReason = "create"
	ReasonAutosave CaptureReason = "autosave"
	ReasonFinalize CaptureReason = "finalize"
)

// SourceRef is a typed pointer back to whatever produced a block.
type SourceRef struct {
	V      int            `json:"v"`
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Extras map[string]any `json:"extras,omitempty"`
}

// Block is a unit of stored content. User blocks carry Revision; mua blocks
// carry Kind, Confidence and DedupeKey.
type Block struct {
	ID          string         `json:"id"`
	AuthorType  AuthorType     `json:"author_type"`
	Content     string         `json:"content"`
	Visibility  Visibility     `json:"visibility"`
	Source      string         `json:"source"`
	SourceRef   *SourceRef     `json:"source_ref,omitempty"`
	Metadata    map[string]any `json:"metadata"`
	Kind        BlockKind      `json:"block_kind,omitempty"`
	Confidence  float64        `json:"confidence"`
	DedupeKey   *string        `json:"dedupe_key,omitempty"`
	ContentHash string         `json:"content_hash"`
	Revision    int            `json:"revision,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Key returns the retrieval merge key "authorType:id".
func (b *Block) Key() string {
	return string(b.AuthorType) + ":" + b.ID
}

// NodeType returns the link endpoint type for this block.
func (b *Block) NodeType() NodeType {
	if b.AuthorType == AuthorMua {
		return NodeMuaBlock
	}

	return NodeUserBlock
}

// UserBlockVersion is an append-only checkpoint of a user block's content.
type UserBlockVersion struct {
	BlockID       string        `json:"block_id"`
	VersionNo     int           `json:"version_no"`
	Content       string        `json:"content"`
	ContentHash   string        `json:"content_hash"`
	CaptureReason CaptureReason `json:"capture_reason"`
	CreatedAt     time.Time     `json:"created_at"`
}

// ContentHash returns the sha256 hex digest of the trimmed content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(content)))

	return hex.EncodeToString(sum[:])
}

// maxContentLen caps block bodies.
const maxContentLen = 200_000

// CreateUserBlockRequest is the payload for creating a user block.
type CreateUserBlockRequest struct {
	Content    string         `json:"content"`
	Visibility Visibility     `json:"visibility,omitempty"`
	Source     string         `json:"source,omitempty"`
	SourceRef  *SourceRef     `json:"source_ref,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Validate normalizes defaults and checks limits. Empty bodies are rejected
// after frontmatter is stripped, not here.
func (r *CreateUserBlockRequest) Validate() error {
	if len(r.Content) > maxContentLen {
		return ErrFieldTooLong("content", maxContentLen)
	}

	if r.Visibility == "" {
		r.Visibility = VisibilityPrivate
	}

	if r.Visibility != VisibilityPrivate && r.Visibility != VisibilityPublic {
		return NewValidationError("visibility", ErrValidation)
	}

	if r.Source == "" {
		r.Source = "manual"
	}

	return nil
}

// UpdateUserBlockRequest is the payload for re-saving a user block.
type UpdateUserBlockRequest struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Reason   CaptureReason  `json:"reason,omitempty"`
}

// Validate checks limits and defaults the capture reason to autosave.
func (r *UpdateUserBlockRequest) Validate() error {
	if len(r.Content) > maxContentLen {
		return ErrFieldTooLong("content", maxContentLen)
	}

	switch r.Reason {
	case "":
		r.Reason = ReasonAutosave
	case ReasonAutosave, ReasonFinalize:
	default:
		return NewValidationError("reason", ErrValidation)
	}

	return nil
}

// CreateMuaBlockRequest is the payload for creating a system-authored block.
type CreateMuaBlockRequest struct {
	Content    string         `json:"content"`
	Visibility Visibility     `json:"visibility,omitempty"`
	Source     string         `json:"source"`
	SourceRef  *SourceRef     `json:"source_ref,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Kind       BlockKind      `json:"block_kind,omitempty"`
	Confidence float64        `json:"confidence"`
	DedupeKey  string         `json:"dedupe_key,omitempty"`
}

// Validate trims content and checks required fields and ranges.
func (r *CreateMuaBlockRequest) Validate() error {
	r.Content = strings.TrimSpace(r.Content)
	if r.Content == "" {
		return NewValidationError("content", ErrEmptyContent)
	}

	if len(r.Content) > maxContentLen {
		return ErrFieldTooLong("content", maxContentLen)
	}

	if r.Kind == "" {
		r.Kind = KindNote
	}

	if !r.Kind.Valid() {
		return NewValidationError("block_kind", ErrInvalidKind)
	}

	if r.Visibility == "" {
		r.Visibility = VisibilityPrivate
	}

	if r.Source == "" {
		r.Source = "mua"
	}

	if r.Confidence < 0 || r.Confidence > 1 {
		return NewValidationError("confidence", ErrValidation)
	}

	if len(r.DedupeKey) > 255 {
		return ErrFieldTooLong("dedupe_key", 255)
	}

	return nil
}

// BlockUpdate carries the fields rewritten by a user block save. Nil
// Metadata keeps the stored metadata.
type BlockUpdate struct {
	Content          string
	Metadata         map[string]any
	Reason           CaptureReason
	ExpectedRevision int
}

// CheckpointFunc decides, with the block row locked, whether a new version is
// written. latest is nil when the block has no versions yet.
type CheckpointFunc func(latest *UserBlockVersion, newHash string) bool
