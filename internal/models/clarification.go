package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ClarificationStatus is the lifecycle state of a clarification item.
type ClarificationStatus string

// Clarification statuses. Expired is terminal and currently never produced.
const (
	ClarificationPending  ClarificationStatus = "pending"
	ClarificationAsked    ClarificationStatus = "asked"
	ClarificationAnswered ClarificationStatus = "answered"
	ClarificationExpired  ClarificationStatus = "expired"
)

// Open reports whether the item can still be answered.
func (s ClarificationStatus) Open() bool {
	return s == ClarificationPending || s == ClarificationAsked
}

// Option values with fixed meaning.
const (
	OptionNewPerson = "new"
	OptionConfirm   = "confirm"
	OptionDismiss   = "dismiss"
)

// ClarificationOption is one selectable answer.
type ClarificationOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ContextType tags the payload carried by a clarification.
type ContextType string

// Known context types.
const (
	ContextPersonDisambiguation ContextType = "person_disambiguation"
	ContextPersonNewConfirm     ContextType = "person_new_confirm"
)

// ClarificationContext is the closed set of payloads a clarification can
// carry. Only types in this package implement it.
type ClarificationContext interface {
	ContextType() ContextType
	isClarificationContext()
}

// PersonDisambiguation asks which of several people a mention refers to.
type PersonDisambiguation struct {
	BlockType    NodeType `json:"block_type"`
	BlockID      string   `json:"block_id"`
	Mention      string   `json:"mention"`
	CandidateIDs []string `json:"candidate_ids"`
}

// ContextType implements ClarificationContext.
func (PersonDisambiguation) ContextType() ContextType { return ContextPersonDisambiguation }

func (PersonDisambiguation) isClarificationContext() {}

// PersonNewConfirm asks whether a candidate entity is a real person.
type PersonNewConfirm struct {
	BlockType NodeType `json:"block_type"`
	BlockID   string   `json:"block_id"`
	EntityID  string   `json:"entity_id"`
	Mention   string   `json:"mention"`
}

// ContextType implements ClarificationContext.
func (PersonNewConfirm) ContextType() ContextType { return ContextPersonNewConfirm }

func (PersonNewConfirm) isClarificationContext() {}

// ContextEnvelope serializes a ClarificationContext as {"type":..,"payload":..}.
type ContextEnvelope struct {
	Value ClarificationContext
}

type contextWire struct {
	Type    ContextType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalJSON implements json.Marshaler.
func (e ContextEnvelope) MarshalJSON() ([]byte, error) {
	if e.Value == nil {
		return []byte("null"), nil
	}

	payload, err := json.Marshal(e.Value)
	if err != nil {
		return nil, fmt.Errorf("marshalling clarification context: %w", err)
	}

	return json.Marshal(contextWire{Type: e.Value.ContextType(), Payload: payload})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *ContextEnvelope) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		e.Value = nil
		return nil
	}

	var w contextWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unmarshalling clarification context: %w", err)
	}

	switch w.Type {
	case ContextPersonDisambiguation:
		var c PersonDisambiguation
		if err := json.Unmarshal(w.Payload, &c); err != nil {
			return fmt.Errorf("unmarshalling %s: %w", w.Type, err)
		}
		e.Value = c
	case ContextPersonNewConfirm:
		var c PersonNewConfirm
		if err := json.Unmarshal(w.Payload, &c); err != nil {
			return fmt.Errorf("unmarshalling %s: %w", w.Type, err)
		}
		e.Value = c
	default:
		return fmt.Errorf("unknown clarification context type %q", w.Type)
	}

	return nil
}

// ClarificationItem is a queued question awaiting a human answer.
type ClarificationItem struct {
	ID          string                `json:"id"`
	Question    string                `json:"question"`
	Options     []ClarificationOption `json:"options"`
	Context     ContextEnvelope       `json:"context"`
	Status      ClarificationStatus   `json:"status"`
	DedupeKey   string                `json:"dedupe_key"`
	AnswerIndex *int                  `json:"answer_index,omitempty"`
	AnswerValue *string               `json:"answer_value,omitempty"`
	AskedAt     *time.Time            `json:"asked_at,omitempty"`
	AnsweredAt  *time.Time            `json:"answered_at,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// Option returns the 1-based option, or ErrOptionOutOfRange.
func (c *ClarificationItem) Option(index int) (ClarificationOption, error) {
	if index < 1 || index > len(c.Options) {
		return ClarificationOption{}, NewValidationError("option", ErrOptionOutOfRange)
	}

	return c.Options[index-1], nil
}

// ClarificationDigest is the result of moving pending items to asked.
type ClarificationDigest struct {
	Items []ClarificationItem `json:"items"`
	Text  string              `json:"text"`
}

// AnswerRequest is the payload for answering a clarification.
type AnswerRequest struct {
	Option int `json:"option"`
}
