package models

// SearchScope restricts which author types a search covers.
type SearchScope string

// Search scopes.
const (
	ScopeUser SearchScope = "user"
	ScopeAll  SearchScope = "all"
)

// Search limits.
const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 100
)

// SearchRequest is the input to hybrid retrieval.
type SearchRequest struct {
	Query       string      `json:"query"`
	Scope       SearchScope `json:"scope"`
	Limit       int         `json:"limit"`
	Offset      int         `json:"offset"`
	ExcludeKeys []string    `json:"exclude_keys,omitempty"`
}

// Validate applies defaults and bounds.
func (r *SearchRequest) Validate() error {
	switch r.Scope {
	case "":
		r.Scope = ScopeAll
	case ScopeUser, ScopeAll:
	default:
		return NewValidationError("scope", ErrInvalidScope)
	}

	if r.Limit <= 0 {
		r.Limit = DefaultSearchLimit
	}

	if r.Limit > MaxSearchLimit {
		r.Limit = MaxSearchLimit
	}

	if r.Offset < 0 {
		r.Offset = 0
	}

	if len(r.Query) > 2000 {
		return ErrFieldTooLong("query", 2000)
	}

	return nil
}

// IncludeMua reports whether mua blocks are in scope.
func (s SearchScope) IncludeMua() bool { return s != ScopeUser }

// ScoredBlock pairs a block with a single-pass score.
type ScoredBlock struct {
	Block
	Score float64 `json:"score"`
}

// SearchResult is one fused retrieval hit.
type SearchResult struct {
	Key          string   `json:"key"`
	Block        Block    `json:"block"`
	Score        float64  `json:"score"`
	LexicalScore *float64 `json:"lexical_score,omitempty"`
	VectorScore  *float64 `json:"vector_score,omitempty"`
}
