package models

import "time"

// CRM limits.
const (
	DefaultCRMLimit = 10
	MaxCRMLimit     = 100
)

// CRMRequest filters and bounds a CRM summary.
type CRMRequest struct {
	Name  string `json:"name,omitempty"`
	Topic string `json:"topic,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// Validate applies defaults and bounds.
func (r *CRMRequest) Validate() error {
	if r.Limit <= 0 {
		r.Limit = DefaultCRMLimit
	}

	if r.Limit > MaxCRMLimit {
		r.Limit = MaxCRMLimit
	}

	if len(r.Name) > 255 {
		return ErrFieldTooLong("name", 255)
	}

	if len(r.Topic) > 255 {
		return ErrFieldTooLong("topic", 255)
	}

	return nil
}

// LinkedBlock is a block reached from an entity through a link.
type LinkedBlock struct {
	EntityID string   `json:"entity_id"`
	LinkType LinkType `json:"link_type"`
	Block    Block    `json:"block"`
}

// TimelineItem is one entry of a person's timeline.
type TimelineItem struct {
	Key        string     `json:"key"`
	AuthorType AuthorType `json:"author_type"`
	BlockID    string     `json:"block_id"`
	Content    string     `json:"content"`
	Kind       BlockKind  `json:"block_kind,omitempty"`
	LinkType   LinkType   `json:"link_type"`
	CreatedAt  time.Time  `json:"created_at"`
}

// PersonSummary is the CRM view of one person.
type PersonSummary struct {
	Entity           Entity         `json:"entity"`
	Timeline         []TimelineItem `json:"timeline"`
	DaysSinceContact *int           `json:"days_since_contact"`
	OpenLoops        int            `json:"open_loops"`
	RecentTopics     []string       `json:"recent_topics"`
	ROIScore         float64        `json:"roi_score"`
}
