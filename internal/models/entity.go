package models

import "time"

// EntityPerson is the only entity type currently resolved.
const EntityPerson = "person"

// MaxAliases caps the alias set of an entity.
const MaxAliases = 32

// Entity is a resolved or candidate real-world person.
type Entity struct {
	ID            string    `json:"id"`
	EntityType    string    `json:"entity_type"`
	CanonicalName string    `json:"canonical_name"`
	Aliases       []string  `json:"aliases"`
	Verified      bool      `json:"verified"`
	Confidence    float64   `json:"confidence"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Surfaces returns the canonical name followed by every alias.
func (e *Entity) Surfaces() []string {
	out := make([]string, 0, len(e.Aliases)+1)
	out = append(out, e.CanonicalName)

	return append(out, e.Aliases...)
}
