package models

import "time"

// NodeType identifies the kind of record at either end of a link.
type NodeType string

// Link endpoint types.
const (
	NodeUserBlock NodeType = "user_block"
	NodeMuaBlock  NodeType = "mua_block"
	NodeArtifact  NodeType = "artifact"
	NodeEntity    NodeType = "entity"
)

// LinkType names the relationship a link expresses.
type LinkType string

// Link types.
const (
	LinkReferences     LinkType = "references"
	LinkAbout          LinkType = "about"
	LinkDerivedFrom    LinkType = "derived_from"
	LinkRelated        LinkType = "related"
	LinkSupersedes     LinkType = "supersedes"
	LinkMentions       LinkType = "mentions"
	LinkCandidateMatch LinkType = "candidate_match"
)

// Link is a typed, directed edge. The 5-tuple (FromType, FromID, ToType,
// ToID, LinkType) is unique.
type Link struct {
	FromType   NodeType  `json:"from_type"`
	FromID     string    `json:"from_id"`
	ToType     NodeType  `json:"to_type"`
	ToID       string    `json:"to_id"`
	LinkType   LinkType  `json:"link_type"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}
