package store

import (
	"context"
	"fmt"

	"github.com/muahq/mua/internal/models"
)

// LinkStore handles typed links between blocks, artifacts, and entities.
type LinkStore struct {
	Base
}

// NewLinkStore creates a new LinkStore.
func NewLinkStore(base Base) *LinkStore {
	return &LinkStore{Base: base}
}

// UpsertLink inserts a link, ignoring an identical existing one. Reports
// whether a row was inserted.
func (s *LinkStore) UpsertLink(ctx context.Context, l models.Link) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.Pool.Exec(ctx,
		`INSERT INTO links (from_type, from_id, to_type, to_id, link_type, confidence)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT DO NOTHING`,
		l.FromType, l.FromID, l.ToType, l.ToID, l.LinkType, l.Confidence,
	)
	if err != nil {
		return false, fmt.Errorf("upserting link: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// DeleteLink removes a single link. Deleting a missing link is not an error.
func (s *LinkStore) DeleteLink(
	ctx context.Context,
	fromType models.NodeType, fromID string,
	toType models.NodeType, toID string,
	linkType models.LinkType,
) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.Pool.Exec(ctx,
		`DELETE FROM links
		 WHERE from_type = $1 AND from_id = $2 AND to_type = $3 AND to_id = $4 AND link_type = $5`,
		fromType, fromID, toType, toID, linkType,
	)
	if err != nil {
		return fmt.Errorf("deleting link: %w", err)
	}

	return nil
}

// LinksFrom returns outgoing links of the given types from a node. No types
// means every type.
func (s *LinkStore) LinksFrom(
	ctx context.Context,
	fromType models.NodeType, fromID string,
	linkTypes ...models.LinkType,
) ([]models.Link, error) {
	if !validID(fromID) {
		return nil, models.ErrNotFound
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	types := make([]string, len(linkTypes))
	for i, lt := range linkTypes {
		types[i] = string(lt)
	}

	rows, err := s.Pool.Query(ctx,
		`SELECT `+linkColumns+` FROM links
		 WHERE from_type = $1 AND from_id = $2
		   AND (cardinality($3::text[]) = 0 OR link_type = ANY($3))
		 ORDER BY created_at, to_id`,
		fromType, fromID, types,
	)
	if err != nil {
		return nil, fmt.Errorf("listing links: %w", err)
	}
	defer rows.Close()

	links := make([]models.Link, 0, 8)

	for rows.Next() {
		l, err := scanLink(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning link row: %w", err)
		}

		links = append(links, *l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating link rows: %w", err)
	}

	return links, nil
}
