package store

import (
	"context"
	"fmt"

	"github.com/muahq/mua/internal/models"
)

// CRMStore serves the person aggregation reads.
type CRMStore struct {
	Base
}

// NewCRMStore creates a new CRMStore.
func NewCRMStore(base Base) *CRMStore {
	return &CRMStore{Base: base}
}

// LinkedBlocks returns every user or mua block linked to one of entityIDs by
// one of linkTypes, newest first. A block linked to the same entity by
// several types appears once per link.
func (s *CRMStore) LinkedBlocks(
	ctx context.Context,
	entityIDs []string,
	linkTypes []models.LinkType,
) ([]models.LinkedBlock, error) {
	if len(entityIDs) == 0 {
		return []models.LinkedBlock{}, nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	types := make([]string, len(linkTypes))
	for i, lt := range linkTypes {
		types[i] = string(lt)
	}

	rows, err := s.Pool.Query(ctx,
		`SELECT `+prefixedBlockColumns+`, l.to_id::text, l.link_type
		 FROM links l
		 JOIN all_blocks b
		   ON b.id = l.from_id
		  AND ((l.from_type = 'user_block' AND b.author_type = 'user')
		       OR (l.from_type = 'mua_block' AND b.author_type = 'mua'))
		 WHERE l.to_type = 'entity'
		   AND l.to_id::text = ANY($1::text[])
		   AND l.link_type = ANY($2::text[])
		 ORDER BY b.created_at DESC, b.id`,
		entityIDs, types,
	)
	if err != nil {
		return nil, fmt.Errorf("listing linked blocks: %w", err)
	}
	defer rows.Close()

	linked := make([]models.LinkedBlock, 0, 32)

	for rows.Next() {
		var lb models.LinkedBlock

		b, err := scanBlock(rows.Scan, &lb.EntityID, &lb.LinkType)
		if err != nil {
			return nil, fmt.Errorf("scanning linked block: %w", err)
		}

		lb.Block = *b
		linked = append(linked, lb)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating linked blocks: %w", err)
	}

	return linked, nil
}
