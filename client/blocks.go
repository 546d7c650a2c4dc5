package client

import (
	"context"
	"net/url"
	"strconv"
)

// BlockService handles user and mua block operations.
type BlockService struct {
	c *Client
}

type listBlocksResponse struct {
	Blocks  []Block `json:"blocks"`
	HasMore bool    `json:"has_more"`
}

// List returns user blocks, most recently updated first.
func (s *BlockService) List(ctx context.Context, limit, offset int) ([]Block, bool, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
	var resp listBlocksResponse
	if err := s.c.get(ctx, "/blocks", params, &resp); err != nil {
		return nil, false, err
	}
	return resp.Blocks, resp.HasMore, nil
}

// Create creates a user block.
func (s *BlockService) Create(ctx context.Context, req *CreateBlockRequest) (*Block, error) {
	var b Block
	if err := s.c.post(ctx, "/blocks", req, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Get returns a user block.
func (s *BlockService) Get(ctx context.Context, id string) (*Block, error) {
	var b Block
	if err := s.c.get(ctx, "/blocks/"+url.PathEscape(id), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetMua returns a mua-derived block.
func (s *BlockService) GetMua(ctx context.Context, id string) (*Block, error) {
	var b Block
	if err := s.c.get(ctx, "/mua-blocks/"+url.PathEscape(id), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Update re-saves a user block.
func (s *BlockService) Update(ctx context.Context, id string, req *UpdateBlockRequest) (*Block, error) {
	var b Block
	if err := s.c.put(ctx, "/blocks/"+url.PathEscape(id), req, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Versions returns a block's saved versions, newest first.
func (s *BlockService) Versions(ctx context.Context, id string) ([]BlockVersion, error) {
	var resp struct {
		Versions []BlockVersion `json:"versions"`
	}
	if err := s.c.get(ctx, "/blocks/"+url.PathEscape(id)+"/versions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Versions, nil
}
