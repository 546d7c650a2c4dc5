package client

import (
	"context"
)

// SearchService runs hybrid retrieval.
type SearchService struct {
	c *Client
}

// Query searches user blocks, or all blocks when Scope is "all".
func (s *SearchService) Query(ctx context.Context, req *SearchRequest) ([]SearchResult, error) {
	var resp struct {
		Results []SearchResult `json:"results"`
		Total   int            `json:"total"`
	}
	if err := s.c.post(ctx, "/search", req, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}
