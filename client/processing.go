package client

import "context"

// ProcessingService triggers enrichment.
type ProcessingService struct {
	c *Client
}

// Run processes one batch. A zero size uses the server default.
func (s *ProcessingService) Run(ctx context.Context, size int) (*BatchReport, error) {
	var body any
	if size > 0 {
		body = map[string]int{"size": size}
	}
	var r BatchReport
	if err := s.c.post(ctx, "/processing/run", body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Stats returns queue counts by processing state.
func (s *ProcessingService) Stats(ctx context.Context) (map[string]int, error) {
	var resp struct {
		States map[string]int `json:"states"`
	}
	if err := s.c.get(ctx, "/processing/stats", nil, &resp); err != nil {
		return nil, err
	}
	return resp.States, nil
}
