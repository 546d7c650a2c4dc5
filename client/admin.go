package client

import "context"

// AdminService handles administrative operations.
type AdminService struct {
	c *Client
}

// BackfillEmbeddings queues embedding generation for blocks whose embedding
// is missing or stale. It returns the number of blocks queued.
func (s *AdminService) BackfillEmbeddings(ctx context.Context, limit int) (int, error) {
	path := "/admin/backfill-embeddings"
	if p := limitParams(limit); len(p) > 0 {
		path += "?" + p.Encode()
	}
	var resp struct {
		Queued int `json:"queued"`
	}
	if err := s.c.post(ctx, path, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Queued, nil
}
