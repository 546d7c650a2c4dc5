package client

import (
	"context"
	"net/url"
	"strconv"
)

// ClarificationService handles the question queue.
type ClarificationService struct {
	c *Client
}

func limitParams(limit int) url.Values {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	return params
}

// List returns open questions without marking them asked.
func (s *ClarificationService) List(ctx context.Context, limit int) ([]ClarificationItem, error) {
	var resp struct {
		Items []ClarificationItem `json:"items"`
	}
	if err := s.c.get(ctx, "/clarifications", limitParams(limit), &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Digest marks pending questions asked and returns them rendered.
func (s *ClarificationService) Digest(ctx context.Context, limit int) (*Digest, error) {
	path := "/clarifications/digest"
	if p := limitParams(limit); len(p) > 0 {
		path += "?" + p.Encode()
	}
	var d Digest
	if err := s.c.post(ctx, path, nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Answer resolves a question with a 1-based option.
func (s *ClarificationService) Answer(ctx context.Context, id string, option int) (*ClarificationItem, error) {
	var item ClarificationItem
	body := map[string]int{"option": option}
	if err := s.c.post(ctx, "/clarifications/"+url.PathEscape(id)+"/answer", body, &item); err != nil {
		return nil, err
	}
	return &item, nil
}
