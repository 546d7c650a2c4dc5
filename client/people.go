package client

import (
	"context"
	"net/url"
	"strconv"
)

// PeopleService handles CRM summaries and entity lookup.
type PeopleService struct {
	c *Client
}

// CRM returns person summaries ranked by ROI score.
func (s *PeopleService) CRM(ctx context.Context, opts *CRMOptions) ([]PersonSummary, error) {
	params := url.Values{}
	if opts != nil {
		if opts.Name != "" {
			params.Set("name", opts.Name)
		}
		if opts.Topic != "" {
			params.Set("topic", opts.Topic)
		}
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
	}
	var resp struct {
		People []PersonSummary `json:"people"`
	}
	if err := s.c.get(ctx, "/crm", params, &resp); err != nil {
		return nil, err
	}
	return resp.People, nil
}

// Entities finds entities whose name or alias contains name.
func (s *PeopleService) Entities(ctx context.Context, name string, limit int) ([]Entity, error) {
	params := limitParams(limit)
	if name != "" {
		params.Set("name", name)
	}
	var resp struct {
		Entities []Entity `json:"entities"`
	}
	if err := s.c.get(ctx, "/entities", params, &resp); err != nil {
		return nil, err
	}
	return resp.Entities, nil
}
