package client

import (
	"context"
	"net/url"
)

// ArtifactService lists artifacts and triggers intake scans.
type ArtifactService struct {
	c *Client
}

// List returns artifacts, optionally filtered by ingest status.
func (s *ArtifactService) List(ctx context.Context, status string, limit int) ([]Artifact, error) {
	params := limitParams(limit)
	if status != "" {
		params.Set("status", status)
	}
	var resp struct {
		Artifacts []Artifact `json:"artifacts"`
	}
	if err := s.c.get(ctx, "/artifacts", params, &resp); err != nil {
		return nil, err
	}
	return resp.Artifacts, nil
}

// Get returns one artifact.
func (s *ArtifactService) Get(ctx context.Context, id string) (*Artifact, error) {
	var a Artifact
	if err := s.c.get(ctx, "/artifacts/"+url.PathEscape(id), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Ingest scans the server's intake directory.
func (s *ArtifactService) Ingest(ctx context.Context, sourceType string) (*IngestReport, error) {
	var r IngestReport
	if err := s.c.post(ctx, "/artifacts/ingest", map[string]string{"source_type": sourceType}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
