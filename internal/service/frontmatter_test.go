package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrontmatter_Fenced(t *testing.T) {
	meta, body, err := ParseFrontmatter("---\ntitle: Weekly sync\ntags: [a, b]\n---\n\nNotes here\n")
	require.NoError(t, err)

	assert.Equal(t, "Weekly sync", meta["title"])
	assert.Equal(t, []any{"a", "b"}, meta["tags"])
	assert.Equal(t, "Notes here", body)
}

func TestParseFrontmatter_KeyValueLines(t *testing.T) {
	meta, body, err := ParseFrontmatter("project: apollo\npriority: 2\ndone: false\n\nBody text")
	require.NoError(t, err)

	assert.Equal(t, "apollo", meta["project"])
	assert.Equal(t, 2, meta["priority"])
	assert.Equal(t, false, meta["done"])
	assert.Equal(t, "Body text", body)
}

func TestParseFrontmatter_NoMetadata(t *testing.T) {
	meta, body, err := ParseFrontmatter("  Just a thought.  ")
	require.NoError(t, err)

	assert.Empty(t, meta)
	assert.Equal(t, "Just a thought.", body)
}

func TestParseFrontmatter_StopsAtNonMatchingLine(t *testing.T) {
	meta, body, err := ParseFrontmatter("mood: good\n2 things happened today")
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"mood": "good"}, meta)
	assert.Equal(t, "2 things happened today", body)
}

func TestParseFrontmatter_OnlyMetadata(t *testing.T) {
	_, body, err := ParseFrontmatter("---\ntitle: x\n---\n")
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestParseFrontmatter_BadYAML(t *testing.T) {
	_, _, err := ParseFrontmatter("---\n: : :\n  - [\n---\nbody")
	assert.Error(t, err)
}

func TestMergeMetadata(t *testing.T) {
	got := mergeMetadata(
		map[string]any{"a": 1, "b": 1},
		map[string]any{"b": 2},
		nil,
		map[string]any{"c": 3},
	)

	assert.Equal(t, map[string]any{"a": 1, "b": 2, "c": 3}, got)
}
