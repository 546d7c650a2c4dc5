package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// maxListLimit is a defense-in-depth cap on limit values for list queries.
const maxListLimit = 1000

// clampLimit bounds a caller-supplied limit to [1, maxListLimit].
func clampLimit(limit int) int {
	if limit <= 0 {
		return 1
	}

	if limit > maxListLimit {
		return maxListLimit
	}

	return limit
}

// formatEmbedding converts a float32 slice to the pgvector string format "[0.1,0.2,...]".
func formatEmbedding(embedding []float32) string {
	var b strings.Builder
	b.Grow(len(embedding)*8 + 2)
	b.WriteByte('[')

	for i, v := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}

		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}

	b.WriteByte(']')

	return b.String()
}

// marshalMap encodes a metadata map, treating nil as an empty object.
func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshalling metadata: %w", err)
	}

	return data, nil
}

// marshalNullable encodes v, returning nil for a nil pointer so the column is NULL.
func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshalling json column: %w", err)
	}

	return data, nil
}

// likePattern escapes LIKE metacharacters and wraps s in wildcards.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

	return "%" + r.Replace(s) + "%"
}
