package service

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelim = "---"

var frontmatterKey = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_-]*):(?:\s+(.*))?$`)

// ParseFrontmatter splits leading metadata from a block body. A block fenced
// by "---" lines is decoded as YAML; otherwise leading "key: value" lines up
// to the first blank or non-matching line are taken, values decoded as YAML
// scalars. The returned body is trimmed.
func ParseFrontmatter(content string) (map[string]any, string, error) {
	text := strings.TrimPrefix(content, "\ufeff")
	lines := strings.Split(text, "\n")

	if len(lines) > 0 && strings.TrimSpace(lines[0]) == frontmatterDelim {
		for i := 1; i < len(lines); i++ {
			if strings.TrimSpace(lines[i]) != frontmatterDelim {
				continue
			}

			meta := map[string]any{}
			if err := yaml.Unmarshal([]byte(strings.Join(lines[1:i], "\n")), &meta); err != nil {
				return nil, "", fmt.Errorf("parsing frontmatter: %w", err)
			}

			return meta, strings.TrimSpace(strings.Join(lines[i+1:], "\n")), nil
		}

		// Unterminated fence: treat everything as body.
		return map[string]any{}, strings.TrimSpace(text), nil
	}

	meta := map[string]any{}
	n := 0

	for ; n < len(lines); n++ {
		line := strings.TrimRight(lines[n], "\r")
		if strings.TrimSpace(line) == "" {
			break
		}

		m := frontmatterKey.FindStringSubmatch(line)
		if m == nil {
			break
		}

		meta[m[1]] = scalar(strings.TrimSpace(m[2]))
	}

	return meta, strings.TrimSpace(strings.Join(lines[n:], "\n")), nil
}

func scalar(raw string) any {
	if raw == "" {
		return ""
	}

	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}

	switch v.(type) {
	case map[string]any, []any:
		return raw
	}

	return v
}

// mergeMetadata overlays layers left to right; later keys win.
func mergeMetadata(layers ...map[string]any) map[string]any {
	out := map[string]any{}

	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}

	return out
}
