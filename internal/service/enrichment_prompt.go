package service

import (
	"fmt"
	"strings"

	"github.com/muahq/mua/internal/models"
)

const (
	subjectPreviewRunes   = 1200
	candidatePreviewRunes = 400
	queryRunes            = 1000
	enrichmentSchemaName  = "enrichment_result"
)

const enrichmentSystemPrompt = `You maintain a personal knowledge store. Given a subject (a note or an
ingested file) and related existing blocks, produce:
- summary: one or two sentences describing the subject;
- entities: full names of people the subject mentions;
- related: ids of the listed candidate blocks that are genuinely related;
- drafts: short derived blocks worth keeping (facts, follow-ups, decisions).
  Use kind "action_open" for open follow-ups, "action_closed" for completed
  ones, "note" otherwise. Each draft lists the people it is about and the
  candidate ids it relates to. Confidence is between 0 and 1.
Only use candidate ids exactly as given. Return an empty list when unsure.`

// enrichmentRequired lists the top-level keys every enrichment result carries.
var enrichmentRequired = []string{"summary", "entities", "related", "drafts"}

// enrichmentSchema is the strict response format for enrichment calls.
var enrichmentSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             enrichmentRequired,
	"properties": map[string]any{
		"summary":  map[string]any{"type": "string"},
		"entities": stringArraySchema(),
		"related":  stringArraySchema(),
		"drafts": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"kind", "content", "confidence", "entities", "related"},
				"properties": map[string]any{
					"kind": map[string]any{
						"type": "string",
						"enum": []string{string(models.KindNote), string(models.KindActionOpen), string(models.KindActionClosed)},
					},
					"content":    map[string]any{"type": "string"},
					"confidence": map[string]any{"type": "number"},
					"entities":   stringArraySchema(),
					"related":    stringArraySchema(),
				},
			},
		},
	},
}

func stringArraySchema() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

// enrichmentResult is the decoded completion.
type enrichmentResult struct {
	Summary  string   `json:"summary"`
	Entities []string `json:"entities"`
	Related  []string `json:"related"`
	Drafts   []draft  `json:"drafts"`
}

type draft struct {
	Kind       string   `json:"kind"`
	Content    string   `json:"content"`
	Confidence float64  `json:"confidence"`
	Entities   []string `json:"entities"`
	Related    []string `json:"related"`
}

// TokenCounter measures and trims prompt text.
type TokenCounter interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

// promptCandidate is one retrieved block offered to the model.
type promptCandidate struct {
	Key     string
	Kind    string
	Content string
}

// buildEnrichmentPrompt renders the user message, dropping trailing
// candidates and then shortening the subject until it fits budget tokens
// alongside the system prompt. It returns the candidates that were kept.
func buildEnrichmentPrompt(
	tok TokenCounter,
	budget int,
	subjectType models.SubjectType,
	subject string,
	candidates []promptCandidate,
) (string, []promptCandidate) {
	preview := truncateRunes(subject, subjectPreviewRunes)

	for i := range candidates {
		candidates[i].Content = truncateRunes(candidates[i].Content, candidatePreviewRunes)
	}

	if tok == nil || budget <= 0 {
		return renderPrompt(subjectType, preview, candidates), candidates
	}

	available := budget - tok.Count(enrichmentSystemPrompt)

	for {
		prompt := renderPrompt(subjectType, preview, candidates)
		if tok.Count(prompt) <= available || len(candidates) == 0 {
			break
		}

		candidates = candidates[:len(candidates)-1]
	}

	prompt := renderPrompt(subjectType, preview, candidates)
	if over := tok.Count(prompt) - available; over > 0 {
		keep := max(tok.Count(preview)-over, 0)
		preview = tok.Truncate(preview, keep)
		prompt = renderPrompt(subjectType, preview, candidates)
	}

	return prompt, candidates
}

func renderPrompt(subjectType models.SubjectType, preview string, candidates []promptCandidate) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Subject (%s):\n%s\n", subjectType, preview)

	if len(candidates) == 0 {
		b.WriteString("\nCandidates: none\n")
		return b.String()
	}

	b.WriteString("\nCandidates:\n")

	for _, c := range candidates {
		if c.Kind != "" {
			fmt.Fprintf(&b, "- id=%s kind=%s\n  %s\n", c.Key, c.Kind, oneLine(c.Content))
		} else {
			fmt.Fprintf(&b, "- id=%s\n  %s\n", c.Key, oneLine(c.Content))
		}
	}

	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}

	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}

	return s
}
