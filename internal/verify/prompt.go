package verify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kalambet/sverka/internal/engine"
	"github.com/kalambet/sverka/internal/retrieval"
)

const expandPrompt = `Rephrase the following search query in three different ways for searching a knowledge base. Use synonyms and vary the sentence structure. Keep the language of the original query. Return only the three new versions, one per line, without numbering or commentary.

ORIGINAL QUERY: %q

REPHRASED QUERIES:`

const verdictPrompt = `You are an analyst assistant that answers strictly in JSON. Analyse the CONTEXT below and answer the QUESTION in the language of the question.

CONTEXT:
---
%s
---

QUESTION: %q

Reply with a JSON object only:
{
  "status": "one of: confirmed, not_found, partial, indirect, requires_confirmation",
  "answer": "a detailed answer based on the context, citing sources as [source N]"
}`

var verdictSchema = func() *engine.Schema {
	statuses := make([]string, len(Statuses))
	for i, s := range Statuses {
		statuses[i] = string(s)
	}
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"status": {Type: "string", Enum: statuses, Description: "verification outcome"},
			"answer": {Type: "string", Description: "answer citing [source N] tags"},
		},
		Required: []string{"status", "answer"},
	}
}()

// sourceTag renders "[source N: filename, page P, slide S]" with n/a for
// absent page or slide.
func sourceTag(n int, c retrieval.Chunk) string {
	return fmt.Sprintf("[source %d: %s, page %s, slide %s]", n, orNA(c.SourceID), numOrNA(c.Page), numOrNA(c.Slide))
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}

func numOrNA(n int) string {
	if n <= 0 {
		return "n/a"
	}
	return strconv.Itoa(n)
}

// evidenceContext renders each chunk under its source tag, numbered from 1.
func evidenceContext(chunks []retrieval.ScoredChunk) string {
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(sourceTag(i+1, c.Chunk))
		b.WriteByte('\n')
		b.WriteString(c.Content)
	}
	return b.String()
}
