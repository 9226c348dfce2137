package retrieval

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/failrag/internal/domain"
)

const entryDivider = "\n---\n\n"

// Format renders hits as a markdown context block. Returns "" for no hits.
func Format(hits []domain.SearchHit, queryType domain.QueryType, mode domain.Mode) string {
	if len(hits) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Relevant Documentation (")
	if queryType == domain.QueryFailureAnalysis {
		b.WriteString("for this failure")
	} else {
		b.WriteString("for your question")
	}
	b.WriteString(")\n\n")

	for i, hit := range hits {
		if i > 0 {
			b.WriteString(entryDivider)
		}
		writeEntry(&b, i+1, hit, mode)
	}
	return b.String()
}

func writeEntry(b *strings.Builder, n int, hit domain.SearchHit, mode domain.Mode) {
	doc := hit.Document()
	fmt.Fprintf(b, "### %d. %s (similarity: %.3f)\n", n, doc.Title, hit.Score())

	if mode == domain.ModeDetailed {
		var meta []string
		if c := strings.TrimSpace(doc.Category); c != "" {
			meta = append(meta, "Category: "+c)
		}
		if t := strings.TrimSpace(doc.Tags); t != "" {
			meta = append(meta, "Tags: "+t)
		}
		if len(meta) > 0 {
			b.WriteString(strings.Join(meta, " | "))
			b.WriteString("\n")
		}
	}

	writeSection(b, "Summary", doc.Summary)
	writeSection(b, "Root Causes", doc.RootCauses)
	writeSection(b, "Resolution Steps", doc.ResolutionSteps)
}

func writeSection(b *strings.Builder, label, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	fmt.Fprintf(b, "**%s:** %s\n", label, body)
}
