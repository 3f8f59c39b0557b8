package enhancer

import (
	"fmt"
	"strings"

	"github.com/Ayash-Bera/querygen/internal/models"
	"github.com/Ayash-Bera/querygen/internal/textproc"
)

const systemPrompt = "You write web search queries that find journalists, reporters, editors and other media contacts. " +
	"Answer with one query per line and nothing else."

// BuildPrompt renders the user prompt for one enhancement request.
func BuildPrompt(req EnhancementRequest) string {
	var b strings.Builder

	switch req.EnhancementType {
	case TypeExpansion:
		fmt.Fprintf(&b, "Write %d broader search queries related to %q. Use synonyms and adjacent roles or outlets.", req.TargetCount, req.BaseQuery)
	case TypeRefinement:
		fmt.Fprintf(&b, "Write %d more specific search queries that narrow %q to the most relevant media contacts.", req.TargetCount, req.BaseQuery)
	case TypeLocalization:
		fmt.Fprintf(&b, "Write %d search queries that adapt %q to local media in %s, naming regional outlets where useful.",
			req.TargetCount, req.BaseQuery, strings.Join(req.Criteria.Values(models.DimensionCountry), ", "))
	default:
		fmt.Fprintf(&b, "Write %d improved search queries for %q.", req.TargetCount, req.BaseQuery)
	}

	if criteria := describeCriteria(req.Criteria); criteria != "" {
		b.WriteString("\nCriteria: ")
		b.WriteString(criteria)
	}
	if req.DiversityBoost > 0 {
		fmt.Fprintf(&b, "\nDiversity: %.1f (0 = close variants, 1 = very different wording).", req.DiversityBoost)
	}
	return b.String()
}

func describeCriteria(c models.QueryCriteria) string {
	var parts []string
	for _, dim := range models.AllDimensions {
		if values := c.Values(dim); len(values) > 0 {
			parts = append(parts, fmt.Sprintf("%s: %s", dim, strings.Join(values, ", ")))
		}
	}
	return strings.Join(parts, "; ")
}

// ParseLines turns raw completion text into at most limit distinct queries,
// dropping list markers, quotes, blanks and the base query itself.
func ParseLines(text, baseQuery string, limit int) []string {
	base := textproc.Normalize(baseQuery)
	seen := make(map[string]struct{})
	var out []string

	for _, line := range strings.Split(text, "\n") {
		if limit > 0 && len(out) >= limit {
			break
		}
		line = textproc.CleanLine(line)
		if line == "" {
			continue
		}
		normalized := textproc.Normalize(line)
		if normalized == "" || normalized == base {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, line)
	}
	return out
}
