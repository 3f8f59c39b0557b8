// Package textproc holds the token/keyword heuristics shared by the template
// engine, the scorer and the deduplicator.
package textproc

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

var (
	multiWhitespace = regexp.MustCompile(`\s+`)
	listMarker      = regexp.MustCompile(`^\s*(?:[-*•>]+|\(?\d+[.):]|[a-zA-Z][.)])\s+`)
)

var stopwords = toSet(
	"a", "an", "the", "and", "or", "not", "of", "for", "in", "on", "at", "to", "by",
	"with", "from", "about", "into", "as", "is", "are", "was", "were", "be", "been",
	"being", "have", "has", "had", "will", "would", "could", "should", "may", "might",
	"must", "shall", "do", "does", "did", "please", "help", "how", "i", "can", "you",
	"me", "my", "we", "our", "who", "what", "which", "that", "this", "these", "those",
	"it", "its", "their", "them", "they", "find", "show", "list", "any", "all", "some",
)

// Words ending in "s" that stemming must leave alone.
var stemExceptions = toSet(
	"news", "press", "business", "us", "series", "analysis", "gas", "bus", "status", "this",
)

// Normalize lower-cases text, keeps letters and digits, and collapses every
// other run of characters into a single space.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false

	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			prevSpace = false
			continue
		}
		if !prevSpace {
			b.WriteByte(' ')
			prevSpace = true
		}
	}

	return strings.TrimSpace(b.String())
}

// Tokens splits normalized text into words.
func Tokens(s string) []string {
	return strings.Fields(Normalize(s))
}

// IsStopword reports whether a lower-case token carries no search meaning.
func IsStopword(token string) bool {
	_, ok := stopwords[token]
	return ok
}

// MeaningfulTokens returns the tokens that are not stopwords and longer than
// one character, in order of appearance.
func MeaningfulTokens(s string) []string {
	var out []string
	for _, tok := range Tokens(s) {
		if utf8.RuneCountInString(tok) > 1 && !IsStopword(tok) {
			out = append(out, tok)
		}
	}
	return out
}

// Stem strips simple English plural endings.
func Stem(token string) string {
	if _, ok := stemExceptions[token]; ok {
		return token
	}
	n := len(token)
	switch {
	case n > 4 && strings.HasSuffix(token, "ies"):
		return token[:n-3] + "y"
	case n > 3 && strings.HasSuffix(token, "s") && !strings.HasSuffix(token, "ss"):
		return token[:n-1]
	}
	return token
}

// TermSet returns the stemmed meaningful tokens of s.
func TermSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range MeaningfulTokens(s) {
		set[Stem(tok)] = struct{}{}
	}
	return set
}

// Jaccard is |a ∩ b| / |a ∪ b|; zero when both sets are empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// EditSimilarity is 1 - levenshtein(a, b) / max(len(a), len(b)) over the
// normalized texts.
func EditSimilarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 1
	}
	longest := utf8.RuneCountInString(na)
	if l := utf8.RuneCountInString(nb); l > longest {
		longest = l
	}
	return 1 - float64(levenshtein.ComputeDistance(na, nb))/float64(longest)
}

// Similarity combines token overlap and edit distance; the larger wins.
func Similarity(a, b string) float64 {
	if Normalize(a) == Normalize(b) {
		return 1
	}
	token := Jaccard(TermSet(a), TermSet(b))
	edit := EditSimilarity(a, b)
	if token > edit {
		return token
	}
	return edit
}

// CleanLine strips list markers, surrounding quotes and extra whitespace from
// a single line of generated text.
func CleanLine(line string) string {
	line = listMarker.ReplaceAllString(line, "")
	line = strings.TrimSpace(line)
	line = strings.Trim(line, "\"'`“”‘’")
	line = multiWhitespace.ReplaceAllString(line, " ")
	return strings.TrimSpace(line)
}

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
