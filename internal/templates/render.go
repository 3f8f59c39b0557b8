package templates

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Ayash-Bera/querygen/internal/models"
	"github.com/Ayash-Bera/querygen/internal/textproc"
)

// Rendering limits for a candidate query.
const (
	MinQueryLength    = 3
	MaxQueryLength    = 500
	MinMeaningfulTerm = 2
)

// Rejection reasons.
const (
	ReasonUnknownPlaceholder = "unknown_placeholder"
	ReasonMissingValue       = "missing_value"
	ReasonEmpty              = "empty"
	ReasonTooShort           = "too_short"
	ReasonTooLong            = "too_long"
	ReasonUnresolved         = "unresolved_placeholder"
	ReasonTooFewTerms        = "too_few_terms"
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ValidationError explains why a template did not produce a usable query.
type ValidationError struct {
	TemplateID   string
	TemplateName string
	Text         string
	Reason       string
	Detail       string
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("template %s rejected (%s): %s", e.TemplateName, e.Reason, e.Detail)
	}
	return fmt.Sprintf("template %s rejected (%s)", e.TemplateName, e.Reason)
}

type placeholder struct {
	dimension models.Dimension
	plural    bool
}

var criteriaPlaceholders = map[string]placeholder{
	"country":    {models.DimensionCountry, false},
	"countries":  {models.DimensionCountry, true},
	"category":   {models.DimensionCategory, false},
	"categories": {models.DimensionCategory, true},
	"beat":       {models.DimensionBeat, false},
	"beats":      {models.DimensionBeat, true},
	"language":   {models.DimensionLanguage, false},
	"languages":  {models.DimensionLanguage, true},
	"topic":      {models.DimensionTopic, false},
	"topics":     {models.DimensionTopic, true},
}

// lookup resolves one placeholder name. ok is false for names outside the
// allow-list and the template's own variables.
func lookup(name string, tpl *models.QueryTemplate, req *models.QueryGenerationRequest) (value string, ok bool) {
	if name == "query" {
		return strings.TrimSpace(req.OriginalQuery), true
	}
	if p, found := criteriaPlaceholders[name]; found {
		values := req.Criteria.Values(p.dimension)
		if len(values) == 0 {
			return "", true
		}
		if p.plural {
			return strings.Join(values, " OR "), true
		}
		return values[0], true
	}
	if raw, found := tpl.Variables[name]; found {
		if raw == nil {
			return "", true
		}
		return strings.TrimSpace(fmt.Sprint(raw)), true
	}
	return "", false
}

// Render substitutes every placeholder of tpl and validates the result.
func Render(tpl *models.QueryTemplate, req *models.QueryGenerationRequest) (string, error) {
	var renderErr *ValidationError

	text := placeholderPattern.ReplaceAllStringFunc(tpl.Template, func(match string) string {
		if renderErr != nil {
			return match
		}
		name := match[1 : len(match)-1]
		value, ok := lookup(name, tpl, req)
		switch {
		case !ok:
			renderErr = rejection(tpl, ReasonUnknownPlaceholder, name)
		case value == "":
			renderErr = rejection(tpl, ReasonMissingValue, name)
		}
		return value
	})
	if renderErr != nil {
		renderErr.Text = tpl.Template
		return "", renderErr
	}

	text = strings.Join(strings.Fields(text), " ")
	if reason, detail := Validate(text); reason != "" {
		err := rejection(tpl, reason, detail)
		err.Text = text
		return "", err
	}
	return text, nil
}

// Validate checks a rendered query and returns a rejection reason, or "".
func Validate(text string) (reason, detail string) {
	text = strings.TrimSpace(text)
	length := utf8.RuneCountInString(text)
	switch {
	case text == "":
		return ReasonEmpty, ""
	case length < MinQueryLength:
		return ReasonTooShort, fmt.Sprintf("%d chars", length)
	case length > MaxQueryLength:
		return ReasonTooLong, fmt.Sprintf("%d chars", length)
	case strings.ContainsAny(text, "{}"):
		return ReasonUnresolved, ""
	}
	if n := len(textproc.MeaningfulTokens(text)); n < MinMeaningfulTerm {
		return ReasonTooFewTerms, fmt.Sprintf("%d meaningful terms", n)
	}
	return "", ""
}

func rejection(tpl *models.QueryTemplate, reason, detail string) *ValidationError {
	return &ValidationError{
		TemplateID:   tpl.ID,
		TemplateName: tpl.Name,
		Reason:       reason,
		Detail:       detail,
	}
}
