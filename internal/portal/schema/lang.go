package schema

import (
	"errors"
	"fmt"
)

// Lang is a supported content language. Localized columns are selected
// through Lang only, never from raw request input.
type Lang string

const (
	LangFR Lang = "fr"
	LangAR Lang = "ar"
)

// DefaultLang is used when a request does not name a language.
const DefaultLang = LangFR

// ErrUnsupportedLang is returned for any language other than fr or ar.
var ErrUnsupportedLang = errors.New("unsupported language")

// ParseLang validates s. The empty string selects DefaultLang.
func ParseLang(s string) (Lang, error) {
	switch Lang(s) {
	case "":
		return DefaultLang, nil
	case LangFR, LangAR:
		return Lang(s), nil
	default:
		return "", fmt.Errorf("%w: %q (want fr or ar)", ErrUnsupportedLang, s)
	}
}

// Pick returns fr or ar depending on l.
func (l Lang) Pick(fr, ar string) string {
	if l == LangAR {
		return ar
	}
	return fr
}

// PickList is Pick for string slices.
func (l Lang) PickList(fr, ar []string) []string {
	if l == LangAR {
		return ar
	}
	return fr
}

var categoryLabels = map[string][2]string{
	"documents": {"Documents", "مستندات"},
	"education": {"Éducation", "التعليم"},
	"health":    {"Santé", "الصحة"},
	"taxes":     {"Impôts", "الضرائب"},
	"social":    {"Social", "الاجتماعي"},
	"transport": {"Transport", "النقل"},
}

// CategoryLabel returns the display label of a category, or the category
// itself when it has no translation.
func CategoryLabel(category string, lang Lang) string {
	labels, ok := categoryLabels[category]
	if !ok {
		return category
	}
	return lang.Pick(labels[0], labels[1])
}
