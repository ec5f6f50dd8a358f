package chat

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/moussadar/moussadar/internal/portal/schema"
)

//go:embed rules.toml
var defaultRules []byte

// Response types
const (
	TypeText        = "text"
	TypeSuggestions = "suggestions"
)

// Localized is the reply text of a rule in one language.
type Localized struct {
	Content     string   `toml:"content"`
	Suggestions []string `toml:"suggestions"`
}

// Rule maps keywords onto a canned reply.
type Rule struct {
	Name string   `toml:"name"`
	All  []string `toml:"all"`
	Any  []string `toml:"any"`
	Type string   `toml:"type"`

	FR Localized `toml:"fr"`
	AR Localized `toml:"ar"`
}

// Matches reports whether the lower-cased message satisfies the rule.
func (r *Rule) Matches(lower string) bool {
	for _, kw := range r.All {
		if !strings.Contains(lower, kw) {
			return false
		}
	}
	if len(r.Any) == 0 {
		return true
	}
	for _, kw := range r.Any {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// For returns the reply text in lang.
func (r *Rule) For(lang schema.Lang) Localized {
	if lang == schema.LangAR {
		return r.AR
	}
	return r.FR
}

func (r *Rule) validate(keywords bool) error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if keywords && len(r.All) == 0 && len(r.Any) == 0 {
		return fmt.Errorf("rule %s: needs at least one keyword", r.Name)
	}
	switch r.Type {
	case "":
		r.Type = TypeText
	case TypeText, TypeSuggestions:
	default:
		return fmt.Errorf("rule %s: unknown type %q", r.Name, r.Type)
	}
	if r.FR.Content == "" || r.AR.Content == "" {
		return fmt.Errorf("rule %s: content required in fr and ar", r.Name)
	}
	// Keywords match against lower-cased input
	for i := range r.All {
		r.All[i] = strings.ToLower(r.All[i])
	}
	for i := range r.Any {
		r.Any[i] = strings.ToLower(r.Any[i])
	}
	return nil
}

// RuleSet is an ordered list of rules plus the reply used when none match.
type RuleSet struct {
	Rules    []Rule `toml:"rules"`
	Fallback Rule   `toml:"fallback"`
}

// Match returns the first matching rule, or the fallback.
func (rs *RuleSet) Match(message string) *Rule {
	lower := strings.ToLower(message)
	for i := range rs.Rules {
		if rs.Rules[i].Matches(lower) {
			return &rs.Rules[i]
		}
	}
	return &rs.Fallback
}

// ParseRules decodes a TOML rule set. Unknown keys are rejected.
func ParseRules(data []byte) (*RuleSet, error) {
	var rs RuleSet
	md, err := toml.Decode(string(data), &rs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown rule keys: %v", undecoded)
	}

	for i := range rs.Rules {
		if err := rs.Rules[i].validate(true); err != nil {
			return nil, err
		}
	}
	if err := rs.Fallback.validate(false); err != nil {
		return nil, fmt.Errorf("fallback: %w", err)
	}
	return &rs, nil
}

// DefaultRules returns the embedded rule set.
func DefaultRules() (*RuleSet, error) {
	return ParseRules(defaultRules)
}

// LoadRules reads a rule set from a TOML file.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}
