// Package triage provides red-flag detection and warning composition for
// patient messages.
//
// The classifier is a pure function over (message, rule table): it matches
// incoming text against a fixed taxonomy of urgent symptom categories and
// never fails. Ranking and de-duplication of the resulting categories is
// the composer's job.
package triage

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/CareBranch/CareChat/internal/models"
)

// Rule maps a red-flag category to the patterns that trigger it.
// Patterns are regular expressions matched case-insensitively against
// the whole message.
type Rule struct {
	Category models.Category
	Patterns []string
}

// DefaultRules returns the built-in rule table for the hemorrhoid and
// constipation domain. The table is data, not code: callers may swap in
// their own rules without touching the classifier.
func DefaultRules() []Rule {
	return []Rule{
		{Category: models.CategorySeverePain, Patterns: []string{
			`severe pain|excruciating|unbearable|extreme pain|terrible pain`,
		}},
		{Category: models.CategoryHeavyBleeding, Patterns: []string{
			`heavy bleed|lots of blood|pouring|filling toilet|gushing|blood clot`,
		}},
		{Category: models.CategoryFever, Patterns: []string{
			`fever|temperature|chills|hot and cold`,
		}},
		{Category: models.CategoryProlongedConstipation, Patterns: []string{
			`(no|haven't|havent).*(bowel movement|poop|stool).*(3|4|5|6|7) day`,
		}},
		{Category: models.CategoryBlackStool, Patterns: []string{
			`black stool|tarry|dark.*stool|coffee ground`,
		}},
		{Category: models.CategoryDizzinessOrWeakness, Patterns: []string{
			`dizz|faint|lightheaded|passed out|weak and tired`,
		}},
	}
}

// compiledRule pairs a category with its compiled patterns.
type compiledRule struct {
	category models.Category
	patterns []*regexp.Regexp
}

// Classifier matches patient messages against a fixed red-flag rule table.
// It is safe for concurrent use: the rule table is immutable after
// construction.
type Classifier struct {
	rules []compiledRule
}

// NewClassifier compiles the given rule table into a Classifier. Rules are
// evaluated in the order given; a category listed twice is reported once.
func NewClassifier(rules []Rule) (*Classifier, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		if !models.IsValidCategory(rule.Category) {
			return nil, fmt.Errorf("rule for unknown category %q: %w", rule.Category, models.ErrInvalidCategory)
		}
		cr := compiledRule{category: rule.Category}
		for _, pattern := range rule.Patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("failed to compile pattern %q for category %q: %w", pattern, rule.Category, err)
			}
			cr.patterns = append(cr.patterns, re)
		}
		compiled = append(compiled, cr)
	}
	slog.Debug("Classifier.NewClassifier: rule table compiled", "rules", len(compiled))
	return &Classifier{rules: compiled}, nil
}

// Classify returns the set of red-flag categories matched in the message,
// in rule-table order. A message with no matches yields an empty result;
// Classify never fails.
func (c *Classifier) Classify(message string) []models.Category {
	lowered := strings.ToLower(message)
	var matched []models.Category
	seen := make(map[models.Category]bool)
	for _, rule := range c.rules {
		if seen[rule.category] {
			continue
		}
		for _, re := range rule.patterns {
			if re.MatchString(lowered) {
				matched = append(matched, rule.category)
				seen[rule.category] = true
				break
			}
		}
	}
	if len(matched) > 0 {
		slog.Debug("Classifier.Classify: red flags detected", "categories", matched)
	}
	return matched
}
