package triage

import (
	"log/slog"
	"strings"

	"github.com/CareBranch/CareChat/internal/models"
)

// WarningMarker is the glyph that introduces a warning block in reply text.
// De-duplication keys off this marker.
const WarningMarker = "⚠️"

// Warning is the at-most-one warning emitted for a turn, with its tier.
type Warning struct {
	Tier models.Severity
	Text string
}

// IsZero reports whether no warning was composed.
func (w Warning) IsZero() bool {
	return w.Text == ""
}

var criticalBanner = strings.Repeat("=", 60)

var criticalWarningText = "\n\n" + criticalBanner +
	"\n🚨 **URGENT MEDICAL ATTENTION NEEDED** 🚨\n" + criticalBanner +
	"\n\nBased on your symptoms, you need to see a doctor TODAY. Go to urgent care or the emergency room if:\n" +
	"- You're experiencing heavy bleeding\n" +
	"- You have black or tarry stools\n" +
	"- You feel dizzy or weak\n" +
	"- You have severe pain\n\n" +
	"These could be signs of serious bleeding or other conditions that need immediate evaluation. Please don't wait."

var nonUrgentWarningText = "\n\n" + WarningMarker + " **Please contact your doctor within 1-2 days:**\n\n" +
	"The symptoms you've described should be evaluated by your healthcare provider to make sure everything is okay and to adjust your treatment plan if needed."

// warningIndicators are phrases whose presence means the generated reply
// already carries its own medical warning, so no second block is appended.
var warningIndicators = []string{
	"contact your doctor",
	"see a doctor",
	"medical attention",
	"urgent care",
	"emergency",
	"healthcare provider",
}

// defaultSeverities is the static category-to-tier mapping. Every critical
// category shares the same required action (immediate evaluation), so the
// critical template does not enumerate which category triggered it.
var defaultSeverities = map[models.Category]models.Severity{
	models.CategoryHeavyBleeding:         models.SeverityCritical,
	models.CategoryBlackStool:            models.SeverityCritical,
	models.CategorySeverePain:            models.SeverityCritical,
	models.CategoryDizzinessOrWeakness:   models.SeverityCritical,
	models.CategoryProlongedConstipation: models.SeverityNonUrgent,
	models.CategoryFever:                 models.SeverityNonUrgent,
}

// Composer maps classified categories to at most one severity-ranked
// warning and reconciles warnings in externally generated reply text.
type Composer struct {
	severities map[models.Category]models.Severity
}

// NewComposer creates a Composer with the default severity mapping.
func NewComposer() *Composer {
	return &Composer{severities: defaultSeverities}
}

// Compose resolves a category set to a single warning. Any critical
// category dominates any number of non-urgent ones; with only non-urgent
// categories the follow-up template is used; an empty set composes no
// warning. Strict two-tier ranking, no blending.
func (c *Composer) Compose(categories []models.Category) Warning {
	if len(categories) == 0 {
		return Warning{}
	}
	hasCritical := false
	hasNonUrgent := false
	for _, cat := range categories {
		switch c.severities[cat] {
		case models.SeverityCritical:
			hasCritical = true
		case models.SeverityNonUrgent:
			hasNonUrgent = true
		}
	}
	if hasCritical {
		slog.Debug("Composer.Compose: critical warning composed", "categories", categories)
		return Warning{Tier: models.SeverityCritical, Text: criticalWarningText}
	}
	if hasNonUrgent {
		slog.Debug("Composer.Compose: non-urgent warning composed", "categories", categories)
		return Warning{Tier: models.SeverityNonUrgent, Text: nonUrgentWarningText}
	}
	return Warning{}
}

// HasExistingWarning reports whether the reply text already contains
// warning language, checked against a fixed indicator-phrase list.
func (c *Composer) HasExistingWarning(reply string) bool {
	lowered := strings.ToLower(reply)
	for _, indicator := range warningIndicators {
		if strings.Contains(lowered, indicator) {
			return true
		}
	}
	return false
}

// Deduplicate collapses repeated warning blocks in generated reply text.
// If the warning marker occurs more than once, only the first content
// segment and the last warning are kept. Deduplicate is idempotent.
func (c *Composer) Deduplicate(reply string) string {
	parts := strings.Split(reply, WarningMarker)
	if len(parts) <= 2 {
		return reply
	}
	slog.Debug("Composer.Deduplicate: collapsing duplicate warnings", "occurrences", len(parts)-1)
	return parts[0] + "\n\n" + WarningMarker + parts[len(parts)-1]
}
