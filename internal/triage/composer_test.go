package triage

import (
	"strings"
	"testing"

	"github.com/CareBranch/CareChat/internal/models"
)

func TestComposeCriticalDominates(t *testing.T) {
	c := NewComposer()
	cases := []struct {
		name       string
		categories []models.Category
	}{
		{"single critical", []models.Category{models.CategoryHeavyBleeding}},
		{"critical with non-urgent", []models.Category{models.CategoryFever, models.CategoryBlackStool}},
		{"all critical", []models.Category{models.CategorySeverePain, models.CategoryDizzinessOrWeakness}},
		{"many non-urgent one critical", []models.Category{models.CategoryFever, models.CategoryProlongedConstipation, models.CategoryHeavyBleeding}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := c.Compose(tc.categories)
			if w.Tier != models.SeverityCritical {
				t.Errorf("expected critical tier, got %q", w.Tier)
			}
			if !strings.Contains(w.Text, "TODAY") {
				t.Error("critical warning missing same-day framing")
			}
			if !strings.Contains(w.Text, "emergency room") {
				t.Error("critical warning missing ER framing")
			}
		})
	}
}

func TestComposeNonUrgent(t *testing.T) {
	c := NewComposer()
	for _, cats := range [][]models.Category{
		{models.CategoryProlongedConstipation},
		{models.CategoryFever},
		{models.CategoryFever, models.CategoryProlongedConstipation},
	} {
		w := c.Compose(cats)
		if w.Tier != models.SeverityNonUrgent {
			t.Errorf("expected non-urgent tier for %v, got %q", cats, w.Tier)
		}
		if !strings.Contains(w.Text, "1-2 days") {
			t.Error("non-urgent warning missing follow-up window")
		}
		if strings.Contains(w.Text, "TODAY") {
			t.Error("non-urgent warning must not use same-day framing")
		}
	}
}

func TestComposeEmpty(t *testing.T) {
	c := NewComposer()
	if w := c.Compose(nil); !w.IsZero() {
		t.Errorf("expected zero warning for empty category set, got %+v", w)
	}
}

func TestHasExistingWarning(t *testing.T) {
	c := NewComposer()
	cases := []struct {
		reply string
		want  bool
	}{
		{"Please contact your doctor about this.", true},
		{"You should seek Medical Attention today.", true},
		{"Go to urgent care right away.", true},
		{"This is an emergency.", true},
		{"Have your healthcare provider take a look.", true},
		{"Fiber and water usually help within a few days.", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := c.HasExistingWarning(tc.reply); got != tc.want {
			t.Errorf("HasExistingWarning(%q) = %v, want %v", tc.reply, got, tc.want)
		}
	}
}

func TestDeduplicateCollapsesToLastWarning(t *testing.T) {
	c := NewComposer()
	reply := "Main advice here." +
		WarningMarker + " first warning block." +
		WarningMarker + " second warning block."
	got := c.Deduplicate(reply)
	if strings.Count(got, WarningMarker) != 1 {
		t.Fatalf("expected exactly one marker after dedup, got %d in %q", strings.Count(got, WarningMarker), got)
	}
	if !strings.Contains(got, "second warning block") {
		t.Error("dedup should keep the last warning")
	}
	if strings.Contains(got, "first warning block") {
		t.Error("dedup should discard intermediate warnings")
	}
	if !strings.HasPrefix(got, "Main advice here.") {
		t.Error("dedup should keep the leading content segment")
	}
}

func TestDeduplicateIdempotent(t *testing.T) {
	c := NewComposer()
	inputs := []string{
		"no warnings at all",
		"one " + WarningMarker + " warning only",
		"two " + WarningMarker + " warnings " + WarningMarker + " here",
		"three " + WarningMarker + " a " + WarningMarker + " b " + WarningMarker + " c",
		"",
	}
	for _, in := range inputs {
		once := c.Deduplicate(in)
		twice := c.Deduplicate(once)
		if once != twice {
			t.Errorf("Deduplicate not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestDeduplicateLeavesSingleWarningAlone(t *testing.T) {
	c := NewComposer()
	reply := "advice" + nonUrgentWarningText
	if got := c.Deduplicate(reply); got != reply {
		t.Errorf("single-warning reply should be unchanged, got %q", got)
	}
}
