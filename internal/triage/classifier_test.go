package triage

import (
	"errors"
	"reflect"
	"testing"

	"github.com/CareBranch/CareChat/internal/models"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier(DefaultRules())
	if err != nil {
		t.Fatalf("failed to build default classifier: %v", err)
	}
	return c
}

func TestClassifyRedFlagMessages(t *testing.T) {
	c := newTestClassifier(t)

	cases := []struct {
		name    string
		message string
		want    []models.Category
	}{
		{
			name:    "heavy bleeding",
			message: "There is heavy bleeding every time I go",
			want:    []models.Category{models.CategoryHeavyBleeding},
		},
		{
			name:    "black tarry stool and dizziness",
			message: "I'm passing black tarry stools and feel dizzy",
			want:    []models.Category{models.CategoryBlackStool, models.CategoryDizzinessOrWeakness},
		},
		{
			name:    "prolonged constipation",
			message: "I haven't had a bowel movement in 4 days",
			want:    []models.Category{models.CategoryProlongedConstipation},
		},
		{
			name:    "excruciating pain",
			message: "The pain is excruciating when I sit down",
			want:    []models.Category{models.CategorySeverePain},
		},
		{
			name:    "dizzy and weak",
			message: "I feel dizzy and weak this morning",
			want:    []models.Category{models.CategoryDizzinessOrWeakness},
		},
		{
			name:    "fever with chills",
			message: "I've had a fever and chills since last night",
			want:    []models.Category{models.CategoryFever},
		},
		{
			name:    "benign question",
			message: "What foods have fiber?",
			want:    nil,
		},
		{
			name:    "case insensitive",
			message: "LOTS OF BLOOD in the toilet",
			want:    []models.Category{models.CategoryHeavyBleeding},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify(tc.message)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Classify(%q) = %v, want %v", tc.message, got, tc.want)
			}
		})
	}
}

func TestClassifyMultipleCategoriesNoDuplicates(t *testing.T) {
	c := newTestClassifier(t)
	got := c.Classify("heavy bleeding with blood clots, feeling faint, black tarry stool")
	want := []models.Category{
		models.CategoryHeavyBleeding,
		models.CategoryBlackStool,
		models.CategoryDizzinessOrWeakness,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Classify returned %v, want %v", got, want)
	}
}

func TestNewClassifierRejectsBadPattern(t *testing.T) {
	_, err := NewClassifier([]Rule{{Category: models.CategoryFever, Patterns: []string{`fever(`}}})
	if err == nil {
		t.Error("expected compile error for invalid pattern, got nil")
	}
}

func TestNewClassifierRejectsUnknownCategory(t *testing.T) {
	_, err := NewClassifier([]Rule{{Category: models.Category("sneezing"), Patterns: []string{`achoo`}}})
	if !errors.Is(err, models.ErrInvalidCategory) {
		t.Errorf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestClassifierRuleTableSwappable(t *testing.T) {
	custom, err := NewClassifier([]Rule{{Category: models.CategoryFever, Patterns: []string{`burning up`}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := custom.Classify("I feel like I'm burning up"); len(got) != 1 || got[0] != models.CategoryFever {
		t.Errorf("custom rule table not applied, got %v", got)
	}
	// Default patterns should not apply to the custom table.
	if got := custom.Classify("heavy bleeding"); got != nil {
		t.Errorf("expected no matches from custom table, got %v", got)
	}
}
