// Package eval compares LLM-as-judge evaluation runs against human
// evaluations of the same test cases and reports how well they agree.
package eval

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Verdicts shared by both evaluator kinds. Anything else maps to
// VerdictUnknown so a malformed record can never count as agreement.
const (
	VerdictPass    = "PASS"
	VerdictRevise  = "REVISE"
	VerdictFail    = "FAIL"
	VerdictUnknown = "UNKNOWN"
)

// scoreSimilarityWindow is the band, in percentage points, within which two
// overall scores count as similar.
const scoreSimilarityWindow = 10.0

// LLMDimension is one scored dimension from the judge model, on a 0-10 scale.
type LLMDimension struct {
	Score float64 `json:"score"`
}

// LLMOverall is the judge's overall assessment, as a 0-100 percentage.
type LLMOverall struct {
	Percentage float64 `json:"percentage"`
}

// LLMEvaluation is the judge model's structured verdict for one test case.
type LLMEvaluation struct {
	RecommendedAction    string        `json:"recommended_action"`
	OverallAssessment    LLMOverall    `json:"overall_assessment"`
	MedicalAccuracy      *LLMDimension `json:"medical_accuracy,omitempty"`
	Safety               *LLMDimension `json:"safety,omitempty"`
	PatientFriendliness  *LLMDimension `json:"patient_friendliness,omitempty"`
	Actionability        *LLMDimension `json:"actionability,omitempty"`
	ScopeAppropriateness *LLMDimension `json:"scope_appropriateness,omitempty"`
}

// LLMResult is one judged test case from an evaluation run.
type LLMResult struct {
	TestCaseID string        `json:"test_case_id"`
	Question   string        `json:"question"`
	Response   string        `json:"response"`
	Evaluation LLMEvaluation `json:"evaluation"`
}

// LLMResults is the top-level evaluation run file.
type LLMResults struct {
	DetailedResults []LLMResult `json:"detailed_results"`
}

// HumanEvaluation is one human reviewer's judgment of a test case. Ratings
// are on a 1-5 scale keyed by dimension name.
type HumanEvaluation struct {
	Verdict       string             `json:"verdict"`
	OverallRating float64            `json:"overall_rating"`
	Ratings       map[string]float64 `json:"ratings"`
	Comments      string             `json:"comments"`
}

// HumanResult is one human-reviewed test case.
type HumanResult struct {
	TestCaseID string          `json:"test_case_id"`
	Evaluation HumanEvaluation `json:"evaluation"`
}

// HumanResults is the top-level human review file.
type HumanResults struct {
	Results []HumanResult `json:"results"`
}

// MatchedCase pairs the two evaluations of a single test case.
type MatchedCase struct {
	TestCaseID string
	Question   string
	Response   string
	LLM        LLMEvaluation
	Human      HumanEvaluation
}

// Disagreement records a verdict mismatch on one case.
type Disagreement struct {
	TestCaseID    string  `json:"test_case_id"`
	Question      string  `json:"question"`
	LLMVerdict    string  `json:"llm_verdict"`
	HumanVerdict  string  `json:"human_verdict"`
	LLMScore      float64 `json:"llm_score"`
	HumanScore    float64 `json:"human_score"`
	HumanComments string  `json:"human_comments,omitempty"`
}

// AgreementMetrics summarizes how often the two evaluators agreed.
type AgreementMetrics struct {
	TotalCases          int            `json:"total_cases"`
	VerdictAgreements   int            `json:"verdict_agreements"`
	VerdictAgreementPct float64        `json:"verdict_agreement_pct"`
	ScoresWithinWindow  int            `json:"scores_within_window"`
	ScoreSimilarityPct  float64        `json:"score_similarity_pct"`
	AvgScoreDifference  float64        `json:"avg_score_difference"`
	Disagreements       []Disagreement `json:"disagreements"`
}

// DimensionStats summarizes per-dimension score differences on a 0-10 scale.
type DimensionStats struct {
	AvgDifference float64 `json:"avg_difference"`
	MaxDifference float64 `json:"max_difference"`
	Samples       int     `json:"samples"`
}

// Report is the full comparison output, serializable as JSON.
type Report struct {
	TotalMatchedCases  int                       `json:"total_matched_cases"`
	Agreement          AgreementMetrics          `json:"agreement_metrics"`
	MajorDisagreements []Disagreement            `json:"major_disagreements"`
	DimensionAnalysis  map[string]DimensionStats `json:"dimension_analysis"`
	MatchedCases       []CaseSummary             `json:"matched_cases"`
}

// CaseSummary is the per-case line item included in the saved report.
type CaseSummary struct {
	TestCaseID   string  `json:"test_case_id"`
	Question     string  `json:"question"`
	LLMVerdict   string  `json:"llm_verdict"`
	LLMScore     float64 `json:"llm_score"`
	HumanVerdict string  `json:"human_verdict"`
	HumanScore   float64 `json:"human_score"`
}

// dimensionMapping maps judge dimensions onto the human rating sheet. Safety
// folds into medical accuracy because both rate correctness.
var dimensionMapping = []struct {
	llm   string
	human string
}{
	{"medical_accuracy", "medical_accuracy"},
	{"safety", "medical_accuracy"},
	{"patient_friendliness", "empathy"},
	{"actionability", "actionability"},
	{"scope_appropriateness", "appropriateness"},
}

// LoadLLMResults reads a judge-model evaluation run from disk.
func LoadLLMResults(path string) (*LLMResults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read LLM results %s: %w", path, err)
	}
	var results LLMResults
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("failed to parse LLM results %s: %w", path, err)
	}
	return &results, nil
}

// LoadHumanResults reads a human review file from disk.
func LoadHumanResults(path string) (*HumanResults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read human results %s: %w", path, err)
	}
	var results HumanResults
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("failed to parse human results %s: %w", path, err)
	}
	return &results, nil
}

// Match pairs evaluations by test case ID, preserving the order of the LLM
// run. Cases reviewed by only one side are dropped.
func Match(llm *LLMResults, human *HumanResults) []MatchedCase {
	humanByID := make(map[string]HumanResult, len(human.Results))
	for _, r := range human.Results {
		humanByID[r.TestCaseID] = r
	}

	var matched []MatchedCase
	for _, r := range llm.DetailedResults {
		h, ok := humanByID[r.TestCaseID]
		if !ok {
			continue
		}
		matched = append(matched, MatchedCase{
			TestCaseID: r.TestCaseID,
			Question:   r.Question,
			Response:   r.Response,
			LLM:        r.Evaluation,
			Human:      h.Evaluation,
		})
	}
	return matched
}

func verdictOrUnknown(v string) string {
	switch v {
	case VerdictPass, VerdictRevise, VerdictFail:
		return v
	}
	return VerdictUnknown
}

// humanOverallScore converts a 1-5 overall rating to a 0-100 percentage.
func humanOverallScore(e HumanEvaluation) float64 {
	return e.OverallRating * 20
}

// Agreement computes verdict and score agreement across matched cases.
// Overall scores count as similar when within ten percentage points.
func Agreement(matched []MatchedCase) AgreementMetrics {
	metrics := AgreementMetrics{TotalCases: len(matched)}
	var totalDiff float64

	for _, c := range matched {
		llmVerdict := verdictOrUnknown(c.LLM.RecommendedAction)
		humanVerdict := verdictOrUnknown(c.Human.Verdict)

		llmScore := c.LLM.OverallAssessment.Percentage
		humanScore := humanOverallScore(c.Human)

		if llmVerdict == humanVerdict && llmVerdict != VerdictUnknown {
			metrics.VerdictAgreements++
		} else {
			metrics.Disagreements = append(metrics.Disagreements, Disagreement{
				TestCaseID:   c.TestCaseID,
				Question:     truncate(c.Question, 80),
				LLMVerdict:   llmVerdict,
				HumanVerdict: humanVerdict,
				LLMScore:     llmScore,
				HumanScore:   humanScore,
			})
		}

		diff := math.Abs(llmScore - humanScore)
		totalDiff += diff
		if diff <= scoreSimilarityWindow {
			metrics.ScoresWithinWindow++
		}
	}

	if metrics.TotalCases > 0 {
		metrics.VerdictAgreementPct = float64(metrics.VerdictAgreements) / float64(metrics.TotalCases) * 100
		metrics.ScoreSimilarityPct = float64(metrics.ScoresWithinWindow) / float64(metrics.TotalCases) * 100
		metrics.AvgScoreDifference = totalDiff / float64(metrics.TotalCases)
	}
	return metrics
}

// MajorDisagreements returns cases where one evaluator passed a response the
// other failed outright.
func MajorDisagreements(matched []MatchedCase) []Disagreement {
	var major []Disagreement
	for _, c := range matched {
		llmVerdict := verdictOrUnknown(c.LLM.RecommendedAction)
		humanVerdict := verdictOrUnknown(c.Human.Verdict)

		opposed := (llmVerdict == VerdictPass && humanVerdict == VerdictFail) ||
			(llmVerdict == VerdictFail && humanVerdict == VerdictPass)
		if !opposed {
			continue
		}
		major = append(major, Disagreement{
			TestCaseID:    c.TestCaseID,
			Question:      c.Question,
			LLMVerdict:    llmVerdict,
			HumanVerdict:  humanVerdict,
			LLMScore:      c.LLM.OverallAssessment.Percentage,
			HumanScore:    humanOverallScore(c.Human),
			HumanComments: c.Human.Comments,
		})
	}
	return major
}

func llmDimensionScore(e LLMEvaluation, name string) (float64, bool) {
	var d *LLMDimension
	switch name {
	case "medical_accuracy":
		d = e.MedicalAccuracy
	case "safety":
		d = e.Safety
	case "patient_friendliness":
		d = e.PatientFriendliness
	case "actionability":
		d = e.Actionability
	case "scope_appropriateness":
		d = e.ScopeAppropriateness
	}
	if d == nil {
		return 0, false
	}
	return d.Score, true
}

// DimensionAgreement compares each judge dimension against its human
// counterpart, normalizing human 1-5 ratings onto the judge's 0-10 scale.
func DimensionAgreement(matched []MatchedCase) map[string]DimensionStats {
	diffs := make(map[string][]float64)

	for _, c := range matched {
		for _, m := range dimensionMapping {
			llmScore, ok := llmDimensionScore(c.LLM, m.llm)
			if !ok {
				continue
			}
			humanScore, ok := c.Human.Ratings[m.human]
			if !ok {
				continue
			}
			humanNormalized := (humanScore - 1) * 2.5
			diffs[m.human] = append(diffs[m.human], math.Abs(llmScore-humanNormalized))
		}
	}

	stats := make(map[string]DimensionStats, len(diffs))
	for dim, ds := range diffs {
		var sum, max float64
		for _, d := range ds {
			sum += d
			if d > max {
				max = d
			}
		}
		stats[dim] = DimensionStats{
			AvgDifference: sum / float64(len(ds)),
			MaxDifference: max,
			Samples:       len(ds),
		}
	}
	return stats
}

// BuildReport runs the full comparison over both result sets.
func BuildReport(llm *LLMResults, human *HumanResults) Report {
	matched := Match(llm, human)

	summaries := make([]CaseSummary, 0, len(matched))
	for _, c := range matched {
		summaries = append(summaries, CaseSummary{
			TestCaseID:   c.TestCaseID,
			Question:     c.Question,
			LLMVerdict:   verdictOrUnknown(c.LLM.RecommendedAction),
			LLMScore:     c.LLM.OverallAssessment.Percentage,
			HumanVerdict: verdictOrUnknown(c.Human.Verdict),
			HumanScore:   humanOverallScore(c.Human),
		})
	}

	return Report{
		TotalMatchedCases:  len(matched),
		Agreement:          Agreement(matched),
		MajorDisagreements: MajorDisagreements(matched),
		DimensionAnalysis:  DimensionAgreement(matched),
		MatchedCases:       summaries,
	}
}

// Save writes the report as indented JSON, creating parent directories.
func (r Report) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory %s: %w", dir, err)
		}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}

// sortedDimensions returns dimension names ordered by average difference,
// best agreement first.
func (r Report) sortedDimensions() []string {
	names := make([]string, 0, len(r.DimensionAnalysis))
	for name := range r.DimensionAnalysis {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := r.DimensionAnalysis[names[i]], r.DimensionAnalysis[names[j]]
		if a.AvgDifference != b.AvgDifference {
			return a.AvgDifference < b.AvgDifference
		}
		return names[i] < names[j]
	})
	return names
}

// WriteText renders the report for a terminal, mirroring the JSON content.
func (r Report) WriteText(w io.Writer) {
	rule := strings.Repeat("=", 80)

	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "LLM vs HUMAN EVALUATION COMPARISON")
	fmt.Fprintln(w, rule)

	if r.TotalMatchedCases == 0 {
		fmt.Fprintln(w, "\nNo matching cases found between LLM and human evaluations.")
		fmt.Fprintln(w, "Make sure both evaluations were run on the same test cases.")
		return
	}

	a := r.Agreement
	fmt.Fprintf(w, "\nMatched cases: %d\n", r.TotalMatchedCases)
	fmt.Fprintf(w, "Verdict agreement: %d/%d (%.1f%%)\n", a.VerdictAgreements, a.TotalCases, a.VerdictAgreementPct)
	fmt.Fprintf(w, "Scores within %.0f%%: %d/%d (%.1f%%)\n", scoreSimilarityWindow, a.ScoresWithinWindow, a.TotalCases, a.ScoreSimilarityPct)
	fmt.Fprintf(w, "Average score difference: %.1f%%\n", a.AvgScoreDifference)

	if len(a.Disagreements) > 0 {
		fmt.Fprintf(w, "\nVerdict disagreements (%d):\n", len(a.Disagreements))
		for i, d := range a.Disagreements {
			if i == 5 {
				fmt.Fprintf(w, "  ... and %d more\n", len(a.Disagreements)-5)
				break
			}
			fmt.Fprintf(w, "  %s: LLM %s | human %s | %s\n", d.TestCaseID, d.LLMVerdict, d.HumanVerdict, d.Question)
		}
	}

	fmt.Fprintf(w, "\nMajor disagreements (PASS vs FAIL): %d\n", len(r.MajorDisagreements))
	for _, d := range r.MajorDisagreements {
		fmt.Fprintf(w, "  %s: LLM %s (%.1f%%) vs human %s (%.1f%%)\n", d.TestCaseID, d.LLMVerdict, d.LLMScore, d.HumanVerdict, d.HumanScore)
		if d.HumanComments != "" {
			fmt.Fprintf(w, "    human comment: %s\n", d.HumanComments)
		}
	}

	if len(r.DimensionAnalysis) > 0 {
		fmt.Fprintln(w, "\nDimension agreement (average difference, 0-10 scale):")
		for _, name := range r.sortedDimensions() {
			s := r.DimensionAnalysis[name]
			fmt.Fprintf(w, "  %s: %.2f avg (max %.2f, n=%d)\n", name, s.AvgDifference, s.MaxDifference, s.Samples)
		}
	}

	fmt.Fprintln(w)
	switch {
	case a.VerdictAgreementPct >= 80:
		fmt.Fprintln(w, "STRONG AGREEMENT (>=80%): the judge model tracks human judgment closely.")
	case a.VerdictAgreementPct >= 60:
		fmt.Fprintln(w, "MODERATE AGREEMENT (60-79%): review the disagreement cases and tighten the judge prompt.")
	default:
		fmt.Fprintln(w, "LOW AGREEMENT (<60%): revise the judge prompt and review the major disagreements.")
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
