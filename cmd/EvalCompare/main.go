// EvalCompare analyzes agreement between LLM-as-judge and human evaluations
// of CareChat responses run over the same test cases.
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/CareBranch/CareChat/internal/eval"
)

// Default result file locations, matching the test runner's output layout.
const (
	DefaultLLMResultsFile   = "test_results/evaluation_results.json"
	DefaultHumanResultsFile = "test_results/human_evaluations.json"
	DefaultOutputFile       = "test_results/llm_vs_human_comparison.json"
)

func main() {
	llmFile := flag.String("llm", DefaultLLMResultsFile, "path to LLM evaluation results JSON")
	humanFile := flag.String("human", DefaultHumanResultsFile, "path to human evaluation results JSON")
	outFile := flag.String("out", DefaultOutputFile, "path to write the detailed comparison JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	llm, err := eval.LoadLLMResults(*llmFile)
	if err != nil {
		slog.Error("Failed to load LLM results", "error", err)
		os.Exit(1)
	}
	human, err := eval.LoadHumanResults(*humanFile)
	if err != nil {
		slog.Error("Failed to load human results", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded evaluations", "llm", len(llm.DetailedResults), "human", len(human.Results))

	report := eval.BuildReport(llm, human)
	report.WriteText(os.Stdout)

	if err := report.Save(*outFile); err != nil {
		slog.Error("Failed to save comparison report", "error", err)
		os.Exit(1)
	}
	slog.Info("Comparison saved", "file", *outFile, "matched_cases", report.TotalMatchedCases)
}
