package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Corpus configuration constants
const (
	// DefaultTopK is the number of passages returned when the caller asks for none.
	DefaultTopK = 4
	// minPassageLength filters out headings and stray lines when splitting documents.
	minPassageLength = 40
)

// corpusExtensions are the document formats loaded from the corpus directory.
var corpusExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

// passage is one retrievable chunk of a corpus document.
type passage struct {
	source string
	text   string
	terms  map[string]int
}

// CorpusRetriever serves passages from a directory of plain-text documents,
// ranked by lexical overlap with the query. It is safe for concurrent use;
// Reload swaps the passage set atomically under the lock.
type CorpusRetriever struct {
	dir string

	mu       sync.RWMutex
	passages []passage
}

// NewCorpusRetriever loads the documents under dir. A missing directory is
// treated as an empty corpus so the assistant still answers from the
// model's own knowledge.
func NewCorpusRetriever(dir string) (*CorpusRetriever, error) {
	r := &CorpusRetriever{dir: dir}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the corpus directory, replacing the passage set.
func (r *CorpusRetriever) Reload() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("CorpusRetriever.Reload: corpus directory missing, serving empty corpus", "dir", r.dir)
			r.mu.Lock()
			r.passages = nil
			r.mu.Unlock()
			return nil
		}
		return fmt.Errorf("failed to read corpus directory %s: %w", r.dir, err)
	}

	var passages []passage
	for _, entry := range entries {
		if entry.IsDir() || !corpusExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		path := filepath.Join(r.dir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("CorpusRetriever.Reload: skipping unreadable document", "error", err, "path", path)
			continue
		}
		for _, chunk := range splitPassages(string(content)) {
			passages = append(passages, passage{
				source: entry.Name(),
				text:   chunk,
				terms:  termCounts(chunk),
			})
		}
	}

	r.mu.Lock()
	r.passages = passages
	r.mu.Unlock()
	slog.Info("CorpusRetriever.Reload: corpus loaded", "dir", r.dir, "passages", len(passages))
	return nil
}

// Retrieve returns up to topK passages ranked by lexical overlap with the
// query, best first, each prefixed with its source document name.
func (r *CorpusRetriever) Retrieve(ctx context.Context, query string, topK int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	queryTerms := termCounts(query)
	if len(queryTerms) == 0 {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	type scored struct {
		index int
		score int
	}
	var results []scored
	for i, p := range r.passages {
		score := 0
		for term := range queryTerms {
			score += p.terms[term]
		}
		if score > 0 {
			results = append(results, scored{index: i, score: score})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	if len(results) > topK {
		results = results[:topK]
	}

	out := make([]string, len(results))
	for i, res := range results {
		p := r.passages[res.index]
		out[i] = fmt.Sprintf("[Source: %s]\n%s", p.source, p.text)
	}
	slog.Debug("CorpusRetriever.Retrieve: passages selected", "query_terms", len(queryTerms), "results", len(out))
	return out, nil
}

// splitPassages breaks a document into paragraph-level chunks, dropping
// fragments too short to carry useful context.
func splitPassages(content string) []string {
	var passages []string
	for _, chunk := range strings.Split(content, "\n\n") {
		chunk = strings.TrimSpace(chunk)
		if len(chunk) >= minPassageLength {
			passages = append(passages, chunk)
		}
	}
	return passages
}

// termCounts tokenizes text into lowercase term frequencies.
func termCounts(text string) map[string]int {
	terms := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	counts := make(map[string]int, len(terms))
	for _, term := range terms {
		counts[term]++
	}
	return counts
}
