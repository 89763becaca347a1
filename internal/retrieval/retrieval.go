// Package retrieval provides the document-retrieval collaborator: a corpus
// of supporting medical documents queried for passages relevant to a
// patient message.
package retrieval

import "context"

// Retriever finds supporting text passages for a query. Results are
// consumed read-only and concatenated into generation context.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]string, error)
}
