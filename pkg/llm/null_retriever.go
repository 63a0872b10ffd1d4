package llm

import "context"

// NullRetriever is the no-op Retriever used when no embedding/context
// backend is configured. The `rag` stage treats its empty result as a
// normal completion rather than an error (spec §6.3).
type NullRetriever struct{}

// Retrieve always returns an empty result set.
func (NullRetriever) Retrieve(context.Context, string, int) ([]RetrievedSnippet, error) {
	return nil, nil
}
