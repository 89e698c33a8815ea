package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// RetrievalTool searches a pgvector-indexed document table by
// similarity to the embedded query. Empty result sets come back as a
// NO_RESULTS observation rather than an error, so the agent can adjust
// its query.
type RetrievalTool struct {
	pool      *pgxpool.Pool
	embedder  Embedder
	table     string
	limit     int
	threshold float64
}

// RetrievalOption configures a RetrievalTool.
type RetrievalOption func(*RetrievalTool)

// WithTable overrides the document table name. The name is spliced into
// SQL, so anything but a plain identifier is ignored.
func WithTable(name string) RetrievalOption {
	return func(t *RetrievalTool) {
		if isSafeIdent(name) {
			t.table = name
		}
	}
}

func isSafeIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			continue
		}
		return false
	}
	return true
}

// WithLimit overrides the maximum number of documents returned.
func WithLimit(n int) RetrievalOption {
	return func(t *RetrievalTool) {
		if n > 0 {
			t.limit = n
		}
	}
}

// WithThreshold overrides the minimum cosine similarity.
func WithThreshold(v float64) RetrievalOption {
	return func(t *RetrievalTool) { t.threshold = v }
}

// NewRetrievalTool creates the document search tool.
func NewRetrievalTool(pool *pgxpool.Pool, embedder Embedder, opts ...RetrievalOption) *RetrievalTool {
	t := &RetrievalTool{
		pool:      pool,
		embedder:  embedder,
		table:     "documents",
		limit:     7,
		threshold: 0.7,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *RetrievalTool) Name() string { return "search_documents" }

func (t *RetrievalTool) Description() string {
	return "Search the document store for passages relevant to a query. " +
		"Input: a focused search query string."
}

// Call implements Tool.
func (t *RetrievalTool) Call(ctx context.Context, input string) (string, error) {
	embedding, err := t.embedder.Embed(ctx, input)
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT content, metadata->>'source' AS source,
			1 - (embedding <=> $1) AS similarity
		FROM %s
		WHERE 1 - (embedding <=> $1) > $2
		ORDER BY embedding <=> $1
		LIMIT $3`, t.table)

	rows, err := t.pool.Query(ctx, query, pgvector.NewVector(embedding), t.threshold, t.limit)
	if err != nil {
		return "", fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	var passages []string
	for rows.Next() {
		var content string
		var source *string
		var similarity float64
		if err := rows.Scan(&content, &source, &similarity); err != nil {
			return "", fmt.Errorf("scan document: %w", err)
		}
		src := "unknown"
		if source != nil {
			src = *source
		}
		passages = append(passages, fmt.Sprintf(
			"Source: %s\nSimilarity: %.2f\nContent: %s", src, similarity, strings.TrimSpace(content)))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("read documents: %w", err)
	}

	if len(passages) == 0 {
		return NoResultsPrefix + "no documents matched the query", nil
	}
	return strings.Join(passages, "\n\n---\n\n"), nil
}
