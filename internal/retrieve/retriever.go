package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/trinsiklabs/onelist/internal/client"
	"github.com/trinsiklabs/onelist/internal/config"
	"github.com/trinsiklabs/onelist/internal/transcript"
	"github.com/trinsiklabs/onelist/pkg/protocol"
)

// searcher is the slice of the Store client the retriever needs.
type searcher interface {
	Search(ctx context.Context, req *protocol.SearchRequest) (*protocol.SearchResponse, error)
}

var _ searcher = (*client.Client)(nil)

// Retriever builds a query from the session transcript and turns Store
// search hits into a bounded context block.
type Retriever struct {
	search searcher
	cfg    config.RetrievalConfig
	now    func() time.Time
}

// NewRetriever creates the smart retriever.
func NewRetriever(search searcher, cfg config.RetrievalConfig) *Retriever {
	return &Retriever{search: search, cfg: cfg, now: time.Now}
}

// Retrieve runs one retrieval for the session file. Empty string means "no
// content": query too thin, search failed, or nothing above threshold. The
// caller may fall back.
func (r *Retriever) Retrieve(ctx context.Context, sessionFile string) string {
	query := BuildQuery(sessionFile)
	if query == "" {
		return ""
	}

	timeout := time.Duration(r.cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := r.search.Search(ctx, &protocol.SearchRequest{
		Query:          query,
		SearchType:     protocol.SearchHybrid,
		Limit:          r.cfg.Limit,
		SemanticWeight: r.cfg.SemanticWeight,
		KeywordWeight:  r.cfg.KeywordWeight,
		Threshold:      r.cfg.Threshold,
	})
	if err != nil {
		slog.Debug("retrieval search failed", "error", err)
		return ""
	}

	var hits []protocol.SearchResult
	for _, res := range resp.Results {
		if res.Relevance >= r.cfg.Threshold {
			hits = append(hits, res)
		}
	}
	if len(hits) == 0 {
		return ""
	}
	return r.formatBlock(query, hits)
}

// formatBlock renders the retrieved-context block. Only titles are echoed,
// never memory bodies, so injected context cannot compound.
func (r *Retriever) formatBlock(query string, hits []protocol.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", transcript.RetrievedContextHeader)
	fmt.Fprintf(&b, "Query: %s\n", query)
	fmt.Fprintf(&b, "Retrieved: %s | Type: %s | Results: %d\n\n",
		r.now().UTC().Format(time.RFC3339), protocol.SearchHybrid, len(hits))
	for i, h := range hits {
		fmt.Fprintf(&b, "%d. %s (relevance %d%%)\n", i+1, h.Title, int(h.Relevance*100))
	}
	b.WriteString("\n-- end of injected context --\n")
	return b.String()
}
