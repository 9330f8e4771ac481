package server

import (
	"net/http"
	"strconv"

	"github.com/trinsiklabs/onelist/internal/store"
	"github.com/trinsiklabs/onelist/pkg/protocol"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req protocol.SearchRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, protocol.CodeInvalid, "invalid JSON: "+err.Error())
		return
	}
	s.search(w, r, &req)
}

// handleSearchGet serves quick manual queries: ?q=...&type=...&limit=...
func (s *Server) handleSearchGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := protocol.SearchRequest{
		Query:      q.Get("q"),
		SearchType: protocol.SearchType(q.Get("type")),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			req.Limit = n
		}
	}
	if v := q.Get("exclude_agents"); v != "" {
		req.ExcludeAgents = q["exclude_agents"]
	}
	s.search(w, r, &req)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request, req *protocol.SearchRequest) {
	if req.Query == "" {
		writeErr(w, http.StatusBadRequest, protocol.CodeInvalid, "query required")
		return
	}
	if req.SearchType == "" {
		req.SearchType = protocol.SearchHybrid
	}
	if req.Limit <= 0 {
		req.Limit = defaultSearchLimit
	}
	if req.Limit > maxSearchLimit {
		req.Limit = maxSearchLimit
	}
	// An agent searching with no agent filters at all should not get its
	// own writes back; callers override with explicit include/exclude sets.
	if len(req.IncludeAgents) == 0 && len(req.ExcludeAgents) == 0 {
		if kind := r.Header.Get(protocol.HeaderAgentID); kind != "" {
			req.ExcludeAgents = []string{kind}
		}
	}

	hits, err := s.stores.Search.Search(r.Context(), defaultOwner, store.SearchQuery{
		Query:          req.Query,
		Type:           string(req.SearchType),
		Limit:          req.Limit,
		SemanticWeight: req.SemanticWeight,
		KeywordWeight:  req.KeywordWeight,
		IncludeAgents:  req.IncludeAgents,
		ExcludeAgents:  req.ExcludeAgents,
		Threshold:      req.Threshold,
	})
	if err != nil {
		writeFail(w, err)
		return
	}

	results := make([]protocol.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, protocol.SearchResult{
			EntryID:   h.EntryID,
			Title:     h.Title,
			Snippet:   h.Snippet,
			Relevance: h.Relevance,
			EntryType: protocol.EntryType(h.EntryType),
			Attribution: protocol.Attribution{
				AgentKind:       h.AgentKind,
				AgentVersion:    h.AgentVersion,
				CreatedAt:       h.CreatedAt,
				DerivationDepth: h.Depth,
			},
		})
	}
	writeJSON(w, http.StatusOK, protocol.SearchResponse{
		OK:         true,
		Query:      req.Query,
		SearchType: req.SearchType,
		Results:    results,
	})
}
