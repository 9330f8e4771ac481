package server

import (
	"log/slog"
	"net/http"

	"github.com/trinsiklabs/onelist/internal/store"
	"github.com/trinsiklabs/onelist/pkg/protocol"
)

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req protocol.CreateEntryRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, protocol.CodeInvalid, "invalid JSON: "+err.Error())
		return
	}
	if req.EntryType == "" {
		writeErr(w, http.StatusBadRequest, protocol.CodeInvalid, "entry_type required")
		return
	}

	prov := provenanceFrom(r)
	e := &store.Entry{
		OwnerID:      defaultOwner,
		EntryType:    string(req.EntryType),
		Title:        req.Title,
		Metadata:     req.Metadata,
		AgentKind:    prov.AgentKind,
		AgentVersion: prov.AgentVersion,
		InstanceID:   prov.InstanceID,
		SubagentID:   prov.SubagentID,
	}
	if err := s.stores.Entries.Create(r.Context(), e); err != nil {
		writeFail(w, err)
		return
	}
	if req.Content != "" {
		if err := s.stores.Entries.SetRepresentation(r.Context(), defaultOwner, e.ID, store.FormMarkdown, req.Content); err != nil {
			writeFail(w, err)
			return
		}
	}
	if s.chain != nil {
		if err := s.chain.RecordCreate(r.Context(), e); err != nil {
			slog.Warn("entry creation not chained", "entry", e.ID, "error", err)
		}
	}
	writeJSON(w, http.StatusCreated, entryView(e))
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	e, err := s.stores.Entries.Get(r.Context(), defaultOwner, r.PathValue("id"))
	if err != nil {
		writeFail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entryView(e))
}

// requireMutable rejects direct entry mutation for trusted-memory owners:
// once the owner opts into the verifiable chain, entries change only
// through chained supersede.
func (s *Server) requireMutable(w http.ResponseWriter, r *http.Request) bool {
	trusted, err := s.stores.Owners.TrustedMemory(r.Context(), defaultOwner)
	if err != nil {
		writeFail(w, err)
		return false
	}
	if trusted {
		writeErr(w, http.StatusConflict, protocol.CodeConflict,
			"trusted memory enabled: entries are immutable outside the chain")
		return false
	}
	return true
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	if !s.requireMutable(w, r) {
		return
	}
	var req protocol.UpdateEntryRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, protocol.CodeInvalid, "invalid JSON: "+err.Error())
		return
	}

	upd := store.EntryUpdate{Metadata: req.Metadata}
	if req.Title != "" {
		upd.Title = &req.Title
	}
	if req.Content != "" {
		upd.Content = &req.Content
	}
	e, err := s.stores.Entries.Update(r.Context(), defaultOwner, r.PathValue("id"), upd)
	if err != nil {
		writeFail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entryView(e))
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	if !s.requireMutable(w, r) {
		return
	}
	if err := s.stores.Entries.Delete(r.Context(), defaultOwner, r.PathValue("id")); err != nil {
		writeFail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleAddAsset(w http.ResponseWriter, r *http.Request) {
	var req protocol.AssetRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, protocol.CodeInvalid, "invalid JSON: "+err.Error())
		return
	}
	if req.Name == "" || len(req.Data) == 0 {
		writeErr(w, http.StatusBadRequest, protocol.CodeInvalid, "name and data required")
		return
	}

	e, err := s.stores.Entries.Get(r.Context(), defaultOwner, r.PathValue("id"))
	if err != nil {
		writeFail(w, err)
		return
	}
	a := &store.Asset{Name: req.Name, MediaType: req.MediaType, Data: req.Data}
	if err := s.stores.Entries.PutAsset(r.Context(), defaultOwner, e.ID, a); err != nil {
		writeFail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"ok": true, "id": a.ID})
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	e, err := s.stores.Entries.Get(r.Context(), defaultOwner, r.PathValue("id"))
	if err != nil {
		writeFail(w, err)
		return
	}
	assets, err := s.stores.Entries.ListAssets(r.Context(), defaultOwner, e.ID)
	if err != nil {
		writeFail(w, err)
		return
	}
	views := make([]protocol.AssetInfo, 0, len(assets))
	for _, a := range assets {
		views = append(views, protocol.AssetInfo{
			ID:        a.ID,
			Name:      a.Name,
			MediaType: a.MediaType,
			Size:      a.Size,
			CreatedAt: a.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "assets": views})
}

func (s *Server) handleListRelationships(w http.ResponseWriter, r *http.Request) {
	direction := r.URL.Query().Get("direction")
	if direction == "" {
		direction = "both"
	}
	rels, err := s.stores.Relationships.List(r.Context(), defaultOwner,
		r.PathValue("id"), r.URL.Query().Get("type"), direction)
	if err != nil {
		writeFail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "relationships": rels})
}

func (s *Server) handleBlockingChain(w http.ResponseWriter, r *http.Request) {
	rels, err := s.stores.Relationships.BlockingChain(r.Context(), defaultOwner, r.PathValue("id"))
	if err != nil {
		writeFail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "chain": rels})
}
