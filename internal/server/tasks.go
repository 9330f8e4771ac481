package server

import (
	"errors"
	"net/http"

	"github.com/trinsiklabs/onelist/internal/store"
	"github.com/trinsiklabs/onelist/pkg/protocol"
)

func (s *Server) handleCreateRelationship(w http.ResponseWriter, r *http.Request) {
	var req protocol.RelationshipRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, protocol.CodeInvalid, "invalid JSON: "+err.Error())
		return
	}
	if req.SourceEntryID == "" || req.TargetEntryID == "" || req.RelationshipType == "" {
		writeErr(w, http.StatusBadRequest, protocol.CodeInvalid,
			"source_entry_id, target_entry_id and relationship_type required")
		return
	}

	rel := &store.Relationship{
		OwnerID:  defaultOwner,
		SourceID: req.SourceEntryID,
		TargetID: req.TargetEntryID,
		Type:     req.RelationshipType,
		Metadata: req.Metadata,
	}
	if err := s.stores.Relationships.Create(r.Context(), rel); err != nil {
		writeFail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"ok": true, "id": rel.ID})
}

// handleClaimTask races concurrent claimants; the partial unique index
// under the store guarantees a single winner.
func (s *Server) handleClaimTask(w http.ResponseWriter, r *http.Request) {
	err := s.stores.Tasks.Claim(r.Context(), defaultOwner, r.PathValue("id"), claimantFrom(r))
	if errors.Is(err, store.ErrAlreadyClaimed) {
		writeErr(w, http.StatusConflict, protocol.CodeAlreadyClaimed, "task already claimed")
		return
	}
	if err != nil {
		writeFail(w, err)
		return
	}

	s.events.Broadcast(protocol.NewEvent(protocol.EventTaskClaimed, map[string]string{
		"task_id": r.PathValue("id"), "claimed_by": claimantFrom(r),
	}))
	writeJSON(w, http.StatusOK, protocol.ClaimResponse{OK: true, Claimed: true})
}

func (s *Server) handleAssignedTasks(w http.ResponseWriter, r *http.Request) {
	includeChildren := r.URL.Query().Get("include_children") == "true"
	tasks, err := s.stores.Tasks.AssignedTasks(r.Context(), defaultOwner, r.PathValue("id"), includeChildren)
	if err != nil {
		writeFail(w, err)
		return
	}

	views := make([]protocol.EntryResponse, 0, len(tasks))
	for i := range tasks {
		views = append(views, entryView(&tasks[i]))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "tasks": views})
}
