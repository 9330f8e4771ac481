package server

import (
	"net/http"

	"github.com/trinsiklabs/onelist/pkg/protocol"
)

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	var req protocol.AppendRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, protocol.CodeInvalid, "invalid JSON: "+err.Error())
		return
	}

	resp, err := s.ingest.Append(r.Context(), defaultOwner, provenanceFrom(r), &req)
	if err != nil {
		writeFail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReaction(w http.ResponseWriter, r *http.Request) {
	var req protocol.ReactionRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, protocol.CodeInvalid, "invalid JSON: "+err.Error())
		return
	}
	if req.TargetMessageID == "" || req.Emoji == "" {
		writeErr(w, http.StatusBadRequest, protocol.CodeInvalid, "target_message_id and emoji required")
		return
	}

	if err := s.ingest.React(r.Context(), defaultOwner, &req); err != nil {
		writeFail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
