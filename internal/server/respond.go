package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/trinsiklabs/onelist/internal/ingest"
	"github.com/trinsiklabs/onelist/internal/memory"
	"github.com/trinsiklabs/onelist/internal/store"
	"github.com/trinsiklabs/onelist/pkg/protocol"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeErr(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, protocol.ErrorBody{
		OK:    false,
		Error: protocol.ErrorDetail{Code: code, Message: message},
	})
}

// writeFail maps internal errors to the wire envelope.
func writeFail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, ingest.ErrUnknownMessage):
		writeErr(w, http.StatusNotFound, protocol.CodeNotFound, err.Error())
	case errors.Is(err, store.ErrAlreadyClaimed):
		writeErr(w, http.StatusConflict, protocol.CodeAlreadyClaimed, err.Error())
	case errors.Is(err, store.ErrConflict):
		writeErr(w, http.StatusConflict, protocol.CodeConflict, err.Error())
	case errors.Is(err, memory.ErrDuplicate):
		writeErr(w, http.StatusConflict, protocol.CodeDuplicate, err.Error())
	case errors.Is(err, memory.ErrDerivationLimit):
		writeErr(w, http.StatusUnprocessableEntity, protocol.CodeDerivationLimit, err.Error())
	case errors.Is(err, ingest.ErrBadSessionKey), errors.Is(err, ingest.ErrMissingRole):
		writeErr(w, http.StatusBadRequest, protocol.CodeInvalid, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeErr(w, http.StatusInternalServerError, protocol.CodeInternal, "internal error")
	}
}

func decode(r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 4<<20)).Decode(v)
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

// provenanceFrom reads the identity headers off the request.
func provenanceFrom(r *http.Request) protocol.Provenance {
	return protocol.Provenance{
		AgentKind:    r.Header.Get(protocol.HeaderAgentID),
		AgentVersion: r.Header.Get(protocol.HeaderAgentVersion),
		InstanceID:   r.Header.Get(protocol.HeaderAgentInstanceID),
		SubagentID:   r.Header.Get(protocol.HeaderAgentSubagentID),
	}
}

// claimantFrom picks the most specific identity for task claims: a named
// sub-agent beats the installation instance beats the bare kind.
func claimantFrom(r *http.Request) string {
	p := provenanceFrom(r)
	switch {
	case p.SubagentID != "":
		return p.SubagentID
	case p.InstanceID != "":
		return p.InstanceID
	default:
		return p.AgentKind
	}
}

func entryView(e *store.Entry) protocol.EntryResponse {
	resp := protocol.EntryResponse{
		ID:        e.ID,
		PublicID:  e.PublicID,
		OwnerID:   e.OwnerID,
		Title:     e.Title,
		EntryType: protocol.EntryType(e.EntryType),
		Metadata:  e.Metadata,
		Version:   e.Revision,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	if e.AgentKind != "" || e.InstanceID != "" {
		resp.Provenance = &protocol.Provenance{
			AgentKind:    e.AgentKind,
			AgentVersion: e.AgentVersion,
			InstanceID:   e.InstanceID,
			SubagentID:   e.SubagentID,
		}
	}
	return resp
}
