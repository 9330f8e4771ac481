package server

import (
	"net/http"
	"time"

	"github.com/trinsiklabs/onelist/internal/importer"
	"github.com/trinsiklabs/onelist/pkg/protocol"
)

func (s *Server) handleImportPreview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	root := q.Get("root")
	if root == "" {
		writeErr(w, http.StatusBadRequest, protocol.CodeInvalid, "root required")
		return
	}
	filter := protocol.ImportFilter{AgentKind: q.Get("agent_kind")}
	var err error
	if filter.After, err = timeParam(q.Get("after")); err != nil {
		writeErr(w, http.StatusBadRequest, protocol.CodeInvalid, "after must be RFC 3339")
		return
	}
	if filter.Before, err = timeParam(q.Get("before")); err != nil {
		writeErr(w, http.StatusBadRequest, protocol.CodeInvalid, "before must be RFC 3339")
		return
	}
	files, err := importer.List(root, filter)
	if err != nil {
		writeFail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "files": files})
}

func (s *Server) handleImportRun(w http.ResponseWriter, r *http.Request) {
	var req protocol.ImportRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, protocol.CodeInvalid, "invalid JSON: "+err.Error())
		return
	}
	if req.Root == "" {
		writeErr(w, http.StatusBadRequest, protocol.CodeInvalid, "root required")
		return
	}

	resp, err := s.imp.Run(r.Context(), defaultOwner, req.Root, req.Filter)
	if err != nil {
		writeFail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleImportFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path      string `json:"path"`
		AgentKind string `json:"agent_kind"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, protocol.CodeInvalid, "invalid JSON: "+err.Error())
		return
	}
	if req.Path == "" || req.AgentKind == "" {
		writeErr(w, http.StatusBadRequest, protocol.CodeInvalid, "path and agent_kind required")
		return
	}

	res := s.imp.ImportFile(r.Context(), defaultOwner, req.Path, req.AgentKind)
	writeJSON(w, http.StatusOK, res)
}

func timeParam(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
