package server

import (
	"net/http"

	"github.com/trinsiklabs/onelist/pkg/protocol"
)

// handleCheckDerivation runs the pre-flight probe: would this memory write
// be rejected as a duplicate or a depth violation? Nothing is written.
func (s *Server) handleCheckDerivation(w http.ResponseWriter, r *http.Request) {
	var req protocol.CheckDerivationRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, protocol.CodeInvalid, "invalid JSON: "+err.Error())
		return
	}
	if req.Content == "" {
		writeErr(w, http.StatusBadRequest, protocol.CodeInvalid, "content required")
		return
	}
	agent := req.SourceAgent
	if agent == "" {
		agent = provenanceFrom(r).AgentKind
	}

	v, err := s.guard.Check(r.Context(), defaultOwner, req.Content, agent, req.DerivedFromID)
	if err != nil {
		writeFail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.CheckDerivationResponse{
		OK:        true,
		Duplicate: v.Duplicate,
		Depth:     v.Depth,
	})
}

func (s *Server) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	res, err := s.chain.Verify(r.Context(), defaultOwner)
	if err != nil {
		writeFail(w, err)
		return
	}
	resp := protocol.ChainVerifyResponse{OK: true, Broken: !res.OK}
	if !res.OK {
		resp.AtSequence = res.AtSequence
	}
	writeJSON(w, http.StatusOK, resp)
}
