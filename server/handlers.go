package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/teranos/ldschema/jsonld"
	"github.com/teranos/ldschema/logger"
	"github.com/teranos/ldschema/workflow"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.getState()
	status := http.StatusOK
	if state != ServerStateRunning {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"status": stateString(state)})
}

// handleValidate validates a posted JSON-LD document without storing it
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	doc, err := jsonld.Parse(body)
	if err != nil {
		report := jsonld.NewReport()
		report.AddError("", "Invalid JSON: %v", err)
		writeJSON(w, http.StatusOK, validateResponse{Report: *report, Types: []string{}})
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{
		Report: s.repairer.Check(doc),
		Types:  documentTypes(doc),
	})
}

// handleRepair repairs the stored schema of a content item, or the posted
// data when the body carries one
func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req repairRequest
	if err := s.readJSON(w, r, &req, true); err != nil {
		s.writeErr(w, r, err)
		return
	}

	actor := actorFrom(r)
	raw := rawInput(req.Data)
	s.logger.Debugw("Repair requested", logger.FieldContentID, id, logger.FieldUserID, actor.ID, "inline", raw != "")

	var (
		out *workflow.Outcome
		err error
	)
	if raw != "" {
		out, err = s.workflow.RepairRaw(r.Context(), id, raw, actor)
	} else {
		out, err = s.workflow.Repair(r.Context(), id, actor)
	}
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := s.readJSON(w, r, &req, false); err != nil {
		s.writeErr(w, r, err)
		return
	}

	out, err := s.workflow.Generate(r.Context(), chi.URLParam(r, "id"), req.Type, actorFrom(r))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// rawInput turns the optional repair payload into model-style text: a JSON
// string is used verbatim, anything else as its JSON encoding
func rawInput(data json.RawMessage) string {
	if len(data) == 0 || string(data) == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		return text
	}
	return string(data)
}

// documentTypes lists the primary types of a document's top-level nodes
func documentTypes(doc any) []string {
	items, _ := jsonld.GraphItems(doc)
	types := []string{}
	for _, item := range items {
		if n, ok := jsonld.AsNode(item); ok {
			if t := n.PrimaryType(); t != "" {
				types = append(types, t)
			}
		}
	}
	return types
}
