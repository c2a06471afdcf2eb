package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/teranos/ldschema/errors"
	"github.com/teranos/ldschema/logger"
	"github.com/teranos/ldschema/storage"
)

// errorBody is the JSON shape of every error response
type errorBody struct {
	Error     string   `json:"error"`
	Hints     []string `json:"hints,omitempty"`
	Retryable bool     `json:"retryable,omitempty"` // the same request may succeed later
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// writeErr maps err onto a status and writes it with any attached hints.
// Server faults are logged; client faults are not.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context(), s.logger).Errorw("Request failed",
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldStatus, status,
			logger.FieldError, err)
	}
	writeJSON(w, status, errorBody{
		Error:     err.Error(),
		Hints:     errors.GetAllHints(err),
		Retryable: errors.IsRetryable(err),
	})
}

// readJSON decodes a JSON request body and validates the result. An empty
// body leaves v untouched when allowEmpty is set.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v interface{}, allowEmpty bool) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return errors.NewInvalidRequestError("read request body: %v", err)
	}
	if len(body) == 0 {
		if allowEmpty {
			return nil
		}
		return errors.NewInvalidRequestError("request body is required")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.NewInvalidRequestError("Invalid request body: %v", err)
	}
	if err := s.validate.Struct(v); err != nil {
		return errors.NewInvalidRequestError("%v", err)
	}
	return nil
}

// readBody reads a raw request body up to maxBodyBytes
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.NewInvalidRequestError("read request body: %v", err)
	}
	return body, nil
}

// actorFrom identifies the caller from the X-User-ID and X-User-Name
// headers, falling back to the system actor
func actorFrom(r *http.Request) storage.Actor {
	id := r.Header.Get(headerUserID)
	if id == "" {
		return storage.SystemActor
	}
	name := r.Header.Get(headerUserName)
	if name == "" {
		name = id
	}
	return storage.Actor{ID: id, Name: name}
}

// indexParam parses a non-negative integer path parameter
func indexParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.NewInvalidRequestError("%s must be a non-negative integer, got %q", name, raw)
	}
	return n, nil
}
