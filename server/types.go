package server

import (
	"encoding/json"
	"time"

	"github.com/teranos/ldschema/jsonld"
	"github.com/teranos/ldschema/jsonld/quality"
	"github.com/teranos/ldschema/storage"
)

const (
	// ShutdownTimeout is how long in-flight requests get to finish
	ShutdownTimeout = 30 * time.Second

	maxBodyBytes = 1 << 20

	headerUserID     = "X-User-ID"
	headerUserName   = "X-User-Name"
	headerDebugToken = "X-Debug-Token"
)

// ServerState represents the server lifecycle state
type ServerState int32

const (
	ServerStateRunning  ServerState = iota // Normal operation
	ServerStateDraining                    // Graceful shutdown in progress
	ServerStateStopped                     // Shutdown complete
)

type repairRequest struct {
	// Data replaces the stored schema as the repair input when set
	Data json.RawMessage `json:"data,omitempty"`
}

type generateRequest struct {
	Type string `json:"type" validate:"required"`
}

type inspectRequest struct {
	URL string `json:"url" validate:"required,url"`
}

type validateResponse struct {
	Report jsonld.Report `json:"report"`
	Types  []string      `json:"types"`
}

type historyResponse struct {
	ContentID string            `json:"content_id"`
	Versions  []storage.Version `json:"versions"`
}

type reviewResponse struct {
	Count   int                   `json:"count"`
	Entries []quality.ReviewEntry `json:"entries"`
}

type statsResponse struct {
	storage.Stats
	PendingReview int             `json:"pending_review"`
	Recent        []storage.Event `json:"recent"`
}

type cacheResponse struct {
	Version int64 `json:"version"`
}
