// Package storage persists per-content structured data in SQLite: the
// current schema record, a bounded version history, the review queue and
// the validation event log. Tables come from db/sqlite/migrations.
package storage

// Actor identifies who made a change, for history attribution
type Actor struct {
	ID   string `json:"user_id"`
	Name string `json:"user_name"`
}

// SystemActor is used for unattended runs
var SystemActor = Actor{ID: "system", Name: "ldschema"}
