// Package events defines the payloads published through the outbox.
package events

import "time"

// Event types and their topics.
const (
	ImportCompletedType  = "import.completed"
	ImportCompletedTopic = "import_events"
)

// Kafka headers set on every published event.
const (
	HeaderEventType     = "event_type"
	HeaderOwnerID       = "owner_id"
	HeaderSchemaSubject = "schema_subject"
)

// ImportCompleted is emitted once per audited import phase.
type ImportCompleted struct {
	ImportID        string    `json:"import_id"`
	OwnerID         string    `json:"owner_id"`
	SourceType      string    `json:"source_type"`
	SourceFile      string    `json:"source_file"`
	RecordsImported int       `json:"records_imported"`
	Status          string    `json:"status"`
	ImportedAt      time.Time `json:"imported_at"`
	RoutesDir       string    `json:"routes_dir,omitempty"`
}
