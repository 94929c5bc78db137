package domain

import "time"

// ImportStatus is the outcome of one ingestion phase.
type ImportStatus string

const (
	ImportStatusSuccess ImportStatus = "success"
	ImportStatusPartial ImportStatus = "partial"
	ImportStatusFailed  ImportStatus = "failed"
)

// ImportRecord is the append-only audit row written once per ingestion phase.
type ImportRecord struct {
	ID              string
	OwnerID         string
	SourceType      string
	SourceFile      string
	ImportedAt      time.Time
	RecordsImported int
	Status          ImportStatus
	ErrorLog        string
	// RoutesDir travels on the import.completed event only.
	RoutesDir string
}

// StatusFor maps an error list to a phase status.
func StatusFor(errs []string) ImportStatus {
	if len(errs) == 0 {
		return ImportStatusSuccess
	}
	return ImportStatusFailed
}
