package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jordangarrison/vitals/internal/domain"
	"github.com/jordangarrison/vitals/internal/events"
	"github.com/jordangarrison/vitals/internal/routes"
)

// RouteStore is what the linker needs: workout matching plus the import audit.
type RouteStore interface {
	routes.Store
	RecordImport(ctx context.Context, rec domain.ImportRecord) (domain.ImportRecord, error)
}

// RouteLinkHandler runs the route matcher when an apple-health import completes
// with a routes directory attached. Linking is an upsert, so redelivered events
// are harmless.
type RouteLinkHandler struct {
	store   RouteStore
	matcher *routes.Matcher
	logger  *log.Logger
}

// NewRouteLinkHandler constructs a RouteLinkHandler. A nil logger gets the default.
func NewRouteLinkHandler(store RouteStore, tolerance time.Duration, logger *log.Logger) *RouteLinkHandler {
	if logger == nil {
		logger = log.New(log.Writer(), "[linker] ", log.LstdFlags|log.Lshortfile)
	}
	return &RouteLinkHandler{
		store:   store,
		matcher: routes.NewMatcher(store, routes.WithLogger(logger), routes.WithTolerance(tolerance)),
		logger:  logger,
	}
}

// Handle ignores every event except apple-health import.completed events with a
// routes_dir. The matcher run is audited as its own workout-routes import.
func (h *RouteLinkHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.ImportCompletedType {
		recordIgnored(msg)
		return nil
	}

	var event events.ImportCompleted
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("decode %s: %w", msg.EventType, err)
	}
	if event.SourceType != domain.SourceAppleHealth || strings.TrimSpace(event.RoutesDir) == "" {
		recordIgnored(msg)
		return nil
	}
	if event.OwnerID == "" {
		event.OwnerID = msg.OwnerID
	}

	if _, err := os.Stat(event.RoutesDir); errors.Is(err, fs.ErrNotExist) {
		h.logger.Printf("routes directory %s for import %s does not exist; nothing to link", event.RoutesDir, event.ImportID)
		return nil
	}

	stats, err := h.matcher.MatchDirectory(ctx, event.OwnerID, event.RoutesDir)
	if err != nil {
		return fmt.Errorf("match routes for import %s: %w", event.ImportID, err)
	}
	h.logger.Printf("import %s: %d route files, %d linked, %d unlinked", event.ImportID, stats.FilesProcessed, stats.Linked, stats.Unlinked)

	_, err = h.store.RecordImport(ctx, domain.ImportRecord{
		OwnerID:         event.OwnerID,
		SourceType:      domain.SourceRoutes,
		SourceFile:      event.RoutesDir,
		RecordsImported: stats.Linked,
		Status:          domain.StatusFor(stats.Errors),
		ErrorLog:        strings.Join(stats.Errors, "\n"),
	})
	if err != nil {
		return fmt.Errorf("record route import: %w", err)
	}
	return nil
}
