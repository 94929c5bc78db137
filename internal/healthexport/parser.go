// Package healthexport streams an Apple Health export.xml into the store.
//
// The document is walked token by token. Flat Record elements are normalized and
// buffered immediately; Workout elements are assembled across their children and
// reconciled when the closing tag arrives. ActivitySummary and Me elements are
// upserted one at a time. Memory stays bounded by the buffer thresholds regardless
// of export size.
package healthexport

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/jordangarrison/vitals/internal/batch"
	"github.com/jordangarrison/vitals/internal/domain"
	"github.com/jordangarrison/vitals/internal/workoutstats"
)

// ErrMalformedStream is returned when the XML document itself cannot be decoded.
var ErrMalformedStream = errors.New("malformed export stream")

// Element names handled by the parser.
const (
	elementRecord            = "Record"
	elementWorkout           = "Workout"
	elementWorkoutStatistics = "WorkoutStatistics"
	elementMetadataEntry     = "MetadataEntry"
	elementFileReference     = "FileReference"
	elementActivitySummary   = "ActivitySummary"
	elementMe                = "Me"
)

// RouteFileKey is the workout metadata key holding the referenced route file.
const RouteFileKey = "routeFile"

// Store persists the elements that are written one at a time.
type Store interface {
	UpsertActivitySummary(ctx context.Context, summary domain.ActivitySummary) error
	UpsertProfile(ctx context.Context, profile domain.UserProfile) error
}

// Buffers are the table-scoped writers the parser feeds.
type Buffers struct {
	Records  *batch.Buffer[domain.HealthRecord]
	Workouts *batch.Buffer[domain.Workout]
}

// Stats summarises one parse.
type Stats struct {
	RecordsProcessed    int
	WorkoutsProcessed   int
	ActivitiesProcessed int
	ProfilesProcessed   int
	Skipped             int
	Errors              []string
}

type state int

const (
	stateIdle state = iota
	stateInSimpleRecord
	stateInWorkout
	stateInActivitySummary
	stateInProfile
)

func (s state) String() string {
	switch s {
	case stateInSimpleRecord:
		return "in-record"
	case stateInWorkout:
		return "in-workout"
	case stateInActivitySummary:
		return "in-activity-summary"
	case stateInProfile:
		return "in-profile"
	default:
		return "idle"
	}
}

// assembly is the workout currently being built. A nil workout means the opening
// element was rejected and its children are ignored.
type assembly struct {
	workout  *domain.Workout
	depth    int
	stats    []domain.WorkoutStatistic
	metadata map[string]string
}

// Option configures optional behaviour for the Parser.
type Option func(*Parser)

// WithLogger overrides the parser logger.
func WithLogger(logger *log.Logger) Option {
	return func(p *Parser) {
		p.logger = logger
	}
}

// Parser turns one export stream into buffered writes for a single owner.
type Parser struct {
	ownerID string
	buffers Buffers
	store   Store
	logger  *log.Logger

	state      state
	depth      int
	current    assembly
	errs       batch.ErrorLog
	skipped    int
	activities int
	profiles   int
}

// NewParser constructs a Parser writing on behalf of ownerID.
func NewParser(ownerID string, buffers Buffers, store Store, opts ...Option) *Parser {
	p := &Parser{
		ownerID: ownerID,
		buffers: buffers,
		store:   store,
		logger:  log.New(log.Writer(), "[healthexport] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse consumes r until EOF. Element-level problems are counted or recorded in
// Stats.Errors; only a decoder failure aborts, wrapped in ErrMalformedStream.
// Batches committed before the failure stay committed.
func (p *Parser) Parse(ctx context.Context, r io.Reader) (Stats, error) {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			p.logger.Printf("export stream aborted in state %s: %v", p.state, err)
			return p.stats(), fmt.Errorf("%w: %v", ErrMalformedStream, err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			p.depth++
			p.open(ctx, el.Name.Local, attributes(el.Attr))
		case xml.EndElement:
			p.close(ctx, el.Name.Local)
			p.depth--
		}
	}

	p.flush(ctx)
	if p.skipped > 0 {
		p.logger.Printf("skipped %d unusable elements", p.skipped)
	}
	return p.stats(), nil
}

func (p *Parser) open(ctx context.Context, name string, a attributes) {
	switch name {
	case elementRecord:
		// Records nested in a Correlation are still records.
		if p.state == stateIdle {
			p.state = stateInSimpleRecord
		}
		p.handleRecord(ctx, a)
	case elementWorkout:
		p.beginWorkout(a)
	case elementWorkoutStatistics:
		if p.state == stateInWorkout && p.current.workout != nil {
			p.current.stats = append(p.current.stats, decodeStatistic(a))
		}
	case elementMetadataEntry:
		if p.state == stateInWorkout && p.current.workout != nil && p.depth == p.current.depth+1 {
			if key := a.get("key"); key != "" {
				p.current.metadata[key] = a.get("value")
			}
		}
	case elementFileReference:
		if p.state == stateInWorkout && p.current.workout != nil {
			if path := a.get("path"); path != "" {
				p.current.metadata[RouteFileKey] = path
			}
		}
	case elementActivitySummary:
		if p.state == stateIdle {
			p.state = stateInActivitySummary
		}
		p.handleActivitySummary(ctx, a)
	case elementMe:
		if p.state == stateIdle {
			p.state = stateInProfile
		}
		p.handleProfile(ctx, a)
	}
}

func (p *Parser) close(ctx context.Context, name string) {
	switch {
	case name == elementRecord && p.state == stateInSimpleRecord:
		p.state = stateIdle
	case name == elementWorkout && p.state == stateInWorkout && p.depth == p.current.depth:
		p.finishWorkout(ctx)
		p.state = stateIdle
	case name == elementActivitySummary && p.state == stateInActivitySummary:
		p.state = stateIdle
	case name == elementMe && p.state == stateInProfile:
		p.state = stateIdle
	}
}

func (p *Parser) handleRecord(ctx context.Context, a attributes) {
	rec, err := decodeRecord(p.ownerID, a)
	if err != nil {
		p.skip(elementRecord)
		return
	}
	recordElement(elementRecord)
	// A failed flush is already recorded by the buffer.
	_ = p.buffers.Records.Enqueue(ctx, rec)
}

func (p *Parser) beginWorkout(a attributes) {
	if p.state == stateInWorkout {
		p.errs.Add("nested workout element at depth %d ignored", p.depth)
		return
	}
	p.state = stateInWorkout
	p.current = assembly{depth: p.depth, metadata: make(map[string]string)}

	w, err := decodeWorkout(p.ownerID, a)
	if err != nil {
		p.skip(elementWorkout)
		return
	}
	p.current.workout = &w
}

func (p *Parser) finishWorkout(ctx context.Context) {
	current := p.current
	p.current = assembly{}
	if current.workout == nil {
		return
	}

	w := current.workout
	if err := workoutstats.Reconcile(w, current.stats, current.metadata); err != nil {
		p.errs.Add("workout %s: %v", w.StartTime.Format(TimestampLayout), err)
		return
	}
	recordElement(elementWorkout)
	_ = p.buffers.Workouts.Enqueue(ctx, *w)
}

func (p *Parser) handleActivitySummary(ctx context.Context, a attributes) {
	summary, err := decodeActivitySummary(p.ownerID, a)
	if err != nil {
		p.skip(elementActivitySummary)
		return
	}
	if err := p.store.UpsertActivitySummary(ctx, summary); err != nil {
		p.errs.Add("activity summary %s: %v", summary.Date.Format(DateLayout), err)
		return
	}
	recordElement(elementActivitySummary)
	p.activities++
}

func (p *Parser) handleProfile(ctx context.Context, a attributes) {
	if err := p.store.UpsertProfile(ctx, decodeProfile(p.ownerID, a)); err != nil {
		p.errs.Add("profile: %v", err)
		return
	}
	recordElement(elementMe)
	p.profiles++
}

func (p *Parser) skip(element string) {
	p.skipped++
	recordSkipped(element)
}

func (p *Parser) flush(ctx context.Context) {
	_ = p.buffers.Records.Flush(ctx)
	_ = p.buffers.Workouts.Flush(ctx)
}

func (p *Parser) stats() Stats {
	errs := p.errs.Messages()
	errs = append(errs, p.buffers.Records.Errors()...)
	errs = append(errs, p.buffers.Workouts.Errors()...)
	return Stats{
		RecordsProcessed:    p.buffers.Records.Committed(),
		WorkoutsProcessed:   p.buffers.Workouts.Committed(),
		ActivitiesProcessed: p.activities,
		ProfilesProcessed:   p.profiles,
		Skipped:             p.skipped,
		Errors:              errs,
	}
}
