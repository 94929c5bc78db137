// Package routes parses recorded GPS tracks and links them to the workout they
// were recorded during.
package routes

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jordangarrison/vitals/internal/domain"
)

// ErrNoTimedPoints is returned for tracks that carry no timestamped point.
var ErrNoTimedPoints = errors.New("no timestamps found")

// ErrUnsupportedFormat is returned for files that are neither GPX nor FIT.
var ErrUnsupportedFormat = errors.New("unsupported track format")

// Track is a parsed route file.
type Track struct {
	Name   string
	Points []domain.TrackPoint
}

// Bounds returns the times of the first and last timed points.
func (t Track) Bounds() (start, end time.Time, err error) {
	first, last := -1, -1
	for i, p := range t.Points {
		if p.Time == nil {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	if first < 0 {
		return time.Time{}, time.Time{}, ErrNoTimedPoints
	}
	return *t.Points[first].Time, *t.Points[last].Time, nil
}

// Supported reports whether the file extension is a track format this package reads.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gpx", ".fit":
		return true
	}
	return false
}

// ParseFile decodes a GPX or FIT file by extension.
func ParseFile(path string) (Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return Track{}, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gpx":
		return ParseGPX(f)
	case ".fit":
		return ParseFIT(f)
	}
	return Track{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
}
