package routes

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jordangarrison/vitals/internal/domain"
)

type gpxPoint struct {
	Lat   float64  `xml:"lat,attr"`
	Lon   float64  `xml:"lon,attr"`
	Ele   *float64 `xml:"ele"`
	Time  string   `xml:"time"`
	Speed *float64 `xml:"extensions>speed"`
}

// ParseGPX streams the trkpt elements of a GPX document. Points are decoded one at
// a time so large tracks never materialise as a DOM.
func ParseGPX(r io.Reader) (Track, error) {
	var (
		track   Track
		inTrack bool
	)
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return track, nil
		}
		if err != nil {
			return Track{}, fmt.Errorf("decode gpx: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "trk":
				inTrack = true
			case "name":
				if !inTrack || track.Name != "" {
					continue
				}
				var name string
				if err := dec.DecodeElement(&name, &el); err != nil {
					return Track{}, fmt.Errorf("decode gpx name: %w", err)
				}
				track.Name = strings.TrimSpace(name)
			case "trkpt":
				var pt gpxPoint
				if err := dec.DecodeElement(&pt, &el); err != nil {
					return Track{}, fmt.Errorf("decode trkpt: %w", err)
				}
				track.Points = append(track.Points, pt.toDomain())
			}
		case xml.EndElement:
			if el.Name.Local == "trk" {
				inTrack = false
			}
		}
	}
}

func (p gpxPoint) toDomain() domain.TrackPoint {
	out := domain.TrackPoint{
		Lat:       p.Lat,
		Lon:       p.Lon,
		Elevation: p.Ele,
		Speed:     p.Speed,
	}
	if raw := strings.TrimSpace(p.Time); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			ts = ts.UTC()
			out.Time = &ts
		}
	}
	return out
}
