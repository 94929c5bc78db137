package routes

import (
	"fmt"
	"io"

	"github.com/muktihari/fit/decoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"

	"github.com/jordangarrison/vitals/internal/domain"
)

// semicircles per degree: 2^31 / 180.
const semicircleConst = 11930464.7111

// ParseFIT extracts positioned record messages from a FIT activity file. Records
// without a fix are skipped; chained FIT files are read in sequence.
func ParseFIT(r io.Reader) (Track, error) {
	var track Track
	dec := decoder.New(r)
	for dec.Next() {
		fit, err := dec.Decode()
		if err != nil {
			return Track{}, fmt.Errorf("decode fit: %w", err)
		}
		for i := range fit.Messages {
			msg := &fit.Messages[i]
			switch msg.Num {
			case typedef.MesgNumSession:
				if track.Name == "" {
					track.Name = mesgdef.NewSession(msg).SportProfileName
				}
			case typedef.MesgNumRecord:
				if pt, ok := fitPoint(msg); ok {
					track.Points = append(track.Points, pt)
				}
			}
		}
	}
	return track, nil
}

func fitPoint(msg *proto.Message) (domain.TrackPoint, bool) {
	rec := mesgdef.NewRecord(msg)
	if rec.PositionLat == 0x7FFFFFFF || rec.PositionLong == 0x7FFFFFFF {
		return domain.TrackPoint{}, false
	}

	pt := domain.TrackPoint{
		Lat: float64(rec.PositionLat) / semicircleConst,
		Lon: float64(rec.PositionLong) / semicircleConst,
	}
	if !rec.Timestamp.IsZero() {
		ts := rec.Timestamp.UTC()
		pt.Time = &ts
	}
	if rec.Altitude != 0xFFFF {
		ele := float64(rec.Altitude)/5 - 500
		pt.Elevation = &ele
	}
	if rec.Speed != 0xFFFF {
		speed := float64(rec.Speed) / 1000
		pt.Speed = &speed
	}
	return pt, true
}
