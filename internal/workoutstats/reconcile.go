// Package workoutstats derives workout aggregates from the statistics nested inside a
// workout element.
package workoutstats

import (
	"encoding/json"
	"fmt"

	"github.com/jordangarrison/vitals/internal/domain"
	"github.com/jordangarrison/vitals/internal/units"
)

// Statistic types that feed the derived energy total.
const (
	ActiveEnergy = "active_energy_burned"
	BasalEnergy  = "basal_energy_burned"
)

var distanceTypes = map[string]struct{}{
	"walking_running_distance":      {},
	"cycling_distance":              {},
	"swimming_distance":             {},
	"wheelchair_distance":           {},
	"downhill_snow_sports_distance": {},
}

// Blob is the JSON document stored in workouts.metadata.
type Blob struct {
	Statistics []domain.WorkoutStatistic `json:"statistics"`
	Metadata   map[string]string         `json:"metadata,omitempty"`
}

// Reconcile fills the workout's energy and distance from its statistics when the
// element did not carry them directly, then stores every statistic in Metadata.
// A direct value of zero counts as missing; any other direct value is kept.
func Reconcile(w *domain.Workout, stats []domain.WorkoutStatistic, metadata map[string]string) error {
	if unset(w.EnergyKcal) {
		if kcal, ok := Energy(stats); ok {
			w.EnergyKcal = &kcal
		}
	}
	if unset(w.DistanceKm) {
		if km, ok := Distance(stats); ok {
			w.DistanceKm = &km
		}
	}

	if len(stats) == 0 && len(metadata) == 0 {
		return nil
	}
	if stats == nil {
		stats = []domain.WorkoutStatistic{}
	}
	blob, err := json.Marshal(Blob{Statistics: stats, Metadata: metadata})
	if err != nil {
		return fmt.Errorf("encode workout statistics: %w", err)
	}
	w.Metadata = blob
	return nil
}

func unset(v *float64) bool {
	return v == nil || *v == 0
}

// Energy sums active and basal energy statistics in kilocalories. It reports false
// when neither is present, so callers can leave energy unset rather than zero.
func Energy(stats []domain.WorkoutStatistic) (float64, bool) {
	var total float64
	found := false
	for _, s := range stats {
		if s.Type != ActiveEnergy && s.Type != BasalEnergy {
			continue
		}
		if s.Sum == nil {
			continue
		}
		kcal, ok := units.ToKilocalories(*s.Sum, s.Unit)
		if !ok {
			continue
		}
		total += kcal
		found = true
	}
	return total, found
}

// Distance picks the workout distance in kilometres from the distance statistics.
// The first non-zero kilometre entry wins, then the first mile entry, then the first
// entry in any other distance unit. Within a tier, stream order decides.
func Distance(stats []domain.WorkoutStatistic) (float64, bool) {
	var miles, other *float64
	for _, s := range stats {
		if _, ok := distanceTypes[s.Type]; !ok {
			continue
		}
		if s.Sum == nil || *s.Sum == 0 {
			continue
		}
		switch s.Unit {
		case "km":
			return *s.Sum, true
		case "mi":
			if miles == nil {
				km, _ := units.ToKilometers(*s.Sum, s.Unit)
				miles = &km
			}
		default:
			if other == nil {
				if km, ok := units.ToKilometers(*s.Sum, s.Unit); ok {
					other = &km
				}
			}
		}
	}
	if miles != nil {
		return *miles, true
	}
	if other != nil {
		return *other, true
	}
	return 0, false
}
