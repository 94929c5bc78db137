package healthexport

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jordangarrison/vitals/internal/domain"
	"github.com/jordangarrison/vitals/internal/units"
)

// Layouts used by the export.
const (
	TimestampLayout = "2006-01-02 15:04:05 -0700"
	DateLayout      = "2006-01-02"
)

// UnknownSource labels records that carry no sourceName attribute.
const UnknownSource = "Unknown"

var errMissingAttribute = errors.New("missing required attribute")

// workoutNamespace seeds deterministic workout identifiers for exports that omit uuid.
var workoutNamespace = uuid.MustParse("6f1c3a5e-2b7d-4d0a-9c3e-5a8b1e2f4c60")

type attributes []xml.Attr

func (a attributes) get(name string) string {
	for _, attr := range a {
		if attr.Name.Local == name {
			return attr.Value
		}
	}
	return ""
}

func (a attributes) require(name string) (string, error) {
	v := strings.TrimSpace(a.get(name))
	if v == "" {
		return "", fmt.Errorf("%w: %s", errMissingAttribute, name)
	}
	return v, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	return time.Parse(TimestampLayout, strings.TrimSpace(raw))
}

func optionalTimestamp(raw string) *time.Time {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	ts, err := parseTimestamp(raw)
	if err != nil {
		return nil
	}
	return &ts
}

func optionalFloat(raw string) *float64 {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	v, err := units.ParseValue(raw)
	if err != nil {
		return nil
	}
	return &v
}

func optionalInt(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		f, ferr := units.ParseValue(raw)
		if ferr != nil {
			return nil
		}
		v = int(f)
	}
	return &v
}

func decodeRecord(ownerID string, a attributes) (domain.HealthRecord, error) {
	typ, err := a.require("type")
	if err != nil {
		return domain.HealthRecord{}, err
	}
	raw, err := a.require("value")
	if err != nil {
		return domain.HealthRecord{}, err
	}
	q, err := units.Normalize(typ, a.get("unit"), raw)
	if err != nil {
		return domain.HealthRecord{}, err
	}

	start, err := parseTimestamp(a.get("startDate"))
	if err != nil {
		return domain.HealthRecord{}, fmt.Errorf("startDate: %w", err)
	}
	end := start
	if rawEnd := a.get("endDate"); rawEnd != "" {
		if end, err = parseTimestamp(rawEnd); err != nil {
			return domain.HealthRecord{}, fmt.Errorf("endDate: %w", err)
		}
	}

	source := strings.TrimSpace(a.get("sourceName"))
	if source == "" {
		source = UnknownSource
	}

	return domain.HealthRecord{
		OwnerID:       ownerID,
		MetricType:    q.Metric,
		Value:         q.Value,
		Unit:          q.Unit,
		SourceName:    source,
		SourceVersion: a.get("sourceVersion"),
		Device:        a.get("device"),
		StartTime:     start,
		EndTime:       end,
		CreationTime:  optionalTimestamp(a.get("creationDate")),
	}, nil
}

func decodeWorkout(ownerID string, a attributes) (domain.Workout, error) {
	start, err := parseTimestamp(a.get("startDate"))
	if err != nil {
		return domain.Workout{}, fmt.Errorf("startDate: %w", err)
	}

	w := domain.Workout{
		OwnerID:      ownerID,
		ExternalID:   strings.TrimSpace(a.get("uuid")),
		ActivityType: units.WorkoutType(a.get("workoutActivityType")),
		StartTime:    start,
		EndTime:      start,
		SourceName:   a.get("sourceName"),
		Device:       a.get("device"),
	}

	if v := optionalFloat(a.get("duration")); v != nil {
		if minutes, ok := units.ToMinutes(*v, a.get("durationUnit")); ok {
			w.DurationMinutes = &minutes
		}
	}
	if rawEnd := a.get("endDate"); rawEnd != "" {
		if w.EndTime, err = parseTimestamp(rawEnd); err != nil {
			return domain.Workout{}, fmt.Errorf("endDate: %w", err)
		}
	} else if w.DurationMinutes != nil {
		w.EndTime = start.Add(time.Duration(*w.DurationMinutes * float64(time.Minute)))
	}
	if v := optionalFloat(a.get("totalDistance")); v != nil {
		if km, ok := units.ToKilometers(*v, a.get("totalDistanceUnit")); ok {
			w.DistanceKm = &km
		}
	}
	if v := optionalFloat(a.get("totalEnergyBurned")); v != nil {
		if kcal, ok := units.ToKilocalories(*v, a.get("totalEnergyBurnedUnit")); ok {
			w.EnergyKcal = &kcal
		}
	}

	if w.ExternalID == "" {
		key := strings.Join([]string{w.ActivityType, w.StartTime.UTC().Format(time.RFC3339), w.EndTime.UTC().Format(time.RFC3339), w.SourceName}, "|")
		w.ExternalID = uuid.NewSHA1(workoutNamespace, []byte(key)).String()
	}
	return w, nil
}

func decodeStatistic(a attributes) domain.WorkoutStatistic {
	return domain.WorkoutStatistic{
		Type:      units.MetricName(a.get("type")),
		StartTime: optionalTimestamp(a.get("startDate")),
		EndTime:   optionalTimestamp(a.get("endDate")),
		Average:   optionalFloat(a.get("average")),
		Minimum:   optionalFloat(a.get("minimum")),
		Maximum:   optionalFloat(a.get("maximum")),
		Sum:       optionalFloat(a.get("sum")),
		Unit:      a.get("unit"),
	}
}

func decodeActivitySummary(ownerID string, a attributes) (domain.ActivitySummary, error) {
	raw, err := a.require("dateComponents")
	if err != nil {
		return domain.ActivitySummary{}, err
	}
	date, err := time.Parse(DateLayout, raw)
	if err != nil {
		return domain.ActivitySummary{}, fmt.Errorf("dateComponents: %w", err)
	}
	return domain.ActivitySummary{
		OwnerID:                ownerID,
		Date:                   date,
		ActiveEnergyBurned:     optionalFloat(a.get("activeEnergyBurned")),
		ActiveEnergyBurnedGoal: optionalFloat(a.get("activeEnergyBurnedGoal")),
		MoveTimeMinutes:        optionalFloat(a.get("appleMoveTime")),
		MoveTimeGoalMinutes:    optionalFloat(a.get("appleMoveTimeGoal")),
		ExerciseTimeMinutes:    optionalFloat(a.get("appleExerciseTime")),
		ExerciseTimeGoal:       optionalFloat(a.get("appleExerciseTimeGoal")),
		StandHours:             optionalInt(a.get("appleStandHours")),
		StandHoursGoal:         optionalInt(a.get("appleStandHoursGoal")),
	}, nil
}

func decodeProfile(ownerID string, a attributes) domain.UserProfile {
	p := domain.UserProfile{
		OwnerID:                     ownerID,
		BiologicalSex:               units.StripPrefix(a.get("HKCharacteristicTypeIdentifierBiologicalSex"), units.BiologicalSexPrefix),
		BloodType:                   units.StripPrefix(a.get("HKCharacteristicTypeIdentifierBloodType"), units.BloodTypePrefix),
		FitzpatrickSkinType:         units.StripPrefix(a.get("HKCharacteristicTypeIdentifierFitzpatrickSkinType"), units.FitzpatrickSkinTypePrefix),
		CardioFitnessMedicationsUse: strings.TrimSpace(a.get("HKCharacteristicTypeIdentifierCardioFitnessMedicationsUse")),
	}
	if raw := strings.TrimSpace(a.get("HKCharacteristicTypeIdentifierDateOfBirth")); raw != "" {
		if dob, err := time.Parse(DateLayout, raw); err == nil {
			p.DateOfBirth = &dob
		}
	}
	return p
}
