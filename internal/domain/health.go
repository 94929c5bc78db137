package domain

import (
	"encoding/json"
	"time"
)

// Source types recorded in import_history.
const (
	SourceAppleHealth = "apple-health"
	SourceMacroFactor = "macrofactor"
	SourceClinical    = "clinical-records"
	SourceECG         = "ecg"
	SourceRoutes      = "workout-routes"
)

// Owner is the person whose data is being ingested. Every entity is scoped to one owner.
type Owner struct {
	ID        string
	Username  string
	CreatedAt time.Time
}

// HealthRecord is a single normalized observation. Identity is
// (OwnerID, MetricType, StartTime, EndTime, SourceName); a re-import replaces the row.
type HealthRecord struct {
	OwnerID       string
	MetricType    string
	Value         float64
	Unit          string
	SourceName    string
	SourceVersion string
	Device        string
	StartTime     time.Time
	EndTime       time.Time
	CreationTime  *time.Time
	Metadata      json.RawMessage
}

// Workout is a composite activity session. When ExternalID is set, (OwnerID, ExternalID)
// identifies the row and re-imports merge non-null fields into it.
type Workout struct {
	ID              int64
	OwnerID         string
	ExternalID      string
	ActivityType    string
	StartTime       time.Time
	EndTime         time.Time
	DurationMinutes *float64
	DistanceKm      *float64
	EnergyKcal      *float64
	SourceName      string
	Device          string
	HasRoute        bool
	Metadata        json.RawMessage
}

// WorkoutStatistic is one aggregate nested inside a workout element.
type WorkoutStatistic struct {
	Type      string     `json:"type"`
	StartTime *time.Time `json:"startDate,omitempty"`
	EndTime   *time.Time `json:"endDate,omitempty"`
	Average   *float64   `json:"average,omitempty"`
	Minimum   *float64   `json:"minimum,omitempty"`
	Maximum   *float64   `json:"maximum,omitempty"`
	Sum       *float64   `json:"sum,omitempty"`
	Unit      string     `json:"unit,omitempty"`
}

// ActivitySummary holds one calendar day of ring totals. Identity is (OwnerID, Date).
type ActivitySummary struct {
	OwnerID                string
	Date                   time.Time
	ActiveEnergyBurned     *float64
	ActiveEnergyBurnedGoal *float64
	MoveTimeMinutes        *float64
	MoveTimeGoalMinutes    *float64
	ExerciseTimeMinutes    *float64
	ExerciseTimeGoal       *float64
	StandHours             *int
	StandHoursGoal         *int
}

// UserProfile holds static characteristics, one row per owner.
type UserProfile struct {
	OwnerID                     string
	DateOfBirth                 *time.Time
	BiologicalSex               string
	BloodType                   string
	FitzpatrickSkinType         string
	CardioFitnessMedicationsUse string
}

// TrackPoint is one GPS fix from a track file.
type TrackPoint struct {
	Lat       float64    `json:"lat"`
	Lon       float64    `json:"lon"`
	Elevation *float64   `json:"ele,omitempty"`
	Time      *time.Time `json:"time,omitempty"`
	Speed     *float64   `json:"speed,omitempty"`
}

// WorkoutRoute associates a track file with a workout. Points holds the decimated
// display copy and PointCount its length.
type WorkoutRoute struct {
	ID         int64
	WorkoutID  int64
	OwnerID    string
	FilePath   string
	Name       string
	StartTime  *time.Time
	EndTime    *time.Time
	PointCount int
	Points     []TrackPoint
	CreatedAt  time.Time
}

// Nutrition is one day of intake. Identity is (OwnerID, Date); re-imports merge.
type Nutrition struct {
	OwnerID     string
	Date        time.Time
	Calories    *float64
	ProteinG    *float64
	CarbsG      *float64
	FatG        *float64
	FiberG      *float64
	CalciumMg   *float64
	IronMg      *float64
	MagnesiumMg *float64
	PotassiumMg *float64
	SodiumMg    *float64
	ZincMg      *float64
	VitaminCMg  *float64
	VitaminDMcg *float64
	SourceName  string
}

// BodyMetrics is one day of body measurements. Identity is (OwnerID, Date); re-imports merge.
type BodyMetrics struct {
	OwnerID        string
	Date           time.Time
	WeightKg       *float64
	BodyFatPercent *float64
	BMI            *float64
	LeanBodyMassKg *float64
	ChestCm        *float64
	WaistCm        *float64
	HipsCm         *float64
	SourceName     string
}

// ECGRecording is a single-lead waveform with its header metadata.
type ECGRecording struct {
	OwnerID          string
	RecordedAt       time.Time
	Classification   string
	Symptoms         string
	AverageHeartRate *float64
	SoftwareVersion  string
	Device           string
	SampleRateHz     float64
	Lead             string
	Unit             string
	FilePath         string
	Waveform         []float64
}

// ClinicalRecord is one FHIR resource. Identity is (OwnerID, ResourceID).
type ClinicalRecord struct {
	OwnerID       string
	ResourceType  string
	ResourceID    string
	RecordedAt    *time.Time
	DisplayName   string
	Code          string
	CodeSystem    string
	ValueText     string
	ValueQuantity *float64
	ValueUnit     string
	FilePath      string
	RawJSON       json.RawMessage
}
