package units

import (
	"strings"
	"unicode"
)

// metricNames maps export type identifiers to canonical metric names.
var metricNames = map[string]string{
	// activity
	"HKQuantityTypeIdentifierStepCount":                  "steps",
	"HKQuantityTypeIdentifierDistanceWalkingRunning":     "walking_running_distance",
	"HKQuantityTypeIdentifierDistanceCycling":            "cycling_distance",
	"HKQuantityTypeIdentifierDistanceSwimming":           "swimming_distance",
	"HKQuantityTypeIdentifierDistanceWheelchair":         "wheelchair_distance",
	"HKQuantityTypeIdentifierDistanceDownhillSnowSports": "downhill_snow_sports_distance",
	"HKQuantityTypeIdentifierFlightsClimbed":             "flights_climbed",
	"HKQuantityTypeIdentifierAppleExerciseTime":          "exercise_time",
	"HKQuantityTypeIdentifierAppleStandTime":             "stand_time",
	"HKQuantityTypeIdentifierPushCount":                  "push_count",
	"HKQuantityTypeIdentifierSwimmingStrokeCount":        "swimming_stroke_count",

	// heart
	"HKQuantityTypeIdentifierHeartRate":                  "heart_rate",
	"HKQuantityTypeIdentifierRestingHeartRate":           "resting_heart_rate",
	"HKQuantityTypeIdentifierWalkingHeartRateAverage":    "walking_heart_rate_avg",
	"HKQuantityTypeIdentifierHeartRateVariabilitySDNN":   "heart_rate_variability",
	"HKQuantityTypeIdentifierVO2Max":                     "vo2_max",
	"HKQuantityTypeIdentifierHeartRateRecoveryOneMinute": "heart_rate_recovery",

	// body
	"HKQuantityTypeIdentifierBodyMass":            "weight",
	"HKQuantityTypeIdentifierBodyMassIndex":       "bmi",
	"HKQuantityTypeIdentifierBodyFatPercentage":   "body_fat_percent",
	"HKQuantityTypeIdentifierLeanBodyMass":        "lean_body_mass",
	"HKQuantityTypeIdentifierHeight":              "height",
	"HKQuantityTypeIdentifierWaistCircumference":  "waist_circumference",

	// nutrition
	"HKQuantityTypeIdentifierDietaryEnergyConsumed":      "calories",
	"HKQuantityTypeIdentifierDietaryProtein":             "protein",
	"HKQuantityTypeIdentifierDietaryCarbohydrates":       "carbs",
	"HKQuantityTypeIdentifierDietaryFatTotal":            "fat",
	"HKQuantityTypeIdentifierDietaryFatSaturated":        "saturated_fat",
	"HKQuantityTypeIdentifierDietaryFatMonounsaturated":  "monounsaturated_fat",
	"HKQuantityTypeIdentifierDietaryFatPolyunsaturated":  "polyunsaturated_fat",
	"HKQuantityTypeIdentifierDietaryCholesterol":         "cholesterol",
	"HKQuantityTypeIdentifierDietarySodium":              "sodium",
	"HKQuantityTypeIdentifierDietaryFiber":               "fiber",
	"HKQuantityTypeIdentifierDietarySugar":               "sugar",
	"HKQuantityTypeIdentifierDietaryCalcium":             "calcium",
	"HKQuantityTypeIdentifierDietaryIron":                "iron",
	"HKQuantityTypeIdentifierDietaryPotassium":           "potassium",
	"HKQuantityTypeIdentifierDietaryVitaminA":            "vitamin_a",
	"HKQuantityTypeIdentifierDietaryVitaminB6":           "vitamin_b6",
	"HKQuantityTypeIdentifierDietaryVitaminB12":          "vitamin_b12",
	"HKQuantityTypeIdentifierDietaryVitaminC":            "vitamin_c",
	"HKQuantityTypeIdentifierDietaryVitaminD":            "vitamin_d",
	"HKQuantityTypeIdentifierDietaryVitaminE":            "vitamin_e",
	"HKQuantityTypeIdentifierDietaryVitaminK":            "vitamin_k",
	"HKQuantityTypeIdentifierDietaryZinc":                "zinc",
	"HKQuantityTypeIdentifierDietaryMagnesium":           "magnesium",
	"HKQuantityTypeIdentifierDietaryWater":               "water",
	"HKQuantityTypeIdentifierDietaryCaffeine":            "caffeine",

	// energy
	"HKQuantityTypeIdentifierActiveEnergyBurned": "active_energy_burned",
	"HKQuantityTypeIdentifierBasalEnergyBurned":  "basal_energy_burned",

	// vitals
	"HKQuantityTypeIdentifierBloodPressureSystolic":  "blood_pressure_systolic",
	"HKQuantityTypeIdentifierBloodPressureDiastolic": "blood_pressure_diastolic",
	"HKQuantityTypeIdentifierRespiratoryRate":        "respiratory_rate",
	"HKQuantityTypeIdentifierBodyTemperature":        "body_temperature",
	"HKQuantityTypeIdentifierOxygenSaturation":       "oxygen_saturation",
	"HKQuantityTypeIdentifierBloodGlucose":           "blood_glucose",

	// sleep, hearing, mobility
	"HKCategoryTypeIdentifierSleepAnalysis":                  "sleep_analysis",
	"HKQuantityTypeIdentifierEnvironmentalAudioExposure":     "audio_exposure",
	"HKQuantityTypeIdentifierHeadphoneAudioExposure":         "headphone_audio_exposure",
	"HKQuantityTypeIdentifierWalkingSpeed":                   "walking_speed",
	"HKQuantityTypeIdentifierWalkingStepLength":              "walking_step_length",
	"HKQuantityTypeIdentifierWalkingAsymmetryPercentage":     "walking_asymmetry",
	"HKQuantityTypeIdentifierWalkingDoubleSupportPercentage": "walking_double_support",
	"HKQuantityTypeIdentifierSixMinuteWalkTestDistance":      "six_minute_walk_distance",
	"HKQuantityTypeIdentifierStairAscentSpeed":               "stair_ascent_speed",
	"HKQuantityTypeIdentifierStairDescentSpeed":              "stair_descent_speed",
	"HKQuantityTypeIdentifierAppleWalkingSteadiness":         "walking_steadiness",

	// other
	"HKCategoryTypeIdentifierMindfulSession":        "mindful_session",
	"HKQuantityTypeIdentifierElectrodermalActivity": "electrodermal_activity",
	"HKQuantityTypeIdentifierInhalerUsage":          "inhaler_usage",
	"HKQuantityTypeIdentifierNumberOfTimesFallen":   "falls",
	"HKQuantityTypeIdentifierUVExposure":            "uv_exposure",
}

// MetricName returns the canonical name for a type identifier. Unknown identifiers
// are returned unchanged.
func MetricName(typeIdentifier string) string {
	if name, ok := metricNames[typeIdentifier]; ok {
		return name
	}
	return typeIdentifier
}

const workoutTypePrefix = "HKWorkoutActivityType"

// WorkoutType turns "HKWorkoutActivityTypeTraditionalStrengthTraining" into
// "traditional_strength_training".
func WorkoutType(raw string) string {
	name := strings.TrimPrefix(raw, workoutTypePrefix)
	var b strings.Builder
	b.Grow(len(name) + 4)
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Characteristic prefixes stripped from profile attributes before storage.
const (
	BiologicalSexPrefix       = "HKBiologicalSex"
	BloodTypePrefix           = "HKBloodType"
	FitzpatrickSkinTypePrefix = "HKFitzpatrickSkinType"
)

// StripPrefix removes a characteristic prefix such as "HKBloodType".
func StripPrefix(value, prefix string) string {
	return strings.TrimPrefix(strings.TrimSpace(value), prefix)
}
