package units

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeConvertsByOriginalUnit(t *testing.T) {
	cases := []struct {
		name   string
		typ    string
		unit   string
		raw    string
		metric string
		want   string
		value  float64
	}{
		{"pounds", "HKQuantityTypeIdentifierBodyMass", "lb", "150", "weight", "kg", 68.0388},
		{"miles", "HKQuantityTypeIdentifierDistanceWalkingRunning", "mi", "1", "walking_running_distance", "km", 1.60934},
		{"kilojoules", "HKQuantityTypeIdentifierActiveEnergyBurned", "kJ", "418.4", "active_energy_burned", "kcal", 100},
		{"meters", "HKQuantityTypeIdentifierWalkingStepLength", "m", "750", "walking_step_length", "km", 0.75},
		{"dietary calories", "HKQuantityTypeIdentifierDietaryEnergyConsumed", "Cal", "520", "calories", "kcal", 520},
		{"heart rate", "HKQuantityTypeIdentifierHeartRate", "count/min", "72", "heart_rate", "count/min", 72},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := Normalize(tc.typ, tc.unit, tc.raw)
			require.NoError(t, err)
			require.Equal(t, tc.metric, q.Metric)
			require.Equal(t, tc.want, q.Unit)
			require.InDelta(t, tc.value, q.Value, 1e-6)
		})
	}
}

func TestNormalizeDefaultsMissingUnitToCount(t *testing.T) {
	q, err := Normalize("HKQuantityTypeIdentifierStepCount", "", "1200")
	require.NoError(t, err)
	require.Equal(t, "count", q.Unit)
	require.Equal(t, "steps", q.Metric)
}

func TestNormalizePassesUnknownIdentifiersAndUnits(t *testing.T) {
	q, err := Normalize("HKQuantityTypeIdentifierSomethingNew", "furlong", "3")
	require.NoError(t, err)
	require.Equal(t, "HKQuantityTypeIdentifierSomethingNew", q.Metric)
	require.Equal(t, "furlong", q.Unit)
	require.Equal(t, 3.0, q.Value)
}

func TestNormalizeRejectsNonFiniteValues(t *testing.T) {
	for _, raw := range []string{"", "abc", "NaN", "+Inf", "-inf"} {
		_, err := Normalize("HKQuantityTypeIdentifierStepCount", "count", raw)
		require.Truef(t, errors.Is(err, ErrNotFinite), "raw %q", raw)
	}
}

func TestConversionsRoundTrip(t *testing.T) {
	values := []float64{0, 0.001, 1, 17.7314, 150, 42195, -40}
	for unit := range conversions {
		for _, v := range values {
			_, canonical := ConvertFrom(unit, v)
			back, ok := Invert(unit, canonical)
			require.True(t, ok)
			require.InDeltaf(t, v, back, 1e-9, "unit %s value %v", unit, v)
		}
	}
}

func TestConvertWorksInBothDirections(t *testing.T) {
	km, ok := Convert(10, "mi", "km")
	require.True(t, ok)
	require.InDelta(t, 16.0934, km, 1e-9)

	mi, ok := Convert(km, "km", "mi")
	require.True(t, ok)
	require.InDelta(t, 10, mi, 1e-9)

	_, ok = Convert(1, "kg", "km")
	require.False(t, ok)
}

func TestInvertReportsLabelOnlyUnits(t *testing.T) {
	v, ok := Invert("Cal", 12.5)
	require.False(t, ok)
	require.Equal(t, 12.5, v)
}

func TestFahrenheitConvertsAffine(t *testing.T) {
	unit, v := ConvertFrom("degF", 98.6)
	require.Equal(t, "degC", unit)
	require.InDelta(t, 37.0, v, 1e-9)
}

func TestWorkoutType(t *testing.T) {
	require.Equal(t, "running", WorkoutType("HKWorkoutActivityTypeRunning"))
	require.Equal(t, "traditional_strength_training", WorkoutType("HKWorkoutActivityTypeTraditionalStrengthTraining"))
	require.Equal(t, "walking", WorkoutType("Walking"))
}

func TestHelpersConvertWorkoutAttributes(t *testing.T) {
	km, ok := ToKilometers(0.433978, "mi")
	require.True(t, ok)
	require.InDelta(t, 0.698, km, 0.001)

	_, ok = ToKilometers(1, "count")
	require.False(t, ok)

	kcal, ok := ToKilocalories(41.84, "kJ")
	require.True(t, ok)
	require.InDelta(t, 10, kcal, 1e-9)

	minutes, ok := ToMinutes(1.5, "hr")
	require.True(t, ok)
	require.Equal(t, 90.0, minutes)
}

func TestStripPrefix(t *testing.T) {
	require.Equal(t, "Male", StripPrefix("HKBiologicalSexMale", BiologicalSexPrefix))
	require.Equal(t, "APositive", StripPrefix("HKBloodTypeAPositive", BloodTypePrefix))
	require.Equal(t, "II", StripPrefix("HKFitzpatrickSkinTypeII", FitzpatrickSkinTypePrefix))
}
