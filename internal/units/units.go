// Package units maps source unit strings and type identifiers onto the canonical
// vocabulary used by the store.
//
// Conversion is decided by the original unit. A unit with a conversion rule has its
// value rescaled into the rule's target unit; every other unit only has its label
// standardized.
package units

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrNotFinite is returned when a raw value does not parse as a finite number.
var ErrNotFinite = errors.New("value is not a finite number")

// DefaultUnit is assumed when a record carries no unit attribute.
const DefaultUnit = "count"

const (
	kmPerMile       = 1.60934
	kgPerPound      = 0.453592
	kJPerKcal       = 4.184
	metersPerKm     = 1000
	metersPerFoot   = 0.3048
	metersPerYard   = 0.9144
	cmPerInch       = 2.54
	gramsPerOunce   = 28.349523125
	mLPerFluidOunce = 29.5735295625
)

// Quantity is a value expressed in canonical metric and unit.
type Quantity struct {
	Metric string
	Unit   string
	Value  float64
}

type rule struct {
	to      string
	forward func(float64) float64
	inverse func(float64) float64
}

func scale(factor float64) (func(float64) float64, func(float64) float64) {
	return func(v float64) float64 { return v * factor },
		func(v float64) float64 { return v / factor }
}

func newRule(to string, factor float64) rule {
	fwd, inv := scale(factor)
	return rule{to: to, forward: fwd, inverse: inv}
}

var conversions = map[string]rule{
	"mi":       newRule("km", kmPerMile),
	"lb":       newRule("kg", kgPerPound),
	"kJ":       newRule("kcal", 1/kJPerKcal),
	"m":        newRule("km", 1.0/metersPerKm),
	"ft":       newRule("m", metersPerFoot),
	"yd":       newRule("m", metersPerYard),
	"in":       newRule("cm", cmPerInch),
	"oz":       newRule("g", gramsPerOunce),
	"fl_oz_us": newRule("mL", mLPerFluidOunce),
	"degF": {
		to:      "degC",
		forward: func(f float64) float64 { return (f - 32) * 5 / 9 },
		inverse: func(c float64) float64 { return c*9/5 + 32 },
	},
}

// labels standardizes unit strings that need no numeric conversion.
var labels = map[string]string{
	"Cal":       "kcal",
	"kcal":      "kcal",
	"count/min": "count/min",
	"km":        "km",
	"kg":        "kg",
	"g":         "g",
	"mg":        "mg",
	"mcg":       "mcg",
	"min":       "min",
	"hr":        "hr",
	"s":         "s",
	"ms":        "ms",
	"count":     "count",
	"%":         "%",
	"degC":      "degC",
	"mL":        "mL",
	"L":         "L",
	"mmHg":      "mmHg",
	"mg/dL":     "mg/dL",
	"dBASPL":    "dBASPL",
	"m/s":       "m/s",
	"km/hr":     "km/hr",
	"cm":        "cm",
}

// Normalize converts a raw (type, unit, value) triple from the export into canonical
// form. An empty unit is treated as DefaultUnit. A value that does not parse as a
// finite number yields ErrNotFinite.
func Normalize(typeIdentifier, unit, raw string) (Quantity, error) {
	value, err := ParseValue(raw)
	if err != nil {
		return Quantity{}, err
	}
	if unit == "" {
		unit = DefaultUnit
	}
	canonicalUnit, canonicalValue := ConvertFrom(unit, value)
	if math.IsNaN(canonicalValue) || math.IsInf(canonicalValue, 0) {
		return Quantity{}, ErrNotFinite
	}
	return Quantity{
		Metric: MetricName(typeIdentifier),
		Unit:   canonicalUnit,
		Value:  canonicalValue,
	}, nil
}

// ParseValue parses a decimal string and rejects NaN and infinities.
func ParseValue(raw string) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNotFinite, raw)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: %q", ErrNotFinite, raw)
	}
	return value, nil
}

// ConvertFrom applies the conversion rule for the original unit, falling back to
// label standardization when no rule exists. Unknown units pass through unchanged.
func ConvertFrom(unit string, value float64) (string, float64) {
	if r, ok := conversions[unit]; ok {
		return r.to, r.forward(value)
	}
	return Standardize(unit), value
}

// Standardize returns the canonical label for a unit without touching any value.
func Standardize(unit string) string {
	if label, ok := labels[unit]; ok {
		return label
	}
	return unit
}

// Invert maps a canonical value back into the original unit. It reports false when
// the unit has no conversion rule, in which case the value was never rescaled.
func Invert(unit string, canonical float64) (float64, bool) {
	r, ok := conversions[unit]
	if !ok {
		return canonical, false
	}
	return r.inverse(canonical), true
}

// Convert rescales value between two units joined by a conversion rule, in either
// direction. It reports false when no rule joins them.
func Convert(value float64, from, to string) (float64, bool) {
	if from == to {
		return value, true
	}
	if r, ok := conversions[from]; ok && r.to == to {
		return r.forward(value), true
	}
	if r, ok := conversions[to]; ok && r.to == from {
		return r.inverse(value), true
	}
	return 0, false
}

// ToKilometers converts a distance into kilometres. It reports false for units that
// are not distances.
func ToKilometers(value float64, unit string) (float64, bool) {
	switch unit {
	case "km":
		return value, true
	case "mi":
		return value * kmPerMile, true
	case "m":
		return value / metersPerKm, true
	case "yd":
		return value * metersPerYard / metersPerKm, true
	case "ft":
		return value * metersPerFoot / metersPerKm, true
	}
	return 0, false
}

// ToKilocalories converts an energy value into kilocalories. "Cal" is the dietary
// calorie and equals one kilocalorie.
func ToKilocalories(value float64, unit string) (float64, bool) {
	switch unit {
	case "Cal", "kcal":
		return value, true
	case "kJ":
		return value / kJPerKcal, true
	case "cal":
		return value / 1000, true
	}
	return 0, false
}

// ToMinutes converts a duration into minutes.
func ToMinutes(value float64, unit string) (float64, bool) {
	switch unit {
	case "min", "":
		return value, true
	case "hr", "h":
		return value * 60, true
	case "s":
		return value / 60, true
	}
	return 0, false
}

// PoundsToKilograms converts a mass in pounds.
func PoundsToKilograms(lb float64) float64 { return lb * kgPerPound }
