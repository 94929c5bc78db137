package macrofactor

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"1/2/2006",
	"01/02/2006",
	"1/2/06",
}

// parseDate accepts Excel serial dates and the textual layouts MacroFactor has
// used across export versions. The result is midnight UTC.
func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		ts, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, false
		}
		return truncateDay(ts), true
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return truncateDay(ts), true
		}
	}
	return time.Time{}, false
}

func truncateDay(ts time.Time) time.Time {
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// cell returns the trimmed value at index, or "" past the end of a short row.
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// number parses a cell, treating blanks and non-numeric text as absent.
func number(row []string, i int) *float64 {
	raw := strings.ReplaceAll(cell(row, i), ",", "")
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// positive is number with zero also treated as absent; MacroFactor writes zero for
// days nothing was logged.
func positive(row []string, i int) *float64 {
	v := number(row, i)
	if v == nil || *v == 0 {
		return nil
	}
	return v
}

// columnIndex maps lower-cased header substrings to column positions. The first
// header containing a key wins.
func columnIndex(header []string, keys ...string) map[string]int {
	out := make(map[string]int)
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, key := range keys {
			if _, taken := out[key]; taken {
				continue
			}
			if strings.Contains(h, key) {
				out[key] = i
				break
			}
		}
	}
	return out
}
