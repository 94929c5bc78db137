package ecg

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jordangarrison/vitals/internal/domain"
)

// DefaultSampleRate is assumed when the header omits or garbles "Sample Rate".
const DefaultSampleRate = 512.0

const recordedLayout = "2006-01-02 15:04:05 -0700"

// ErrMissingRecordedDate is returned for files without a "Recorded Date" header.
var ErrMissingRecordedDate = errors.New("missing recorded date")

var sampleRatePattern = regexp.MustCompile(`(\d+(?:\.\d+)?)`)

// Header holds the key/value block that precedes the samples.
type Header struct {
	Name            string
	DateOfBirth     string
	RecordedDate    string
	Classification  string
	Symptoms        string
	SoftwareVersion string
	Device          string
	SampleRate      float64
	Lead            string
	Unit            string
}

// Parse reads one ECG export. Header lines run up to and including "Unit"; every
// following line is one sample. Non-numeric sample lines are skipped.
func Parse(r io.Reader) (Header, []float64, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header := Header{SampleRate: DefaultSampleRate}
	var samples []float64
	inData := false

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return header, samples, fmt.Errorf("read csv: %w", err)
		}
		if len(record) == 0 {
			continue
		}

		if inData {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			samples = append(samples, v)
			continue
		}

		key := strings.TrimSpace(strings.TrimPrefix(record[0], "\ufeff"))
		value := strings.TrimSpace(strings.Join(record[1:], ","))
		switch key {
		case "Name":
			header.Name = value
		case "Date of Birth":
			header.DateOfBirth = value
		case "Recorded Date":
			header.RecordedDate = value
		case "Classification":
			header.Classification = value
		case "Symptoms":
			header.Symptoms = value
		case "Software Version":
			header.SoftwareVersion = value
		case "Device":
			header.Device = value
		case "Sample Rate":
			if m := sampleRatePattern.FindString(value); m != "" {
				if rate, err := strconv.ParseFloat(m, 64); err == nil && rate > 0 {
					header.SampleRate = rate
				}
			}
		case "Lead":
			header.Lead = value
		case "Unit":
			header.Unit = value
			inData = true
		}
	}
	return header, samples, nil
}

// Recording converts a parsed header and its samples into a stored recording.
// Samples are kept as given; callers decimate.
func (h Header) Recording(ownerID, path string, samples []float64) (domain.ECGRecording, error) {
	if h.RecordedDate == "" {
		return domain.ECGRecording{}, ErrMissingRecordedDate
	}
	recordedAt, err := time.Parse(recordedLayout, h.RecordedDate)
	if err != nil {
		return domain.ECGRecording{}, fmt.Errorf("recorded date %q: %w", h.RecordedDate, err)
	}
	return domain.ECGRecording{
		OwnerID:         ownerID,
		RecordedAt:      recordedAt.UTC(),
		Classification:  h.Classification,
		Symptoms:        h.Symptoms,
		SoftwareVersion: h.SoftwareVersion,
		Device:          h.Device,
		SampleRateHz:    h.SampleRate,
		Lead:            h.Lead,
		Unit:            h.Unit,
		FilePath:        path,
		Waveform:        samples,
	}, nil
}
