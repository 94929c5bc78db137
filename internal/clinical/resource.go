package clinical

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jordangarrison/vitals/internal/domain"
)

// ErrMissingID is returned for resources without an id.
var ErrMissingID = errors.New("resource has no id")

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

type coding struct {
	Code    string `json:"code"`
	System  string `json:"system"`
	Display string `json:"display"`
}

type concept struct {
	Text   string   `json:"text"`
	Coding []coding `json:"coding"`
}

type resource struct {
	ID                 string   `json:"id"`
	ResourceType       string   `json:"resourceType"`
	Code               *concept `json:"code"`
	EffectiveDateTime  string   `json:"effectiveDateTime"`
	RecordedDate       string   `json:"recordedDate"`
	OnsetDateTime      string   `json:"onsetDateTime"`
	ValueString        string   `json:"valueString"`
	Status             string   `json:"status"`
	ClinicalStatus     *concept `json:"clinicalStatus"`
	VerificationStatus *concept `json:"verificationStatus"`
	ValueQuantity      *struct {
		Value *float64 `json:"value"`
		Unit  string   `json:"unit"`
	} `json:"valueQuantity"`
	Meta *struct {
		LastUpdated string `json:"lastUpdated"`
	} `json:"meta"`
}

func (c *concept) text() string {
	if c == nil {
		return ""
	}
	return c.Text
}

func (c *concept) first() coding {
	if c == nil || len(c.Coding) == 0 {
		return coding{}
	}
	return c.Coding[0]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseDate accepts FHIR dateTime values of any precision. Unparseable values
// yield nil.
func parseDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			ts = ts.UTC()
			return &ts
		}
	}
	return nil
}

// resourceTypeFromName takes the type from names like "Observation-<uuid>.json".
func resourceTypeFromName(path string) string {
	name := filepath.Base(path)
	if i := strings.Index(name, "-"); i > 0 {
		return name[:i]
	}
	return ""
}

// ParseResource flattens one FHIR resource into a clinical record. The raw
// document is kept verbatim.
func ParseResource(ownerID, path string, raw []byte) (domain.ClinicalRecord, error) {
	var res resource
	if err := json.Unmarshal(raw, &res); err != nil {
		return domain.ClinicalRecord{}, fmt.Errorf("decode: %w", err)
	}
	if res.ID == "" {
		return domain.ClinicalRecord{}, ErrMissingID
	}

	var lastUpdated string
	if res.Meta != nil {
		lastUpdated = res.Meta.LastUpdated
	}
	code := res.Code.first()

	rec := domain.ClinicalRecord{
		OwnerID:      ownerID,
		ResourceType: firstNonEmpty(resourceTypeFromName(path), res.ResourceType),
		ResourceID:   res.ID,
		RecordedAt:   parseDate(firstNonEmpty(res.EffectiveDateTime, res.RecordedDate, res.OnsetDateTime, lastUpdated)),
		DisplayName:  firstNonEmpty(res.Code.text(), code.Display, res.ClinicalStatus.text(), res.Status),
		Code:         code.Code,
		CodeSystem:   code.System,
		FilePath:     path,
		RawJSON:      json.RawMessage(raw),
	}

	switch {
	case res.ValueQuantity != nil && res.ValueQuantity.Value != nil:
		rec.ValueQuantity = res.ValueQuantity.Value
		rec.ValueUnit = res.ValueQuantity.Unit
	case res.ValueString != "":
		rec.ValueText = res.ValueString
	default:
		rec.ValueText = firstNonEmpty(res.ClinicalStatus.text(), res.VerificationStatus.text())
	}
	return rec, nil
}
