/*
legacy.go - Adapter for historical allowance metadata

PURPOSE:
  Older packages carry their allowances as free-form JSON blobs written by
  a previous system. This adapter resolves a blob once at read time into
  the same typed Allowance shape used for new packages, so no optional-
  field access leaks into business logic.

  Field and kind spellings varied over time; both the old and the current
  names are accepted. Synthesized ids are index-based and stable, keeping
  allowance selection deterministic for legacy packages.
*/
package booking

import (
	"encoding/json"
	"fmt"
	"strings"
)

// legacyAllowance accepts both historical and current field names.
type legacyAllowance struct {
	ID          string `json:"id"`
	ServiceType string `json:"service_type"`
	Type        string `json:"type"` // older spelling of service_type
	MinTier     int    `json:"min_teacher_level"`
	Level       int    `json:"level"` // older spelling of min_teacher_level
	UnitMinutes int    `json:"unit_minutes"`
	Duration    int    `json:"duration"` // older spelling of unit_minutes
	Credits     int    `json:"credits"`
}

// AllowancesFromLegacyJSON resolves a historical allowance blob (a JSON
// array) into typed allowances.
func AllowancesFromLegacyJSON(raw []byte) ([]Allowance, error) {
	var entries []legacyAllowance
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, &InvalidRequestError{Reason: "malformed legacy allowance blob: " + err.Error()}
	}

	allowances := make([]Allowance, 0, len(entries))
	for i, e := range entries {
		kind, err := legacyKind(firstNonEmpty(e.ServiceType, e.Type))
		if err != nil {
			return nil, err
		}

		unit := e.UnitMinutes
		if unit == 0 {
			unit = e.Duration
		}
		if unit <= 0 {
			return nil, &InvalidRequestError{Reason: fmt.Sprintf("legacy allowance %d has no unit duration", i)}
		}

		tier := e.MinTier
		if tier == 0 {
			tier = e.Level
		}

		id := e.ID
		if id == "" {
			id = fmt.Sprintf("legacy-%02d", i)
		}

		allowances = append(allowances, Allowance{
			ID:          AllowanceID(id),
			Kind:        kind,
			Tier:        tier,
			UnitMinutes: unit,
			Granted:     e.Credits,
		})
	}
	return allowances, nil
}

func legacyKind(s string) (ServiceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "private", "private_lesson", "one_on_one":
		return KindPrivate, nil
	case "group", "group_class":
		return KindGroup, nil
	case "course", "course_step":
		return KindCourseStep, nil
	default:
		return "", &InvalidRequestError{Reason: "unknown legacy service type: " + s}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
