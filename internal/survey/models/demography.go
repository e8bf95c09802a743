package models

import (
	dErrors "refahi/pkg/domain-errors"
)

// DemographySnapshotVersion is the current snapshot schema version.
const DemographySnapshotVersion = 1

// Demography attribute keys. The snapshot vocabulary is closed: construction
// rejects anything outside this list so BI queries can rely on the schema.
const (
	DemographyDisciplineCode   = "DisciplineCode"
	DemographyProvinceCode     = "ProvinceCode"
	DemographyLicenseGradeCode = "LicenseGradeCode"
	DemographySeniorityBand    = "SeniorityBand"
	DemographyEducationLevel   = "EducationLevel"
	DemographyAgeGroup         = "AgeGroup"
	DemographyGender           = "Gender"
	DemographyOrganizationType = "OrganizationType"
	DemographyPositionLevel    = "PositionLevel"
)

var demographyKeys = map[string]struct{}{
	DemographyDisciplineCode:   {},
	DemographyProvinceCode:     {},
	DemographyLicenseGradeCode: {},
	DemographySeniorityBand:    {},
	DemographyEducationLevel:   {},
	DemographyAgeGroup:         {},
	DemographyGender:           {},
	DemographyOrganizationType: {},
	DemographyPositionLevel:    {},
}

// DemographySnapshot is a controlled-vocabulary record of a respondent's
// demographic attributes captured at response time.
type DemographySnapshot struct {
	Version    int               `json:"version"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewDemographySnapshot validates every key against the fixed whitelist.
func NewDemographySnapshot(attributes map[string]string) (DemographySnapshot, error) {
	attrs := make(map[string]string, len(attributes))
	for key, value := range attributes {
		if _, ok := demographyKeys[key]; !ok {
			return DemographySnapshot{}, dErrors.Newf(dErrors.CodeValidation, "unknown demography attribute %q", key)
		}
		if value == "" {
			continue
		}
		attrs[key] = value
	}
	return DemographySnapshot{Version: DemographySnapshotVersion, Attributes: attrs}, nil
}

// Get returns an attribute value if present.
func (s DemographySnapshot) Get(key string) (string, bool) {
	v, ok := s.Attributes[key]
	return v, ok
}

// IsEmpty reports whether any attributes were captured.
func (s DemographySnapshot) IsEmpty() bool {
	return len(s.Attributes) == 0
}
