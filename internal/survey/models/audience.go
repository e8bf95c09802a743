package models

import (
	"encoding/json"

	dErrors "refahi/pkg/domain-errors"
	pstrings "refahi/pkg/platform/strings"
)

// AudienceFilterVersion is the current criteria schema version. Stored
// filters carry their version so older snapshots remain readable.
const AudienceFilterVersion = 1

// AudienceFilter is the declarative targeting criteria restricting who may
// respond to a survey. The legacy system stored this as a loosely-typed JSON
// blob; here each criterion is an explicit field so matching is type-checked.
// An empty filter places no restriction.
type AudienceFilter struct {
	Version              int      `json:"version"`
	RequiredFeatures     []string `json:"required_features,omitempty"`
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`
	ExcludedFeatures     []string `json:"excluded_features,omitempty"`
	ExcludedCapabilities []string `json:"excluded_capabilities,omitempty"`
	MemberGroups         []string `json:"member_groups,omitempty"`
}

// NewAudienceFilter normalizes all code lists (trim, uppercase, dedupe) and
// stamps the current schema version.
func NewAudienceFilter(requiredFeatures, requiredCapabilities, excludedFeatures, excludedCapabilities, memberGroups []string) AudienceFilter {
	return AudienceFilter{
		Version:              AudienceFilterVersion,
		RequiredFeatures:     pstrings.DedupeAndTrimUpper(requiredFeatures),
		RequiredCapabilities: pstrings.DedupeAndTrimUpper(requiredCapabilities),
		ExcludedFeatures:     pstrings.DedupeAndTrimUpper(excludedFeatures),
		ExcludedCapabilities: pstrings.DedupeAndTrimUpper(excludedCapabilities),
		MemberGroups:         pstrings.DedupeAndTrimUpper(memberGroups),
	}
}

// ParseAudienceFilter decodes a stored criteria document and rejects unknown
// schema versions.
func ParseAudienceFilter(data []byte) (AudienceFilter, error) {
	var f AudienceFilter
	if err := json.Unmarshal(data, &f); err != nil {
		return AudienceFilter{}, dErrors.Wrap(err, dErrors.CodeValidation, "malformed audience filter")
	}
	if f.Version != AudienceFilterVersion {
		return AudienceFilter{}, dErrors.Newf(dErrors.CodeValidation, "unsupported audience filter version %d", f.Version)
	}
	return NewAudienceFilter(f.RequiredFeatures, f.RequiredCapabilities, f.ExcludedFeatures, f.ExcludedCapabilities, f.MemberGroups), nil
}

// Encode serializes the filter for storage.
func (f AudienceFilter) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// IsEmpty reports whether the filter declares no criteria.
func (f AudienceFilter) IsEmpty() bool {
	return len(f.RequiredFeatures) == 0 &&
		len(f.RequiredCapabilities) == 0 &&
		len(f.ExcludedFeatures) == 0 &&
		len(f.ExcludedCapabilities) == 0 &&
		len(f.MemberGroups) == 0
}

// Matches evaluates eligibility for a participant with the given feature,
// capability, and group codes. Every declared required list needs at least
// one match; excluded lists must have none; declared member groups need at
// least one match.
func (f AudienceFilter) Matches(features, capabilities, groups []string) bool {
	features = pstrings.DedupeAndTrimUpper(features)
	capabilities = pstrings.DedupeAndTrimUpper(capabilities)
	groups = pstrings.DedupeAndTrimUpper(groups)

	if len(f.RequiredFeatures) > 0 && !anyIntersect(f.RequiredFeatures, features) {
		return false
	}
	if len(f.RequiredCapabilities) > 0 && !anyIntersect(f.RequiredCapabilities, capabilities) {
		return false
	}
	if anyIntersect(f.ExcludedFeatures, features) {
		return false
	}
	if anyIntersect(f.ExcludedCapabilities, capabilities) {
		return false
	}
	if len(f.MemberGroups) > 0 && !anyIntersect(f.MemberGroups, groups) {
		return false
	}
	return true
}

func anyIntersect(want, have []string) bool {
	if len(want) == 0 || len(have) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}
