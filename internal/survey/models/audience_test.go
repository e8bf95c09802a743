package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "refahi/pkg/domain-errors"
)

func TestAudienceFilter_Matches(t *testing.T) {
	t.Run("empty filter restricts nobody", func(t *testing.T) {
		f := NewAudienceFilter(nil, nil, nil, nil, nil)
		assert.True(t, f.IsEmpty())
		assert.True(t, f.Matches(nil, nil, nil))
	})

	t.Run("required features need one match", func(t *testing.T) {
		f := NewAudienceFilter([]string{"LOAN", "TOUR"}, nil, nil, nil, nil)
		assert.True(t, f.Matches([]string{"TOUR"}, nil, nil))
		assert.False(t, f.Matches([]string{"FACILITY"}, nil, nil))
		assert.False(t, f.Matches(nil, nil, nil))
	})

	t.Run("excluded features are a hard no", func(t *testing.T) {
		f := NewAudienceFilter(nil, nil, []string{"SUSPENDED"}, nil, nil)
		assert.True(t, f.Matches([]string{"LOAN"}, nil, nil))
		assert.False(t, f.Matches([]string{"LOAN", "SUSPENDED"}, nil, nil))
	})

	t.Run("member groups need one match", func(t *testing.T) {
		f := NewAudienceFilter(nil, nil, nil, nil, []string{"ENGINEERS"})
		assert.True(t, f.Matches(nil, nil, []string{"ENGINEERS"}))
		assert.False(t, f.Matches(nil, nil, []string{"PHYSICIANS"}))
	})

	t.Run("matching normalizes case and whitespace", func(t *testing.T) {
		f := NewAudienceFilter([]string{" loan "}, nil, nil, nil, nil)
		assert.True(t, f.Matches([]string{"LOAN"}, nil, nil))
		assert.True(t, f.Matches([]string{"  Loan"}, nil, nil))
	})
}

func TestAudienceFilter_Roundtrip(t *testing.T) {
	f := NewAudienceFilter([]string{"LOAN"}, []string{"ACTIVE"}, nil, nil, []string{"ENGINEERS"})
	data, err := f.Encode()
	require.NoError(t, err)

	parsed, err := ParseAudienceFilter(data)
	require.NoError(t, err)
	assert.Equal(t, f, parsed)
}

func TestParseAudienceFilter_Rejects(t *testing.T) {
	t.Run("malformed document", func(t *testing.T) {
		_, err := ParseAudienceFilter([]byte("{not json"))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("unknown version", func(t *testing.T) {
		_, err := ParseAudienceFilter([]byte(`{"version":99}`))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestDemographySnapshot(t *testing.T) {
	t.Run("accepts whitelisted keys", func(t *testing.T) {
		s, err := NewDemographySnapshot(map[string]string{
			DemographyProvinceCode: "TEH",
			DemographyAgeGroup:     "30-39",
		})
		require.NoError(t, err)
		v, ok := s.Get(DemographyProvinceCode)
		assert.True(t, ok)
		assert.Equal(t, "TEH", v)
		assert.Equal(t, DemographySnapshotVersion, s.Version)
	})

	t.Run("rejects unknown keys", func(t *testing.T) {
		_, err := NewDemographySnapshot(map[string]string{"NationalID": "123"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("drops empty values", func(t *testing.T) {
		s, err := NewDemographySnapshot(map[string]string{DemographyGender: ""})
		require.NoError(t, err)
		assert.True(t, s.IsEmpty())
	})
}
