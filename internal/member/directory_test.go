package member

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "refahi/pkg/domain"
	"refahi/pkg/sentinel"
)

func TestMemoryDirectory(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory()
	memberID := id.NewMemberID()

	t.Run("unknown member", func(t *testing.T) {
		_, err := dir.Profile(ctx, memberID)
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("seeded lookup", func(t *testing.T) {
		dir.Seed(&Profile{
			MemberID:     memberID,
			FullName:     "Test Member",
			Features:     []string{"HOUSING"},
			Capabilities: []string{"ACTIVE"},
			Groups:       []string{"ENGINEERS"},
			Demography:   map[string]string{"ProvinceCode": "21"},
		})

		p, err := dir.Profile(ctx, memberID)
		require.NoError(t, err)
		assert.Equal(t, "Test Member", p.FullName)
		assert.Equal(t, []string{"HOUSING"}, p.Features)
	})

	t.Run("returned profile is a copy", func(t *testing.T) {
		p, err := dir.Profile(ctx, memberID)
		require.NoError(t, err)
		p.Features[0] = "MUTATED"
		p.Demography["ProvinceCode"] = "00"

		again, err := dir.Profile(ctx, memberID)
		require.NoError(t, err)
		assert.Equal(t, "HOUSING", again.Features[0])
		assert.Equal(t, "21", again.Demography["ProvinceCode"])
	})
}
