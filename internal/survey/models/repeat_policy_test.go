package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "refahi/pkg/domain-errors"
)

func TestRepeatPolicy_IsValidRepeatIndex(t *testing.T) {
	t.Run("none permits only index 1", func(t *testing.T) {
		p := NoRepeat()
		assert.False(t, p.IsValidRepeatIndex(0))
		assert.True(t, p.IsValidRepeatIndex(1))
		assert.False(t, p.IsValidRepeatIndex(2))
	})

	t.Run("bounded permits 1..max", func(t *testing.T) {
		p, err := BoundedRepeat(3)
		require.NoError(t, err)
		assert.False(t, p.IsValidRepeatIndex(0))
		for i := 1; i <= 3; i++ {
			assert.True(t, p.IsValidRepeatIndex(i), "index %d", i)
		}
		assert.False(t, p.IsValidRepeatIndex(4))
	})

	t.Run("unbounded permits any index >= 1", func(t *testing.T) {
		p := UnboundedRepeat()
		assert.False(t, p.IsValidRepeatIndex(0))
		assert.True(t, p.IsValidRepeatIndex(1))
		assert.True(t, p.IsValidRepeatIndex(100000))
	})
}

func TestRepeatPolicy_CanAddMoreRepeats(t *testing.T) {
	t.Run("none allows a single answer", func(t *testing.T) {
		p := NoRepeat()
		assert.True(t, p.CanAddMoreRepeats(0))
		assert.False(t, p.CanAddMoreRepeats(1))
	})

	t.Run("bounded caps at max", func(t *testing.T) {
		p, err := BoundedRepeat(2)
		require.NoError(t, err)
		assert.True(t, p.CanAddMoreRepeats(0))
		assert.True(t, p.CanAddMoreRepeats(1))
		assert.False(t, p.CanAddMoreRepeats(2))
	})

	t.Run("unbounded never caps", func(t *testing.T) {
		p := UnboundedRepeat()
		assert.True(t, p.CanAddMoreRepeats(0))
		assert.True(t, p.CanAddMoreRepeats(10000))
	})
}

func TestRepeatPolicy_MaxRepeatIndex(t *testing.T) {
	noneMax, ok := NoRepeat().MaxRepeatIndex()
	assert.True(t, ok)
	assert.Equal(t, 1, noneMax)

	bounded, err := BoundedRepeat(5)
	require.NoError(t, err)
	boundedMax, ok := bounded.MaxRepeatIndex()
	assert.True(t, ok)
	assert.Equal(t, 5, boundedMax)

	_, ok = UnboundedRepeat().MaxRepeatIndex()
	assert.False(t, ok, "unbounded has no ceiling")
}

func TestBoundedRepeat_RejectsInvalidMax(t *testing.T) {
	for _, max := range []int{0, -1} {
		_, err := BoundedRepeat(max)
		require.Error(t, err, "max %d", max)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	}
}
