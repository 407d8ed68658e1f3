package breakdown

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelhouse/reelhouse/internal/shared"
)

func TestItemAmount(t *testing.T) {
	assert.Equal(t, 2500.0, ItemAmount(10000, 25))
	assert.Equal(t, 3333.33, ItemAmount(10000, 33.3333))
	assert.Equal(t, 0.0, ItemAmount(0, 50))
}

func TestValidatePercentages(t *testing.T) {
	t.Run("rejects a partial breakdown and reports the sum", func(t *testing.T) {
		err := ValidatePercentages([]Item{{Percentage: 30}})
		require.Error(t, err)
		var verr *shared.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "percentage", verr.Field)
		assert.Equal(t, 30.0, verr.Value)
	})

	t.Run("rejects sums just outside tolerance", func(t *testing.T) {
		require.Error(t, ValidatePercentages([]Item{{Percentage: 60}, {Percentage: 39.5}}))
		require.Error(t, ValidatePercentages([]Item{{Percentage: 60}, {Percentage: 40.5}}))
	})

	t.Run("accepts exact and near-exact sums", func(t *testing.T) {
		require.NoError(t, ValidatePercentages([]Item{{Percentage: 60}, {Percentage: 40}}))
		require.NoError(t, ValidatePercentages([]Item{{Percentage: 60}, {Percentage: 39.995}}))
	})

	t.Run("declined items carry no weight", func(t *testing.T) {
		require.NoError(t, ValidatePercentages([]Item{
			{Percentage: 70},
			{Percentage: 30},
			{Percentage: 25, Status: StatusDeclined},
		}))
	})
}

func TestRecalculate(t *testing.T) {
	items := []Item{
		{ID: 1, Percentage: 60, Amount: 600},
		{ID: 2, Percentage: 40, Amount: 400},
	}
	out := Recalculate(2000, items)
	require.Len(t, out, 2)
	assert.Equal(t, 1200.0, out[0].Amount)
	assert.Equal(t, 800.0, out[1].Amount)

	// Recomputing with the same budget changes nothing.
	again := Recalculate(2000, out)
	assert.Equal(t, out, again)
}

func TestProgress(t *testing.T) {
	t.Run("empty breakdown is zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Progress(nil))
	})

	t.Run("single approval does not count", func(t *testing.T) {
		items := []Item{
			{Percentage: 50, AdminApproved: true},
			{Percentage: 50},
		}
		assert.Equal(t, 0.0, Progress(items))
	})

	t.Run("dual approved weight accrues", func(t *testing.T) {
		items := []Item{
			{Percentage: 60, AdminApproved: true, ClientApproved: true},
			{Percentage: 40},
		}
		assert.InDelta(t, 60.0, Progress(items), 1e-9)
		items[1].AdminApproved = true
		items[1].ClientApproved = true
		assert.InDelta(t, 100.0, Progress(items), 1e-9)
	})

	t.Run("declined items rescale the denominator", func(t *testing.T) {
		items := []Item{
			{Percentage: 50, AdminApproved: true, ClientApproved: true},
			{Percentage: 50, Status: StatusDeclined},
		}
		assert.InDelta(t, 100.0, Progress(items), 1e-9)
	})
}
