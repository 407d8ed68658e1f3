package payments

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateLateness(t *testing.T) {
	deadline := time.Date(2025, 6, 10, 18, 0, 0, 0, time.UTC)

	t.Run("on time", func(t *testing.T) {
		late := EvaluateLateness(deadline.Add(-time.Hour), deadline)
		assert.False(t, late.DeadlineCrossed)
		assert.Equal(t, 0, late.DaysLate)
	})

	t.Run("exactly at the deadline is on time", func(t *testing.T) {
		late := EvaluateLateness(deadline, deadline)
		assert.False(t, late.DeadlineCrossed)
	})

	t.Run("one second past rounds up to one day", func(t *testing.T) {
		late := EvaluateLateness(deadline.Add(time.Second), deadline)
		assert.True(t, late.DeadlineCrossed)
		assert.Equal(t, 1, late.DaysLate)
	})

	t.Run("exactly 24 hours is one day", func(t *testing.T) {
		late := EvaluateLateness(deadline.Add(24*time.Hour), deadline)
		assert.True(t, late.DeadlineCrossed)
		assert.Equal(t, 1, late.DaysLate)
	})

	t.Run("25 hours rounds up to two days", func(t *testing.T) {
		late := EvaluateLateness(deadline.Add(25*time.Hour), deadline)
		assert.True(t, late.DeadlineCrossed)
		assert.Equal(t, 2, late.DaysLate)
	})

	t.Run("zero deadline never counts late", func(t *testing.T) {
		late := EvaluateLateness(deadline, time.Time{})
		assert.False(t, late.DeadlineCrossed)
	})
}

func TestPenaltyFor(t *testing.T) {
	assert.Equal(t, 0.0, PenaltyFor(5000, false))
	assert.Equal(t, 1000.0, PenaltyFor(5000, true))
	assert.Equal(t, 246.91, PenaltyFor(1234.56, true))
}
