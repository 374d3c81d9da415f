package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectionDateOf(t *testing.T) {
	ts := time.Date(2026, 9, 1, 23, 45, 12, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), DetectionDateOf(ts))

	// A timestamp in another zone resolves to the UTC calendar day.
	jakarta := time.FixedZone("WIB", 7*3600)
	local := time.Date(2026, 9, 2, 3, 0, 0, 0, jakarta) // 2026-09-01 20:00 UTC
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), DetectionDateOf(local))
}

func TestNewReIDPerson(t *testing.T) {
	ts := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	p := NewReIDPerson("R1", ts, 2, nil)

	require.NotNil(t, p)
	assert.Equal(t, "R1", p.ReID)
	assert.Equal(t, DetectionDateOf(ts), p.DetectionDate)
	assert.Equal(t, 2, p.ActualCount)
	assert.Equal(t, 1, p.BranchCount)
	assert.Equal(t, ts, p.FirstDetectedAt)
	assert.Equal(t, ts, p.LastDetectedAt)
	assert.Equal(t, PersonStatusActive, p.Status)
}

func TestApplyDetection(t *testing.T) {
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	t.Run("repeat branch keeps branch count", func(t *testing.T) {
		p := NewReIDPerson("R1", base, 2, nil)
		p.ApplyDetection(base.Add(time.Hour), 3, false)

		assert.Equal(t, 5, p.ActualCount)
		assert.Equal(t, 1, p.BranchCount)
		assert.Equal(t, base.Add(time.Hour), p.LastDetectedAt)
	})

	t.Run("new branch increments branch count", func(t *testing.T) {
		p := NewReIDPerson("R1", base, 2, nil)
		p.ApplyDetection(base.Add(time.Hour), 1, true)

		assert.Equal(t, 3, p.ActualCount)
		assert.Equal(t, 2, p.BranchCount)
	})

	t.Run("out of order timestamps never regress", func(t *testing.T) {
		p := NewReIDPerson("R1", base, 1, nil)
		// A later sighting processed first, then an earlier one.
		p.ApplyDetection(base.Add(2*time.Hour), 1, false)
		p.ApplyDetection(base.Add(-time.Hour), 1, false)

		assert.Equal(t, base.Add(-time.Hour), p.FirstDetectedAt)
		assert.Equal(t, base.Add(2*time.Hour), p.LastDetectedAt)
		assert.True(t, !p.FirstDetectedAt.After(p.LastDetectedAt))
	})
}
