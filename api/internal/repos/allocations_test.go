package repos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resource-planning-system/api/internal/models"
)

func TestDecodeWeekly(t *testing.T) {
	start := time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 8, 3, 0, 0, 0, 0, time.UTC)
	raw := []byte(`{"2025-W29": 40, "2025W29": 2, "2025-30": "16", "W31": 40, "2025-W30x": 1, "2025-W32": true}`)

	weekly, anomalies := decodeWeekly(raw, start, end)
	assert.Equal(t, models.WeeklyHours{
		{Year: 2025, Week: 29}: 42,
		{Year: 2025, Week: 30}: 16,
		{Year: 2025, Week: 31}: 40,
	}, weekly)
	require.Len(t, anomalies, 2)
	assert.Equal(t, "2025-W30x", anomalies[0].Key)
	assert.Equal(t, "2025-W32", anomalies[1].Key)
}

func TestDecodeWeeklyEmptyAndMalformed(t *testing.T) {
	now := time.Now()
	w, a := decodeWeekly(nil, now, now)
	assert.Nil(t, w)
	assert.Nil(t, a)

	w, a = decodeWeekly([]byte("null"), now, now)
	assert.Nil(t, w)
	assert.Nil(t, a)

	w, a = decodeWeekly([]byte(`[1,2]`), now, now)
	assert.Nil(t, w)
	require.Len(t, a, 1)
	assert.Equal(t, "*", a[0].Key)
}
