package normalize

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatest_EmptyTableAllNull(t *testing.T) {
	snap := Latest(nil)
	assert.Equal(t, Snapshot{}, snap)
	assert.False(t, snap.LowSpO2())

	out, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.JSONEq(t, `{"spo2":null,"resting_hr":null,"hrv":null,"respiratory_rate":null,
		"sleep_score":null,"skin_temp_deviation":null,"last_sync_day":null}`, string(out))
}

func TestLatest_UsesGreatestDay(t *testing.T) {
	table := Table{
		{Day: "2026-06-01", SpO2: ptr(97), LowestHeartRate: ptr(50)},
		{Day: "2026-06-02", SpO2: ptr(88), AverageHRV: ptr(42), AverageBreath: ptr(15),
			SleepScore: ptr(77), TemperatureDeviation: ptr(0.1)},
	}

	snap := Latest(table)
	require.NotNil(t, snap.LastSyncDay)
	assert.Equal(t, "2026-06-02", *snap.LastSyncDay)
	assert.Equal(t, 88.0, *snap.SpO2)
	assert.Nil(t, snap.RestingHR, "no carry-over from earlier days")
	assert.Equal(t, 42.0, *snap.HRV)
	assert.Equal(t, 15.0, *snap.RespiratoryRate)
	assert.Equal(t, 77.0, *snap.SleepScore)
	assert.Equal(t, 0.1, *snap.SkinTempDeviation)
	assert.True(t, snap.LowSpO2())
}

func TestLatest_NonFiniteBecomesNull(t *testing.T) {
	snap := Latest(Table{{Day: "2026-06-01", SpO2: ptr(math.NaN()), SleepScore: ptr(math.Inf(1))}})
	assert.Nil(t, snap.SpO2)
	assert.Nil(t, snap.SleepScore)
}

func TestSnapshot_LowSpO2Boundary(t *testing.T) {
	assert.False(t, Snapshot{SpO2: ptr(90)}.LowSpO2())
	assert.True(t, Snapshot{SpO2: ptr(89.9)}.LowSpO2())
}
