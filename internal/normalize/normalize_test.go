package normalize

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/pysugar/oura-twin-sync/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bundle decodes raw JSON arrays the same way the client does.
func bundle(t *testing.T, raw map[upstream.Source]string) upstream.DailyBundle {
	t.Helper()
	b := upstream.DailyBundle{Data: map[upstream.Source][]upstream.Record{}}
	for src, body := range raw {
		var recs []upstream.Record
		require.NoError(t, json.Unmarshal([]byte(body), &recs), src)
		b.Data[src] = recs
	}
	return b
}

func val(t *testing.T, p *float64) float64 {
	t.Helper()
	require.NotNil(t, p)
	return *p
}

func TestNormalize_EmptyBundle(t *testing.T) {
	table := Normalize(upstream.DailyBundle{})
	assert.NotNil(t, table)
	assert.Empty(t, table)
}

func TestNormalize_DayAxisIsSortedUnion(t *testing.T) {
	b := bundle(t, map[upstream.Source]string{
		upstream.SourceSpO2:       `[{"day":"2026-06-03","spo2_percentage":{"average":97.1}}]`,
		upstream.SourceDailySleep: `[{"day":"2026-06-01","score":80},{"day":"2026-06-03","score":82}]`,
		upstream.SourceReadiness:  `[{"day":"2026-06-02","temperature_deviation":-0.2}]`,
	})

	table := Normalize(b)
	require.Len(t, table, 3)
	assert.Equal(t, "2026-06-01", table[0].Day)
	assert.Equal(t, "2026-06-02", table[1].Day)
	assert.Equal(t, "2026-06-03", table[2].Day)

	assert.Nil(t, table[0].SpO2)
	assert.Equal(t, 80.0, val(t, table[0].SleepScore))
	assert.Nil(t, table[1].SleepScore)
	assert.Equal(t, -0.2, val(t, table[1].TemperatureDeviation))
	assert.Equal(t, 97.1, val(t, table[2].SpO2))
	assert.Equal(t, 82.0, val(t, table[2].SleepScore))
}

func TestNormalize_SpO2FieldVariants(t *testing.T) {
	tests := []struct {
		name string
		rec  string
		want *float64
	}{
		{"percentage object", `{"day":"d","spo2_percentage":{"average":96.5}}`, ptr(96.5)},
		{"percentage scalar", `{"day":"d","spo2_percentage":95}`, ptr(95)},
		{"average blood oxygen", `{"day":"d","average_blood_oxygen":94.2}`, ptr(94.2)},
		{"oxygen object value", `{"day":"d","blood_oxygen":{"value":93}}`, ptr(93)},
		{"numeric string", `{"day":"d","average_blood_oxygen":"92.5"}`, ptr(92.5)},
		{"null percentage falls through", `{"day":"d","spo2_percentage":null,"average_blood_oxygen":91}`, ptr(91)},
		{"nothing usable", `{"day":"d","breathing_disturbance_index":3}`, nil},
		{"null average stops resolution", `{"day":"d","spo2_percentage":{"average":null,"value":97}}`, nil},
		{"object without average falls through", `{"day":"d","spo2_percentage":{"value":97},"average_blood_oxygen":90}`, ptr(90)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := Normalize(bundle(t, map[upstream.Source]string{upstream.SourceSpO2: "[" + tt.rec + "]"}))
			require.Len(t, table, 1)
			if tt.want == nil {
				assert.Nil(t, table[0].SpO2)
				return
			}
			assert.InDelta(t, *tt.want, val(t, table[0].SpO2), 1e-9)
		})
	}
}

func TestNormalize_FirstSleepSessionWins(t *testing.T) {
	b := bundle(t, map[upstream.Source]string{
		upstream.SourceSleep: `[
			{"day":"2026-06-01","lowest_heart_rate":52,"average_hrv":40,"average_breath":14.5},
			{"day":"2026-06-01","lowest_heart_rate":60,"average_hrv":20,"average_breath":16}
		]`,
	})

	table := Normalize(b)
	require.Len(t, table, 1)
	assert.Equal(t, 52.0, val(t, table[0].LowestHeartRate))
	assert.Equal(t, 40.0, val(t, table[0].AverageHRV))
	assert.Equal(t, 14.5, val(t, table[0].AverageBreath))
}

func TestNormalize_BreathUnitConversion(t *testing.T) {
	tests := []struct {
		name   string
		breath string
		want   []float64
	}{
		{"per second converted", `0.25, 0.3`, []float64{15, 18}},
		{"per minute unchanged", `14, 0.5`, []float64{14, 0.5}},
		{"exactly one unchanged", `1, 0.5`, []float64{1, 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var vals []float64
			require.NoError(t, json.Unmarshal([]byte("["+tt.breath+"]"), &vals))
			recs := make([]upstream.Record, len(vals))
			for i, v := range vals {
				recs[i] = upstream.Record{"day": []string{"2026-06-01", "2026-06-02"}[i], "average_breath": v}
			}
			table := Normalize(upstream.DailyBundle{Data: map[upstream.Source][]upstream.Record{upstream.SourceSleep: recs}})
			require.Len(t, table, len(tt.want))
			for i, want := range tt.want {
				assert.InDelta(t, want, val(t, table[i].AverageBreath), 1e-9)
			}
		})
	}
}

func TestNormalize_SleepSpO2FallbackFillsMissingDays(t *testing.T) {
	b := bundle(t, map[upstream.Source]string{
		upstream.SourceSpO2: `[{"day":"2026-06-02","spo2_percentage":{"average":98}}]`,
		upstream.SourceSleep: `[
			{"day":"2026-06-01","spo2_average":{"average":95}},
			{"day":"2026-06-02","spo2_average":{"average":91}}
		]`,
	})

	table := Normalize(b)
	require.Len(t, table, 2)
	assert.Equal(t, 95.0, val(t, table[0].SpO2), "sleep fallback used when daily value missing")
	assert.Equal(t, 98.0, val(t, table[1].SpO2), "daily value kept")
}

func TestNormalize_DuplicateDaysKeepFirst(t *testing.T) {
	b := bundle(t, map[upstream.Source]string{
		upstream.SourceCardioAge: `[{"day":"2026-06-01","vascular_age":41},{"day":"2026-06-01","vascular_age":45}]`,
	})
	table := Normalize(b)
	require.Len(t, table, 1)
	assert.Equal(t, 41.0, val(t, table[0].CardiovascularAge))
}

func TestNormalize_RecordsWithoutDayIgnored(t *testing.T) {
	b := bundle(t, map[upstream.Source]string{
		upstream.SourceDailySleep: `[{"score":70},{"day":"2026-06-01","score":75}]`,
	})
	table := Normalize(b)
	require.Len(t, table, 1)
	assert.Equal(t, 75.0, val(t, table[0].SleepScore))
}

func TestResolve_SkipsNonFinite(t *testing.T) {
	_, ok := Resolve(map[string]interface{}{"average_blood_oxygen": math.NaN()}, SpO2Rules)
	assert.False(t, ok)
}

func ptr(v float64) *float64 { return &v }
