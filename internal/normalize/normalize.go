// Package normalize merges the raw daily collections into one row per day and extracts
// the latest-day snapshot.
package normalize

import (
	"sort"

	"github.com/pysugar/oura-twin-sync/internal/upstream"
)

// DailyRecord is one day of merged metrics. Every metric is independently nullable.
type DailyRecord struct {
	Day                  string   `json:"day"`
	SpO2                 *float64 `json:"spo2"`
	LowestHeartRate      *float64 `json:"lowest_heart_rate"`
	AverageHRV           *float64 `json:"average_hrv"`
	AverageBreath        *float64 `json:"average_breath"`
	SleepScore           *float64 `json:"sleep_score"`
	CardiovascularAge    *float64 `json:"cardiovascular_age"`
	TemperatureDeviation *float64 `json:"temperature_deviation"`
}

// Table is a day-sorted set of records with unique days.
type Table []DailyRecord

// Source is the raw input of Normalize. upstream.DailyBundle satisfies it.
type Source interface {
	Records(s upstream.Source) []upstream.Record
}

// Normalize builds the per-day table. The day axis is the sorted union of days seen in
// any collection, and every collection is left-joined onto it.
func Normalize(in Source) Table {
	days := dayAxis(in)
	if len(days) == 0 {
		return Table{}
	}

	table := make(Table, len(days))
	index := make(map[string]int, len(days))
	for i, d := range days {
		table[i] = DailyRecord{Day: d}
		index[d] = i
	}

	for _, rec := range firstPerDay(in.Records(upstream.SourceSpO2)) {
		if v, ok := Resolve(rec, SpO2Rules); ok {
			table[index[dayOf(rec)]].SpO2 = &v
		}
	}

	sessions := firstPerDay(in.Records(upstream.SourceSleep))
	for _, rec := range sessions {
		row := &table[index[dayOf(rec)]]
		row.LowestHeartRate = floatField(rec, "lowest_heart_rate")
		row.AverageHRV = floatField(rec, "average_hrv")
		row.AverageBreath = floatField(rec, "average_breath")
		if row.SpO2 == nil {
			if v, ok := Resolve(rec, SleepSpO2Rules); ok {
				row.SpO2 = &v
			}
		}
	}
	convertBreathUnits(table)

	joinField(table, index, in.Records(upstream.SourceDailySleep), "score", func(r *DailyRecord, v *float64) { r.SleepScore = v })
	joinField(table, index, in.Records(upstream.SourceCardioAge), "vascular_age", func(r *DailyRecord, v *float64) { r.CardiovascularAge = v })
	joinField(table, index, in.Records(upstream.SourceReadiness), "temperature_deviation", func(r *DailyRecord, v *float64) { r.TemperatureDeviation = v })

	return table
}

// convertBreathUnits turns breaths/second into breaths/minute when every value is below 1.
func convertBreathUnits(table Table) {
	maxBreath, seen := 0.0, false
	for _, r := range table {
		if r.AverageBreath == nil {
			continue
		}
		if !seen || *r.AverageBreath > maxBreath {
			maxBreath = *r.AverageBreath
		}
		seen = true
	}
	if !seen || maxBreath >= 1 {
		return
	}
	for i := range table {
		if table[i].AverageBreath != nil {
			v := *table[i].AverageBreath * 60
			table[i].AverageBreath = &v
		}
	}
}

func joinField(table Table, index map[string]int, recs []upstream.Record, field string, set func(*DailyRecord, *float64)) {
	for _, rec := range firstPerDay(recs) {
		set(&table[index[dayOf(rec)]], floatField(rec, field))
	}
}

// firstPerDay keeps the first record seen for each day, dropping records without one.
func firstPerDay(recs []upstream.Record) map[string]upstream.Record {
	out := make(map[string]upstream.Record, len(recs))
	for _, rec := range recs {
		d := dayOf(rec)
		if d == "" {
			continue
		}
		if _, ok := out[d]; !ok {
			out[d] = rec
		}
	}
	return out
}

func dayAxis(in Source) []string {
	seen := make(map[string]struct{})
	for _, src := range upstream.DailySources() {
		for _, rec := range in.Records(src) {
			if d := dayOf(rec); d != "" {
				seen[d] = struct{}{}
			}
		}
	}
	days := make([]string, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Strings(days)
	return days
}

func dayOf(rec upstream.Record) string {
	d, _ := rec["day"].(string)
	return d
}
