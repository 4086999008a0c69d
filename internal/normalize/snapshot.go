package normalize

import "math"

// CriticalSpO2 is the percentage below which a reading is flagged.
const CriticalSpO2 = 90.0

// Snapshot holds the latest day's headline metrics. Nil means unknown.
type Snapshot struct {
	SpO2              *float64 `json:"spo2"`
	RestingHR         *float64 `json:"resting_hr"`
	HRV               *float64 `json:"hrv"`
	RespiratoryRate   *float64 `json:"respiratory_rate"`
	SleepScore        *float64 `json:"sleep_score"`
	SkinTempDeviation *float64 `json:"skin_temp_deviation"`
	LastSyncDay       *string  `json:"last_sync_day"`
}

// LowSpO2 reports a known SpO2 below CriticalSpO2.
func (s Snapshot) LowSpO2() bool {
	return s.SpO2 != nil && *s.SpO2 < CriticalSpO2
}

// Latest extracts the snapshot from the row with the greatest day.
func Latest(table Table) Snapshot {
	if len(table) == 0 {
		return Snapshot{}
	}

	latest := table[0]
	for _, r := range table[1:] {
		if r.Day > latest.Day {
			latest = r
		}
	}

	snap := Snapshot{
		SpO2:              finite(latest.SpO2),
		RestingHR:         finite(latest.LowestHeartRate),
		HRV:               finite(latest.AverageHRV),
		RespiratoryRate:   finite(latest.AverageBreath),
		SleepScore:        finite(latest.SleepScore),
		SkinTempDeviation: finite(latest.TemperatureDeviation),
	}
	if latest.Day != "" {
		day := latest.Day
		snap.LastSyncDay = &day
	}
	return snap
}

func finite(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	out := *v
	return &out
}
