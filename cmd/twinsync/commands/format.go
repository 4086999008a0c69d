package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/pysugar/oura-twin-sync/internal/pipeline"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func num(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// printReport renders one twin's days as an aligned table followed by the snapshot.
func printReport(w io.Writer, r pipeline.TwinReport) {
	fmt.Fprintf(w, "== %s (%s .. %s)\n", r.Label, r.Start, r.End)
	if !r.Connected {
		fmt.Fprintln(w, "not connected")
		return
	}
	if r.RateLimited {
		fmt.Fprintf(w, "warning: Oura API rate limit reached, retry after %.0fs\n", r.RetryAfter)
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintf(w, "warning: skipped by local rate limit: %v\n", r.Skipped)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tSPO2\tLOWEST_HR\tHRV\tBREATH\tSLEEP\tCARDIO_AGE\tTEMP_DEV")
	for _, d := range r.Table {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n", d.Day, num(d.SpO2), num(d.LowestHeartRate),
			num(d.AverageHRV), num(d.AverageBreath), num(d.SleepScore), num(d.CardiovascularAge), num(d.TemperatureDeviation))
	}
	tw.Flush()

	s := r.Snapshot
	last := "-"
	if s.LastSyncDay != nil {
		last = *s.LastSyncDay
	}
	fmt.Fprintf(w, "latest %s: spo2=%s resting_hr=%s hrv=%s respiratory_rate=%s sleep_score=%s skin_temp=%s\n",
		last, num(s.SpO2), num(s.RestingHR), num(s.HRV), num(s.RespiratoryRate), num(s.SleepScore), num(s.SkinTempDeviation))
	if r.LowSpO2 {
		fmt.Fprintln(w, "ALERT: SpO2 below 90%")
	}
}
