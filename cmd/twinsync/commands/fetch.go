package commands

import (
	"fmt"
	"time"

	"github.com/pysugar/oura-twin-sync/internal/identity"
	"github.com/pysugar/oura-twin-sync/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	fetchTwin     string
	fetchStart    string
	fetchEnd      string
	fetchJSON     bool
	fetchIntraday bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch and normalize daily data for one or both twins",
	Example: `  twinsync fetch
  twinsync fetch --twin a --start 2026-06-01 --end 2026-06-14
  twinsync fetch --twin b --intraday --json`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVar(&fetchTwin, "twin", "", "twin_a or twin_b (default both)")
	fetchCmd.Flags().StringVar(&fetchStart, "start", "", "first day, YYYY-MM-DD")
	fetchCmd.Flags().StringVar(&fetchEnd, "end", "", "last day, YYYY-MM-DD")
	fetchCmd.Flags().BoolVar(&fetchJSON, "json", false, "print JSON instead of a table")
	fetchCmd.Flags().BoolVar(&fetchIntraday, "intraday", false, "fetch recent heart-rate samples instead of daily data")
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

func runFetch(cmd *cobra.Command, _ []string) error {
	ids := identity.All()
	if fetchTwin != "" {
		id, err := identity.Parse(fetchTwin)
		if err != nil {
			return err
		}
		ids = []identity.Identity{id}
	}
	start, err := parseDay(fetchStart)
	if err != nil {
		return err
	}
	end, err := parseDay(fetchEnd)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if fetchIntraday {
		samples := make(map[identity.Identity]interface{}, len(ids))
		for _, id := range ids {
			samples[id] = a.pipeline.Intraday(ctx, id, a.cfg.Fetch.IntradayHours)
		}
		return printJSON(out, samples)
	}

	reports := make([]pipeline.TwinReport, 0, len(ids))
	for _, id := range ids {
		reports = append(reports, a.pipeline.Daily(ctx, id, start, end))
	}
	if fetchJSON {
		return printJSON(out, reports)
	}
	for _, r := range reports {
		printReport(out, r)
		fmt.Fprintln(out)
	}
	st := a.limiter.Status(ctx)
	fmt.Fprintf(out, "rate limit: %d/%d remaining\n", st.Remaining, st.Capacity)
	return nil
}
