package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/platinummonkey/beacon/pkg/analytics"
)

// rangeDays maps --range values onto a look-back in days; 0 means all time
var rangeDays = map[string]int{
	"7":   7,
	"30":  30,
	"90":  90,
	"all": 0,
}

// startDateFor returns the start_date for a range, or "" for all time
func startDateFor(rng string, now time.Time) (string, error) {
	days, ok := rangeDays[rng]
	if !ok {
		return "", fmt.Errorf("invalid range %q (must be 7, 30, 90 or all)", rng)
	}
	if days == 0 {
		return "", nil
	}
	return now.UTC().AddDate(0, 0, -days).Format(time.RFC3339), nil
}

func newStatsCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "stats",
		Description: "Show installation statistics",
		Flags:       newFlagSet("stats", out),
		out:         out,
	}

	apiURL := cmd.Flags.String("api-url", defaultAPIURL(), "Beacon API URL")
	rng := cmd.Flags.String("range", "30", "Look-back in days: 7, 30, 90 or all")
	asJSON := cmd.Flags.Bool("json", false, "Print the raw JSON report")
	timeout := cmd.Flags.Duration("timeout", 30*time.Second, "Request timeout")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		startDate, err := startDateFor(*rng, time.Now())
		if err != nil {
			return err
		}
		query := url.Values{}
		if startDate != "" {
			query.Set("start_date", startDate)
		}

		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()

		var stats analytics.Stats
		if err := newAPIClient(*apiURL, *timeout).get(ctx, "/api/telemetry/stats", query, &stats); err != nil {
			return fmt.Errorf("failed to fetch stats: %w", err)
		}

		if *asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}
		return printStats(out, *rng, &stats)
	}

	return cmd
}

func printStats(out io.Writer, rng string, stats *analytics.Stats) error {
	label := "all time"
	if rng != "all" {
		label = "last " + rng + " days"
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Range:\t%s\n", label)
	fmt.Fprintf(w, "Sessions:\t%d\n", stats.TotalSessions)
	fmt.Fprintf(w, "Successful:\t%d\n", stats.SuccessfulInstalls)
	fmt.Fprintf(w, "Success rate:\t%.1f%%\n", stats.SuccessRate)
	fmt.Fprintf(w, "Avg install time:\t%.1fs\n", stats.AvgInstallTime)

	if len(stats.InstallationByOS) > 0 {
		fmt.Fprintf(w, "\nOS\tSESSIONS\n")
		for _, name := range sortedKeys(stats.InstallationByOS) {
			fmt.Fprintf(w, "%s\t%d\n", name, stats.InstallationByOS[name])
		}
	}

	if len(stats.StepsStatus) > 0 {
		fmt.Fprintf(w, "\nSTEP\tSTATUS\tEVENTS\n")
		steps := make([]string, 0, len(stats.StepsStatus))
		for step := range stats.StepsStatus {
			steps = append(steps, step)
		}
		sort.Strings(steps)
		for _, step := range steps {
			statuses := stats.StepsStatus[step]
			names := make([]string, 0, len(statuses))
			for status := range statuses {
				names = append(names, status)
			}
			sort.Strings(names)
			for _, status := range names {
				fmt.Fprintf(w, "%s\t%s\t%d\n", step, status, statuses[status])
			}
		}
	}

	return w.Flush()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
