package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/flowtune/flowtune/internal/result"
)

// StudySummary aggregates all trials of one run.
type StudySummary struct {
	Study         string             `json:"study"`
	Trials        int                `json:"trials"`
	BestTrial     int                `json:"best_trial"`
	BestValue     float64            `json:"best_value"`
	BestParams    map[string]any     `json:"best_params"`
	MeanObjective float64            `json:"mean_objective"`
	MetricMeans   map[string]float64 `json:"metric_means"`
}

// Generate reads trial results from a run directory and writes a
// summary report. Direction decides which objective counts as best.
func Generate(runDir, format, direction string, w io.Writer) error {
	metas, err := result.CollectMetas(runDir)
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		return fmt.Errorf("no trial results found in %s", runDir)
	}

	rows := sortTrials(metas, direction)
	summary := aggregate(rows, direction)

	switch format {
	case "markdown":
		return writeMarkdown(summary, rows, w)
	case "json":
		return writeJSON(summary, rows, w)
	default:
		return writeTable(summary, rows, w)
	}
}

func sortTrials(metas []*result.TrialMeta, direction string) []*result.TrialMeta {
	rows := make([]*result.TrialMeta, len(metas))
	copy(rows, metas)
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Objective == rows[j].Objective {
			return rows[i].Trial < rows[j].Trial
		}
		if direction == "minimize" {
			return rows[i].Objective < rows[j].Objective
		}
		return rows[i].Objective > rows[j].Objective
	})
	return rows
}

func aggregate(rows []*result.TrialMeta, direction string) StudySummary {
	best := rows[0]
	summary := StudySummary{
		Study:      best.Study,
		Trials:     len(rows),
		BestTrial:  best.Trial,
		BestValue:  best.Objective,
		BestParams: best.Params,
	}

	var objSum float64
	metricSums := map[string]float64{}
	metricCounts := map[string]int{}
	for _, m := range rows {
		objSum += m.Objective
		for op, v := range m.Metrics {
			metricSums[op] += v
			metricCounts[op]++
		}
	}
	summary.MeanObjective = objSum / float64(len(rows))
	summary.MetricMeans = make(map[string]float64, len(metricSums))
	for op, sum := range metricSums {
		summary.MetricMeans[op] = sum / float64(metricCounts[op])
	}
	return summary
}

func formatParams(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return strings.Join(parts, " ")
}

func writeTable(summary StudySummary, rows []*result.TrialMeta, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRIAL\tOBJECTIVE\tDURATION\tPARAMS")
	fmt.Fprintln(tw, strings.Repeat("-", 72))
	for _, m := range rows {
		fmt.Fprintf(tw, "%d\t%.4f\t%ds\t%s\n", m.Trial, m.Objective, m.DurationS, formatParams(m.Params))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nStudy: %s\n", summary.Study)
	fmt.Fprintf(w, "Best trial: %d (objective %.4f)\n", summary.BestTrial, summary.BestValue)
	fmt.Fprintf(w, "Mean objective over %d trials: %.4f\n", summary.Trials, summary.MeanObjective)
	return nil
}

func writeMarkdown(summary StudySummary, rows []*result.TrialMeta, w io.Writer) error {
	fmt.Fprintln(w, "| Trial | Objective | Duration | Params |")
	fmt.Fprintln(w, "|---|---|---|---|")
	for _, m := range rows {
		fmt.Fprintf(w, "| %d | %.4f | %ds | %s |\n", m.Trial, m.Objective, m.DurationS, formatParams(m.Params))
	}
	fmt.Fprintf(w, "\n**Best trial**: %d (objective %.4f, mean %.4f over %d trials)\n",
		summary.BestTrial, summary.BestValue, summary.MeanObjective, summary.Trials)
	return nil
}

func writeJSON(summary StudySummary, rows []*result.TrialMeta, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Summary StudySummary        `json:"summary"`
		Trials  []*result.TrialMeta `json:"trials"`
	}{summary, rows})
}
