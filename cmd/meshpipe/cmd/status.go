package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a running pipeline",
	Long:  `Query the status server of a running meshpipe process and render its chunk board and metrics.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusResponse struct {
	Chunks map[string]struct {
		Status      string    `json:"status"`
		CommandLine string    `json:"command_line"`
		StartTime   time.Time `json:"start_time"`
		EndTime     time.Time `json:"end_time"`
		ReturnCode  int       `json:"return_code"`
		BBoxApplied bool      `json:"bbox_applied"`
	} `json:"chunks"`
	Count int `json:"count"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	base := "http://" + GetListenAddr()

	resp, err := http.Get(base + "/api/status")
	if err != nil {
		return fmt.Errorf("failed to reach status server at %s: %w", base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status server error (status %d): %s", resp.StatusCode, string(body))
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to parse status response: %w", err)
	}

	if status.Count == 0 {
		fmt.Println("No chunks scheduled")
	} else {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Chunk", "Status", "Elapsed", "BBox")

		keys := make([]string, 0, len(status.Chunks))
		for k := range status.Chunks {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			c := status.Chunks[k]
			elapsed := ""
			if !c.StartTime.IsZero() {
				end := c.EndTime
				if end.IsZero() {
					end = time.Now()
				}
				elapsed = end.Sub(c.StartTime).Round(time.Second).String()
			}
			bbox := ""
			if c.BBoxApplied {
				bbox = "applied"
			}
			table.Append(k, c.Status, elapsed, bbox)
		}
		table.Render()
	}

	return printMetrics(base)
}

// printMetrics scrapes the pipeline's own metrics endpoint and renders the
// meshpipe counters.
func printMetrics(base string) error {
	resp, err := http.Get(base + "/metrics")
	if err != nil {
		return fmt.Errorf("failed to fetch metrics: %w", err)
	}
	defer resp.Body.Close()

	parser := expfmt.TextParser{}
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to parse metrics: %w", err)
	}

	names := make([]string, 0, len(families))
	for name := range families {
		if strings.HasPrefix(name, "meshpipe_") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil
	}

	fmt.Println()
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Metric", "Labels", "Value")
	for _, name := range names {
		for _, m := range families[name].GetMetric() {
			var labels []string
			for _, l := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%s", l.GetName(), l.GetValue()))
			}
			value := ""
			switch {
			case m.GetCounter() != nil:
				value = fmt.Sprintf("%g", m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				value = fmt.Sprintf("%g", m.GetGauge().GetValue())
			case m.GetHistogram() != nil:
				value = fmt.Sprintf("count=%d", m.GetHistogram().GetSampleCount())
			}
			table.Append(name, strings.Join(labels, ","), value)
		}
	}
	table.Render()
	return nil
}
