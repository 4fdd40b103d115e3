package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/menuguard/internal/diagnostics"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the diagnostics report of a running instance",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "http://localhost:8080", "diagnostics server address")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	report, err := fetchReport(ctx, statusAddr)
	if err != nil {
		slog.Error("Failed to fetch status", "error", err)
		os.Exit(1)
	}
	printReport(os.Stdout, report)
}

func fetchReport(ctx context.Context, addr string) (*diagnostics.Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/health/detailed", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var report diagnostics.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}

func printReport(out io.Writer, r *diagnostics.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "SECTION\tFIELD\tVALUE")
	_, _ = fmt.Fprintf(w, "system\tstatus\t%s\n", r.Status)
	for _, reason := range r.Reasons {
		_, _ = fmt.Fprintf(w, "system\treason\t%s\n", reason)
	}

	res := r.Resources
	_, _ = fmt.Fprintf(w, "resources\ttotal\t%d (%s)\n", res.Total, res.EstimatedSize)
	_, _ = fmt.Fprintf(w, "resources\tpressure\t%s (%.0f MB free)\n", res.PressureLevel, res.AvailableMB)
	_, _ = fmt.Fprintf(w, "resources\tdegraded\t%t\n", res.Degraded)
	for _, t := range slices.Sorted(maps.Keys(res.ByType)) {
		_, _ = fmt.Fprintf(w, "resources\t%s\t%d\n", t, res.ByType[t])
	}

	f := r.Focus
	_, _ = fmt.Fprintf(w, "focus\tmode\t%s\n", f.Mode)
	_, _ = fmt.Fprintf(w, "focus\tsource\t%s\n", f.Source)
	_, _ = fmt.Fprintf(w, "focus\tconflicts\t%d/%d resolved\n", f.ConflictsResolved, f.Conflicts)
	_, _ = fmt.Fprintf(w, "focus\trecoveries\t%d\n", f.DeadlockRecoveries)

	e := r.Errors
	_, _ = fmt.Fprintf(w, "errors\ttotal\t%d\n", e.TotalErrors)
	_, _ = fmt.Fprintf(w, "errors\trecent\t%d in %s\n", e.RecentErrors, e.Window)
	_, _ = fmt.Fprintf(w, "errors\trecovered/failed\t%d/%d\n", e.Recovered, e.Failed)
	for _, kc := range e.TopKinds {
		_, _ = fmt.Fprintf(w, "errors\t%s\t%d\n", kc.Kind, kc.Count)
	}
	_ = w.Flush()
}
