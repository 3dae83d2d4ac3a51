package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/offloadtest/internal/store"
	"github.com/spf13/cobra"
)

var (
	reportDataDir string
	keepLast      int
	olderThanDays int
	passedOnly    bool
	forceClean    bool
	cleanHistory  bool
	showJSON      bool
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Manage saved comparison reports",
	Long: `Manage comparison reports saved with "imgdiff --save", including
listing, inspecting and cleaning old reports.`,
}

var listReportsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all saved reports",
	RunE:  runListReports,
}

var showReportCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a saved report",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowReport,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the comparison history log",
	RunE:  runHistory,
}

var cleanReportsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old reports",
	Long: `Delete old reports based on retention policy.
You can keep only the newest N reports or delete reports older than N days.`,
	RunE: runCleanReports,
}

func init() {
	rootCmd.AddCommand(reportsCmd)

	reportsCmd.AddCommand(listReportsCmd)
	reportsCmd.AddCommand(showReportCmd)
	reportsCmd.AddCommand(historyCmd)
	reportsCmd.AddCommand(cleanReportsCmd)

	reportsCmd.PersistentFlags().StringVar(&reportDataDir, "data-dir", "./data", "Base directory for report storage")

	showReportCmd.Flags().BoolVar(&showJSON, "json", false, "Print the raw report JSON")

	cleanReportsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N reports (0 = keep all)")
	cleanReportsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete reports older than N days (0 = no age limit)")
	cleanReportsCmd.Flags().BoolVar(&passedOnly, "passed-only", false, "Only delete reports of passing comparisons")
	cleanReportsCmd.Flags().BoolVar(&cleanHistory, "history", false, "Also delete the history log")
	cleanReportsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func runListReports(cmd *cobra.Command, args []string) error {
	reportStore, err := store.NewFSStore(reportDataDir)
	if err != nil {
		return fmt.Errorf("failed to create report store: %w", err)
	}

	infos, err := reportStore.ListReports()
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No reports found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIMESTAMP\tMODE\tRESULT\tFURTHEST\tACTUAL\tSIZE")
	fmt.Fprintln(w, "--\t---------\t----\t------\t--------\t------\t----")

	for _, info := range infos {
		size, err := getDirSize(reportStore.ReportDir(info.ID))
		sizeStr := "unknown"
		if err == nil {
			sizeStr = formatBytes(size)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.4f\t%s\t%s\n",
			shortID(info.ID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Mode,
			verdict(info.Passed),
			info.Furthest,
			info.Actual,
			sizeStr,
		)
	}

	w.Flush()

	fmt.Printf("\nTotal reports: %d\n", len(infos))
	return nil
}

func runShowReport(cmd *cobra.Command, args []string) error {
	reportStore, err := store.NewFSStore(reportDataDir)
	if err != nil {
		return fmt.Errorf("failed to create report store: %w", err)
	}

	report, err := reportStore.LoadReport(args[0])
	if err != nil {
		return err
	}
	return printReport(os.Stdout, reportStore, report, showJSON)
}

func printReport(out io.Writer, reportStore *store.FSStore, report *store.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "Report:    %s\n", report.ID)
	fmt.Fprintf(out, "Timestamp: %s\n", report.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(out, "Expected:  %s\n", report.Config.Expected)
	fmt.Fprintf(out, "Actual:    %s\n", report.Config.Actual)
	fmt.Fprintf(out, "Mode:      %s\n", report.Config.Mode)
	fmt.Fprintf(out, "Result:    %s\n", verdict(report.Passed))
	if report.Message != "" {
		fmt.Fprintf(out, "Message:   %s\n", report.Message)
	}

	if s := report.Summary; s != nil {
		fmt.Fprintf(out, "Metric:    %s\n", s.Metric)
		fmt.Fprintf(out, "Rules:     %v\n", s.Rules)
		fmt.Fprintf(out, "RMS Difference: %g\n", s.RMS)
		fmt.Fprintf(out, "Furthest Pixel Difference: %g\n", s.Furthest)
		fmt.Fprintf(out, "Pixels with visible differences: %d of %d\n", s.VisibleDiffs, s.Count)
		fmt.Fprintf(out, "RMS Different Pixels Only: %g\n", s.DiffRMS)
		fmt.Fprintf(out, "Histogram: %v\n", s.Histogram)
	}
	if report.DiffImage != "" {
		fmt.Fprintf(out, "Diff image: %s\n", filepath.Join(reportStore.ReportDir(report.ID), report.DiffImage))
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	reader, err := store.NewHistoryReader(reportDataDir)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Println("No history recorded.")
		return nil
	} else if err != nil {
		return err
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tMODE\tRESULT\tFURTHEST\tEXPECTED\tACTUAL\tREPORT")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%s\t%s\t%s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"),
			e.Mode,
			verdict(e.Passed),
			e.Furthest,
			e.Expected,
			e.Actual,
			shortID(e.ReportID),
		)
	}
	return w.Flush()
}

func runCleanReports(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	reportStore, err := store.NewFSStore(reportDataDir)
	if err != nil {
		return fmt.Errorf("failed to create report store: %w", err)
	}

	infos, err := reportStore.ListReports()
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}

	toDelete := selectReportsForDeletion(infos, keepLast, olderThanDays, passedOnly)
	if len(toDelete) == 0 && !cleanHistory {
		fmt.Println("No reports match deletion criteria.")
		return nil
	}

	fmt.Printf("Found %d report(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Printf("  - %s (%s, %s)\n",
			shortID(info.ID),
			verdict(info.Passed),
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}
	if cleanHistory {
		fmt.Println("  - history log")
	}

	// Ask for confirmation unless --force is set
	if !forceClean {
		fmt.Print("\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := reportStore.DeleteReport(info.ID); err != nil {
			slog.Error("Failed to delete report", "id", info.ID, "error", err)
			failed++
		} else {
			slog.Info("Deleted report", "id", info.ID)
			deleted++
		}
	}

	if cleanHistory {
		if err := store.DeleteHistory(reportDataDir); err != nil {
			return err
		}
	}

	fmt.Printf("\nDeleted %d report(s), %d failed.\n", deleted, failed)
	return nil
}

// selectReportsForDeletion applies the age and count retention policies.
// With passedOnly, failing reports are always kept.
func selectReportsForDeletion(infos []store.ReportInfo, keepLast, olderThanDays int, passedOnly bool) []store.ReportInfo {
	var candidates []store.ReportInfo
	for _, info := range infos {
		if passedOnly && !info.Passed {
			continue
		}
		candidates = append(candidates, info)
	}

	selected := make(map[string]bool)
	var toDelete []store.ReportInfo
	add := func(info store.ReportInfo) {
		if !selected[info.ID] {
			selected[info.ID] = true
			toDelete = append(toDelete, info)
		}
	}

	if olderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -olderThanDays)
		for _, info := range candidates {
			if info.Timestamp.Before(cutoff) {
				add(info)
			}
		}
	}

	if keepLast > 0 && len(candidates) > keepLast {
		sorted := append([]store.ReportInfo(nil), candidates...)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})
		for _, info := range sorted[:len(sorted)-keepLast] {
			add(info)
		}
	}

	return toDelete
}

func verdict(passed bool) string {
	if passed {
		return "PASS"
	}
	return "FAIL"
}

// shortID truncates a report ID for tables
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
