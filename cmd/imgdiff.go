package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/cwbudde/offloadtest/internal/check"
	"github.com/cwbudde/offloadtest/internal/color"
	"github.com/cwbudde/offloadtest/internal/store"
	"github.com/spf13/cobra"
)

// errComparisonFailed signals a negative verdict; the report has already
// been printed.
var errComparisonFailed = errors.New("images differ")

type imgdiffOptions struct {
	mode      string
	metric    string
	rulesPath string
	diffPath  string
	saveDir   string
}

var diffOpts imgdiffOptions

var imgdiffCmd = &cobra.Command{
	Use:   "imgdiff <expected> <actual>",
	Short: "Compare two images",
	Long: `Compares an expected and an actual PNG or TIFF image.

In cie76 mode every pixel pair is measured with a perceptual color distance
and the statistics are checked against a rule set (by default: no pixel may
differ by more than the just noticeable difference of 2.3). In exact mode
the decoded pixel data must be byte-identical.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := diffImages(args[0], args[1], diffOpts, cmd.OutOrStdout())
		return err
	},
}

func init() {
	imgdiffCmd.Flags().StringVar(&diffOpts.mode, "mode", store.ModeCIE76, "Comparison mode: exact, cie76")
	imgdiffCmd.Flags().StringVar(&diffOpts.metric, "metric", string(color.MetricCIE76), "Color distance: cie76, ciede2000")
	imgdiffCmd.Flags().StringVar(&diffOpts.rulesPath, "rules", "", "YAML or JSON rule list (default: Furthest 2.3)")
	imgdiffCmd.Flags().StringVarP(&diffOpts.diffPath, "output", "o", "", "Write a per-channel difference image")
	imgdiffCmd.Flags().StringVar(&diffOpts.saveDir, "save", "", "Store a report and history entry under this data directory")

	rootCmd.AddCommand(imgdiffCmd)
}

// diffImages runs one comparison and returns its report. A failed verdict
// is reported as errComparisonFailed alongside the report.
func diffImages(expectedPath, actualPath string, opts imgdiffOptions, out io.Writer) (*store.Report, error) {
	config := store.RunConfig{
		Expected:  expectedPath,
		Actual:    actualPath,
		Mode:      opts.mode,
		RulesPath: opts.rulesPath,
	}
	if opts.mode == store.ModeCIE76 {
		config.Metric = opts.metric
	}

	res, err := check.Run(config, check.Options{
		DiffPath: opts.diffPath,
		KeepDiff: opts.saveDir != "",
	}, out)
	if err != nil {
		return nil, err
	}
	report := res.Report

	if opts.saveDir != "" {
		reportStore, err := store.NewFSStore(opts.saveDir)
		if err != nil {
			return report, fmt.Errorf("failed to create report store: %w", err)
		}
		if err := check.Save(reportStore, res); err != nil {
			return report, err
		}
		fmt.Fprintf(out, "Saved report %s\n", report.ID)
	}

	if !report.Passed {
		return report, errComparisonFailed
	}
	return report, nil
}
