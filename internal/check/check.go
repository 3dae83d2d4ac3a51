// Package check runs one image comparison end to end: it loads both
// images, applies the comparison mode from a store.RunConfig and produces a
// report that can be persisted with Save.
package check

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/cwbudde/offloadtest/internal/color"
	"github.com/cwbudde/offloadtest/internal/compare"
	"github.com/cwbudde/offloadtest/internal/image"
	"github.com/cwbudde/offloadtest/internal/store"
)

// DiffImageName is the artifact name of a stored difference image
const DiffImageName = "diff.png"

// Options controls the optional outputs of Run
type Options struct {
	// DiffPath, when set, receives the per-channel difference image
	DiffPath string
	// KeepDiff collects the difference image even without DiffPath so
	// that Save can store it next to the report.
	KeepDiff bool
}

// Result is the outcome of Run
type Result struct {
	Report *store.Report
	// Diff is nil in exact mode or when no difference image was requested
	Diff *compare.DiffImageComparator
}

// Run compares config.Expected against config.Actual and prints the
// comparator reports to out. A negative verdict is not an error; it is
// recorded in Result.Report.Passed.
func Run(config store.RunConfig, opts Options, out io.Writer) (*Result, error) {
	expected, err := image.Load(config.Expected)
	if err != nil {
		return nil, fmt.Errorf("failed to load expected image: %w", err)
	}
	actual, err := image.Load(config.Actual)
	if err != nil {
		return nil, fmt.Errorf("failed to load actual image: %w", err)
	}

	slog.Info("Comparing images",
		"expected", config.Expected,
		"actual", config.Actual,
		"mode", config.Mode,
		"width", expected.Width(),
		"height", expected.Height(),
	)

	res := &Result{}
	switch config.Mode {
	case store.ModeExact:
		err := compare.ExactMatch(expected.Ref, actual.Ref)
		if err != nil && !errors.Is(err, compare.ErrImagesDiffer) {
			return nil, err
		}
		msg := ""
		if err != nil {
			msg = err.Error()
			fmt.Fprintln(out, "Images do not match")
		}
		res.Report = store.NewReport(config, err == nil, msg, nil)

	case store.ModeCIE76:
		metric, err := color.ParseMetric(config.Metric)
		if err != nil {
			return nil, err
		}
		var rules []compare.Rule
		if config.RulesPath != "" {
			if rules, err = compare.LoadRules(config.RulesPath); err != nil {
				return nil, err
			}
		}

		dc := compare.NewDistanceComparator(rules...)
		dc.Metric = metric
		comparators := []compare.Comparator{dc}
		if opts.DiffPath != "" || opts.KeepDiff {
			res.Diff, err = compare.NewDiffImageComparator(expected.Height(), expected.Width(), opts.DiffPath)
			if err != nil {
				return nil, err
			}
			comparators = append(comparators, res.Diff)
		}

		passed, err := compare.CompareImages(expected.Ref, actual.Ref, comparators...)
		if err != nil {
			return nil, err
		}
		if err := dc.Print(out); err != nil {
			return nil, err
		}
		// The difference image never affects the verdict.
		if res.Diff != nil {
			if err := res.Diff.Print(out); err != nil {
				slog.Warn("Failed to write diff image", "path", opts.DiffPath, "error", err)
			}
		}

		summary := dc.Summary()
		res.Report = store.NewReport(config, passed, dc.Error(), &summary)

	default:
		return nil, fmt.Errorf("unknown mode: %s", config.Mode)
	}

	slog.Info("Comparison complete", "id", res.Report.ID, "passed", res.Report.Passed, "message", res.Report.Message)
	return res, nil
}

// Save stores the report and its difference image in s, then appends a
// history entry under the store's base directory.
func Save(s *store.FSStore, res *Result) error {
	report := res.Report
	if res.Diff != nil {
		path, err := s.ArtifactPath(report.ID, DiffImageName)
		if err != nil {
			return err
		}
		if err := image.WritePNG(res.Diff.Image().Ref, path); err != nil {
			return fmt.Errorf("failed to store diff image: %w", err)
		}
		report.DiffImage = DiffImageName
	}

	if err := s.SaveReport(report); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	history, err := store.NewHistoryWriter(s.BaseDir())
	if err != nil {
		return err
	}
	if err := history.Write(store.HistoryEntryFor(report)); err != nil {
		history.Close()
		return err
	}
	return history.Close()
}
