package server

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cwbudde/offloadtest/internal/store"
)

// createTestImage writes a 50x50 white PNG, optionally with a red square
func createTestImage(t *testing.T, path string, withSquare bool) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 50, 50))
	white := color.NRGBA{255, 255, 255, 255}
	red := color.NRGBA{255, 0, 0, 255}

	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			img.Set(x, y, white)
		}
	}

	if withSquare {
		for y := 20; y < 30; y++ {
			for x := 20; x < 30; x++ {
				img.Set(x, y, red)
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create test image: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
}

// createTestPair writes a white image and one with a red square
func createTestPair(t *testing.T) (white, square string) {
	t.Helper()
	tmpDir := t.TempDir()
	white = filepath.Join(tmpDir, "white.png")
	square = filepath.Join(tmpDir, "square.png")
	createTestImage(t, white, false)
	createTestImage(t, square, true)
	return white, square
}

func TestRunJob_Passed(t *testing.T) {
	white, _ := createTestPair(t)

	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{Expected: white, Actual: white, Mode: store.ModeCIE76})

	if err := runJob(context.Background(), jm, nil, job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCompleted {
		t.Errorf("Job should be completed, got %s", updated.State)
	}
	if !updated.Passed {
		t.Errorf("Identical images should pass: %s", updated.Message)
	}
	if updated.ReportID != "" {
		t.Error("No report should be saved without a store")
	}
	if updated.diff == nil {
		t.Error("Diff image should be kept")
	}
	if updated.EndTime == nil {
		t.Error("EndTime should be set")
	}
}

func TestRunJob_DifferencesAreNotFailures(t *testing.T) {
	white, square := createTestPair(t)
	reportStore, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{Expected: white, Actual: square, Mode: store.ModeCIE76})

	if err := runJob(context.Background(), jm, reportStore, job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCompleted {
		t.Errorf("Job should be completed, got %s", updated.State)
	}
	if updated.Passed {
		t.Error("Images with a red square should not pass")
	}
	if !strings.Contains(updated.Output, "Pixels with visible differences: 100 4%") {
		t.Errorf("Unexpected output:\n%s", updated.Output)
	}

	report, err := reportStore.LoadReport(updated.ReportID)
	if err != nil {
		t.Fatalf("Report should be saved: %v", err)
	}
	if report.Passed || report.Summary.VisibleDiffs != 100 {
		t.Errorf("Unexpected report: %+v", report)
	}
	if report.DiffImage == "" {
		t.Error("Diff image should be stored with the report")
	}

	reader, err := store.NewHistoryReader(reportStore.BaseDir())
	if err != nil {
		t.Fatalf("History should be written: %v", err)
	}
	defer reader.Close()
	entries, _ := reader.ReadAll()
	if len(entries) != 1 || entries[0].ReportID != report.ID {
		t.Errorf("Unexpected history: %+v", entries)
	}
}

func TestRunJob_InvalidImage(t *testing.T) {
	white, _ := createTestPair(t)

	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{Expected: "/nonexistent/image.png", Actual: white, Mode: store.ModeCIE76})

	if err := runJob(context.Background(), jm, nil, job.ID); err == nil {
		t.Error("runJob should fail with invalid image")
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateFailed {
		t.Errorf("Job should be failed, got %s", updated.State)
	}
	if updated.Error == "" {
		t.Error("Error message should be set")
	}
}

func TestRunJob_Cancellation(t *testing.T) {
	white, _ := createTestPair(t)

	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{Expected: white, Actual: white, Mode: store.ModeCIE76})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := runJob(ctx, jm, nil, job.ID); err == nil {
		t.Error("runJob should return error when cancelled")
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCancelled {
		t.Errorf("Job should be cancelled, got %s", updated.State)
	}
}

func TestRunJob_NotFound(t *testing.T) {
	if err := runJob(context.Background(), NewJobManager(), nil, "missing"); err == nil {
		t.Error("runJob should fail for unknown job")
	}
}
