package server

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/offloadtest/internal/check"
	"github.com/cwbudde/offloadtest/internal/store"
)

// runJob executes a comparison job in the background.
// If reportStore is not nil the report, its diff image and a history entry
// are persisted.
func runJob(ctx context.Context, jm *JobManager, reportStore *store.FSStore, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}
	broadcastState(jm, jobID)

	slog.Info("Starting job", "job_id", jobID, "expected", job.Config.Expected, "actual", job.Config.Actual)

	start := time.Now()
	var out bytes.Buffer
	res, err := check.Run(job.Config, check.Options{KeepDiff: true}, &out)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	reportID := ""
	if reportStore != nil {
		if err := check.Save(reportStore, res); err != nil {
			markJobFailed(jm, jobID, err)
			return err
		}
		reportID = res.Report.ID
	}

	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Passed = res.Report.Passed
		j.Message = res.Report.Message
		j.Output = out.String()
		j.ReportID = reportID
		j.EndTime = &endTime
		if res.Diff != nil {
			j.diff = res.Diff.Image()
		}
	})
	if err != nil {
		return err
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", time.Since(start),
		"passed", res.Report.Passed,
		"report_id", reportID,
	)

	broadcastState(jm, jobID)
	return nil
}

// broadcastState sends the job's current state to stream subscribers
func broadcastState(jm *JobManager, jobID string) {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return
	}
	jm.broadcaster.Broadcast(eventFor(job))
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
	broadcastState(jm, jobID)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
	broadcastState(jm, jobID)
}
