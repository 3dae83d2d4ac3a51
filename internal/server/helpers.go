package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
)

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// sortJobs orders jobs by start time, oldest first
func sortJobs(jobs []*Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].StartTime.Equal(jobs[j].StartTime) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].StartTime.Before(jobs[j].StartTime)
	})
}

// jobStatus is the status view of a job
func jobStatus(job *Job) map[string]interface{} {
	elapsed := 0.0
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime).Seconds()
	}
	return map[string]interface{}{
		"id":        job.ID,
		"state":     job.State,
		"config":    job.Config,
		"passed":    job.Passed,
		"message":   job.Message,
		"output":    job.Output,
		"reportId":  job.ReportID,
		"elapsed":   elapsed,
		"startTime": job.StartTime,
		"endTime":   job.EndTime,
		"error":     job.Error,
	}
}
