package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/offloadtest/internal/store"
)

func TestServer_CreateJob(t *testing.T) {
	white, _ := createTestPair(t)

	s := NewServer(":8080", nil)
	defer s.Shutdown(context.Background())

	config := JobConfig{Expected: white, Actual: white}

	body, _ := json.Marshal(config)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.handleCreateJob(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", w.Code)
	}

	var job Job
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}
	if job.Config.Mode != store.ModeCIE76 {
		t.Errorf("Mode should default to cie76, got %q", job.Config.Mode)
	}
}

func TestServer_CreateJob_ValidationErrors(t *testing.T) {
	s := NewServer(":8080", nil)
	defer s.Shutdown(context.Background())

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{"},
		{"missing expected", `{"actual": "b.png"}`},
		{"missing actual", `{"expected": "a.png"}`},
		{"unknown mode", `{"expected": "a.png", "actual": "b.png", "mode": "psnr"}`},
		{"unknown metric", `{"expected": "a.png", "actual": "b.png", "metric": "cie94"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			s.handleCreateJob(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
		})
	}

	if len(s.jobManager.ListJobs()) != 0 {
		t.Error("Invalid requests should not create jobs")
	}
}

func TestServer_ListJobs(t *testing.T) {
	s := NewServer(":8080", nil)

	s.jobManager.CreateJob(JobConfig{Expected: "a.png", Actual: "b.png"})
	s.jobManager.CreateJob(JobConfig{Expected: "a.png", Actual: "c.png"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	w := httptest.NewRecorder()

	s.handleListJobs(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var jobs []*Job
	if err := json.NewDecoder(w.Body).Decode(&jobs); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if len(jobs) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(jobs))
	}
}

func TestServer_GetJobStatus(t *testing.T) {
	s := NewServer(":8080", nil)

	job := s.jobManager.CreateJob(JobConfig{Expected: "a.png", Actual: "b.png"})

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/status", job.ID), nil)
	w := httptest.NewRecorder()

	s.handleJobsWithID(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response["id"] != job.ID {
		t.Error("Response should contain job ID")
	}
	if response["state"] != string(StatePending) {
		t.Errorf("Expected pending state, got %v", response["state"])
	}
}

func TestServer_GetJobStatus_NotFound(t *testing.T) {
	s := NewServer(":8080", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nonexistent/status", nil)
	w := httptest.NewRecorder()

	s.handleJobsWithID(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_GetDiffImage(t *testing.T) {
	white, square := createTestPair(t)
	s := NewServer(":8080", nil)

	job := s.jobManager.CreateJob(JobConfig{Expected: white, Actual: square, Mode: store.ModeCIE76})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID+"/diff.png", nil)
	w := httptest.NewRecorder()
	s.handleJobsWithID(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before the job ran, got %d", w.Code)
	}

	if err := runJob(context.Background(), s.jobManager, nil, job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	w = httptest.NewRecorder()
	s.handleJobsWithID(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if w.Header().Get("Content-Type") != "image/png" {
		t.Errorf("Unexpected content type %q", w.Header().Get("Content-Type"))
	}

	img, err := png.Decode(w.Body)
	if err != nil {
		t.Fatalf("Response is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 50 || img.Bounds().Dy() != 50 {
		t.Errorf("Unexpected diff size %v", img.Bounds())
	}
	// Inside the square the green channel differs fully
	if _, g, _, _ := img.At(25, 25).RGBA(); g != 0xffff {
		t.Errorf("Expected full green difference, got %#x", g)
	}
	if r, g, b, _ := img.At(0, 0).RGBA(); r != 0 || g != 0 || b != 0 {
		t.Error("Expected no difference outside the square")
	}
}

func TestServer_Reports(t *testing.T) {
	white, square := createTestPair(t)
	reportStore, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	s := NewServer(":8080", reportStore)
	handler := s.Handler()

	job := s.jobManager.CreateJob(JobConfig{Expected: white, Actual: square, Mode: store.ModeCIE76})
	if err := runJob(context.Background(), s.jobManager, reportStore, job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}
	done, _ := s.jobManager.GetJob(job.ID)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var infos []store.ReportInfo
	if err := json.NewDecoder(w.Body).Decode(&infos); err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].ID != done.ReportID || infos[0].Passed {
		t.Errorf("Unexpected report list: %+v", infos)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+done.ReportID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var report store.Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Summary == nil || report.Summary.VisibleDiffs != 100 {
		t.Errorf("Unexpected report: %+v", report)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+done.ReportID+"/diff.png", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected stored diff image, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports/00000000-0000-0000-0000-000000000000", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestServer_Reports_NoStore(t *testing.T) {
	handler := NewServer(":8080", nil).Handler()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
}

func TestServer_CORS(t *testing.T) {
	handler := NewServer(":8080", nil).Handler()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/v1/jobs", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for preflight, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}
}

func TestServer_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	white, square := createTestPair(t)

	s := NewServer("localhost:0", nil)
	defer s.Shutdown(context.Background())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	config := JobConfig{Expected: white, Actual: square, Mode: store.ModeCIE76, Metric: "ciede2000"}

	body, _ := json.Marshal(config)
	resp, err := http.Post(srv.URL+"/api/v1/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}
	var job Job
	json.NewDecoder(resp.Body).Decode(&job)
	resp.Body.Close()

	maxAttempts := 50
	for i := 0; i < maxAttempts; i++ {
		resp, err := http.Get(srv.URL + "/api/v1/jobs/" + job.ID + "/status")
		if err != nil {
			t.Fatalf("Failed to get status: %v", err)
		}

		var status map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()

		if status["state"] == string(StateCompleted) {
			if status["passed"] != false {
				t.Error("Job should report differences")
			}
			break
		}

		if status["state"] == string(StateFailed) {
			t.Fatalf("Job failed: %v", status["error"])
		}

		if i == maxAttempts-1 {
			t.Fatal("Job did not complete in time")
		}

		time.Sleep(100 * time.Millisecond)
	}

	resp, err = http.Get(srv.URL + "/api/v1/jobs/" + job.ID + "/diff.png")
	if err != nil {
		t.Fatalf("Failed to get diff image: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestServer_JobStream_SSE(t *testing.T) {
	white, _ := createTestPair(t)

	s := NewServer(":8080", nil)
	job := s.jobManager.CreateJob(JobConfig{Expected: white, Actual: white, Mode: store.ModeCIE76})

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/stream", job.ID), nil)
	w := httptest.NewRecorder()

	done := make(chan bool)
	go func() {
		s.handleJobsWithID(w, req)
		done <- true
	}()

	// Give the handler time to subscribe
	time.Sleep(50 * time.Millisecond)
	if err := runJob(context.Background(), s.jobManager, nil, job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stream did not end after the job completed")
	}

	if w.Header().Get("Content-Type") != "text/event-stream" {
		t.Error("Expected text/event-stream content type")
	}

	body := w.Body.String()
	if !strings.Contains(body, "data: {") {
		t.Error("Expected SSE data in response")
	}
	if !strings.Contains(body, `"state":"completed"`) {
		t.Errorf("Expected completion event, got:\n%s", body)
	}
}

func TestServer_JobStream_FinishedJob(t *testing.T) {
	s := NewServer(":8080", nil)
	job := s.jobManager.CreateJob(JobConfig{Expected: "a.png", Actual: "b.png"})
	markJobFailed(s.jobManager, job.ID, fmt.Errorf("boom"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID+"/stream", nil)
	w := httptest.NewRecorder()
	s.handleJobStream(w, req, job.ID)

	if !strings.Contains(w.Body.String(), `"error":"boom"`) {
		t.Errorf("Expected failure event, got:\n%s", w.Body.String())
	}
}

func TestServer_JobStream_NotFound(t *testing.T) {
	s := NewServer(":8080", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nonexistent/stream", nil)
	w := httptest.NewRecorder()

	s.handleJobStream(w, req, "nonexistent")

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestEventBroadcaster(t *testing.T) {
	eb := NewEventBroadcaster()

	ch := eb.Subscribe("job1")
	defer eb.Unsubscribe("job1", ch)

	eb.Broadcast(JobEvent{
		JobID:     "job1",
		State:     StateRunning,
		Timestamp: time.Now(),
	})

	select {
	case received := <-ch:
		if received.JobID != "job1" {
			t.Errorf("Expected jobID job1, got %s", received.JobID)
		}
		if received.Done() {
			t.Error("Running event should not end the stream")
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for event")
	}

	// Late subscribers get the last event replayed
	late := eb.Subscribe("job1")
	select {
	case received := <-late:
		if received.State != StateRunning {
			t.Errorf("Expected replayed running event, got %s", received.State)
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for replayed event")
	}

	eb.CleanupJob("job1")
	eb.Unsubscribe("job1", late)
}

func TestServer_Reports_RejectsNonUUID(t *testing.T) {
	reportStore, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	handler := NewServer(":8080", reportStore).Handler()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports/not-a-report", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestServer_ShutdownClosesStreams(t *testing.T) {
	s := NewServer(":8080", nil)

	job := s.jobManager.CreateJob(JobConfig{Expected: "a.png", Actual: "b.png"})
	if err := s.jobManager.UpdateJob(job.ID, func(j *Job) { j.State = StateRunning }); err != nil {
		t.Fatal(err)
	}
	if got := len(s.jobManager.GetRunningJobs()); got != 1 {
		t.Fatalf("Expected 1 running job, got %d", got)
	}

	ch := s.jobManager.broadcaster.Subscribe(job.ID)
	s.jobManager.broadcaster.Broadcast(JobEvent{JobID: job.ID, State: StateRunning, Timestamp: time.Now()})
	<-ch

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("Expected stream channel to be closed")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for stream channel to close")
	}

	// Nothing is replayed once the job's stream state is gone
	late := s.jobManager.broadcaster.Subscribe(job.ID)
	defer s.jobManager.broadcaster.Unsubscribe(job.ID, late)
	select {
	case ev := <-late:
		t.Errorf("Unexpected replayed event %+v", ev)
	default:
	}

	// Unsubscribing a closed channel is a no-op
	s.jobManager.broadcaster.Unsubscribe(job.ID, ch)
}
