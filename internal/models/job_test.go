package models

import (
	"strings"
	"testing"
)

func TestJob_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{"queued to running", JobStatusQueued, JobStatusRunning, true},
		{"queued to cancelled", JobStatusQueued, JobStatusCancelled, true},
		{"queued to completed", JobStatusQueued, JobStatusCompleted, false},
		{"queued to failed", JobStatusQueued, JobStatusFailed, false},
		{"running to completed", JobStatusRunning, JobStatusCompleted, true},
		{"running to failed", JobStatusRunning, JobStatusFailed, true},
		{"running to cancelled", JobStatusRunning, JobStatusCancelled, true},
		{"running to queued", JobStatusRunning, JobStatusQueued, false},
		{"completed is final", JobStatusCompleted, JobStatusRunning, false},
		{"completed stays completed", JobStatusCompleted, JobStatusCancelled, false},
		{"failed is final", JobStatusFailed, JobStatusRunning, false},
		{"cancelled is final", JobStatusCancelled, JobStatusCompleted, false},
		{"cancelled cannot restart", JobStatusCancelled, JobStatusQueued, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &Job{ID: "j1", Type: JobTypeTests, Status: tt.from}
			if got := job.CanTransitionTo(tt.to); got != tt.allowed {
				t.Errorf("CanTransitionTo(%s -> %s): got %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestJobStatus_IsTerminal(t *testing.T) {
	terminal := map[JobStatus]bool{
		JobStatusQueued:    false,
		JobStatusRunning:   false,
		JobStatusCompleted: true,
		JobStatusFailed:    true,
		JobStatusCancelled: true,
	}

	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal(): got %v, want %v", status, got, want)
		}
	}
}

func TestNewJob(t *testing.T) {
	job := NewJob(JobTypeValidation, map[string]interface{}{"targets": []interface{}{}}, nil)

	if job.Status != JobStatusQueued {
		t.Errorf("Status: got %v, want %v", job.Status, JobStatusQueued)
	}
	if !strings.HasPrefix(job.ID, JobTypeValidation+"-") {
		t.Errorf("ID %q should be prefixed with job type", job.ID)
	}
	suffix := strings.TrimPrefix(job.ID, JobTypeValidation+"-")
	if len(suffix) != 12 {
		t.Errorf("ID suffix length: got %d, want 12", len(suffix))
	}
	if job.Progress != 0.0 {
		t.Errorf("Progress: got %v, want 0.0", job.Progress)
	}
	if job.Metadata == nil {
		t.Error("Metadata should be initialized when nil is passed")
	}
	if job.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if job.StartedAt != nil || job.CompletedAt != nil {
		t.Error("StartedAt and CompletedAt should be nil for a new job")
	}
}

func TestJob_MarkLifecycle(t *testing.T) {
	job := NewJob(JobTypeTests, map[string]interface{}{}, nil)

	job.MarkRunning()
	if job.Status != JobStatusRunning {
		t.Fatalf("Status after MarkRunning: got %v, want running", job.Status)
	}
	if job.StartedAt == nil {
		t.Fatal("StartedAt should be set after MarkRunning")
	}

	result := map[string]interface{}{"summary": map[string]interface{}{"total": 1}}
	job.MarkCompleted(result)
	if job.Status != JobStatusCompleted {
		t.Errorf("Status after MarkCompleted: got %v, want completed", job.Status)
	}
	if job.Progress != 100.0 {
		t.Errorf("Progress after MarkCompleted: got %v, want 100.0", job.Progress)
	}
	if job.CompletedAt == nil {
		t.Error("CompletedAt should be set after MarkCompleted")
	}
	if job.Result == nil {
		t.Error("Result should be set after MarkCompleted")
	}
}

func TestJob_MarkFailed(t *testing.T) {
	job := NewJob(JobTypeMCP, map[string]interface{}{}, nil)
	job.MarkRunning()
	job.MarkFailed("boom")

	if job.Status != JobStatusFailed {
		t.Errorf("Status: got %v, want failed", job.Status)
	}
	if job.Error != "boom" {
		t.Errorf("Error: got %q, want %q", job.Error, "boom")
	}
	if job.CompletedAt == nil {
		t.Error("CompletedAt should be set after MarkFailed")
	}
}

func TestJob_MarkCancelled(t *testing.T) {
	job := NewJob(JobTypeAgentTasks, map[string]interface{}{}, nil)
	job.MarkCancelled()

	if job.Status != JobStatusCancelled {
		t.Errorf("Status: got %v, want cancelled", job.Status)
	}
	if job.CompletedAt == nil {
		t.Error("CompletedAt should be set after MarkCancelled")
	}
}

func TestJob_JSONRoundTrip(t *testing.T) {
	job := NewJob(JobTypeValidation, map[string]interface{}{
		"targets":  []interface{}{map[string]interface{}{"id": "t1", "path": "a.py"}},
		"parallel": float64(5),
	}, map[string]interface{}{"total_targets": float64(1)})
	job.MarkRunning()

	data, err := job.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	restored, err := JobFromJSON(data)
	if err != nil {
		t.Fatalf("JobFromJSON: %v", err)
	}

	if restored.ID != job.ID {
		t.Errorf("ID: got %v, want %v", restored.ID, job.ID)
	}
	if restored.Status != JobStatusRunning {
		t.Errorf("Status: got %v, want running", restored.Status)
	}
	if restored.StartedAt == nil {
		t.Error("StartedAt should survive the round trip")
	}
	if n, ok := restored.GetPayloadInt("parallel"); !ok || n != 5 {
		t.Errorf("payload parallel: got %v (%v), want 5", n, ok)
	}
}

func TestJobFromJSON_InitializesNilMaps(t *testing.T) {
	restored, err := JobFromJSON([]byte(`{"id":"x-1","type":"batch_tests","status":"queued"}`))
	if err != nil {
		t.Fatalf("JobFromJSON: %v", err)
	}
	if restored.Payload == nil {
		t.Error("Payload should be initialized")
	}
	if restored.Metadata == nil {
		t.Error("Metadata should be initialized")
	}
}

func TestJob_Clone(t *testing.T) {
	job := NewJob(JobTypeTests, map[string]interface{}{"modules": "m"}, map[string]interface{}{"k": "v"})
	clone := job.Clone()

	clone.Payload["modules"] = "changed"
	clone.SetMetadata("k", "changed")
	clone.Status = JobStatusFailed

	if job.Payload["modules"] != "m" {
		t.Error("mutating clone payload should not affect original")
	}
	if job.Metadata["k"] != "v" {
		t.Error("mutating clone metadata should not affect original")
	}
	if job.Status != JobStatusQueued {
		t.Error("mutating clone status should not affect original")
	}
}

func TestJob_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Job)
		wantErr bool
	}{
		{"valid job", func(j *Job) {}, false},
		{"missing id", func(j *Job) { j.ID = "" }, true},
		{"missing type", func(j *Job) { j.Type = "" }, true},
		{"bad status", func(j *Job) { j.Status = "paused" }, true},
		{"nil payload", func(j *Job) { j.Payload = nil }, true},
		{"nil metadata", func(j *Job) { j.Metadata = nil }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewJob(JobTypeMCP, map[string]interface{}{}, nil)
			tt.mutate(job)
			err := job.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate: got err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestJob_PayloadHelpers(t *testing.T) {
	job := NewJob(JobTypeAgentTasks, map[string]interface{}{
		"name":     "batch",
		"count":    float64(7),
		"explicit": 3,
		"items":    []interface{}{"a", "b"},
		"config":   map[string]interface{}{"model": "claude-sonnet-4-20250514"},
	}, nil)

	if s, ok := job.GetPayloadString("name"); !ok || s != "batch" {
		t.Errorf("GetPayloadString: got %q (%v)", s, ok)
	}
	if n, ok := job.GetPayloadInt("count"); !ok || n != 7 {
		t.Errorf("GetPayloadInt float64: got %d (%v)", n, ok)
	}
	if n, ok := job.GetPayloadInt("explicit"); !ok || n != 3 {
		t.Errorf("GetPayloadInt int: got %d (%v)", n, ok)
	}
	if items, ok := job.GetPayloadSlice("items"); !ok || len(items) != 2 {
		t.Errorf("GetPayloadSlice: got %v (%v)", items, ok)
	}
	if cfg, ok := job.GetPayloadMap("config"); !ok || cfg["model"] == "" {
		t.Errorf("GetPayloadMap: got %v (%v)", cfg, ok)
	}
	if _, ok := job.GetPayloadString("missing"); ok {
		t.Error("GetPayloadString on missing key should report !ok")
	}
	if _, ok := job.GetPayloadInt("name"); ok {
		t.Error("GetPayloadInt on string value should report !ok")
	}
}
