package batch

import (
	"testing"
	"time"
)

func TestParseCron(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 22 * * *", false},   // 10 PM daily
		{"0 12 * * 1-5", false}, // noon weekdays
		{"*/5 * * * *", false},  // every 5 minutes
		{"invalid", true},
	}

	for _, tt := range tests {
		_, err := ParseCron(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
	}
}

func TestBatchConfig_Validate(t *testing.T) {
	cfg := BatchConfig{
		Name:  "nightly",
		Cron:  "0 22 * * *",
		Repos: []string{"django/django"},
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Valid config should not error: %v", err)
	}
	if cfg.Parallel != 1 {
		t.Errorf("Parallel should default to 1, got %d", cfg.Parallel)
	}

	cfg.Name = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Empty name should error")
	}

	cfg.Name = "nightly"
	cfg.Repos = nil
	if err := cfg.Validate(); err == nil {
		t.Error("Empty repo list should error")
	}
}

func TestScheduler_NextRun(t *testing.T) {
	cfg := BatchConfig{
		Name:  "test",
		Cron:  "0 22 * * *", // 10 PM daily
		Repos: []string{"a/b"},
	}

	sched, err := NewScheduler([]BatchConfig{cfg})
	if err != nil {
		t.Fatal(err)
	}

	next := sched.NextRun("test")
	if next.IsZero() {
		t.Error("NextRun should return a time")
	}

	// Should be in the future
	if !next.After(time.Now()) {
		t.Error("NextRun should be in the future")
	}
}

func TestScheduler_ShouldRun(t *testing.T) {
	cfg := BatchConfig{
		Name:  "test",
		Cron:  "* * * * *", // Every minute
		Repos: []string{"a/b"},
	}

	sched, err := NewScheduler([]BatchConfig{cfg})
	if err != nil {
		t.Fatal(err)
	}

	if !sched.ShouldRun("test") {
		t.Error("every-minute batch with no prior run should be due")
	}

	sched.MarkRunning("test")
	if sched.ShouldRun("test") {
		t.Error("running batch should not be due")
	}

	sched.MarkComplete("test")
	if sched.ShouldRun("test") {
		t.Error("batch that just completed should not be due again yet")
	}

	if sched.ShouldRun("unknown") {
		t.Error("unknown batch should never be due")
	}
}
