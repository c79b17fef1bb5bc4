package models

import (
	"sync"
	"testing"
	"time"
)

func TestRunStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status   RunStatus
		terminal bool
	}{
		{RunStatusPending, false},
		{RunStatusRunning, false},
		{RunStatusCompleted, true},
		{RunStatusInterrupted, true},
		{RunStatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestRunClone(t *testing.T) {
	best := 5.0
	run := &Run{
		ID:          "run-1",
		Status:      RunStatusRunning,
		BestX:       []float64{10, 1},
		BestFitness: &best,
		Metadata:    map[string]string{"method": "buckshot"},
	}

	c := run.Clone()
	c.BestX[0] = 99
	*c.BestFitness = 1
	c.Metadata["method"] = "cmaes"

	if run.BestX[0] != 10 {
		t.Errorf("Expected original BestX to be unchanged, got %v", run.BestX)
	}
	if *run.BestFitness != 5 {
		t.Errorf("Expected original BestFitness to be unchanged, got %v", *run.BestFitness)
	}
	if run.Metadata["method"] != "buckshot" {
		t.Errorf("Expected original metadata to be unchanged, got %v", run.Metadata)
	}

	var nilRun *Run
	if nilRun.Clone() != nil {
		t.Errorf("Expected nil clone of nil run")
	}
}

func TestRunDuration(t *testing.T) {
	start := time.Now().Add(-time.Minute)
	run := &Run{StartTime: start, EndTime: start.Add(30 * time.Second)}
	if run.Duration() != 30*time.Second {
		t.Errorf("Expected 30s, got %s", run.Duration())
	}

	running := &Run{StartTime: start}
	if running.Duration() < time.Minute {
		t.Errorf("Expected running duration of at least 1m, got %s", running.Duration())
	}

	if (&Run{}).Duration() != 0 {
		t.Errorf("Expected zero duration for unstarted run")
	}
}

func TestEvaluationLogBounded(t *testing.T) {
	log := NewEvaluationLog(3)
	for i := 1; i <= 5; i++ {
		log.Append(Evaluation{Index: i, Fitness: float64(i)})
	}

	if log.Len() != 3 {
		t.Fatalf("Expected 3 entries, got %d", log.Len())
	}
	all := log.Last(0)
	if all[0].Index != 3 || all[2].Index != 5 {
		t.Errorf("Expected entries 3..5, got %+v", all)
	}
	last := log.Last(2)
	if len(last) != 2 || last[0].Index != 4 {
		t.Errorf("Expected last two entries 4..5, got %+v", last)
	}
	if len(log.Last(10)) != 3 {
		t.Errorf("Expected Last(10) to return everything")
	}
}

func TestEvaluationLogConcurrency(t *testing.T) {
	log := NewEvaluationLog(0)

	var wg sync.WaitGroup
	numGoroutines := 100
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			log.Append(Evaluation{Index: id})
			_ = log.Last(5)
		}(i)
	}
	wg.Wait()

	if log.Len() != numGoroutines {
		t.Errorf("Expected %d entries, got %d", numGoroutines, log.Len())
	}
}
