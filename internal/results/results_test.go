package results

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestTrackerSkipsWarmupFrame verifies the first frame is not measured
func TestTrackerSkipsWarmupFrame(t *testing.T) {
	tr := NewTracker(3)

	if tr.Observe(500*time.Millisecond, 100, false) {
		t.Fatal("Warm-up frame should not complete the run")
	}
	tr.Observe(10*time.Millisecond, 4, false)
	tr.Observe(20*time.Millisecond, 0, true)
	if !tr.Observe(30*time.Millisecond, 8, false) {
		t.Fatal("Expected the run to complete after 3 measured frames")
	}

	r := tr.Result("batched", 1568)
	if r.TotalFrames != 3 || r.FailedFrames != 1 {
		t.Errorf("Expected 3 frames with 1 failed, got %d and %d", r.TotalFrames, r.FailedFrames)
	}
	if r.Collisions != 12 || r.CollisionsPerFrame != 4 {
		t.Errorf("Expected 12 collisions (4/frame), got %d (%v)", r.Collisions, r.CollisionsPerFrame)
	}
	if r.MaxFrameTime != 30 || r.AvgFrameTime != 20 {
		t.Errorf("Expected max 30ms avg 20ms, got %v and %v", r.MaxFrameTime, r.AvgFrameTime)
	}
	if r.AvgFPS <= 0 || r.EntitiesSpawned != 1568 || r.Method != "batched" {
		t.Errorf("Unexpected result %+v", r)
	}
}

// TestAppendJSONBuildsArray checks results accumulate in one JSON array
func TestAppendJSONBuildsArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")

	if got, err := LoadJSON(path); err != nil || len(got) != 0 {
		t.Fatalf("Missing file should load empty, got %v (%v)", got, err)
	}

	if err := AppendJSON(path, PerformanceResult{Method: "batched", Collisions: 10, TotalFrames: 2}); err != nil {
		t.Fatalf("AppendJSON: %v", err)
	}
	if err := AppendJSON(path, PerformanceResult{Method: "cpu", Collisions: 10, TotalFrames: 2}); err != nil {
		t.Fatalf("AppendJSON: %v", err)
	}

	got, err := LoadJSON(path)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if len(got) != 2 || got[0].Method != "batched" || got[1].Method != "cpu" {
		t.Errorf("Unexpected results %+v", got)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temporary file should be renamed away")
	}
}

// TestAppendJSONRejectsCorruptFile verifies a non-array file is not overwritten
func TestAppendJSONRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	os.WriteFile(path, []byte("{not json"), 0644)

	if err := AppendJSON(path, PerformanceResult{Method: "cpu"}); err == nil {
		t.Fatal("Expected parse error")
	}
	data, _ := os.ReadFile(path)
	if string(data) != "{not json" {
		t.Error("Corrupt file should be left untouched")
	}
}

// TestStoreRoundTrip inserts runs into SQLite and reads them back
func TestStoreRoundTrip(t *testing.T) {
	s, err := OpenStore(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer s.Close()

	runs := []PerformanceResult{
		{Method: "batched", Collisions: 100, AvgFrameTime: 5, TotalFrames: 200, EntitiesSpawned: 1568, MaxBatchSize: 5523, Scale: 0.5},
		{Method: "cpu", Collisions: 100, AvgFrameTime: 9, TotalFrames: 200, EntitiesSpawned: 1568},
		{Method: "batched", Collisions: 100, AvgFrameTime: 4, TotalFrames: 200, EntitiesSpawned: 1568, MaxBatchSize: 5523, Scale: 0.5},
	}
	for _, r := range runs {
		if err := s.Insert(r); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	all, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0] != runs[0] {
		t.Errorf("Expected 3 runs starting with %+v, got %+v", runs[0], all)
	}

	batched, err := s.List("batched")
	if err != nil || len(batched) != 2 {
		t.Fatalf("Expected 2 batched runs, got %d (%v)", len(batched), err)
	}

	best, err := s.Best()
	if err != nil {
		t.Fatalf("Best: %v", err)
	}
	if best["batched"].AvgFrameTime != 4 || best["cpu"].AvgFrameTime != 9 {
		t.Errorf("Unexpected best runs %+v", best)
	}
}
