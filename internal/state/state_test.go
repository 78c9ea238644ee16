package state

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAppendAndLast(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SLIPWAY_STATE_DIR", dir)

	if _, ok, err := Last(); err != nil || ok {
		t.Fatalf("expected no record on empty state, got ok=%v err=%v", ok, err)
	}

	r := DeployRecord{
		Revision:   "abc123",
		ImageRef:   "alice/flask-app:latest",
		Outcome:    OutcomeSucceeded,
		StartedAt:  time.Now().UTC(),
		FinishedAt: time.Now().UTC(),
	}
	if err := Append(r); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, ok, err := Last()
	if err != nil {
		t.Fatalf("Last returned error: %v", err)
	}
	if !ok {
		t.Fatalf("expected record to exist")
	}
	if got.Revision != r.Revision || got.ImageRef != r.ImageRef || got.Outcome != r.Outcome {
		t.Fatalf("record mismatch: got %+v want %+v", got, r)
	}

	r2 := DeployRecord{Revision: "def456", ImageRef: "alice/flask-app:latest", Outcome: OutcomeFailed, FailedStep: "build"}
	if err := Append(r2); err != nil {
		t.Fatalf("Append r2 failed: %v", err)
	}

	got, ok, err = Last()
	if err != nil || !ok {
		t.Fatalf("Last after second append: ok=%v err=%v", ok, err)
	}
	if got.Revision != "def456" || got.FailedStep != "build" {
		t.Fatalf("expected most recent record, got %+v", got)
	}

	all, err := All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 records, got %d", len(all))
	}
	if all[0].Revision != "abc123" {
		t.Fatalf("expected oldest record first, got %+v", all[0])
	}

	if _, err := os.Stat(filepath.Join(dir, stateFileName)); err != nil {
		t.Fatalf("state file missing: %v", err)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SLIPWAY_STATE_DIR", dir)

	for i := 0; i < maxRecords+10; i++ {
		r := DeployRecord{Revision: fmt.Sprintf("rev-%d", i), Outcome: OutcomeSucceeded}
		if err := Append(r); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	all, err := All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != maxRecords {
		t.Fatalf("expected history capped at %d, got %d", maxRecords, len(all))
	}
	if all[0].Revision != "rev-10" {
		t.Fatalf("expected oldest surviving record rev-10, got %s", all[0].Revision)
	}
	if all[len(all)-1].Revision != fmt.Sprintf("rev-%d", maxRecords+9) {
		t.Fatalf("unexpected newest record %s", all[len(all)-1].Revision)
	}
}

func TestCorruptStateFileSurfacesError(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SLIPWAY_STATE_DIR", dir)

	if err := os.WriteFile(filepath.Join(dir, stateFileName), []byte("{not json"), 0o640); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	if _, _, err := Last(); err == nil {
		t.Fatal("expected error for corrupt state file")
	}
}
