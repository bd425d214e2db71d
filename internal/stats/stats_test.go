package stats

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLifecycle(t *testing.T) {
	tracker, err := NewTracker(t.TempDir())
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}

	if err := tracker.LogCreation(12, "acme/app", "t1"); err != nil {
		t.Fatalf("LogCreation: %v", err)
	}
	if err := tracker.LogCreation(13, "acme/app", "t2"); err != nil {
		t.Fatalf("LogCreation: %v", err)
	}
	if err := tracker.MarkMerged(12); err != nil {
		t.Fatalf("MarkMerged: %v", err)
	}
	if err := tracker.MarkReverted(12); err != nil {
		t.Fatalf("MarkReverted: %v", err)
	}

	records, err := tracker.Activity()
	if err != nil {
		t.Fatalf("Activity: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	first := records[0]
	if first.Number != 12 || !first.Merged || !first.Reverted {
		t.Errorf("record 12 not updated: %+v", first)
	}
	if first.MergedAt == nil || first.RevertedAt == nil {
		t.Error("timestamps not recorded")
	}
	if records[1].Merged {
		t.Error("record 13 should be untouched")
	}
}

func TestRetriedCreationDoesNotDoubleCount(t *testing.T) {
	tracker, err := NewTracker(t.TempDir())
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}

	if err := tracker.LogCreation(7, "acme/app", "t1"); err != nil {
		t.Fatal(err)
	}
	if err := tracker.LogCreation(7, "acme/app", "t1"); err != nil {
		t.Fatal(err)
	}

	records, err := tracker.Activity()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after retried creation, got %d", len(records))
	}
}

func TestUnknownNumberIsIgnored(t *testing.T) {
	tracker, err := NewTracker(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	// Merges performed outside the bot land on numbers we never logged.
	if err := tracker.MarkMerged(999); err != nil {
		t.Fatalf("MarkMerged on unknown number: %v", err)
	}

	records, err := tracker.Activity()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestCorruptFileDegradesToEmpty(t *testing.T) {
	dir := t.TempDir()
	tracker, err := NewTracker(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, "activity.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	records, err := tracker.Activity()
	if err != nil {
		t.Fatalf("Activity on corrupt file: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty activity, got %d records", len(records))
	}

	// And new writes repair the file.
	if err := tracker.LogCreation(1, "acme/app", "t1"); err != nil {
		t.Fatal(err)
	}
	records, err = tracker.Activity()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after repair, got %d", len(records))
	}
}
