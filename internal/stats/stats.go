// Package stats records change-request activity for the usage view. One
// JSON file, atomic temp-file-plus-rename writes, a mutex for in-process
// serialization.
package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record tracks one change request through its lifecycle.
type Record struct {
	Number     int        `json:"number"`
	Repo       string     `json:"repo"`
	ThreadID   string     `json:"thread_id"`
	CreatedAt  time.Time  `json:"created_at"`
	Merged     bool       `json:"merged"`
	MergedAt   *time.Time `json:"merged_at,omitempty"`
	Reverted   bool       `json:"reverted"`
	RevertedAt *time.Time `json:"reverted_at,omitempty"`
}

// Tracker persists activity records.
type Tracker struct {
	path string
	mu   sync.Mutex
}

// NewTracker stores activity under dir.
func NewTracker(dir string) (*Tracker, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create stats dir: %w", err)
	}
	return &Tracker{path: filepath.Join(dir, "activity.json")}, nil
}

// LogCreation records a newly opened change request. An existing record
// with the same number is replaced, so retried submissions do not
// double-count.
func (t *Tracker) LogCreation(number int, repo, threadID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.load()
	if err != nil {
		return err
	}

	rec := Record{
		Number:    number,
		Repo:      repo,
		ThreadID:  threadID,
		CreatedAt: time.Now().UTC(),
	}
	replaced := false
	for i := range records {
		if records[i].Number == number {
			records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, rec)
	}
	return t.write(records)
}

// MarkMerged flags a change request as merged. Unknown numbers are ignored;
// merges can happen outside the bot.
func (t *Tracker) MarkMerged(number int) error {
	return t.update(number, func(r *Record) {
		now := time.Now().UTC()
		r.Merged = true
		r.MergedAt = &now
	})
}

// MarkReverted flags a change request as reverted.
func (t *Tracker) MarkReverted(number int) error {
	return t.update(number, func(r *Record) {
		now := time.Now().UTC()
		r.Reverted = true
		r.RevertedAt = &now
	})
}

// Activity returns all records, oldest first.
func (t *Tracker) Activity() ([]Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load()
}

func (t *Tracker) update(number int, apply func(*Record)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.load()
	if err != nil {
		return err
	}
	for i := range records {
		if records[i].Number == number {
			apply(&records[i])
			return t.write(records)
		}
	}
	return nil
}

func (t *Tracker) load() ([]Record, error) {
	data, err := os.ReadFile(t.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		// A corrupt stats file should not take the feature down.
		return nil, nil
	}
	return records, nil
}

func (t *Tracker) write(records []Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write stats: %w", err)
	}
	return os.Rename(tmp, t.path)
}
