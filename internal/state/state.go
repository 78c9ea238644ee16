package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DeployRecord records the outcome of a single deployment run.
type DeployRecord struct {
	Revision   string    `json:"revision"`
	ImageRef   string    `json:"image_ref"`
	Digest     string    `json:"digest,omitempty"`
	Outcome    string    `json:"outcome"`
	FailedStep string    `json:"failed_step,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Outcome values for DeployRecord.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeDryRun    = "dry-run"
)

// maxRecords bounds the history kept on disk; oldest entries are dropped.
const maxRecords = 50

var mu sync.Mutex

const stateFileName = "slipway_state.json"

func stateFilePath() string {
	if dir := os.Getenv("SLIPWAY_STATE_DIR"); dir != "" {
		return filepath.Join(dir, stateFileName)
	}
	// Prefer a persistent location under /var/lib/slipway when possible; fall back to the current working dir
	// to avoid relying on ephemeral temp directories that may be cleared on reboot.
	defaultDir := "/var/lib/slipway"
	if err := os.MkdirAll(defaultDir, 0o755); err == nil {
		return filepath.Join(defaultDir, stateFileName)
	}
	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, stateFileName)
	}
	// Last resort: use temp dir
	return filepath.Join(os.TempDir(), stateFileName)
}

// loadAllUnlocked reads the state file WITHOUT acquiring the package mutex.
// Caller must hold the lock if concurrent access is possible.
func loadAllUnlocked() ([]DeployRecord, error) {
	p := stateFilePath()
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load state: %w", err)
	}
	var out []DeployRecord
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return out, nil
}

// saveAllUnlocked writes the state file WITHOUT acquiring the package mutex.
// Caller must hold the lock if concurrent access is possible.
func saveAllUnlocked(records []DeployRecord) error {
	p := stateFilePath()
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("mkdir state dir: %w", err)
	}
	if err := os.WriteFile(p, b, 0o640); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

// Append persists a deploy record. The history is bounded; the oldest
// records are dropped once the cap is reached. Holds the package mutex
// for the entire read-modify-write cycle to avoid lost updates.
func Append(r DeployRecord) error {
	mu.Lock()
	defer mu.Unlock()
	records, err := loadAllUnlocked()
	if err != nil {
		return err
	}
	records = append(records, r)
	if len(records) > maxRecords {
		records = records[len(records)-maxRecords:]
	}
	return saveAllUnlocked(records)
}

// Last returns the most recent deploy record, if any.
func Last() (DeployRecord, bool, error) {
	mu.Lock()
	defer mu.Unlock()
	records, err := loadAllUnlocked()
	if err != nil {
		return DeployRecord{}, false, err
	}
	if len(records) == 0 {
		return DeployRecord{}, false, nil
	}
	return records[len(records)-1], true, nil
}

// All returns every persisted deploy record, oldest first.
func All() ([]DeployRecord, error) {
	mu.Lock()
	defer mu.Unlock()
	return loadAllUnlocked()
}
