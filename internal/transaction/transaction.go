// Package transaction keeps a journal of one pipeline run: every artifact
// touched, the stage it reached and how that stage ended. Journals are saved
// next to the package cache so a failed batch can be inspected afterwards.
package transaction

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// State is the outcome of one stage for one artifact.
type State string

const (
	StateCompleted State = "completed"
	StateSkipped   State = "skipped"
	StateFailed    State = "failed"
)

// Stage names a pipeline step.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageTrust     Stage = "trust"
	StageVerify    Stage = "verify"
	StageInstall   Stage = "install"
	StageUninstall Stage = "uninstall"
	StageReport    Stage = "report"
)

// Operation is the CLI operation a run belongs to.
type Operation string

const (
	OperationInstall      Operation = "install"
	OperationUninstall    Operation = "uninstall"
	OperationLocalPackage Operation = "install-local-package"
)

// Run is the journal of one invocation. A nil *Run accepts records and
// discards them.
type Run struct {
	Version    int       `json:"version"`
	ID         string    `json:"id"`
	Operation  Operation `json:"operation"`
	Identifier string    `json:"identifier"`
	Timestamp  time.Time `json:"timestamp"`
	Items      []Item    `json:"items"`
}

// Item is one stage outcome for one artifact.
type Item struct {
	Name      string    `json:"name"`
	Stage     Stage     `json:"stage"`
	State     State     `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	At        time.Time `json:"at"`
}

// New starts a journal for operation on identifier.
func New(op Operation, identifier string) *Run {
	return &Run{
		Version:    1,
		ID:         uuid.New().String(),
		Operation:  op,
		Identifier: identifier,
		Timestamp:  time.Now().UTC(),
		Items:      []Item{},
	}
}

// Record appends an outcome. err may be nil.
func (r *Run) Record(name string, stage Stage, state State, reason string, err error) {
	if r == nil {
		return
	}
	item := Item{
		Name:   name,
		Stage:  stage,
		State:  state,
		Reason: reason,
		At:     time.Now().UTC(),
	}
	if err != nil {
		item.LastError = err.Error()
	}
	r.Items = append(r.Items, item)
}

// Count returns how many items of stage ended in state.
func (r *Run) Count(stage Stage, state State) int {
	if r == nil {
		return 0
	}
	n := 0
	for _, it := range r.Items {
		if it.Stage == stage && it.State == state {
			n++
		}
	}
	return n
}

// Failed returns the failed items in record order.
func (r *Run) Failed() []Item {
	if r == nil {
		return nil
	}
	var out []Item
	for _, it := range r.Items {
		if it.State == StateFailed {
			out = append(out, it)
		}
	}
	return out
}

// FileName is the journal file name inside the runs directory.
func (r *Run) FileName() string {
	return fmt.Sprintf("run-%s-%s.json", r.Operation, r.ID)
}

// Save writes the journal to dir atomically and returns its path.
// Uses write-then-rename.
func (r *Run) Save(dir string) (string, error) {
	if r == nil {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create journal directory: %w", err)
	}

	finalPath := filepath.Join(dir, r.FileName())
	tmpPath := finalPath + ".tmp"

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal journal: %w", err)
	}

	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return "", fmt.Errorf("write temporary journal file: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("rename journal file: %w", err)
	}

	// Sync directory for durability
	df, err := os.Open(dir)
	if err == nil {
		if syncErr := df.Sync(); syncErr != nil {
			df.Close()
			return "", fmt.Errorf("sync directory: %w", syncErr)
		}
		df.Close()
	}

	return finalPath, nil
}

// Load reads a journal from disk.
func Load(path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read journal file: %w", err)
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("unmarshal journal: %w", err)
	}
	return &run, nil
}
