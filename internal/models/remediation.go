package models

import (
	"time"
)

// LifecycleStatus is the advisory classification of a file
type LifecycleStatus string

// LifecycleStatus constants
const (
	LifecycleActive    LifecycleStatus = "active"    // Referenced by live work
	LifecycleCritical  LifecycleStatus = "critical"  // Never archive
	LifecycleCompleted LifecycleStatus = "completed" // Completion/report file past the age threshold
	LifecycleUnknown   LifecycleStatus = "unknown"   // No signal, kept by default
	LifecycleBypassed  LifecycleStatus = "bypassed"  // Advisory check skipped by the operator
)

// SafetyReport is the advisory answer for one file. It reflects the state of
// the task board and memory snapshots at the time of the call and is never
// cached across runs.
type SafetyReport struct {
	FilePath         string          `json:"file_path"`
	SafeToArchive    bool            `json:"safe_to_archive"`
	ActiveReferences []string        `json:"active_references,omitempty"` // Source names that reference the file
	LifecycleStatus  LifecycleStatus `json:"lifecycle_status"`
	Reason           string          `json:"reason"`
}

// MovePlan is one planned relocation, relative to the project root
type MovePlan struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Rule        string `json:"rule,omitempty"`
}

// FileState is the remediation state of a single file
type FileState string

// FileState constants
const (
	FileStateDetected FileState = "detected"
	FileStateSkipped  FileState = "skipped"
	FileStatePlanned  FileState = "planned"
	FileStateMoved    FileState = "moved"
	FileStateFailed   FileState = "failed"
)

// FileOutcome is the final remediation state of a file with its reason
type FileOutcome struct {
	Path        string    `json:"path"`
	Destination string    `json:"destination,omitempty"`
	State       FileState `json:"state"`
	Reason      string    `json:"reason,omitempty"`
	Strategy    string    `json:"strategy,omitempty"` // Move strategy that succeeded
	Backup      string    `json:"backup,omitempty"`
}

// FixResult summarises one remediation batch
type FixResult struct {
	DryRun   bool          `json:"dry_run"`
	Fixed    int           `json:"fixed"`
	Skipped  int           `json:"skipped"`
	Planned  []MovePlan    `json:"planned,omitempty"`
	Outcomes []FileOutcome `json:"outcomes"`
	Commit   string        `json:"commit,omitempty"`
}

// Unresolved reports whether an apply run skipped files without fixing any
func (r *FixResult) Unresolved() bool {
	return !r.DryRun && r.Fixed == 0 && r.Skipped > 0
}

// CleanupMode is the mode of a cleanup run
type CleanupMode string

// CleanupMode constants
const (
	CleanupPreview CleanupMode = "preview"
	CleanupApply   CleanupMode = "apply"
)

// Cleanup action names recorded in the run log
const (
	CleanupWouldArchive = "would_archive"
	CleanupArchived     = "archived"
	CleanupWouldDelete  = "would_delete"
	CleanupDeleted      = "deleted"
	CleanupKept         = "kept"
	CleanupSkipped      = "skipped"
	CleanupRefused      = "refused"
	CleanupFailed       = "failed"
	CleanupMoved        = "moved"
	CleanupWouldMove    = "would_move"
)

// CleanupAction is one per-file entry of the run log
type CleanupAction struct {
	File        string    `json:"file"`
	Action      string    `json:"action"`
	Rule        string    `json:"rule,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// CleanupLog is the append-only record of one cleanup run
type CleanupLog struct {
	RunID      string          `json:"run_id"`
	Timestamp  time.Time       `json:"timestamp"`
	Mode       CleanupMode     `json:"mode"`
	DurationMs int64           `json:"duration_ms"`
	Fix        *FixResult      `json:"fix,omitempty"`
	Actions    []CleanupAction `json:"actions"`
	LogFile    string          `json:"-"`
}

// Count returns how many actions carry the given name
func (l *CleanupLog) Count(action string) int {
	n := 0
	for _, a := range l.Actions {
		if a.Action == action {
			n++
		}
	}
	return n
}

// Mutated reports whether the run changed the filesystem
func (l *CleanupLog) Mutated() bool {
	if l.Fix != nil && !l.Fix.DryRun && l.Fix.Fixed > 0 {
		return true
	}
	return l.Count(CleanupArchived) > 0 || l.Count(CleanupDeleted) > 0
}

// AuditEntry is the persisted summary of a cleanup or fix run
type AuditEntry struct {
	ID        string      `json:"id"`
	Command   string      `json:"command" badgerhold:"index"`
	Mode      CleanupMode `json:"mode"`
	StartedAt time.Time   `json:"started_at"`
	Duration  int64       `json:"duration_ms"`
	Fixed     int         `json:"fixed"`
	Skipped   int         `json:"skipped"`
	Archived  int         `json:"archived"`
	Deleted   int         `json:"deleted"`
	LogFile   string      `json:"log_file,omitempty"`
	Error     string      `json:"error,omitempty"`
}
