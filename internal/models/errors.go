package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist
var ErrNotFound = errors.New("not found")

// ConfigError reports a missing or malformed rule configuration. Fatal:
// raised before any scan.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// PathSafetyError reports a source or destination resolving outside the
// project root. Only the affected move is aborted.
type PathSafetyError struct {
	Path string
	Root string
}

func (e *PathSafetyError) Error() string {
	return fmt.Sprintf("path %s escapes project root %s", e.Path, e.Root)
}

// ConflictError reports an existing destination. The move is skipped.
type ConflictError struct {
	Destination string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("destination %s already exists", e.Destination)
}

// AdvisoryVeto reports that the advisory client asked to keep the file
type AdvisoryVeto struct {
	Path    string
	Reason  string
	Sources []string
}

func (e *AdvisoryVeto) Error() string {
	if len(e.Sources) == 0 {
		return fmt.Sprintf("advisory veto for %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("advisory veto for %s: %s [%s]", e.Path, e.Reason, strings.Join(e.Sources, ", "))
}

// MoveFailure reports a failed filesystem or version-control move
type MoveFailure struct {
	Source      string
	Destination string
	Err         error
}

func (e *MoveFailure) Error() string {
	return fmt.Sprintf("move %s -> %s failed: %v", e.Source, e.Destination, e.Err)
}

func (e *MoveFailure) Unwrap() error { return e.Err }

// LockContention reports another active run holding the lock file
type LockContention struct {
	LockFile string
	Age      time.Duration
}

func (e *LockContention) Error() string {
	return fmt.Sprintf("another run is active: lock %s is %s old", e.LockFile, e.Age.Round(time.Second))
}

// EnvironmentBlocked reports a disallowed deployment context. Fatal: no scan
// is performed.
type EnvironmentBlocked struct {
	Signal string
}

func (e *EnvironmentBlocked) Error() string {
	return fmt.Sprintf("refusing to run in a deployment environment (%s)", e.Signal)
}

// IsFatal reports whether err aborts a whole run rather than a single file
func IsFatal(err error) bool {
	var configErr *ConfigError
	var lockErr *LockContention
	var envErr *EnvironmentBlocked
	return errors.As(err, &configErr) || errors.As(err, &lockErr) || errors.As(err, &envErr)
}
