package remediation

import (
	"context"

	"github.com/looplab/fsm"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canon/internal/models"
)

// Per-file transition events
const (
	eventSkip = "skip"
	eventPlan = "plan"
	eventMove = "move"
	eventFail = "fail"
)

// fileMachine tracks one file through
// detected -> {skipped | planned -> {moved | failed}}
type fileMachine struct {
	fsm     *fsm.FSM
	outcome models.FileOutcome
	logger  arbor.ILogger
}

func newFileMachine(relPath string, logger arbor.ILogger) *fileMachine {
	m := &fileMachine{
		outcome: models.FileOutcome{Path: relPath, State: models.FileStateDetected},
		logger:  logger,
	}

	detected := string(models.FileStateDetected)
	planned := string(models.FileStatePlanned)

	m.fsm = fsm.NewFSM(
		detected,
		fsm.Events{
			{Name: eventSkip, Src: []string{detected, planned}, Dst: string(models.FileStateSkipped)},
			{Name: eventPlan, Src: []string{detected}, Dst: planned},
			{Name: eventMove, Src: []string{planned}, Dst: string(models.FileStateMoved)},
			{Name: eventFail, Src: []string{planned}, Dst: string(models.FileStateFailed)},
		},
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				m.outcome.State = models.FileState(e.Dst)
				m.logger.Debug().
					Str("file", m.outcome.Path).
					Str("from", e.Src).
					Str("to", e.Dst).
					Msg("Remediation state change")
			},
		},
	)
	return m
}

func (m *fileMachine) fire(ctx context.Context, event string) {
	if err := m.fsm.Event(ctx, event); err != nil {
		m.logger.Warn().Err(err).Str("file", m.outcome.Path).Str("event", event).Msg("Invalid remediation transition")
	}
}

func (m *fileMachine) skip(ctx context.Context, reason string) {
	m.outcome.Reason = reason
	m.fire(ctx, eventSkip)
}

func (m *fileMachine) plan(ctx context.Context, destination string) {
	m.outcome.Destination = destination
	m.fire(ctx, eventPlan)
}

func (m *fileMachine) moved(ctx context.Context, strategy string) {
	m.outcome.Strategy = strategy
	m.fire(ctx, eventMove)
}

func (m *fileMachine) fail(ctx context.Context, reason string) {
	m.outcome.Reason = reason
	m.fire(ctx, eventFail)
}

func (m *fileMachine) state() models.FileState {
	return models.FileState(m.fsm.Current())
}
