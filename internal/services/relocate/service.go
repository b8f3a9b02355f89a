// Package relocate moves files inside the project, preferring a
// history-preserving version-control move and falling back to a plain
// filesystem move.
package relocate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canon/internal/git"
	"github.com/ternarybob/canon/internal/interfaces"
	"github.com/ternarybob/canon/internal/models"
)

// ErrUnavailable is returned by a strategy that cannot run in this project
var ErrUnavailable = errors.New("strategy unavailable")

// Strategy performs one kind of move. Paths are project-relative slash paths.
type Strategy interface {
	Name() string
	Move(ctx context.Context, src, dst string, overwrite bool) error
}

// Service tries each strategy in order until one succeeds
type Service struct {
	root       string
	strategies []Strategy
	logger     arbor.ILogger
}

var _ interfaces.Relocator = (*Service)(nil)

// NewService prefers git mv when the project is a git working tree
func NewService(root string, repo *git.Repository, logger arbor.ILogger) *Service {
	return NewServiceWith(root, logger, NewGitStrategy(repo), NewFileStrategy(root))
}

// NewServiceWith creates a relocator with an explicit strategy order
func NewServiceWith(root string, logger arbor.ILogger, strategies ...Strategy) *Service {
	return &Service{
		root:       root,
		strategies: strategies,
		logger:     logger,
	}
}

// Relocate moves src to dst, creating the destination directory. It returns
// the name of the strategy that performed the move.
func (s *Service) Relocate(ctx context.Context, src, dst string, overwrite bool) (string, error) {
	if !overwrite {
		if _, err := os.Lstat(s.abs(dst)); err == nil {
			return "", &models.ConflictError{Destination: dst}
		}
	}
	if err := os.MkdirAll(filepath.Dir(s.abs(dst)), 0755); err != nil {
		return "", &models.MoveFailure{Source: src, Destination: dst, Err: err}
	}

	var lastErr error
	for _, strategy := range s.strategies {
		err := strategy.Move(ctx, src, dst, overwrite)
		if err == nil {
			s.logger.Info().Str("source", src).Str("destination", dst).Str("strategy", strategy.Name()).Msg("File relocated")
			return strategy.Name(), nil
		}
		if !errors.Is(err, ErrUnavailable) {
			s.logger.Warn().Err(err).Str("source", src).Str("strategy", strategy.Name()).Msg("Move strategy failed, trying next")
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no move strategy configured")
	}
	return "", &models.MoveFailure{Source: src, Destination: dst, Err: lastErr}
}

func (s *Service) abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}
