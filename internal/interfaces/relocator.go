package interfaces

import "context"

// Relocator moves a file inside the project. Paths are project-relative.
// The returned name identifies the strategy that performed the move.
type Relocator interface {
	Relocate(ctx context.Context, src, dst string, overwrite bool) (strategy string, err error)
}
