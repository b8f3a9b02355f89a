package interfaces

import (
	"context"

	"github.com/ternarybob/canon/internal/models"
)

// AdvisoryClient answers whether a file is safe to move, archive or delete
// right now. Answers are never cached across runs.
type AdvisoryClient interface {
	AnalyzeFileSafety(ctx context.Context, relPath string) (*models.SafetyReport, error)
}
