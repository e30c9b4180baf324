package interfaces

import (
	"context"

	"volitus/server/internal/models"
)

// Archiver keeps an audit trail of resolved votes and inserted chapters. It
// is optional; the room state never depends on it.
type Archiver interface {
	ArchiveVote(ctx context.Context, rec *models.VoteRecord) error
	ArchiveChapter(ctx context.Context, rec *models.ChapterRecord) error
}
