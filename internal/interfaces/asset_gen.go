package interfaces

import (
	"context"

	"volitus/server/internal/models"
)

// GenerateRequest is the context handed to a chapter generator
type GenerateRequest struct {
	RoomID       string
	Meta         models.StoryMeta
	Current      *models.Chapter
	Interactions []models.Interaction
	NumOptions   int
}

// ChapterGenerator produces the branches offered in a chapter vote. Failures
// are reported as errs.ErrUnavailable.
type ChapterGenerator interface {
	GenerateOptions(ctx context.Context, req GenerateRequest) ([]models.VoteOption, error)
}
