package interfaces

import (
	"context"

	"volitus/server/internal/models"
)

// Publisher delivers room events to connected clients
type Publisher interface {
	// Publish sends one event to every connection of the room, or to the given roles only
	Publish(roomID, eventType string, data interface{}, roles ...models.ClientRole)
}

// ViewerCounter reports the live audience of a room
type ViewerCounter interface {
	ViewerCount(roomID string) int
}

// StoryStore is the story source and the persistence sink for mutated stories
type StoryStore interface {
	// Load returns the story at path. Missing stories are ErrNotFound, undecodable ones ErrMalformed.
	Load(ctx context.Context, path string) (*models.Story, error)

	// Save writes the story back to path
	Save(ctx context.Context, path string, story *models.Story) error
}

// StoryCatalog is a StoryStore that can also enumerate its stories
type StoryCatalog interface {
	StoryStore

	// List returns the loadable stories ordered by path
	List(ctx context.Context) ([]models.StoryInfo, error)
}
