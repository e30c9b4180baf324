package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"volitus/server/internal/errs"
	"volitus/server/internal/interfaces"
	"volitus/server/internal/models"
)

type publishedEvent struct {
	Room string
	Type string
	Data interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) Publish(roomID, eventType string, data interface{}, _ ...models.ClientRole) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Room: roomID, Type: eventType, Data: data})
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *fakePublisher) ofType(eventType string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fakeViewers struct {
	n atomic.Int64
}

func (v *fakeViewers) ViewerCount(string) int {
	return int(v.n.Load())
}

type fakeStore struct {
	mu    sync.Mutex
	saved map[string]*models.Story
	fail  bool
}

func (s *fakeStore) Load(_ context.Context, path string) (*models.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	story, ok := s.saved[path]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return story.Clone(), nil
}

func (s *fakeStore) Save(_ context.Context, path string, story *models.Story) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("disk full")
	}
	if s.saved == nil {
		s.saved = make(map[string]*models.Story)
	}
	s.saved[path] = story.Clone()
	return nil
}

type fakeArchiver struct {
	mu       sync.Mutex
	votes    []*models.VoteRecord
	chapters []*models.ChapterRecord
}

func (a *fakeArchiver) ArchiveVote(_ context.Context, rec *models.VoteRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.votes = append(a.votes, rec)
	return nil
}

func (a *fakeArchiver) ArchiveChapter(_ context.Context, rec *models.ChapterRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chapters = append(a.chapters, rec)
	return nil
}

type fakeGenerator struct {
	options []models.VoteOption
	err     error
	seen    interfaces.GenerateRequest
}

func (g *fakeGenerator) GenerateOptions(_ context.Context, req interfaces.GenerateRequest) ([]models.VoteOption, error) {
	g.seen = req
	if g.err != nil {
		return nil, g.err
	}
	return g.options, nil
}

type fixture struct {
	rooms    *Rooms
	pub      *fakePublisher
	viewers  *fakeViewers
	store    *fakeStore
	archiver *fakeArchiver
	gen      *fakeGenerator
	story    *StoryEngine
	votes    *VoteService
	inter    *InteractionService
}

func newFixture(cfg VoteConfig) *fixture {
	f := &fixture{
		rooms:    NewRooms(5, nil),
		pub:      &fakePublisher{},
		viewers:  &fakeViewers{},
		store:    &fakeStore{},
		archiver: &fakeArchiver{},
		gen: &fakeGenerator{options: []models.VoteOption{
			{ID: "A", Label: "left"},
			{ID: "B", Label: "right"},
		}},
	}
	f.story = NewStoryEngine(f.rooms, f.pub, f.store, f.archiver, zerolog.Nop(), nil)
	f.votes = NewVoteService(f.rooms, f.pub, f.viewers, f.gen, f.archiver, f.story, cfg, zerolog.Nop(), nil)
	f.inter = NewInteractionService(f.rooms, zerolog.Nop())
	return f
}

func line(role string, at int, text string) models.Role {
	return models.Role{ID: role, Name: role, Dialogues: []models.Dialogue{{Time: at, Text: text}}}
}

// twoChapterStory has chapter 1 with three dialogues and chapter 2 with two
func twoChapterStory() *models.Story {
	return &models.Story{
		Meta: models.StoryMeta{Title: "Night Market"},
		Chapters: []models.Chapter{
			{
				ID:         1,
				Background: models.Background{ID: "bg_1"},
				Roles: []models.Role{
					{ID: "hero", Dialogues: []models.Dialogue{{Time: 0, Text: "a1"}, {Time: 2000, Text: "a3"}}},
					{ID: "villain", Dialogues: []models.Dialogue{{Time: 1000, Text: "a2"}}},
				},
			},
			{
				ID:         2,
				Background: models.Background{ID: "bg_2"},
				Roles:      []models.Role{{ID: "hero", Dialogues: []models.Dialogue{{Time: 0, Text: "b1"}, {Time: 500, Text: "b2"}}}},
			},
		},
	}
}
