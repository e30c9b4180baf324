package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"volitus/server/internal/errs"
	"volitus/server/internal/models"
)

const sampleStory = `{
  "meta": {"title": "Rain Alley", "version": "1.0", "author": "ops", "description": "a test"},
  "chapters": [
    {
      "id": 1,
      "background": {"id": "bg1", "image": "alley.png"},
      "roles": [
        {"id": "r1", "name": "Lin", "avatar": "lin.png", "dialogues": [{"time": 0, "text": "hello"}]}
      ]
    }
  ]
}`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	full := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestFileStoryStore_LoadValidStory(t *testing.T) {
	req := require.New(t)

	// Given a story file in the story directory
	dir := t.TempDir()
	writeFile(t, dir, "rain.json", sampleStory)
	store := NewFileStoryStore(dir)

	// When loading it
	story, err := store.Load(context.Background(), "rain.json")

	// Then the chapters are decoded
	req.NoError(err)
	req.Equal("Rain Alley", story.Meta.Title)
	req.Len(story.Chapters, 1)
	req.Equal("hello", story.Chapters[0].Roles[0].Dialogues[0].Text)
}

func TestFileStoryStore_ListSkipsUnloadableFiles(t *testing.T) {
	req := require.New(t)

	// Given loadable stories next to files that are not
	dir := t.TempDir()
	writeFile(t, dir, "rain.json", sampleStory)
	writeFile(t, dir, "arcs/second.json", sampleStory)
	writeFile(t, dir, "broken.json", `{"chapters": [`)
	writeFile(t, dir, "empty.json", `{"meta": {"title": "x"}, "chapters": []}`)
	writeFile(t, dir, "notes.txt", "not a story")
	writeFile(t, dir, ".story-123.json", sampleStory)
	store := NewFileStoryStore(dir)

	// When listing the catalog
	stories, err := store.List(context.Background())

	// Then only the loadable ones are returned, by path
	req.NoError(err)
	req.Len(stories, 2)
	req.Equal("arcs/second.json", stories[0].Path)
	req.Equal("rain.json", stories[1].Path)
	req.Equal("Rain Alley", stories[1].Title)
	req.Equal("a test", stories[1].Description)
	req.Equal(1, stories[1].Chapters)

	// And every listed path loads
	for _, info := range stories {
		_, err := store.Load(context.Background(), info.Path)
		req.NoError(err)
	}
}

func TestFileStoryStore_ListMissingRootIsEmpty(t *testing.T) {
	store := NewFileStoryStore(filepath.Join(t.TempDir(), "absent"))

	stories, err := store.List(context.Background())

	require.NoError(t, err)
	require.Empty(t, stories)
}

func TestFileStoryStore_LoadErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.json", `{"chapters": [`)
	writeFile(t, dir, "empty.json", `{"meta": {"title": "x"}, "chapters": []}`)
	writeFile(t, dir, "norole.json", `{"chapters": [{"id": 1, "roles": [{"name": "no id"}]}]}`)
	store := NewFileStoryStore(dir)

	cases := []struct {
		name string
		path string
		want error
	}{
		{"missing file", "nope.json", errs.ErrNotFound},
		{"invalid json", "broken.json", errs.ErrMalformed},
		{"no chapters", "empty.json", errs.ErrMalformed},
		{"role without id", "norole.json", errs.ErrMalformed},
		{"escaping path", "../outside.json", errs.ErrMalformed},
		{"empty path", "", errs.ErrMalformed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)
			_, err := store.Load(context.Background(), tc.path)
			req.ErrorIs(err, tc.want)
		})
	}
}

func TestFileStoryStore_ResolveStripsRootPrefix(t *testing.T) {
	req := require.New(t)
	store := NewFileStoryStore("stories")

	// Given paths with and without the root prefix
	a, err := store.Resolve("stories/demo.json")
	req.NoError(err)
	b, err := store.Resolve("demo.json")
	req.NoError(err)

	// Then both resolve to the same file
	req.Equal(filepath.Join("stories", "demo.json"), a)
	req.Equal(a, b)

	// And climbing out of the root is rejected
	_, err = store.Resolve("sub/../../demo.json")
	req.ErrorIs(err, errs.ErrMalformed)
}

func TestFileStoryStore_SaveRoundTrip(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	// Given a loaded story with a chapter appended in memory
	dir := t.TempDir()
	writeFile(t, dir, "rain.json", sampleStory)
	store := NewFileStoryStore(dir)
	story, err := store.Load(ctx, "rain.json")
	req.NoError(err)
	story.Chapters = append(story.Chapters, models.Chapter{ID: 2, Background: models.Background{ID: "bg2"}})

	// When saving it back
	req.NoError(store.Save(ctx, "rain.json", story))

	// Then a reload sees the new chapter and no temp file is left behind
	again, err := store.Load(ctx, "rain.json")
	req.NoError(err)
	req.Len(again.Chapters, 2)
	req.Equal(2, again.Chapters[1].ID)

	entries, err := os.ReadDir(dir)
	req.NoError(err)
	req.Len(entries, 1)
}
