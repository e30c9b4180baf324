package storage

import (
	"context"
	"encoding/json"
	"os"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"volitus/server/internal/errs"
	"volitus/server/internal/models"
)

var validate = validator.New()

// FileStoryStore reads and writes story JSON files below a root directory
type FileStoryStore struct {
	root string
}

// NewFileStoryStore creates a store rooted at dir
func NewFileStoryStore(dir string) *FileStoryStore {
	return &FileStoryStore{root: filepath.Clean(dir)}
}

// Root returns the story directory
func (s *FileStoryStore) Root() string {
	return s.root
}

// Resolve maps a story path onto the store root. Paths may be given relative
// to the root or already prefixed with it; anything leaving the root is
// rejected.
func (s *FileStoryStore) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.Wrap(errs.ErrMalformed, "empty story path")
	}
	if filepath.IsAbs(path) {
		return "", errors.Wrapf(errs.ErrMalformed, "absolute story path %q", path)
	}

	rel := filepath.Clean(filepath.FromSlash(path))
	if prefix := s.root + string(filepath.Separator); s.root != "." && strings.HasPrefix(rel, prefix) {
		rel = strings.TrimPrefix(rel, prefix)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Wrapf(errs.ErrMalformed, "story path %q escapes %s", path, s.root)
	}
	return filepath.Join(s.root, rel), nil
}

// Load reads and checks the story at path
func (s *FileStoryStore) Load(ctx context.Context, path string) (*models.Story, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errs.ErrNotFound, "story %s", path)
		}
		return nil, errors.Wrapf(err, "read story %s", path)
	}

	var story models.Story
	if err := json.Unmarshal(data, &story); err != nil {
		return nil, errors.Wrapf(errs.ErrMalformed, "decode story %s: %v", path, err)
	}
	if err := validate.Struct(&story); err != nil {
		return nil, errors.Wrapf(errs.ErrMalformed, "story %s: %v", path, err)
	}
	if len(story.Chapters) == 0 {
		return nil, errors.Wrapf(errs.ErrMalformed, "story %s has no chapters", path)
	}
	return &story, nil
}

// List scans the store for story files. Files that do not decode, or have no
// chapters, are left out. A missing root is an empty catalog.
func (s *FileStoryStore) List(ctx context.Context) ([]models.StoryInfo, error) {
	stories := []models.StoryInfo{}
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != s.root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}

		info, ok := readStoryInfo(path)
		if !ok {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		info.Path = filepath.ToSlash(rel)
		stories = append(stories, info)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list stories in %s", s.root)
	}

	sort.Slice(stories, func(i, j int) bool { return stories[i].Path < stories[j].Path })
	return stories, nil
}

func readStoryInfo(path string) (models.StoryInfo, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.StoryInfo{}, false
	}
	var doc struct {
		Meta     models.StoryMeta  `json:"meta"`
		Chapters []json.RawMessage `json:"chapters"`
	}
	if err := json.Unmarshal(data, &doc); err != nil || len(doc.Chapters) == 0 {
		return models.StoryInfo{}, false
	}
	return models.StoryInfo{Chapters: len(doc.Chapters), StoryMeta: doc.Meta}, true
}

// Save writes story to path through a temporary file so readers never see a
// partial document
func (s *FileStoryStore) Save(ctx context.Context, path string, story *models.Story) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.Resolve(path)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(story, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode story")
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errors.Wrap(err, "create story dir")
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".story-*.json")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	return errors.Wrapf(os.Rename(tmp.Name(), full), "replace story %s", path)
}
