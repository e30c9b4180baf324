package models

import (
	"sort"
)

// Dialogue is one line of a role, shown Time milliseconds after the chapter starts.
type Dialogue struct {
	Time int    `json:"time" validate:"gte=0"`
	Text string `json:"text"`
}

// Role is a character appearing in a chapter
type Role struct {
	ID        string     `json:"id" validate:"required"`
	Name      string     `json:"name"`
	Avatar    string     `json:"avatar"`
	Dialogues []Dialogue `json:"dialogues" validate:"dive"`
}

// Background is the scene image behind a chapter
type Background struct {
	ID    string `json:"id"`
	Image string `json:"image"`
}

// Chapter is a self-contained scene. IDs are unique within a story but carry
// no ordering meaning; the position in Story.Chapters is the play order.
type Chapter struct {
	ID         int        `json:"id"`
	Background Background `json:"background"`
	Roles      []Role     `json:"roles" validate:"dive"`
}

// StoryMeta holds descriptive story information
type StoryMeta struct {
	Title       string `json:"title"`
	Version     string `json:"version"`
	Author      string `json:"author"`
	Description string `json:"description"`
}

// StoryInfo describes a story file available to load
type StoryInfo struct {
	Path     string `json:"path"`
	Chapters int    `json:"chapters"`
	StoryMeta
}

// Story is an ordered sequence of chapters
type Story struct {
	Meta     StoryMeta `json:"meta"`
	Chapters []Chapter `json:"chapters" validate:"dive"`
}

// TimelineEntry pairs a dialogue with the role speaking it
type TimelineEntry struct {
	Role     Role
	Dialogue Dialogue
}

// Timeline merges the dialogues of every role into one sequence ordered by
// time. Entries sharing a time keep their declaration order (roles first, then
// dialogues within a role).
func (c *Chapter) Timeline() []TimelineEntry {
	var entries []TimelineEntry
	for _, role := range c.Roles {
		for _, d := range role.Dialogues {
			entries = append(entries, TimelineEntry{Role: role.withoutDialogues(), Dialogue: d})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Dialogue.Time < entries[j].Dialogue.Time
	})
	return entries
}

// DialogueCount returns the number of dialogues across all roles
func (c *Chapter) DialogueCount() int {
	n := 0
	for _, role := range c.Roles {
		n += len(role.Dialogues)
	}
	return n
}

// Clone returns a deep copy of the chapter
func (c Chapter) Clone() Chapter {
	out := c
	out.Roles = make([]Role, len(c.Roles))
	for i, role := range c.Roles {
		out.Roles[i] = role
		out.Roles[i].Dialogues = append([]Dialogue(nil), role.Dialogues...)
	}
	return out
}

func (r Role) withoutDialogues() Role {
	r.Dialogues = nil
	return r
}

// ChapterIndex returns the position of the chapter with the given id, or -1.
func (s *Story) ChapterIndex(id int) int {
	for i := range s.Chapters {
		if s.Chapters[i].ID == id {
			return i
		}
	}
	return -1
}

// MaxChapterID returns the largest chapter id in the story
func (s *Story) MaxChapterID() int {
	max := 0
	for i, c := range s.Chapters {
		if i == 0 || c.ID > max {
			max = c.ID
		}
	}
	return max
}

// Clone returns a deep copy of the story
func (s *Story) Clone() *Story {
	out := &Story{Meta: s.Meta, Chapters: make([]Chapter, len(s.Chapters))}
	for i, c := range s.Chapters {
		out.Chapters[i] = c.Clone()
	}
	return out
}
