package models

// DramaState is the progression cursor of one room.
// DialogueIndex indexes the merged timeline of the current chapter; a value
// equal to the timeline length means the chapter is exhausted.
type DramaState struct {
	RoomID           string `json:"room_id"`
	CurrentChapterID int    `json:"current_chapter_id"`
	DialogueIndex    int    `json:"current_dialogue_index"`
	TotalDialogues   int    `json:"total_dialogues"`
	IsPlaying        bool   `json:"is_playing"`
	IsFinished       bool   `json:"is_finished"`
	StoryPath        string `json:"story_path,omitempty"`
}

// ProgressResult is the outcome of one advance call
type ProgressResult struct {
	ChapterID         int        `json:"chapter_id"`
	DialogueIndex     int        `json:"dialogue_index"`
	Role              *Role      `json:"role"`
	Dialogue          *Dialogue  `json:"dialogue"`
	Background        Background `json:"background"`
	IsChapterEnd      bool       `json:"is_chapter_end"`
	IsStoryEnd        bool       `json:"is_story_end"`
	ShouldTriggerVote bool       `json:"should_trigger_vote"`
}

// Interaction is a viewer engagement event
type Interaction struct {
	UserID    string `json:"user_id" validate:"required"`
	Type      string `json:"type" validate:"required,oneof=text video"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// VoteOption is one branch offered to viewers. Chapter is the preview of the
// branch and is inserted into the story when auto insertion is enabled.
type VoteOption struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Chapter *Chapter `json:"preview,omitempty"`
}

// VoteSnapshot is a read-only view of a vote
type VoteSnapshot struct {
	VoteID     string         `json:"vote_id"`
	RoomID     string         `json:"room_id"`
	Options    []VoteOption   `json:"options"`
	Tally      map[string]int `json:"votes"`
	VotedCount int            `json:"voted_count"`
	Duration   int            `json:"duration"`
	Resolved   bool           `json:"resolved"`
	Winner     string         `json:"winner,omitempty"`
	ResolvedBy string         `json:"resolved_by,omitempty"`
	CreatedAt  int64          `json:"created_at"`
	ResolvedAt int64          `json:"resolved_at,omitempty"`
}
