package models

import (
	"time"
)

// VoteRecord is the archived outcome of a resolved vote
type VoteRecord struct {
	ID         string    `gorm:"primaryKey;size:64" json:"id"`
	RoomID     string    `gorm:"index;size:64" json:"room_id"`
	Winner     string    `gorm:"size:32" json:"winner"`
	ResolvedBy string    `gorm:"size:16" json:"resolved_by"` // "quorum", "expired", "closed"
	VotedCount int       `json:"voted_count"`
	Tally      string    `gorm:"type:text" json:"-"` // JSON encoded option -> count
	CreatedAt  time.Time `json:"created_at"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// ChapterRecord is an audit entry for a chapter inserted into a live story
type ChapterRecord struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	RoomID        string    `gorm:"index;size:64" json:"room_id"`
	ChapterID     int       `json:"chapter_id"`
	InsertAfterID int       `json:"insert_after_id"`
	VoteID        string    `gorm:"size:64" json:"vote_id,omitempty"`
	Content       string    `gorm:"type:text" json:"-"` // JSON encoded chapter
	CreatedAt     time.Time `json:"created_at"`
}
