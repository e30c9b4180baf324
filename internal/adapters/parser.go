package adapters

import (
	"regexp"
	"strings"

	"volitus/server/internal/models"
)

// CommandType represents the type of command parsed from a chat message
type CommandType string

const (
	CommandVote CommandType = "vote"
	CommandNone CommandType = "none"
)

// ParsedCommand represents a parsed chat message
type ParsedCommand struct {
	Type     CommandType
	OptionID string
	VoteID   string // empty means the room's latest open vote
	RawText  string
}

// ChatParser recognizes vote commands typed into the room chat, e.g.
// "/vote B" or "/vote vote_1a2b3c4d B".
type ChatParser struct {
	votePattern *regexp.Regexp
}

// NewChatParser creates a new chat parser
func NewChatParser() *ChatParser {
	return &ChatParser{
		votePattern: regexp.MustCompile(`(?i)^/vote\s+(?:(vote_[0-9a-f]+)\s+)?([A-Za-z0-9_-]{1,32})$`),
	}
}

// Parse parses a chat message and extracts a vote command. Video messages
// never carry commands.
func (p *ChatParser) Parse(msg *models.ChatMessage) *ParsedCommand {
	trimmed := strings.TrimSpace(msg.Content)
	result := &ParsedCommand{
		Type:    CommandNone,
		RawText: trimmed,
	}
	if msg.Type != "" && msg.Type != "text" {
		return result
	}

	if match := p.votePattern.FindStringSubmatch(trimmed); match != nil {
		result.Type = CommandVote
		result.VoteID = match[1]
		result.OptionID = strings.ToUpper(match[2])
	}
	return result
}
