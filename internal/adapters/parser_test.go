package adapters

import (
	"testing"

	"github.com/stretchr/testify/require"

	"volitus/server/internal/models"
)

func TestChatParser_Parse(t *testing.T) {
	parser := NewChatParser()

	cases := []struct {
		name   string
		msg    models.ChatMessage
		kind   CommandType
		option string
		voteID string
	}{
		{"latest vote", models.ChatMessage{Type: "text", Content: "/vote b"}, CommandVote, "B", ""},
		{"explicit vote", models.ChatMessage{Type: "text", Content: "  /vote vote_1a2b3c4d A "}, CommandVote, "A", "vote_1a2b3c4d"},
		{"untyped counts as text", models.ChatMessage{Content: "/VOTE c"}, CommandVote, "C", ""},
		{"plain chat", models.ChatMessage{Type: "text", Content: "vote for A!"}, CommandNone, "", ""},
		{"missing option", models.ChatMessage{Type: "text", Content: "/vote"}, CommandNone, "", ""},
		{"video", models.ChatMessage{Type: "video", Content: "/vote A"}, CommandNone, "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)
			msg := tc.msg
			cmd := parser.Parse(&msg)
			req.Equal(tc.kind, cmd.Type)
			req.Equal(tc.option, cmd.OptionID)
			req.Equal(tc.voteID, cmd.VoteID)
		})
	}
}
