package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"volitus/server/internal/errs"
)

// ClientRole partitions the connections of a room
type ClientRole string

const (
	RoleStreamer ClientRole = "streamer"
	RoleViewer   ClientRole = "viewer"
)

// ParseClientRole validates a role received from a client
func ParseClientRole(s string) (ClientRole, error) {
	switch ClientRole(strings.ToLower(strings.TrimSpace(s))) {
	case RoleStreamer:
		return RoleStreamer, nil
	case RoleViewer:
		return RoleViewer, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", errs.ErrMalformed, s)
	}
}

// Inbound message kinds
const (
	MsgVoteCast    = "vote:cast"
	MsgChatMessage = "chat:message"
	MsgPing        = "ping"
)

// Envelope is the wire shape of every outbound message
type Envelope struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// rawInbound is the undecoded form of a client message
type rawInbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Inbound is a decoded client message. Exactly one of the payload fields is
// set, matching Type.
type Inbound struct {
	Type string
	Vote *VoteCast
	Chat *ChatMessage
}

// VoteCast is the payload of vote:cast
type VoteCast struct {
	VoteID   string `json:"vote_id"`
	OptionID string `json:"option_id"`
	UserID   string `json:"user_id"`
}

// ChatMessage is the payload of chat:message
type ChatMessage struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Content  string `json:"content"`
	Sender   string `json:"sender"`
	VideoURL string `json:"videoUrl,omitempty"`
}

// ChatBroadcast is what the room receives for a relayed chat message
type ChatBroadcast struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Content    string     `json:"content"`
	Sender     string     `json:"sender"`
	SenderRole ClientRole `json:"sender_role"`
	Timestamp  int64      `json:"timestamp"`
	VideoURL   string     `json:"videoUrl,omitempty"`
}

// DecodeInbound parses a client frame into a typed message. Unknown types and
// payloads missing required fields are ErrMalformed.
func DecodeInbound(frame []byte) (*Inbound, error) {
	var raw rawInbound
	if err := json.Unmarshal(frame, &raw); err != nil {
		return nil, fmt.Errorf("%w: invalid envelope: %v", errs.ErrMalformed, err)
	}

	msg := &Inbound{Type: raw.Type}
	switch raw.Type {
	case MsgVoteCast:
		var v VoteCast
		if err := decodeData(raw.Data, &v); err != nil {
			return nil, err
		}
		if v.VoteID == "" || v.OptionID == "" {
			return nil, fmt.Errorf("%w: vote:cast requires vote_id and option_id", errs.ErrMalformed)
		}
		msg.Vote = &v
	case MsgChatMessage:
		var c ChatMessage
		if err := decodeData(raw.Data, &c); err != nil {
			return nil, err
		}
		if c.Type == "" {
			c.Type = "text"
		}
		msg.Chat = &c
	case MsgPing:
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", errs.ErrMalformed, raw.Type)
	}
	return msg, nil
}

func decodeData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("%w: missing data", errs.ErrMalformed)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: invalid data: %v", errs.ErrMalformed, err)
	}
	return nil
}

// ErrorPayload is sent to a single client when its message was rejected
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
