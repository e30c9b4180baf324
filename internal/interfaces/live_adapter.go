package interfaces

import (
	"context"
	"time"

	"volitus/server/internal/models"
)

// ChatLog keeps the recent chat of each room
type ChatLog interface {
	// Append stores a relayed message. Messages already stored are skipped.
	Append(ctx context.Context, roomID string, msg *models.ChatBroadcast) error

	// Recent returns up to limit messages, oldest first
	Recent(ctx context.Context, roomID string, limit int64) ([]*models.ChatBroadcast, error)

	// Drop removes the chat of a room
	Drop(ctx context.Context, roomID string) error
}

// Token is a credential for the external media transport
type Token struct {
	AppID     string    `json:"app_id"`
	Channel   string    `json:"channel"`
	UID       string    `json:"uid"`
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenIssuer issues media transport tokens. It returns errs.ErrUnavailable
// when no provider is configured.
type TokenIssuer interface {
	Issue(channel, uid string) (*Token, error)
}
