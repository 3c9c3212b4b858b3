// Package chat provides a unified interface for chat frontends (WhatsApp, Telegram, etc.)
package chat

import (
	"context"
	"errors"
	"io"
)

// ErrUnsupported is returned by frontends that cannot perform an operation.
var ErrUnsupported = errors.New("operation not supported by this frontend")

// Message represents a normalized chat message from any frontend
type Message struct {
	ID         string
	ChatID     string
	ChatName   string
	SenderID   string
	SenderName string
	Text       string
	IsGroup    bool
	// Frontend names the transport that delivered the message.
	Frontend string
	Raw      any // underlying library message struct
}

// Reaction represents standard emoji reactions
type Reaction string

const (
	ReactionThumbsUp   Reaction = "👍"
	ReactionThumbsDown Reaction = "👎"
	ReactionParty      Reaction = "🎉"
)

// Frontend defines the unified interface for all chat integrations
type Frontend interface {
	// Name identifies the transport, matching Message.Frontend.
	Name() string

	// Start initializes the chat frontend
	Start(ctx context.Context) error

	// Listen blocks delivering messages to handler until ctx is done
	Listen(ctx context.Context, handler func(*Message)) error

	// SendText sends a text message to the specified chat, optionally as a reply
	SendText(ctx context.Context, chatID string, replyToID string, text string) (string, error)

	// SendFile uploads a document. Frontends without uploads return ErrUnsupported.
	SendFile(ctx context.Context, chatID, filename string, data io.Reader, caption string) error

	// React adds an emoji reaction to a message
	React(ctx context.Context, chatID string, msgID string, r Reaction) error
}
