// Package telegram provides Telegram Bot API integration using go-telegram/bot library.
package telegram

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"spoticord/internal/chat"
)

const (
	// Name is the frontend identifier carried on every message.
	Name = "telegram"

	chatTypeGroup      = "group"
	chatTypeSuperGroup = "supergroup"
)

// Config holds Telegram-specific configuration
type Config struct {
	BotToken string
	Enabled  bool
	// AllowedChats limits intake to these chat ids. Empty accepts every chat.
	AllowedChats []string
}

// Frontend implements the chat.Frontend interface for Telegram
type Frontend struct {
	config *Config
	logger *zap.Logger
	bot    *bot.Bot

	messageHandler func(*chat.Message)
}

var _ chat.Frontend = (*Frontend)(nil)

// NewFrontend creates a new Telegram frontend
func NewFrontend(config *Config, logger *zap.Logger) *Frontend {
	return &Frontend{
		config: config,
		logger: logger,
	}
}

func (f *Frontend) Name() string {
	return Name
}

// Start creates the bot client and checks it can see every allowed chat
func (f *Frontend) Start(ctx context.Context) error {
	if !f.config.Enabled {
		f.logger.Info("Telegram frontend is disabled, skipping initialization")
		return nil
	}

	f.logger.Info("Starting Telegram frontend", zap.Strings("chats", f.config.AllowedChats))

	b, err := bot.New(f.config.BotToken, bot.WithDefaultHandler(f.handleUpdate))
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}

	f.bot = b

	for _, chatID := range f.config.AllowedChats {
		if err := f.verifyChatAccess(ctx, chatID); err != nil {
			return fmt.Errorf("failed to verify chat access: %w", err)
		}
	}

	f.logger.Info("Telegram frontend started successfully")
	return nil
}

// Listen starts long polling and blocks until ctx is done
func (f *Frontend) Listen(ctx context.Context, handler func(*chat.Message)) error {
	if !f.config.Enabled {
		return nil
	}

	f.messageHandler = handler
	f.bot.Start(ctx)

	return nil
}

// SendText sends a text message to the specified chat, optionally as a reply
func (f *Frontend) SendText(ctx context.Context, chatID, replyToID, text string) (string, error) {
	if !f.config.Enabled {
		return "", fmt.Errorf("telegram frontend is disabled")
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid chat ID: %w", err)
	}

	params := &bot.SendMessageParams{
		ChatID: chatIDInt,
		Text:   text,
	}

	// Replies often quote Spotify links; previews would bury the conversation
	disabled := true
	params.LinkPreviewOptions = &models.LinkPreviewOptions{
		IsDisabled: &disabled,
	}

	if replyToID != "" {
		messageID, parseErr := strconv.Atoi(replyToID)
		if parseErr != nil {
			return "", fmt.Errorf("invalid reply message ID: %w", parseErr)
		}
		params.ReplyParameters = &models.ReplyParameters{
			MessageID: messageID,
		}
	}

	msg, err := f.bot.SendMessage(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	return strconv.Itoa(msg.ID), nil
}

// SendFile uploads data as a document
func (f *Frontend) SendFile(ctx context.Context, chatID, filename string, data io.Reader, caption string) error {
	if !f.config.Enabled {
		return fmt.Errorf("telegram frontend is disabled")
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}

	_, err = f.bot.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:   chatIDInt,
		Document: &models.InputFileUpload{Filename: filename, Data: data},
		Caption:  caption,
	})
	if err != nil {
		return fmt.Errorf("failed to send document: %w", err)
	}

	return nil
}

// React adds an emoji reaction to a message
func (f *Frontend) React(ctx context.Context, chatID, msgID string, r chat.Reaction) error {
	if !f.config.Enabled {
		return fmt.Errorf("telegram frontend is disabled")
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}

	messageID, err := strconv.Atoi(msgID)
	if err != nil {
		return fmt.Errorf("invalid message ID: %w", err)
	}

	_, err = f.bot.SetMessageReaction(ctx, &bot.SetMessageReactionParams{
		ChatID:    chatIDInt,
		MessageID: messageID,
		Reaction: []models.ReactionType{
			{
				Type: models.ReactionTypeTypeEmoji,
				ReactionTypeEmoji: &models.ReactionTypeEmoji{
					Emoji: string(r),
				},
			},
		},
	})
	if err != nil {
		// Some groups disable reactions; that is not worth failing a reply over
		f.logger.Debug("Failed to set reaction, reactions may not be supported",
			zap.Error(err))
	}

	return nil
}

func (f *Frontend) handleUpdate(_ context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	message, ok := f.convertMessage(update.Message)
	if !ok {
		return
	}
	if f.messageHandler != nil {
		f.messageHandler(message)
	}
}

// convertMessage filters and normalizes an incoming message
func (f *Frontend) convertMessage(msg *models.Message) (*chat.Message, bool) {
	if msg.From == nil || msg.From.IsBot {
		return nil, false
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	if len(f.config.AllowedChats) > 0 && !slices.Contains(f.config.AllowedChats, chatID) {
		return nil, false
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if text == "" {
		return nil, false
	}

	chatName := msg.Chat.Title
	if chatName == "" {
		chatName = msg.Chat.Username
	}

	return &chat.Message{
		ID:         strconv.Itoa(msg.ID),
		ChatID:     chatID,
		ChatName:   chatName,
		SenderID:   strconv.FormatInt(msg.From.ID, 10),
		SenderName: getUserDisplayName(msg.From),
		Text:       text,
		IsGroup:    msg.Chat.Type == chatTypeGroup || msg.Chat.Type == chatTypeSuperGroup,
		Frontend:   Name,
		Raw:        msg,
	}, true
}

func (f *Frontend) verifyChatAccess(ctx context.Context, chatID string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", chatID, err)
	}

	c, err := f.bot.GetChat(ctx, &bot.GetChatParams{ChatID: id})
	if err != nil {
		return fmt.Errorf("cannot access chat %d: %w", id, err)
	}

	f.logger.Info("Bot has access to chat",
		zap.String("chat_title", c.Title),
		zap.String("chat_type", string(c.Type)))

	return nil
}

// getUserDisplayName creates a display name for the user
func getUserDisplayName(user *models.User) string {
	if user.Username != "" {
		return "@" + user.Username
	}

	name := user.FirstName
	if user.LastName != "" {
		name += " " + user.LastName
	}

	return name
}
