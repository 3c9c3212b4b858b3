// Package whatsapp provides WhatsApp client integration using whatsmeow library.
package whatsapp

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
	// SQLite driver for whatsmeow session storage
	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"

	"github.com/mdp/qrterminal/v3"

	"spoticord/internal/chat"
)

const (
	// Name is the frontend identifier carried on every message.
	Name = "whatsapp"

	senderCacheSize = 512
)

// Config holds WhatsApp-specific configuration
type Config struct {
	DeviceName  string
	SessionPath string
	Enabled     bool
	// AllowedChats limits intake to these group JIDs. Empty accepts every group.
	AllowedChats []string
}

// Frontend implements the chat.Frontend interface for WhatsApp
type Frontend struct {
	config    *Config
	logger    *zap.Logger
	client    *whatsmeow.Client
	container *sqlstore.Container

	messageHandler func(*chat.Message)

	// senders remembers who wrote recent messages; reactions must name them
	senders *lru.Cache[string, types.JID]
}

var _ chat.Frontend = (*Frontend)(nil)

// NewFrontend creates a new WhatsApp frontend
func NewFrontend(config *Config, logger *zap.Logger) *Frontend {
	senders, _ := lru.New[string, types.JID](senderCacheSize)
	return &Frontend{
		config:  config,
		logger:  logger,
		senders: senders,
	}
}

func (f *Frontend) Name() string {
	return Name
}

// Start opens the session store, connects and walks through QR login when
// the device is not paired yet.
func (f *Frontend) Start(ctx context.Context) error {
	if !f.config.Enabled {
		f.logger.Warn("⚠️  WhatsApp bot mode is disabled by default (may violate ToS). Enable at your own risk.")
		return nil
	}

	f.logger.Info("Starting WhatsApp frontend")

	if err := f.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}

	if err := f.initClient(ctx); err != nil {
		return fmt.Errorf("failed to init client: %w", err)
	}

	f.client.AddEventHandler(f.handleEvent)

	if f.client.Store.ID == nil {
		qrChan, _ := f.client.GetQRChannel(ctx)
		if err := f.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}

		for evt := range qrChan {
			if evt.Event == "code" {
				f.logger.Info("QR code received, please scan with your phone")
				fmt.Println("QR Code:")
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			} else {
				f.logger.Info("Login event", zap.String("event", evt.Event))
			}
		}
	} else {
		if err := f.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
	}

	f.logger.Info("WhatsApp frontend started successfully")
	return nil
}

// Listen hands messages to handler until ctx is done, then disconnects
func (f *Frontend) Listen(ctx context.Context, handler func(*chat.Message)) error {
	if !f.config.Enabled {
		return nil
	}

	f.messageHandler = handler

	// Events arrive on whatsmeow's own goroutines
	<-ctx.Done()

	return f.stop()
}

// SendText sends a text message to the specified chat, optionally as a reply
func (f *Frontend) SendText(ctx context.Context, chatID, replyToID, text string) (string, error) {
	if !f.config.Enabled {
		return "", fmt.Errorf("whatsapp frontend is disabled")
	}

	jid, err := types.ParseJID(chatID)
	if err != nil {
		return "", fmt.Errorf("invalid chat JID: %w", err)
	}

	msg := &waE2E.Message{Conversation: &text}
	if replyToID != "" {
		contextInfo := &waE2E.ContextInfo{StanzaID: &replyToID}
		if sender, ok := f.senders.Get(replyToID); ok {
			participant := sender.String()
			contextInfo.Participant = &participant
		}
		msg = &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{
				Text:        &text,
				ContextInfo: contextInfo,
			},
		}
	}

	resp, err := f.client.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	return resp.ID, nil
}

// SendFile is not available; history exports are served over HTTP instead
func (f *Frontend) SendFile(_ context.Context, _, _ string, _ io.Reader, _ string) error {
	return chat.ErrUnsupported
}

// React adds an emoji reaction to a message
func (f *Frontend) React(ctx context.Context, chatID, msgID string, r chat.Reaction) error {
	if !f.config.Enabled {
		return fmt.Errorf("whatsapp frontend is disabled")
	}

	jid, err := types.ParseJID(chatID)
	if err != nil {
		return fmt.Errorf("invalid chat JID: %w", err)
	}

	sender, ok := f.senders.Get(msgID)
	if !ok {
		sender = jid
	}

	reactionMsg := f.client.BuildReaction(jid, sender, msgID, string(r))
	if _, err := f.client.SendMessage(ctx, jid, reactionMsg); err != nil {
		return fmt.Errorf("failed to send reaction: %w", err)
	}
	return nil
}

// handleEvent processes incoming WhatsApp events
func (f *Frontend) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		message, ok := f.convertMessage(v)
		if ok && f.messageHandler != nil {
			f.messageHandler(message)
		}
	case *events.KeepAliveTimeout:
		f.logger.Warn("Received KeepAlive timeout, reconnecting...")
	case *events.KeepAliveRestored:
		f.logger.Info("Connection restored after timeout")
	case *events.LoggedOut:
		f.logger.Error("WhatsApp session logged out, pair the device again")
	}
}

// convertMessage filters and normalizes a group message
func (f *Frontend) convertMessage(evt *events.Message) (*chat.Message, bool) {
	if evt.Message == nil || evt.Info.IsFromMe {
		return nil, false
	}

	if evt.Info.Chat.Server != types.GroupServer {
		return nil, false
	}

	chatID := evt.Info.Chat.String()
	if len(f.config.AllowedChats) > 0 && !slices.Contains(f.config.AllowedChats, chatID) {
		return nil, false
	}

	text := extractMessageText(evt.Message)
	if text == "" {
		return nil, false
	}

	f.senders.Add(evt.Info.ID, evt.Info.Sender)

	return &chat.Message{
		ID:         evt.Info.ID,
		ChatID:     chatID,
		ChatName:   evt.Info.Chat.User,
		SenderID:   evt.Info.Sender.String(),
		SenderName: evt.Info.PushName,
		Text:       text,
		IsGroup:    true,
		Frontend:   Name,
		Raw:        evt,
	}, true
}

// stop closes the WhatsApp client connection
func (f *Frontend) stop() error {
	f.logger.Info("Stopping WhatsApp frontend")

	if f.client != nil {
		f.client.Disconnect()
	}

	if f.container != nil {
		if err := f.container.Close(); err != nil {
			f.logger.Warn("Failed to close whatsapp container", zap.Error(err))
		}
	}

	return nil
}

// initDatabase initializes the SQLite database for session storage
func (f *Frontend) initDatabase(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(f.config.SessionPath), 0o755); err != nil {
		return err
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", f.config.SessionPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return err
	}

	container := sqlstore.NewWithDB(db, "sqlite3", nil)
	f.container = container
	return container.Upgrade(ctx)
}

// initClient initializes the WhatsApp client
func (f *Frontend) initClient(ctx context.Context) error {
	deviceStore, err := f.container.GetFirstDevice(ctx)
	if err != nil {
		return err
	}

	f.client = whatsmeow.NewClient(deviceStore, nil)
	return nil
}

// extractMessageText extracts text content from various WhatsApp message types
func extractMessageText(msg *waE2E.Message) string {
	if msg.Conversation != nil {
		return *msg.Conversation
	}

	if msg.ExtendedTextMessage != nil && msg.ExtendedTextMessage.Text != nil {
		return *msg.ExtendedTextMessage.Text
	}

	if msg.ImageMessage != nil && msg.ImageMessage.Caption != nil {
		return *msg.ImageMessage.Caption
	}

	if msg.VideoMessage != nil && msg.VideoMessage.Caption != nil {
		return *msg.VideoMessage.Caption
	}

	if msg.DocumentMessage != nil && msg.DocumentMessage.Caption != nil {
		return *msg.DocumentMessage.Caption
	}

	return ""
}
