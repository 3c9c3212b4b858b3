package telegram

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"spoticord/internal/chat"
)

func TestNewFrontend(t *testing.T) {
	config := &Config{
		BotToken:     "test-token",
		Enabled:      true,
		AllowedChats: []string{"-123456789"},
	}

	frontend := NewFrontend(config, zap.NewNop())

	if frontend == nil {
		t.Fatal("NewFrontend returned nil")
	}
	if frontend.config.BotToken != config.BotToken {
		t.Errorf("Expected bot token %s, got %s", config.BotToken, frontend.config.BotToken)
	}
	if frontend.Name() != "telegram" {
		t.Errorf("unexpected name %s", frontend.Name())
	}
}

func TestStartDisabled(t *testing.T) {
	frontend := NewFrontend(&Config{Enabled: false}, zap.NewNop())

	if err := frontend.Start(context.Background()); err != nil {
		t.Errorf("Start with disabled config should not return error, got: %v", err)
	}
}

func TestListenDisabled(t *testing.T) {
	frontend := NewFrontend(&Config{Enabled: false}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	messageReceived := false
	err := frontend.Listen(ctx, func(_ *chat.Message) {
		messageReceived = true
	})

	if err != nil {
		t.Errorf("Listen with disabled config should not return error, got: %v", err)
	}
	if messageReceived {
		t.Error("Should not receive messages when disabled")
	}
}

func TestDisabledOperations(t *testing.T) {
	frontend := NewFrontend(&Config{Enabled: false}, zap.NewNop())
	ctx := context.Background()
	expectedError := "telegram frontend is disabled"

	if _, err := frontend.SendText(ctx, "123", "456", "test message"); err == nil || err.Error() != expectedError {
		t.Errorf("SendText: expected '%s', got %v", expectedError, err)
	}
	if err := frontend.React(ctx, "123", "456", chat.ReactionThumbsUp); err == nil || err.Error() != expectedError {
		t.Errorf("React: expected '%s', got %v", expectedError, err)
	}
	if err := frontend.SendFile(ctx, "123", "user_data.csv", bytes.NewReader(nil), ""); err == nil || err.Error() != expectedError {
		t.Errorf("SendFile: expected '%s', got %v", expectedError, err)
	}
}

func TestConvertMessage(t *testing.T) {
	frontend := NewFrontend(&Config{Enabled: true, AllowedChats: []string{"-100"}}, zap.NewNop())

	human := &models.User{ID: 42, Username: "alice"}
	tests := []struct {
		name     string
		msg      *models.Message
		wantOK   bool
		wantText string
	}{
		{
			name: "group text",
			msg: &models.Message{
				ID: 7, From: human, Text: "spotify:track:4uLU6hMCjMI75M1A2tKUQC",
				Chat: models.Chat{ID: -100, Title: "Party", Type: chatTypeSuperGroup},
			},
			wantOK:   true,
			wantText: "spotify:track:4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name: "caption used when text is empty",
			msg: &models.Message{
				ID: 8, From: human, Caption: "look at this",
				Chat: models.Chat{ID: -100, Title: "Party", Type: chatTypeGroup},
			},
			wantOK:   true,
			wantText: "look at this",
		},
		{
			name: "other chat",
			msg: &models.Message{
				ID: 9, From: human, Text: "hi",
				Chat: models.Chat{ID: -200, Title: "Elsewhere"},
			},
		},
		{
			name: "bot sender",
			msg: &models.Message{
				ID: 10, From: &models.User{ID: 1, IsBot: true}, Text: "hi",
				Chat: models.Chat{ID: -100},
			},
		},
		{
			name: "no sender",
			msg:  &models.Message{ID: 11, Text: "hi", Chat: models.Chat{ID: -100}},
		},
		{
			name: "empty",
			msg:  &models.Message{ID: 12, From: human, Chat: models.Chat{ID: -100}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := frontend.convertMessage(tt.msg)
			if ok != tt.wantOK {
				t.Fatalf("convertMessage ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.Text != tt.wantText {
				t.Errorf("text = %q, want %q", got.Text, tt.wantText)
			}
			if got.ChatID != "-100" || got.ChatName != "Party" {
				t.Errorf("unexpected chat %s/%s", got.ChatID, got.ChatName)
			}
			if got.SenderName != "@alice" || got.SenderID != "42" {
				t.Errorf("unexpected sender %s/%s", got.SenderID, got.SenderName)
			}
			if !got.IsGroup {
				t.Error("expected group message")
			}
			if got.Frontend != Name {
				t.Errorf("frontend = %s", got.Frontend)
			}
		})
	}
}

func TestConvertMessageWithoutAllowList(t *testing.T) {
	frontend := NewFrontend(&Config{Enabled: true}, zap.NewNop())

	got, ok := frontend.convertMessage(&models.Message{
		ID: 1, From: &models.User{ID: 5, FirstName: "Bob"}, Text: "hi",
		Chat: models.Chat{ID: 5, Username: "bob", Type: "private"},
	})
	if !ok {
		t.Fatal("expected message to pass without an allow list")
	}
	if got.ChatName != "bob" || got.IsGroup {
		t.Errorf("unexpected private chat conversion: %+v", got)
	}
}

func TestGetUserDisplayName(t *testing.T) {
	tests := []struct {
		name     string
		user     models.User
		expected string
	}{
		{"With username", models.User{Username: "testuser", FirstName: "Test", LastName: "User"}, "@testuser"},
		{"Without username, with both names", models.User{FirstName: "Test", LastName: "User"}, "Test User"},
		{"Without username, first name only", models.User{FirstName: "Test"}, "Test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := getUserDisplayName(&tt.user); result != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, result)
			}
		})
	}
}
