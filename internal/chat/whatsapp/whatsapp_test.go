package whatsapp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"

	"spoticord/internal/chat"
)

func groupMessage(chatUser, sender, id, text string) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:   types.NewJID(chatUser, types.GroupServer),
				Sender: types.NewJID(sender, types.DefaultUserServer),
			},
			ID:       id,
			PushName: "Alice",
		},
		Message: &waE2E.Message{Conversation: &text},
	}
}

func TestConvertMessage(t *testing.T) {
	allowed := types.NewJID("120363000000000001", types.GroupServer).String()
	f := NewFrontend(&Config{Enabled: true, AllowedChats: []string{allowed}}, zap.NewNop())

	msg, ok := f.convertMessage(groupMessage("120363000000000001", "41790000000", "ABC", "spotify:track:4uLU6hMCjMI75M1A2tKUQC"))
	if !ok {
		t.Fatal("expected allowed group message to pass")
	}
	if msg.ChatID != allowed || msg.SenderName != "Alice" || msg.Frontend != Name {
		t.Errorf("unexpected conversion: %+v", msg)
	}
	if !strings.HasPrefix(msg.SenderID, "41790000000@") {
		t.Errorf("unexpected sender %s", msg.SenderID)
	}

	if sender, ok := f.senders.Get("ABC"); !ok || sender.User != "41790000000" {
		t.Error("sender of a converted message should be remembered for reactions")
	}

	if _, ok := f.convertMessage(groupMessage("120363000000000002", "41790000000", "DEF", "hi")); ok {
		t.Error("message from another group should be dropped")
	}

	fromMe := groupMessage("120363000000000001", "41790000000", "GHI", "hi")
	fromMe.Info.IsFromMe = true
	if _, ok := f.convertMessage(fromMe); ok {
		t.Error("own messages should be dropped")
	}

	direct := groupMessage("41790000000", "41790000000", "JKL", "hi")
	direct.Info.Chat = types.NewJID("41790000000", types.DefaultUserServer)
	if _, ok := f.convertMessage(direct); ok {
		t.Error("direct messages should be dropped")
	}
}

func TestExtractMessageText(t *testing.T) {
	text := "hello"
	caption := "a caption"

	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"conversation", &waE2E.Message{Conversation: &text}, "hello"},
		{"extended", &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: &text}}, "hello"},
		{"image caption", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: &caption}}, "a caption"},
		{"video caption", &waE2E.Message{VideoMessage: &waE2E.VideoMessage{Caption: &caption}}, "a caption"},
		{"empty", &waE2E.Message{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractMessageText(tt.msg); got != tt.want {
				t.Errorf("extractMessageText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDisabledFrontend(t *testing.T) {
	f := NewFrontend(&Config{Enabled: false}, zap.NewNop())
	ctx := context.Background()

	if err := f.Start(ctx); err != nil {
		t.Errorf("Start on disabled frontend: %v", err)
	}
	if err := f.Listen(ctx, func(*chat.Message) {}); err != nil {
		t.Errorf("Listen on disabled frontend: %v", err)
	}
	if _, err := f.SendText(ctx, "x@g.us", "", "hi"); err == nil {
		t.Error("SendText on disabled frontend should fail")
	}
	if err := f.SendFile(ctx, "x@g.us", "a.csv", strings.NewReader(""), ""); !errors.Is(err, chat.ErrUnsupported) {
		t.Errorf("SendFile should be unsupported, got %v", err)
	}
}
