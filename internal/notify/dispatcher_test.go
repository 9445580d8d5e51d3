package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"keyword_bot/internal/model"
)

type mockAPI struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m.err != nil {
		return tgbotapi.Message{}, m.err
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.sent = append(m.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPostURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		id   int64
		want string
	}{
		{name: "plain base", base: "https://www.nodeseek.com", id: 12345, want: "https://www.nodeseek.com/post-12345-1"},
		{name: "trailing slash trimmed", base: "https://www.nodeseek.com/", id: 7, want: "https://www.nodeseek.com/post-7-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, PostURL(tt.base, tt.id)); diff != "" {
				t.Errorf("PostURL mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatAlert(t *testing.T) {
	post := model.Post{ExternalID: 101, Title: "VPS 年付优惠"}
	got := FormatAlert(post, []string{"vps", "优惠"}, "https://www.nodeseek.com")

	want := "🎯 vps, 优惠\n\n[VPS 年付优惠](https://www.nodeseek.com/post-101-1)"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FormatAlert mismatch (-want +got):\n%s", diff)
	}
}

func TestSend(t *testing.T) {
	post := model.Post{ExternalID: 101, Title: "VPS sale"}

	t.Run("success", func(t *testing.T) {
		api := &mockAPI{}
		d := New(api, "https://www.nodeseek.com", discardLogger())

		if err := d.Send(context.Background(), 42, post, []string{"vps"}); err != nil {
			t.Fatalf("send: %v", err)
		}
		if len(api.sent) != 1 {
			t.Fatalf("expected 1 message, got %d", len(api.sent))
		}
		msg := api.sent[0]
		if diff := cmp.Diff(int64(42), msg.ChatID); diff != "" {
			t.Errorf("chat id mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(tgbotapi.ModeMarkdown, msg.ParseMode); diff != "" {
			t.Errorf("parse mode mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("transport failure surfaces as error", func(t *testing.T) {
		api := &mockAPI{err: errors.New("bot was blocked by the user")}
		d := New(api, "https://www.nodeseek.com", discardLogger())

		err := d.Send(context.Background(), 42, post, []string{"vps"})
		if err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}
