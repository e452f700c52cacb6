package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Hello_World", "Hello\\_World"},
		{"Test*bold*", "Test\\*bold\\*"},
		{"Price: $100.50", "Price: $100\\.50"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"~strikethrough~", "\\~strikethrough\\~"},
		{"`code`", "\\`code\\`"},
		{"+plus-minus", "\\+plus\\-minus"},
		{"=equal|pipe", "\\=equal\\|pipe"},
		{"{brace}", "\\{brace\\}"},
		{"end!", "end\\!"},
		{`C:\path`, `C:\\path`},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, escapeMarkdownV2(tt.input))
		})
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	_, err := NewClient("token", "not-a-number", 3, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid chat ID")
}

// botServer fakes the Bot API. sendMessage fails for the first failures calls.
type botServer struct {
	*httptest.Server
	mu       sync.Mutex
	failures int
	calls    int
	sent     []map[string]string
}

func newBotServer(t *testing.T, failures int) *botServer {
	t.Helper()
	s := &botServer{failures: failures}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"bot","username":"polynotify_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			assert.NoError(t, r.ParseForm())
			s.mu.Lock()
			s.calls++
			fail := s.calls <= s.failures
			if !fail {
				s.sent = append(s.sent, map[string]string{
					"chat_id":                  r.PostForm.Get("chat_id"),
					"text":                     r.PostForm.Get("text"),
					"parse_mode":               r.PostForm.Get("parse_mode"),
					"disable_web_page_preview": r.PostForm.Get("disable_web_page_preview"),
				})
			}
			s.mu.Unlock()
			if fail {
				_, _ = w.Write([]byte(`{"ok":false,"error_code":500,"description":"Internal Server Error"}`))
				return
			}
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":123,"type":"private"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *botServer) newClient(t *testing.T, maxRetries int) *Client {
	t.Helper()
	c, err := NewClient("TOKEN", "123", maxRetries, time.Millisecond,
		WithAPIEndpoint(s.URL+"/bot%s/%s"),
		WithHTTPClient(s.Client()),
	)
	require.NoError(t, err)
	return c
}

func (s *botServer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *botServer) messages() []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]string(nil), s.sent...)
}

func TestSendPlainText(t *testing.T) {
	srv := newBotServer(t, 0)
	c := srv.newClient(t, 3)
	assert.Equal(t, "telegram", c.Name())

	require.NoError(t, c.Send(context.Background(), "🆕 NEW MARKET\n\nTitle: x"))

	msgs := srv.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "123", msgs[0]["chat_id"])
	assert.Equal(t, "🆕 NEW MARKET\n\nTitle: x", msgs[0]["text"])
	assert.Empty(t, msgs[0]["parse_mode"])
	assert.Equal(t, "true", msgs[0]["disable_web_page_preview"])
	require.NoError(t, c.Close())
}

func TestSendRetries(t *testing.T) {
	srv := newBotServer(t, 2)
	c := srv.newClient(t, 3)

	require.NoError(t, c.Send(context.Background(), "hello"))
	assert.Equal(t, 3, srv.callCount())
	assert.Len(t, srv.messages(), 1)
}

func TestSendGivesUp(t *testing.T) {
	srv := newBotServer(t, 10)
	c := srv.newClient(t, 2)

	err := c.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 2 retries")
	assert.Equal(t, 2, srv.callCount())
}

func TestSendErrorAndRecoveryUseMarkdownV2(t *testing.T) {
	srv := newBotServer(t, 0)
	c := srv.newClient(t, 1)

	require.NoError(t, c.SendError(context.Background(), errors.New("fetch failed: 502")))
	require.NoError(t, c.SendRecovery(context.Background(), 3))

	msgs := srv.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, msgs[0]["parse_mode"])
	assert.Contains(t, msgs[0]["text"], "fetch failed: 502")
	assert.Contains(t, msgs[1]["text"], "after 3 consecutive failure")
}

func commandMessage(chatID int64, text string) *tgbotapi.Message {
	cmd := strings.Fields(text)[0]
	return &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}
}

func TestHandleCommand(t *testing.T) {
	srv := newBotServer(t, 0)
	c := srv.newClient(t, 1)
	status := func(context.Context) (string, error) { return "Seen markets: 12", nil }

	c.handleCommand(context.Background(), commandMessage(123, "/ping"), status)
	c.handleCommand(context.Background(), commandMessage(123, "/status"), status)
	c.handleCommand(context.Background(), commandMessage(123, "/unknown"), status)

	msgs := srv.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "123", msgs[0]["chat_id"])
	assert.Equal(t, "Pong", msgs[0]["text"])
	assert.Equal(t, "Seen markets: 12", msgs[1]["text"])
}

func TestHandleCommand_StatusOnlyForConfiguredChat(t *testing.T) {
	srv := newBotServer(t, 0)
	c := srv.newClient(t, 1)
	called := false
	status := func(context.Context) (string, error) {
		called = true
		return "Seen markets: 12", nil
	}

	c.handleCommand(context.Background(), commandMessage(555, "/status"), status)
	c.handleCommand(context.Background(), commandMessage(555, "/ping"), status)

	assert.False(t, called)
	msgs := srv.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "555", msgs[0]["chat_id"])
	assert.Equal(t, "Pong", msgs[0]["text"])
}

func TestHandleStatusError(t *testing.T) {
	srv := newBotServer(t, 0)
	c := srv.newClient(t, 1)
	status := func(context.Context) (string, error) { return "", errors.New("db closed") }

	c.handleCommand(context.Background(), commandMessage(123, "/status"), status)

	msgs := srv.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Status unavailable", msgs[0]["text"])
}
