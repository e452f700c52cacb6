package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscordSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL, "polynotify", time.Second)
	assert.Equal(t, "discord", d.Name())
	require.NoError(t, d.Send(context.Background(), "hello"))
	assert.Equal(t, "hello", got["content"])
	assert.Equal(t, "polynotify", got["username"])
	require.NoError(t, d.Close())
}

func TestDiscordTruncatesLongContent(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL, "", 0)
	require.NoError(t, d.Send(context.Background(), strings.Repeat("x", 2500)))
	assert.Len(t, []rune(got["content"]), discordMaxContent)
	_, hasUser := got["username"]
	assert.False(t, hasUser)
}

func TestDiscordErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscord(srv.URL, "", time.Second).Send(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to deliver message")
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestWhatsAppSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "whatsapp:+14155238886", r.PostForm.Get("From"))
		assert.Equal(t, "whatsapp:+15551234567", r.PostForm.Get("To"))
		assert.Equal(t, "alert body", r.PostForm.Get("Body"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1"}`))
	}))
	defer srv.Close()

	w := NewWhatsApp(WhatsAppConfig{
		APIURL:     srv.URL + "/",
		AccountSID: "AC123",
		AuthToken:  "secret",
		From:       "whatsapp:+14155238886",
		To:         "+15551234567",
		Timeout:    time.Second,
	})
	assert.Equal(t, "whatsapp", w.Name())
	require.NoError(t, w.Send(context.Background(), "alert body"))
	require.NoError(t, w.Close())
}

func TestWhatsAppErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":20003}`))
	}))
	defer srv.Close()

	err := NewWhatsApp(WhatsAppConfig{APIURL: srv.URL, AccountSID: "AC1"}).Send(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to deliver message")
	assert.Contains(t, err.Error(), "401")
}

func TestDiscordTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewDiscord(url, "", time.Second).Send(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: failed to send request")
}

func TestWhatsAppAddress(t *testing.T) {
	assert.Equal(t, "whatsapp:+1555", whatsAppAddress("+1555"))
	assert.Equal(t, "whatsapp:+1555", whatsAppAddress(" whatsapp:+1555 "))
}
