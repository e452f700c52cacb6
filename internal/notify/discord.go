package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// discordMaxContent is Discord's limit on message content, in characters.
const discordMaxContent = 2000

// Discord delivers messages via a Discord webhook.
type Discord struct {
	webhookURL string
	username   string
	client     *http.Client
}

// NewDiscord creates a Discord channel. A zero timeout means 10 seconds.
func NewDiscord(webhookURL, username string, timeout time.Duration) *Discord {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Discord{
		webhookURL: webhookURL,
		username:   username,
		client:     &http.Client{Timeout: timeout},
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, text string) error {
	if r := []rune(text); len(r) > discordMaxContent {
		text = string(r[:discordMaxContent-1]) + "…"
	}
	payload := map[string]string{"content": text}
	if d.username != "" {
		payload["username"] = d.username
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: failed to send request: %w", err)
	}
	defer resp.Body.Close()

	// Discord returns 204 No Content on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: failed to deliver message: status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (d *Discord) Close() error {
	d.client.CloseIdleConnections()
	return nil
}
