package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// WhatsAppConfig holds Twilio credentials and the sender/recipient numbers.
type WhatsAppConfig struct {
	APIURL     string // defaults to https://api.twilio.com
	AccountSID string
	AuthToken  string
	From       string
	To         string
	Timeout    time.Duration
}

// WhatsApp sends messages through the Twilio Messages API.
type WhatsApp struct {
	endpoint   string
	accountSID string
	authToken  string
	from       string
	to         string
	client     *http.Client
}

func NewWhatsApp(cfg WhatsAppConfig) *WhatsApp {
	base := strings.TrimRight(cfg.APIURL, "/")
	if base == "" {
		base = "https://api.twilio.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &WhatsApp{
		endpoint:   fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", base, url.PathEscape(cfg.AccountSID)),
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       whatsAppAddress(cfg.From),
		to:         whatsAppAddress(cfg.To),
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

// whatsAppAddress adds Twilio's channel prefix to a bare phone number.
func whatsAppAddress(number string) string {
	number = strings.TrimSpace(number)
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

func (w *WhatsApp) Name() string { return "whatsapp" }

func (w *WhatsApp) Send(ctx context.Context, text string) error {
	form := url.Values{}
	form.Set("From", w.from)
	form.Set("To", w.to)
	form.Set("Body", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("whatsapp: failed to create request: %w", err)
	}
	req.SetBasicAuth(w.accountSID, w.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: failed to send request: %w", err)
	}
	defer resp.Body.Close()

	// Twilio answers 201 Created.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("whatsapp: failed to deliver message: status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (w *WhatsApp) Close() error {
	w.client.CloseIdleConnections()
	return nil
}
