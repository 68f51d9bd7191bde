package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

const sendTimeout = 10 * time.Second

// Sender delivers one outbound message. Fire-and-forget from the
// pipeline's perspective; failures are logged by callers, not retried.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// TwilioSender sends WhatsApp messages through the Twilio REST API.
// With no credentials configured it logs and drops messages instead of
// failing, so the pipeline stays runnable in development.
type TwilioSender struct {
	accountSID string
	authToken  string
	from       string
	httpClient *http.Client
	log        *slog.Logger
}

func NewTwilioSender(accountSID, authToken, from string, client *http.Client, log *slog.Logger) *TwilioSender {
	if client == nil {
		client = &http.Client{Timeout: sendTimeout}
	}
	if log == nil {
		log = slog.Default()
	}
	return &TwilioSender{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		httpClient: client,
		log:        log,
	}
}

// Configured reports whether real credentials are present.
func (t *TwilioSender) Configured() bool {
	return t.accountSID != "" && t.authToken != "" && t.from != ""
}

// Send posts a message to the Twilio Messages endpoint.
func (t *TwilioSender) Send(ctx context.Context, to, body string) error {
	if !t.Configured() {
		t.log.Info("twilio not configured, dropping outbound message", "to", to)
		return nil
	}

	form := url.Values{
		"To":   {whatsappAddr(to)},
		"From": {whatsappAddr(t.from)},
		"Body": {body},
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", twilioAPIBase, t.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build twilio request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("twilio returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// FetchMedia downloads an inbound media attachment. Twilio-hosted
// media URLs require the account credentials; other URLs are fetched
// plainly.
func (t *TwilioSender) FetchMedia(ctx context.Context, mediaURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build media request: %w", err)
	}
	if strings.Contains(mediaURL, "api.twilio.com") && t.Configured() {
		req.SetBasicAuth(t.accountSID, t.authToken)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("fetch media: status %d", resp.StatusCode)
	}

	const maxMediaBytes = 16 << 20
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read media: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// whatsappAddr ensures the channel prefix Twilio expects.
func whatsappAddr(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}
