package notify

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/nadavhl/secondbrain/internal/storage"
)

func TestIsHebrew(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"hello world", false},
		{"מתכון לשקשוקה", true},
		{"mixed שלום text", true},
		{"", false},
		{"123 !@#", false},
	}
	for _, c := range cases {
		if got := IsHebrew(c.in); got != c.want {
			t.Errorf("IsHebrew(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestFormatSaveConfirmationEnglish(t *testing.T) {
	msg := FormatSaveConfirmation(storage.Item{
		ID:       "item-1",
		Title:    "Grid Cells",
		Category: "Science",
		Tags:     []string{"neuroscience", "memory"},
		ReadTime: 4,
		Takeaway: "Grid cells tile space hexagonally.",
		Related:  []storage.RelatedLink{{TargetID: "a"}},
	}, "https://secondbrain.app")

	for _, want := range []string{
		"Saved: Grid Cells",
		"Category: Science",
		"neuroscience",
		"~4 min",
		"Linked to 1",
		"Key insight: Grid cells tile space hexagonally.",
		"https://secondbrain.app?linkId=item-1",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
	if IsHebrew(msg) {
		t.Error("English item produced Hebrew text")
	}
}

func TestFormatSaveConfirmationHebrew(t *testing.T) {
	msg := FormatSaveConfirmation(storage.Item{ID: "item-2", Title: "מתכון לחומוס", Category: "Recipes"}, "https://secondbrain.app")

	if !strings.Contains(msg, "נשמר: מתכון לחומוס") {
		t.Errorf("message = %q", msg)
	}
	if strings.Contains(msg, "Saved:") {
		t.Error("Hebrew item produced English confirmation")
	}
	if !strings.Contains(msg, "https://secondbrain.app?linkId=item-2") {
		t.Errorf("message missing app link:\n%s", msg)
	}
}

func TestFormatSaveConfirmationWithoutAppURL(t *testing.T) {
	msg := FormatSaveConfirmation(storage.Item{ID: "item-3", Title: "Grid Cells", Category: "Science"}, "")
	if strings.Contains(msg, "linkId") {
		t.Errorf("no app URL configured but message has a link:\n%s", msg)
	}
}

func TestFormatReminderMessageIncludesURL(t *testing.T) {
	msg := FormatReminderMessage(storage.Item{
		ID:      "item-9",
		Title:   "Grid Cells",
		Summary: "Hexagonal firing fields.",
		URL:     "https://example.com/grid",
	}, "https://secondbrain.app")
	for _, want := range []string{
		"Reminder: Grid Cells",
		"Hexagonal",
		"https://example.com/grid",
		"https://secondbrain.app?linkId=item-9",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

type captureTransport struct {
	req  *http.Request
	body string
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.req = req
	b, _ := io.ReadAll(req.Body)
	c.body = string(b)
	return &http.Response{
		StatusCode: 201,
		Body:       io.NopCloser(strings.NewReader(`{"sid":"SM123"}`)),
		Header:     make(http.Header),
	}, nil
}

func TestTwilioSend(t *testing.T) {
	transport := &captureTransport{}
	sender := NewTwilioSender("AC123", "token", "+14155238886",
		&http.Client{Transport: transport}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := sender.Send(context.Background(), "+972501234567", "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got := transport.req.URL.String(); !strings.Contains(got, "/Accounts/AC123/Messages.json") {
		t.Errorf("endpoint = %s", got)
	}
	if user, pass, ok := transport.req.BasicAuth(); !ok || user != "AC123" || pass != "token" {
		t.Error("basic auth not set")
	}
	for _, want := range []string{"To=whatsapp%3A%2B972501234567", "From=whatsapp%3A%2B14155238886", "Body=hello"} {
		if !strings.Contains(transport.body, want) {
			t.Errorf("form body missing %q: %s", want, transport.body)
		}
	}
}

type failTransport struct{}

func (failTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: 401,
		Body:       io.NopCloser(strings.NewReader(`{"message":"bad credentials"}`)),
		Header:     make(http.Header),
	}, nil
}

func TestTwilioSendFailure(t *testing.T) {
	sender := NewTwilioSender("AC123", "bad", "+14155238886",
		&http.Client{Transport: failTransport{}}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := sender.Send(context.Background(), "+972501234567", "hello")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("err = %v, want status error", err)
	}
}

func TestTwilioUnconfiguredDropsSilently(t *testing.T) {
	sender := NewTwilioSender("", "", "",
		&http.Client{Transport: &captureTransport{}}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := sender.Send(context.Background(), "+972501234567", "hello"); err != nil {
		t.Fatalf("unconfigured Send should be a no-op, got %v", err)
	}
}
