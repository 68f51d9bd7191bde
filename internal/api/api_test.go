package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/nadavhl/secondbrain/internal/reminder"
	"github.com/nadavhl/secondbrain/internal/retrieval"
	"github.com/nadavhl/secondbrain/internal/storage"
)

const testToken = "test-token-12345"

type stubEmbedder struct {
	vec []float32
}

func (s *stubEmbedder) Embed(context.Context, string) ([]float32, error) { return s.vec, nil }

type stubVectors struct {
	results []retrieval.Scored
}

func (s *stubVectors) Search(string, []float32, int) ([]retrieval.Scored, error) {
	return s.results, nil
}

type stubPreviewer struct {
	item storage.Item
}

func (s *stubPreviewer) Preview(context.Context, string, string, string) storage.Item {
	return s.item
}

type stubSweeper struct {
	report reminder.Report
	runs   int
}

func (s *stubSweeper) Run(context.Context) reminder.Report {
	s.runs++
	return s.report
}

type appFixture struct {
	handler  http.Handler
	store    *storage.Store
	vectors  *stubVectors
	preview  *stubPreviewer
	sweeper  *stubSweeper
	embedder *stubEmbedder
}

func setupApp(t *testing.T) *appFixture {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	f := &appFixture{
		store:    store,
		vectors:  &stubVectors{},
		preview:  &stubPreviewer{},
		sweeper:  &stubSweeper{},
		embedder: &stubEmbedder{vec: []float32{0.1, 0.2}},
	}
	f.handler = NewAppHandler(AppDeps{
		Store:    store,
		Embedder: f.embedder,
		Vectors:  f.vectors,
		Preview:  f.preview,
		Sweeper:  f.sweeper,
		Token:    testToken,
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

func (f *appFixture) seedUser(t *testing.T, id, phone string) {
	t.Helper()
	if err := f.store.SaveUser(storage.User{ID: id, PhoneNumber: phone, RemindersEnabled: true}); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
}

func authReq(method, target, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func formReq(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestHealth(t *testing.T) {
	f := setupApp(t)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	f := setupApp(t)

	for _, target := range []string{"/search?q=x&ownerId=u1", "/items/abc"} {
		rr := httptest.NewRecorder()
		f.handler.ServeHTTP(rr, authReq(http.MethodGet, target, "", ""))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s without token: status = %d, want 401", target, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, authReq(http.MethodPost, "/reminders/sweep", "", "wrong-token"))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", rr.Code)
	}
	if got := rr.Header().Get("WWW-Authenticate"); !strings.Contains(got, "secondbrain") {
		t.Errorf("WWW-Authenticate = %q", got)
	}
	if !strings.Contains(rr.Body.String(), "server.api_token") {
		t.Errorf("401 body should point at the token setting, got %q", rr.Body.String())
	}
}

func TestWebhookRejectsUnknownSender(t *testing.T) {
	f := setupApp(t)

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, formReq("/webhook/whatsapp", url.Values{
		"From": {"whatsapp:+15550000000"},
		"Body": {"https://example.com/article"},
	}))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "recognize") {
		t.Errorf("body = %s, want unauthorized reply", rr.Body.String())
	}

	// Nothing should have been queued.
	p, err := f.store.ClaimNextPending()
	if err != nil {
		t.Fatal(err)
	}
	if p != nil {
		t.Errorf("unknown sender enqueued %+v", p)
	}
}

func TestWebhookEnqueuesURL(t *testing.T) {
	f := setupApp(t)
	f.seedUser(t, "u1", "+972501234567")

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, formReq("/webhook/whatsapp", url.Values{
		"From": {"whatsapp:+972501234567"},
		"Body": {"check this out https://example.com/article tomorrow"},
	}))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/xml" {
		t.Errorf("content type = %q", ct)
	}

	p, err := f.store.ClaimNextPending()
	if err != nil {
		t.Fatal(err)
	}
	if p == nil {
		t.Fatal("nothing queued")
	}
	if p.URL != "https://example.com/article" {
		t.Errorf("queued url = %q", p.URL)
	}
	if p.OwnerID != "u1" {
		t.Errorf("owner = %q", p.OwnerID)
	}
	if !strings.Contains(p.RawText, "tomorrow") {
		t.Errorf("raw text = %q, reminder phrase lost", p.RawText)
	}
}

func TestWebhookEnqueuesMediaJSON(t *testing.T) {
	f := setupApp(t)
	f.seedUser(t, "u1", "+972501234567")

	body := `{"senderId":"+972501234567","messageText":"from the meeting","media":{"url":"https://api.twilio.com/media/1","mimeType":"image/jpeg"}}`
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, authReq(http.MethodPost, "/webhook/whatsapp", body, ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "queued" {
		t.Errorf("status = %q", resp["status"])
	}

	p, err := f.store.ClaimNextPending()
	if err != nil || p == nil {
		t.Fatalf("ClaimNextPending = %v, %v", p, err)
	}
	if !p.HasMedia() || p.MediaMIME != "image/jpeg" {
		t.Errorf("pending = %+v", p)
	}
}

func TestWebhookMenuWithoutURL(t *testing.T) {
	f := setupApp(t)
	f.seedUser(t, "u1", "+972501234567")

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, formReq("/webhook/whatsapp", url.Values{
		"From": {"whatsapp:+972501234567"},
		"Body": {"hello there"},
	}))

	if !strings.Contains(rr.Body.String(), "Send me a link") {
		t.Errorf("body = %s, want menu", rr.Body.String())
	}
}

func TestWebhookReminderShortcutOnLastSave(t *testing.T) {
	f := setupApp(t)
	f.seedUser(t, "u1", "+972501234567")

	item := storage.Item{
		ID: "item-1", OwnerID: "u1", Title: "Grid Cells",
		Summary: "s", Category: "Science", Tags: []string{"neuro"},
	}
	if err := f.store.SaveItem(item); err != nil {
		t.Fatal(err)
	}
	if err := f.store.SetLastSavedItem("u1", "item-1"); err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, formReq("/webhook/whatsapp", url.Values{
		"From": {"whatsapp:+972501234567"},
		"Body": {"2"},
	}))

	if !strings.Contains(rr.Body.String(), "Grid Cells") {
		t.Errorf("body = %s, want reminder confirmation", rr.Body.String())
	}

	got, err := f.store.GetItem("item-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ReminderStatus != storage.ReminderPending || got.NextReminderAt == nil {
		t.Errorf("item reminder state = %q/%v", got.ReminderStatus, got.NextReminderAt)
	}
}

func TestSearchEndpoint(t *testing.T) {
	f := setupApp(t)
	f.seedUser(t, "u1", "+972501234567")

	for _, it := range []storage.Item{
		{ID: "a", OwnerID: "u1", Title: "First", Summary: "s", Category: "Tech", Tags: []string{"t"}},
		{ID: "b", OwnerID: "u1", Title: "Second", Summary: "s", Category: "Tech", Tags: []string{"t"}},
	} {
		if err := f.store.SaveItem(it); err != nil {
			t.Fatal(err)
		}
	}
	f.vectors.results = []retrieval.Scored{
		{ItemID: "b", Score: 0.9},
		{ItemID: "a", Score: 0.5},
	}

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, authReq(http.MethodGet, "/search?q=first&ownerId=u1&limit=2", "", testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Results []struct {
			Item  storage.Item `json:"item"`
			Score float64      `json:"score"`
		} `json:"results"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 {
		t.Fatalf("count = %d", resp.Count)
	}
	if resp.Results[0].Item.ID != "b" {
		t.Errorf("first result = %q, want highest score first", resp.Results[0].Item.ID)
	}
}

func TestSearchValidation(t *testing.T) {
	f := setupApp(t)

	for _, target := range []string{
		"/search?ownerId=u1",
		"/search?q=x",
		"/search?q=x&ownerId=u1&limit=-2",
	} {
		rr := httptest.NewRecorder()
		f.handler.ServeHTTP(rr, authReq(http.MethodGet, target, "", testToken))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rr.Code)
		}
	}
}

func TestPreviewEndpoint(t *testing.T) {
	f := setupApp(t)
	f.preview.item = storage.Item{Title: "Previewed", Category: "Tech"}

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, authReq(http.MethodPost, "/preview",
		`{"url":"https://example.com/article","ownerId":"u1"}`, testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var item storage.Item
	if err := json.Unmarshal(rr.Body.Bytes(), &item); err != nil {
		t.Fatal(err)
	}
	if item.Title != "Previewed" {
		t.Errorf("item = %+v", item)
	}
}

func TestSweepEndpoint(t *testing.T) {
	f := setupApp(t)
	f.sweeper.report = reminder.Report{UsersChecked: 2, RemindersFound: 3, RemindersSent: 3}

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, authReq(http.MethodPost, "/reminders/sweep", "", testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if f.sweeper.runs != 1 {
		t.Errorf("sweeper runs = %d", f.sweeper.runs)
	}
	var report reminder.Report
	if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.RemindersSent != 3 {
		t.Errorf("report = %+v", report)
	}
}

func TestGetItemNotFound(t *testing.T) {
	f := setupApp(t)

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, authReq(http.MethodGet, "/items/missing", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}
