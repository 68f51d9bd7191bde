// Package extract turns a shared URL into text a language model can work
// with. Each source family (web article, tweet, instagram post, video,
// PDF) has its own extraction path; all of them degrade to an empty
// Result instead of failing, so a dead link still produces a saved item.
package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nadavhl/secondbrain/internal/storage"
)

const (
	// webTextCap bounds extracted article text before analysis.
	webTextCap = 5000

	// maxFetchBytes bounds any single HTTP response body.
	maxFetchBytes = 10 << 20

	fetchTimeout = 10 * time.Second

	browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Result is what extraction produced for a URL. An all-empty Result is
// the degraded outcome; callers persist it anyway.
type Result struct {
	Title       string
	Text        string
	ContentType string
	Meta        map[string]string
}

// Empty reports whether extraction produced no usable content.
func (r Result) Empty() bool {
	return r.Title == "" && r.Text == ""
}

// Extractor fetches and extracts content from user-submitted URLs.
type Extractor struct {
	httpClient *http.Client
	log        *slog.Logger
}

// New creates an Extractor. A nil client gets a default with a 10s
// timeout; extraction must never hang an ingestion worker.
func New(client *http.Client, log *slog.Logger) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{httpClient: client, log: log}
}

// Extract dispatches on the URL's host and path. It never returns an
// error: any failure along the way yields an empty Result with the
// content type the dispatch decided on.
func (e *Extractor) Extract(ctx context.Context, rawURL string) Result {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return Result{ContentType: storage.SourceWeb}
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch {
	case host == "twitter.com" || host == "x.com":
		return e.extractTweet(ctx, u)
	case host == "instagram.com" || strings.HasSuffix(host, ".instagram.com"):
		return e.extractInstagram(ctx, u, "")
	case host == "youtube.com" || strings.HasSuffix(host, ".youtube.com") || host == "youtu.be":
		return e.extractVideo(ctx, u)
	case strings.HasSuffix(strings.ToLower(u.Path), ".pdf"):
		return e.extractPDF(ctx, u)
	default:
		return e.extractWeb(ctx, u)
	}
}

// ExtractWithCaption is Extract plus the free-form text that arrived in
// the same message. Only the instagram path uses the caption today; it
// is the fallback of last resort when every scrape attempt comes back
// thin.
func (e *Extractor) ExtractWithCaption(ctx context.Context, rawURL, caption string) Result {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err == nil && u.Host != "" {
		host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		if host == "instagram.com" || strings.HasSuffix(host, ".instagram.com") {
			return e.extractInstagram(ctx, u, caption)
		}
	}
	return e.Extract(ctx, rawURL)
}

// fetch GETs a URL with the given extra headers and returns the body.
// Non-2xx responses are errors; bodies are capped at maxFetchBytes.
func (e *Extractor) fetch(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", browserUA)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	return body, nil
}

// strategy is one attempt in a fallback chain. run produces a candidate
// result; accept judges whether it is good enough to stop the chain.
type strategy struct {
	name   string
	run    func(ctx context.Context) (Result, error)
	accept func(Result) bool
}

// runChain executes strategies in order and returns the first accepted
// result. Results that came back non-empty but failed acceptance are
// remembered; the first such thin candidate is the answer when nothing
// in the chain succeeds outright.
func (e *Extractor) runChain(ctx context.Context, source string, chain []strategy) Result {
	var thin Result
	for _, s := range chain {
		res, err := s.run(ctx)
		if err != nil {
			e.log.Debug("extract strategy failed", "source", source, "strategy", s.name, "error", err)
			continue
		}
		if s.accept(res) {
			return res
		}
		if thin.Empty() && !res.Empty() {
			thin = res
		}
		e.log.Debug("extract strategy thin", "source", source, "strategy", s.name)
	}
	if !thin.Empty() {
		return thin
	}
	return Result{ContentType: source}
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
