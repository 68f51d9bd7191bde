package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/nadavhl/secondbrain/internal/storage"
)

// fakeTransport routes requests by host to canned handlers so the
// bridge fallback chains can run without the network.
type fakeTransport map[string]func(*http.Request) (*http.Response, error)

func (t fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if fn, ok := t[req.URL.Host]; ok {
		return fn(req)
	}
	return nil, fmt.Errorf("no route for host %q", req.URL.Host)
}

func respond(status int, body string) func(*http.Request) (*http.Response, error) {
	return func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     make(http.Header),
		}, nil
	}
}

func newTestExtractor(routes fakeTransport) *Extractor {
	return New(&http.Client{Transport: routes}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestExtractWebArticle(t *testing.T) {
	page := `<html><head>
		<title>Fallback Title</title>
		<meta property="og:title" content="Why Goroutines Are Cheap"/>
		<meta property="og:site_name" content="Example Blog"/>
	</head><body>
		<article><p>Goroutines start with small stacks.</p>
		<p>The runtime grows them on demand.</p></article>
	</body></html>`

	e := newTestExtractor(fakeTransport{"example.com": respond(200, page)})
	res := e.Extract(context.Background(), "https://example.com/post")

	if res.ContentType != storage.SourceWeb {
		t.Fatalf("content type = %q, want %q", res.ContentType, storage.SourceWeb)
	}
	if res.Title != "Why Goroutines Are Cheap" {
		t.Errorf("title = %q", res.Title)
	}
	if !strings.Contains(res.Text, "small stacks") {
		t.Errorf("text = %q, want paragraph content", res.Text)
	}
}

func TestExtractUnreachableURLDegrades(t *testing.T) {
	e := newTestExtractor(fakeTransport{})

	for _, raw := range []string{
		"https://example.com/article",
		"https://x.com/someone/status/123",
		"https://www.instagram.com/reel/abc/",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	} {
		res := e.Extract(context.Background(), raw)
		if !res.Empty() {
			t.Errorf("%s: expected empty result, got title=%q text=%q", raw, res.Title, res.Text)
		}
		if res.ContentType == "" {
			t.Errorf("%s: content type missing on degraded result", raw)
		}
	}

	// An unreachable PDF still gets a filename-derived title but no text.
	res := e.Extract(context.Background(), "https://example.com/annual-report.pdf")
	if res.ContentType != storage.SourcePDF {
		t.Errorf("pdf content type = %q", res.ContentType)
	}
	if res.Text != "" {
		t.Errorf("pdf text = %q, want empty", res.Text)
	}
	if res.Title != "annual report" {
		t.Errorf("pdf title = %q", res.Title)
	}
}

func TestTweetFxSuccess(t *testing.T) {
	fx := `{"code":200,"tweet":{
		"text":"Ship it.",
		"author":{"name":"Nadav","screen_name":"nadav"},
		"created_at":"2025-01-02",
		"likes":10,"retweets":3,
		"media":{"photos":[{"url":"https://pbs.example/1.jpg"}]}
	}}`

	e := newTestExtractor(fakeTransport{"api.fxtwitter.com": respond(200, fx)})
	res := e.Extract(context.Background(), "https://x.com/nadav/status/555")

	if res.ContentType != storage.SourceTweet {
		t.Fatalf("content type = %q", res.ContentType)
	}
	if res.Title != "Tweet by @nadav" {
		t.Errorf("title = %q", res.Title)
	}
	for _, want := range []string{"TWEET CONTENT:", "Ship it.", "MEDIA: photo", "METADATA:", "Likes: 10"} {
		if !strings.Contains(res.Text, want) {
			t.Errorf("text missing %q:\n%s", want, res.Text)
		}
	}
	if res.Meta["has_media"] != "true" {
		t.Errorf("has_media = %q", res.Meta["has_media"])
	}
}

func TestTweetShortTextAcceptedFromPrimaryBridge(t *testing.T) {
	// A normal short tweet without media is complete content from the
	// primary bridge; the chain must not fall through to the status
	// page's open graph blurb.
	fx := `{"code":200,"tweet":{
		"text":"Ship it.",
		"author":{"name":"Nadav","screen_name":"nadav"},
		"created_at":"2025-01-02",
		"likes":10,"retweets":3
	}}`
	page := `<html><head>
		<meta property="og:title" content="Nadav on X"/>
		<meta property="og:description" content="worse og blurb"/>
	</head></html>`

	e := newTestExtractor(fakeTransport{
		"api.fxtwitter.com": respond(200, fx),
		"x.com":             respond(200, page),
	})
	res := e.Extract(context.Background(), "https://x.com/nadav/status/555")

	if res.Title != "Tweet by @nadav" {
		t.Errorf("title = %q, want primary bridge result", res.Title)
	}
	if !strings.Contains(res.Text, "Ship it.") {
		t.Errorf("text = %q, want tweet content", res.Text)
	}
	if strings.Contains(res.Text, "worse og blurb") {
		t.Errorf("chain fell through to the metadata scrape:\n%s", res.Text)
	}
}

func TestTweetMediaOnlyAcceptedFromPrimaryBridge(t *testing.T) {
	fx := `{"code":200,"tweet":{
		"text":"",
		"author":{"name":"Nadav","screen_name":"nadav"},
		"media":{"photos":[{"url":"https://pbs.example/1.jpg"}]}
	}}`

	e := newTestExtractor(fakeTransport{"api.fxtwitter.com": respond(200, fx)})
	res := e.Extract(context.Background(), "https://x.com/nadav/status/555")

	if !strings.Contains(res.Text, "MEDIA: photo") {
		t.Errorf("text = %q, want media block", res.Text)
	}
	if res.Meta["has_media"] != "true" {
		t.Errorf("has_media = %q", res.Meta["has_media"])
	}
}

func TestTweetVxThinnessJudgedOnRawText(t *testing.T) {
	// 60 chars of tweet text without media is thin even though the
	// composed block with its metadata trailer runs well past the
	// threshold.
	raw := strings.Repeat("x", 60)
	page := `<html><head>
		<meta property="og:title" content="Nadav on X"/>
		<meta property="og:description" content="An article thread."/>
	</head></html>`

	e := newTestExtractor(fakeTransport{
		"api.fxtwitter.com": respond(500, "nope"),
		"api.vxtwitter.com": respond(200, `{"text":"`+raw+`","user_name":"Nadav","user_screen_name":"nadav"}`),
		"x.com":             respond(200, page),
	})
	res := e.Extract(context.Background(), "https://x.com/nadav/status/555")

	if res.Title != "Nadav on X" {
		t.Errorf("title = %q, want metadata scrape result", res.Title)
	}
}

func TestTweetFallsThroughToMetadataScrape(t *testing.T) {
	// fx errors, vx is thin (short text, no media), the status page
	// itself still has open graph tags.
	page := `<html><head>
		<meta property="og:title" content="Nadav on X"/>
		<meta property="og:description" content="A thought about software."/>
	</head></html>`

	e := newTestExtractor(fakeTransport{
		"api.fxtwitter.com": respond(500, "nope"),
		"api.vxtwitter.com": respond(200, `{"text":"hi","user_name":"Nadav","user_screen_name":"nadav"}`),
		"x.com":             respond(200, page),
	})
	res := e.Extract(context.Background(), "https://x.com/nadav/status/555")

	if res.Title != "Nadav on X" {
		t.Errorf("title = %q, want metadata scrape result", res.Title)
	}
	if res.Text != "A thought about software." {
		t.Errorf("text = %q", res.Text)
	}
}

func TestTweetThinResultReturnedWhenScrapeFails(t *testing.T) {
	e := newTestExtractor(fakeTransport{
		"api.fxtwitter.com": respond(404, ""),
		"api.vxtwitter.com": respond(200, `{"text":"hi","user_name":"Nadav","user_screen_name":"nadav"}`),
	})
	res := e.Extract(context.Background(), "https://twitter.com/nadav/status/555")

	if !strings.Contains(res.Text, "hi") {
		t.Errorf("expected thin vx result, got %q", res.Text)
	}
	if res.Title != "Tweet by @nadav" {
		t.Errorf("title = %q", res.Title)
	}
}

func TestInstagramBridgeFallback(t *testing.T) {
	generic := `<html><head><meta property="og:title" content="Instagram"/></head></html>`
	rich := `<html><head>
		<meta property="og:title" content="chef_yael on Instagram"/>
		<meta property="og:description" content="` + strings.Repeat("A full recipe for shakshuka with every step spelled out. ", 3) + `"/>
	</head></html>`

	e := newTestExtractor(fakeTransport{
		"www.instagram.com":   respond(200, generic),
		"www.instagramez.com": respond(200, rich),
	})
	res := e.Extract(context.Background(), "https://www.instagram.com/reel/abc123/")

	if res.Title != "chef_yael on Instagram" {
		t.Errorf("title = %q", res.Title)
	}
	if res.Meta["via"] != "bridge" {
		t.Errorf("via = %q, want bridge", res.Meta["via"])
	}
	if len(res.Text) < instagramRichDescLen {
		t.Errorf("text too short: %d bytes", len(res.Text))
	}
}

func TestInstagramJunkBridgeRejected(t *testing.T) {
	junk := `<html><head>
		<meta property="og:title" content="AliExpress deals"/>
		<meta property="og:description" content="` + strings.Repeat("Buy now! ", 30) + `"/>
	</head></html>`

	e := newTestExtractor(fakeTransport{
		"www.instagramez.com": respond(200, junk),
	})
	res := e.ExtractWithCaption(context.Background(),
		"https://www.instagram.com/p/xyz/", "check this out the best hummus spots in Tel Aviv")

	if res.Meta["via"] != "caption" {
		t.Errorf("via = %q, want caption fallback", res.Meta["via"])
	}
	if res.Text != "the best hummus spots in Tel Aviv" {
		t.Errorf("text = %q", res.Text)
	}
	if res.Title != "the best hummus spots in Tel Aviv" {
		t.Errorf("title = %q, want caption-derived title", res.Title)
	}
}

func TestInstagramCaptionDerivesTitle(t *testing.T) {
	// Every scrape fails; the title comes from the first line of the
	// cleaned caption, not a static placeholder.
	e := newTestExtractor(fakeTransport{})
	res := e.ExtractWithCaption(context.Background(),
		"https://www.instagram.com/reel/abc/",
		"Crispy za'atar chicken, one pan\nFull recipe in the video https://www.instagram.com/reel/abc/")

	if res.Title != "Crispy za'atar chicken, one pan" {
		t.Errorf("title = %q, want first caption line", res.Title)
	}
	if !strings.Contains(res.Text, "Full recipe in the video") {
		t.Errorf("text = %q", res.Text)
	}
	if res.Meta["via"] != "caption" {
		t.Errorf("via = %q", res.Meta["via"])
	}
}

func TestInstagramTitleFromDescription(t *testing.T) {
	cases := []struct {
		desc string
		want string
	}{
		{
			`Chef Yael - 1,234 likes, 56 comments on Instagram: "The secret to great shakshuka is patience."`,
			"The secret to great shakshuka is patience.",
		},
		{
			"A plain description\nwith a second line",
			"A plain description",
		},
		{
			strings.Repeat("a", 150),
			strings.Repeat("a", 100),
		},
	}
	for _, c := range cases {
		if got := instagramTitleFromDescription(c.desc); got != c.want {
			t.Errorf("instagramTitleFromDescription(%.40q...) = %q, want %q", c.desc, got, c.want)
		}
	}
}

func TestCleanCaption(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"check this out https://www.instagram.com/p/x/ amazing pasta technique", "amazing pasta technique"},
		{"https://www.instagram.com/p/x/", ""},
		{"wow", ""},
		{"Watch this: how bridges are built", "how bridges are built"},
	}
	for _, c := range cases {
		if got := cleanCaption(c.in); got != c.want {
			t.Errorf("cleanCaption(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestYouTubeWatchPage(t *testing.T) {
	player := `{"videoDetails":{
		"title":"Go Concurrency Patterns",
		"author":"Google Developers",
		"lengthSeconds":"1800",
		"viewCount":"1000000",
		"keywords":["go","concurrency"],
		"shortDescription":"Rob Pike walks through channel patterns."
	},"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[
		{"baseUrl":"https://captions.test/track","languageCode":"en"}
	]}}}`
	page := `<html><head><title>Go Concurrency Patterns - YouTube</title></head>
		<body><script>var ytInitialPlayerResponse = ` + player + `;</script></body></html>`
	captions := `<?xml version="1.0"?><transcript>
		<text start="0" dur="5">Hello and welcome</text>
		<text start="12.5" dur="4">Let&#39;s talk about channels</text>
	</transcript>`

	e := newTestExtractor(fakeTransport{
		"www.youtube.com": respond(200, page),
		"captions.test":   respond(200, captions),
	})
	res := e.Extract(context.Background(), "https://youtu.be/dQw4w9WgXcQ")

	if res.ContentType != storage.SourceVideo {
		t.Fatalf("content type = %q", res.ContentType)
	}
	if res.Title != "Go Concurrency Patterns" {
		t.Errorf("title = %q", res.Title)
	}
	for _, want := range []string{
		"VIDEO METADATA:",
		"Channel: Google Developers",
		"Duration: 30:00",
		"TRANSCRIPT:",
		"[0:00] Hello and welcome",
		"[0:12] Let's talk about channels",
	} {
		if !strings.Contains(res.Text, want) {
			t.Errorf("text missing %q", want)
		}
	}
}

func TestYouTubeNoCaptions(t *testing.T) {
	page := `<html><body><script>var ytInitialPlayerResponse = {"videoDetails":{
		"title":"Silent Film","author":"Archive","lengthSeconds":"60","viewCount":"5"
	}};</script></body></html>`

	e := newTestExtractor(fakeTransport{"www.youtube.com": respond(200, page)})
	res := e.Extract(context.Background(), "https://www.youtube.com/watch?v=abc12345678")

	if !strings.Contains(res.Text, transcriptUnavailable) {
		t.Errorf("expected %q placeholder, got:\n%s", transcriptUnavailable, res.Text)
	}
}

func TestVideoID(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/shorts/abc123def45", "abc123def45"},
		{"https://www.youtube.com/embed/abc123def45", "abc123def45"},
		{"https://www.youtube.com/feed/library", ""},
	}
	for _, c := range cases {
		u, err := url.Parse(c.raw)
		if err != nil {
			t.Fatalf("parse %q: %v", c.raw, err)
		}
		if got := videoID(u); got != c.want {
			t.Errorf("videoID(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestExtractJSONObject(t *testing.T) {
	page := `prefix ytInitialPlayerResponse = {"a":{"b":"braces } in { strings"},"c":1}; rest`
	got := extractJSONObject(page, "ytInitialPlayerResponse = ")
	want := `{"a":{"b":"braces } in { strings"},"c":1}`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if got := extractJSONObject("no marker here", "ytInitialPlayerResponse = "); got != "" {
		t.Errorf("expected empty for missing marker, got %q", got)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("ש", 100)
	cut := truncate(s, 101)
	if len(cut) > 101 {
		t.Fatalf("len = %d", len(cut))
	}
	for _, r := range cut {
		if r != 'ש' {
			t.Fatalf("rune split produced %q", r)
		}
	}
}

func TestTweetPath(t *testing.T) {
	user, id, ok := tweetPath("/nadav/status/123456")
	if !ok || user != "nadav" || id != "123456" {
		t.Errorf("got %q %q %v", user, id, ok)
	}
	if _, _, ok := tweetPath("/nadav"); ok {
		t.Error("profile path should not parse as a status")
	}
}
