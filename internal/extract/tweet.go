package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/nadavhl/secondbrain/internal/storage"
)

// tweetThinTextLen is the raw tweet text length below which a vxtwitter
// response without media is considered thin and the chain keeps going.
const tweetThinTextLen = 100

// fxTweet mirrors the api.fxtwitter.com response shape.
type fxTweet struct {
	Code  int `json:"code"`
	Tweet struct {
		Text   string `json:"text"`
		Author struct {
			Name       string `json:"name"`
			ScreenName string `json:"screen_name"`
		} `json:"author"`
		CreatedAt string `json:"created_at"`
		Likes     int    `json:"likes"`
		Retweets  int    `json:"retweets"`
		Quote     *struct {
			Text   string `json:"text"`
			Author struct {
				Name       string `json:"name"`
				ScreenName string `json:"screen_name"`
			} `json:"author"`
		} `json:"quote"`
		Media *struct {
			Photos []struct {
				URL string `json:"url"`
			} `json:"photos"`
			Videos []struct {
				URL string `json:"url"`
			} `json:"videos"`
		} `json:"media"`
	} `json:"tweet"`
}

// vxTweet mirrors the api.vxtwitter.com response shape.
type vxTweet struct {
	Text           string   `json:"text"`
	UserName       string   `json:"user_name"`
	UserScreenName string   `json:"user_screen_name"`
	Date           string   `json:"date"`
	Likes          int      `json:"likes"`
	Retweets       int      `json:"retweets"`
	MediaURLs      []string `json:"mediaURLs"`
}

// extractTweet resolves a twitter/x status through public bridge APIs.
// Bridges go first because the site itself serves nothing to anonymous
// clients; a plain metadata scrape of the original URL is the backstop.
func (e *Extractor) extractTweet(ctx context.Context, u *url.URL) Result {
	user, id, ok := tweetPath(u.Path)
	if !ok {
		return e.extractWeb(ctx, u)
	}

	return e.runChain(ctx, storage.SourceTweet, []strategy{
		{
			// Any text, quote or media from the primary bridge is a
			// full structured tweet; the thinness gate applies to the
			// secondary bridge only.
			name:   "fxtwitter",
			run:    func(ctx context.Context) (Result, error) { return e.fetchFxTweet(ctx, user, id) },
			accept: func(r Result) bool { return !r.Empty() },
		},
		{
			name:   "vxtwitter",
			run:    func(ctx context.Context) (Result, error) { return e.fetchVxTweet(ctx, user, id) },
			accept: func(r Result) bool { return r.Meta["thin"] != "true" },
		},
		{
			name: "metadata",
			run: func(ctx context.Context) (Result, error) {
				return e.scrapeTweetMeta(ctx, u)
			},
			accept: func(r Result) bool { return !r.Empty() },
		},
	})
}

func (e *Extractor) fetchFxTweet(ctx context.Context, user, id string) (Result, error) {
	body, err := e.fetch(ctx, fmt.Sprintf("https://api.fxtwitter.com/%s/status/%s", user, id), nil)
	if err != nil {
		return Result{}, err
	}

	var fx fxTweet
	if err := json.Unmarshal(body, &fx); err != nil {
		return Result{}, fmt.Errorf("decode fxtwitter response: %w", err)
	}
	if fx.Code != 200 {
		return Result{}, fmt.Errorf("fxtwitter code %d", fx.Code)
	}

	t := fx.Tweet
	if t.Text == "" && (t.Quote == nil || t.Quote.Text == "") && t.Media == nil {
		return Result{}, fmt.Errorf("fxtwitter empty tweet")
	}

	var sb strings.Builder
	sb.WriteString("TWEET CONTENT:\n")
	sb.WriteString(t.Text)
	if t.Quote != nil && t.Quote.Text != "" {
		fmt.Fprintf(&sb, "\n\nQUOTED TWEET (@%s):\n%s", t.Quote.Author.ScreenName, t.Quote.Text)
	}

	hasMedia := false
	if t.Media != nil {
		for _, p := range t.Media.Photos {
			fmt.Fprintf(&sb, "\n\nMEDIA: photo %s", p.URL)
			hasMedia = true
		}
		for _, v := range t.Media.Videos {
			fmt.Fprintf(&sb, "\n\nMEDIA: video %s", v.URL)
			hasMedia = true
		}
	}

	fmt.Fprintf(&sb, "\n\nMETADATA:\nAuthor: %s (@%s)\nPosted: %s\nLikes: %d, Retweets: %d",
		t.Author.Name, t.Author.ScreenName, t.CreatedAt, t.Likes, t.Retweets)

	return Result{
		Title:       fmt.Sprintf("Tweet by @%s", t.Author.ScreenName),
		Text:        sb.String(),
		ContentType: storage.SourceTweet,
		Meta: map[string]string{
			"author":    t.Author.ScreenName,
			"has_media": fmt.Sprintf("%t", hasMedia),
		},
	}, nil
}

func (e *Extractor) fetchVxTweet(ctx context.Context, user, id string) (Result, error) {
	body, err := e.fetch(ctx, fmt.Sprintf("https://api.vxtwitter.com/%s/status/%s", user, id), nil)
	if err != nil {
		return Result{}, err
	}

	var vx vxTweet
	if err := json.Unmarshal(body, &vx); err != nil {
		return Result{}, fmt.Errorf("decode vxtwitter response: %w", err)
	}
	if vx.Text == "" && len(vx.MediaURLs) == 0 {
		return Result{}, fmt.Errorf("vxtwitter empty payload")
	}

	var sb strings.Builder
	sb.WriteString("TWEET CONTENT:\n")
	sb.WriteString(vx.Text)
	for _, m := range vx.MediaURLs {
		fmt.Fprintf(&sb, "\n\nMEDIA: %s", m)
	}
	fmt.Fprintf(&sb, "\n\nMETADATA:\nAuthor: %s (@%s)\nPosted: %s\nLikes: %d, Retweets: %d",
		vx.UserName, vx.UserScreenName, vx.Date, vx.Likes, vx.Retweets)

	res := Result{
		Title:       fmt.Sprintf("Tweet by @%s", vx.UserScreenName),
		Text:        sb.String(),
		ContentType: storage.SourceTweet,
		Meta: map[string]string{
			"author":    vx.UserScreenName,
			"has_media": fmt.Sprintf("%t", len(vx.MediaURLs) > 0),
		},
	}
	// Thinness is judged on the tweet text itself, not the composed
	// block with its metadata boilerplate.
	if len(vx.MediaURLs) == 0 && len(vx.Text) <= tweetThinTextLen {
		res.Meta["thin"] = "true"
	}
	return res, nil
}

// scrapeTweetMeta falls back to the open graph tags of the original
// status page.
func (e *Extractor) scrapeTweetMeta(ctx context.Context, u *url.URL) (Result, error) {
	body, err := e.fetch(ctx, u.String(), nil)
	if err != nil {
		return Result{}, err
	}

	meta := parsePageMeta(body)
	title := meta.Get("og:title", "twitter:title")
	if title == "" {
		title = meta.Title
	}
	desc := meta.Get("og:description", "description")

	return Result{
		Title:       title,
		Text:        desc,
		ContentType: storage.SourceTweet,
		Meta:        map[string]string{},
	}, nil
}

// tweetPath splits /{user}/status/{id} out of a twitter URL path.
func tweetPath(path string) (user, id string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[1] != "status" {
		return "", "", false
	}
	id = strings.SplitN(parts[2], "?", 2)[0]
	if parts[0] == "" || id == "" {
		return "", "", false
	}
	return parts[0], id, true
}
