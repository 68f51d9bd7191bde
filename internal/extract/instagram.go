package extract

import (
	"context"
	"net/url"
	"strings"

	"github.com/nadavhl/secondbrain/internal/storage"
)

// instagramRichDescLen is the description length at which a scrape is
// considered rich enough to stop trying further bridges.
const instagramRichDescLen = 100

// instagramBridges are mirror hosts that serve instagram metadata to
// anonymous clients. Tried in order after the direct scrape.
var instagramBridges = []string{
	"www.instagramez.com",
	"www.kkinstagram.com",
	"d.ddinstagram.com",
}

// instagramNoise are caption phrases messaging apps prepend that carry
// no content of their own.
var instagramNoise = []string{
	"check this out",
	"look at this",
	"watch this",
	"see this",
}

// extractInstagram scrapes an instagram post. Instagram serves little
// to anonymous clients, so the direct attempt usually yields a generic
// login page; bridge mirrors come next, and the caption the user sent
// alongside the link is the last resort.
func (e *Extractor) extractInstagram(ctx context.Context, u *url.URL, caption string) Result {
	best := Result{ContentType: storage.SourceVideo, Meta: map[string]string{}}

	attempts := make([]string, 0, 1+len(instagramBridges))
	attempts = append(attempts, u.String())
	for _, host := range instagramBridges {
		bu := *u
		bu.Host = host
		attempts = append(attempts, bu.String())
	}

	for i, target := range attempts {
		res, err := e.scrapeInstagramPage(ctx, target)
		if err != nil {
			e.log.Debug("instagram scrape failed", "url", target, "error", err)
			continue
		}
		if res.Empty() {
			continue
		}
		if i > 0 {
			res.Meta["via"] = "bridge"
		}
		if len(res.Text) >= instagramRichDescLen {
			return res
		}
		if best.Empty() || len(res.Text) > len(best.Text) {
			best = res
		}
	}

	if text := cleanCaption(caption); text != "" {
		if len(text) > len(best.Text) {
			best.Text = text
			best.Meta["via"] = "caption"
		}
		if best.Title == "" {
			best.Title = captionFirstLine(text)
		}
	}
	if best.Title == "" && best.Text != "" {
		best.Title = instagramTitleFromDescription(best.Text)
	}
	return best
}

// instagramTitleFromDescription recovers a title when no scrape produced
// a real one. Bridge descriptions shaped "<author> - ... on Instagram:
// <caption>" yield the caption part; anything else yields its first line.
func instagramTitleFromDescription(desc string) string {
	if strings.Contains(desc, " - ") && strings.Contains(desc, " on Instagram: ") {
		parts := strings.SplitN(desc, " on Instagram: ", 2)
		if len(parts) == 2 && parts[1] != "" {
			return captionFirstLine(strings.Trim(parts[1], "\""))
		}
	}
	return captionFirstLine(desc)
}

func captionFirstLine(s string) string {
	line := strings.SplitN(s, "\n", 2)[0]
	return strings.TrimSpace(truncate(line, 100))
}

func (e *Extractor) scrapeInstagramPage(ctx context.Context, target string) (Result, error) {
	body, err := e.fetch(ctx, target, map[string]string{
		"User-Agent": "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
	})
	if err != nil {
		return Result{}, err
	}

	meta := parsePageMeta(body)
	title := strings.TrimSpace(meta.Get("og:title", "twitter:title"))
	desc := strings.TrimSpace(meta.Get("og:description", "description"))

	if isGenericInstagramTitle(title) {
		title = ""
	}
	if isJunkInstagramText(title) || isJunkInstagramText(desc) {
		return Result{}, nil
	}
	if title == "" && desc == "" {
		return Result{}, nil
	}

	return Result{
		Title:       title,
		Text:        desc,
		ContentType: storage.SourceVideo,
		Meta:        map[string]string{},
	}, nil
}

// isGenericInstagramTitle filters the placeholder titles instagram
// serves to anonymous clients.
func isGenericInstagramTitle(title string) bool {
	t := strings.ToLower(strings.TrimSpace(title))
	switch t {
	case "", "instagram", "login • instagram", "page not found • instagram":
		return true
	}
	return false
}

// isJunkInstagramText catches bridge responses that are ads or app
// interstitials rather than post content.
func isJunkInstagramText(s string) bool {
	l := strings.ToLower(s)
	return strings.Contains(l, "aliexpress") || strings.Contains(l, "open in app")
}

// cleanCaption strips forwarding noise and the URL itself from the
// message text that accompanied the link. Anything longer than a few
// characters is treated as a real caption.
func cleanCaption(caption string) string {
	out := caption
	for _, word := range strings.Fields(out) {
		if strings.HasPrefix(word, "http://") || strings.HasPrefix(word, "https://") {
			out = strings.ReplaceAll(out, word, "")
		}
	}
	lower := strings.ToLower(out)
	for _, phrase := range instagramNoise {
		if idx := strings.Index(lower, phrase); idx >= 0 {
			out = out[:idx] + out[idx+len(phrase):]
			lower = strings.ToLower(out)
		}
	}
	out = strings.TrimSpace(strings.Trim(strings.TrimSpace(out), ":,.!"))
	if len(out) <= 5 {
		return ""
	}
	return out
}
