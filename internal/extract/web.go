package extract

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"

	"github.com/nadavhl/secondbrain/internal/storage"
)

// extractWeb handles any URL without a dedicated path. Readability
// produces the article body; when it comes up empty the raw paragraph
// text of the page stands in.
func (e *Extractor) extractWeb(ctx context.Context, u *url.URL) Result {
	body, err := e.fetch(ctx, u.String(), nil)
	if err != nil {
		e.log.Debug("web fetch failed", "url", u.String(), "error", err)
		return Result{ContentType: storage.SourceWeb}
	}

	res := Result{ContentType: storage.SourceWeb, Meta: map[string]string{}}

	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err == nil {
		res.Title = strings.TrimSpace(article.Title)
		res.Text = collapseWhitespace(article.TextContent)
		if article.Byline != "" {
			res.Meta["author"] = article.Byline
		}
		if article.SiteName != "" {
			res.Meta["site"] = article.SiteName
		}
	}

	meta := parsePageMeta(body)
	if res.Title == "" {
		res.Title = meta.Get("og:title", "twitter:title")
	}
	if res.Title == "" {
		res.Title = meta.Title
	}
	if res.Text == "" {
		res.Text = collapseWhitespace(extractParagraphs(body))
	}
	if res.Text == "" {
		res.Text = meta.Get("og:description", "description")
	}
	if site := meta.Get("og:site_name"); site != "" && res.Meta["site"] == "" {
		res.Meta["site"] = site
	}

	res.Text = truncate(res.Text, webTextCap)
	return res
}

// collapseWhitespace squeezes runs of blank lines and trims each line.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
