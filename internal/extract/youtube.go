package extract

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"

	"github.com/nadavhl/secondbrain/internal/storage"
)

// transcriptCap bounds the transcript portion of a video result. The
// metadata block never gets trimmed; a long transcript does.
const transcriptCap = 25000

const transcriptUnavailable = "[Transcript unavailable]"

// youtubeConsent skips the EU consent interstitial that otherwise
// replaces the watch page for cookie-less clients.
const youtubeConsent = "CONSENT=YES+cb.20210328-17-p0.en+FX+678; SOCS=CAI"

// playerResponse carries the slice of ytInitialPlayerResponse we need.
type playerResponse struct {
	VideoDetails struct {
		Title            string   `json:"title"`
		Author           string   `json:"author"`
		LengthSeconds    string   `json:"lengthSeconds"`
		ViewCount        string   `json:"viewCount"`
		Keywords         []string `json:"keywords"`
		ShortDescription string   `json:"shortDescription"`
	} `json:"videoDetails"`
	Captions struct {
		Tracklist struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

// timedText is the XML caption document behind a caption track URL.
type timedText struct {
	Texts []struct {
		Start float64 `xml:"start,attr"`
		Body  string  `xml:",chardata"`
	} `xml:"text"`
}

// extractVideo scrapes a youtube watch page for metadata and, when a
// caption track exists, the full transcript. Everything rides on the
// ytInitialPlayerResponse blob embedded in the page; meta tags and the
// oEmbed endpoint back it up.
func (e *Extractor) extractVideo(ctx context.Context, u *url.URL) Result {
	id := videoID(u)
	if id == "" {
		return e.extractWeb(ctx, u)
	}

	res := Result{ContentType: storage.SourceVideo, Meta: map[string]string{"video_id": id}}

	watchURL := "https://www.youtube.com/watch?v=" + id
	body, err := e.fetch(ctx, watchURL, map[string]string{"Cookie": youtubeConsent})
	if err != nil {
		e.log.Debug("watch page fetch failed", "video", id, "error", err)
		return e.videoFromOEmbed(ctx, watchURL, res)
	}

	var pr playerResponse
	havePlayer := false
	if blob := extractJSONObject(string(body), "ytInitialPlayerResponse = "); blob != "" {
		if err := json.Unmarshal([]byte(blob), &pr); err == nil && pr.VideoDetails.Title != "" {
			havePlayer = true
		}
	}

	meta := parsePageMeta(body)

	title := pr.VideoDetails.Title
	if title == "" {
		title = strings.TrimSuffix(meta.Get("og:title", "title"), " - YouTube")
	}
	if title == "" {
		return e.videoFromOEmbed(ctx, watchURL, res)
	}
	res.Title = title

	var sb strings.Builder
	sb.WriteString("VIDEO METADATA:\n")
	fmt.Fprintf(&sb, "Title: %s\n", title)
	if a := pr.VideoDetails.Author; a != "" {
		fmt.Fprintf(&sb, "Channel: %s\n", a)
		res.Meta["channel"] = a
	}
	if secs, err := strconv.Atoi(pr.VideoDetails.LengthSeconds); err == nil && secs > 0 {
		fmt.Fprintf(&sb, "Duration: %s\n", formatDuration(secs))
		res.Meta["duration"] = strconv.Itoa(secs)
	}
	if views := pr.VideoDetails.ViewCount; views != "" {
		fmt.Fprintf(&sb, "Views: %s\n", views)
	}
	if kw := pr.VideoDetails.Keywords; len(kw) > 0 {
		fmt.Fprintf(&sb, "Keywords: %s\n", strings.Join(kw, ", "))
	}

	desc := pr.VideoDetails.ShortDescription
	if desc == "" {
		desc = meta.Get("og:description", "description")
	}
	if desc != "" {
		fmt.Fprintf(&sb, "\nDescription:\n%s\n", desc)
	}

	transcript := transcriptUnavailable
	if havePlayer {
		if t := e.fetchTranscript(ctx, pr.Captions.Tracklist.CaptionTracks); t != "" {
			transcript = t
		}
	}
	fmt.Fprintf(&sb, "\nTRANSCRIPT:\n%s", truncate(transcript, transcriptCap))

	res.Text = sb.String()
	return res
}

// videoFromOEmbed is the last resort when the watch page itself is
// unusable. oEmbed only knows the title and channel.
func (e *Extractor) videoFromOEmbed(ctx context.Context, watchURL string, res Result) Result {
	body, err := e.fetch(ctx, "https://www.youtube.com/oembed?format=json&url="+url.QueryEscape(watchURL), nil)
	if err != nil {
		return res
	}

	var oe struct {
		Title      string `json:"title"`
		AuthorName string `json:"author_name"`
	}
	if err := json.Unmarshal(body, &oe); err != nil || oe.Title == "" {
		return res
	}

	res.Title = oe.Title
	res.Text = fmt.Sprintf("VIDEO METADATA:\nTitle: %s\nChannel: %s\n\nTRANSCRIPT:\n%s",
		oe.Title, oe.AuthorName, transcriptUnavailable)
	if oe.AuthorName != "" {
		res.Meta["channel"] = oe.AuthorName
	}
	return res
}

// fetchTranscript downloads and formats the best caption track. Manual
// tracks win over auto-generated ones; English wins among manuals.
func (e *Extractor) fetchTranscript(ctx context.Context, tracks []captionTrack) string {
	best := pickCaptionTrack(tracks)
	if best == nil {
		return ""
	}

	body, err := e.fetch(ctx, best.BaseURL, nil)
	if err != nil {
		e.log.Debug("caption track fetch failed", "error", err)
		return ""
	}

	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return ""
	}

	var lines []string
	for _, t := range tt.Texts {
		text := strings.TrimSpace(html.UnescapeString(t.Body))
		if text == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s] %s", formatDuration(int(t.Start)), text))
	}
	return strings.Join(lines, "\n")
}

func pickCaptionTrack(tracks []captionTrack) *captionTrack {
	var auto *captionTrack
	var manual *captionTrack
	for i := range tracks {
		t := &tracks[i]
		if t.BaseURL == "" {
			continue
		}
		if t.Kind == "asr" {
			if auto == nil {
				auto = t
			}
			continue
		}
		if manual == nil || strings.HasPrefix(t.LanguageCode, "en") && !strings.HasPrefix(manual.LanguageCode, "en") {
			manual = t
		}
	}
	if manual != nil {
		return manual
	}
	return auto
}

// videoID pulls the 11-character video ID out of the URL forms youtube
// uses: watch links, youtu.be short links, shorts, embeds and live.
func videoID(u *url.URL) string {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := strings.Trim(u.Path, "/")

	if host == "youtu.be" {
		return strings.SplitN(path, "/", 2)[0]
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	parts := strings.Split(path, "/")
	if len(parts) >= 2 {
		switch parts[0] {
		case "shorts", "embed", "live", "v":
			return parts[1]
		}
	}
	return ""
}

// extractJSONObject finds marker in page and returns the balanced JSON
// object that follows it, tracking string literals so braces inside
// quoted text do not end the scan early.
func extractJSONObject(page, marker string) string {
	idx := strings.Index(page, marker)
	if idx < 0 {
		return ""
	}
	rest := page[idx+len(marker):]
	start := strings.IndexByte(rest, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(rest); i++ {
		c := rest[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return rest[start : i+1]
			}
		}
	}
	return ""
}

func formatDuration(secs int) string {
	if secs >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
	}
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
