package reminder

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Menu shortcuts must match the whole trimmed message exactly so a
// message that merely contains a digit never schedules anything.
var menuShortcuts = map[string]int{
	"1": 1,
	"2": 3,
	"3": 7,
}

// relativePhrases maps contained phrases, English and Hebrew, to day
// offsets. Longer phrases are listed before their prefixes so "next
// month" is not caught by a shorter match.
var relativePhrases = []struct {
	phrase string
	days   int
}{
	{"next month", 30},
	{"בעוד חודש", 30},
	{"חודש הבא", 30},
	{"next week", 7},
	{"בשבוע הבא", 7},
	{"שבוע הבא", 7},
	{"tomorrow", 1},
	{"מחר", 1},
}

var (
	urlPattern    = regexp.MustCompile(`https?://\S+`)
	inDaysPattern = regexp.MustCompile(`\bin (\d+) days?\b`)
	inDaysHebrew  = regexp.MustCompile(`בעוד (\d+) ימים`)
)

// ParseIntent looks for a reminder request in free text and returns the
// due time relative to now. URLs are stripped first so a path segment
// like "/3" or a date in a link never reads as a command.
func ParseIntent(text string, now time.Time) (time.Time, bool) {
	cleaned := strings.TrimSpace(urlPattern.ReplaceAllString(text, ""))
	lowered := strings.ToLower(cleaned)

	if days, ok := menuShortcuts[lowered]; ok {
		return now.AddDate(0, 0, days), true
	}

	for _, p := range relativePhrases {
		if strings.Contains(lowered, p.phrase) {
			return now.AddDate(0, 0, p.days), true
		}
	}

	for _, re := range []*regexp.Regexp{inDaysPattern, inDaysHebrew} {
		if m := re.FindStringSubmatch(lowered); m != nil {
			if days, err := strconv.Atoi(m[1]); err == nil && days > 0 {
				return now.AddDate(0, 0, days), true
			}
		}
	}

	return time.Time{}, false
}
