// Package reminder implements the spaced-repetition side of the system:
// interval policies, free-text reminder intent parsing, and the
// periodic sweep that fires due reminders.
package reminder

import (
	"strconv"
	"strings"
)

// Interval profiles. A profile names an ordered day-offset table keyed
// by repetition count; past the table every profile falls back to the
// terminal interval.
const (
	ProfileSmart  = "smart"
	ProfileSpaced = "spaced"
)

// terminalIntervalDays applies beyond any profile's table.
const terminalIntervalDays = 90

// CompletionCount is the repetition count at which an item's reminder
// cycle ends.
const CompletionCount = 3

// smartIntervals is the default progression for URL-triggered saves.
var smartIntervals = map[int]int{0: 1, 1: 7, 2: 30}

// spacedIntervals maps a starting offset to its stepped sequence. The
// numbers are a hand-tuned progression, kept as a lookup on purpose.
var spacedIntervals = map[int]map[int]int{
	3: {1: 5, 2: 7},
	5: {1: 7, 2: 14},
	7: {1: 14, 2: 30},
}

// NextIntervalDays returns the day offset until the next reminder for
// the given repetition count and profile. Pure: same inputs, same
// answer.
//
// Profiles are "smart" (the default, also used for any unrecognized
// profile) and "spaced" / "spaced-N" where N is the starting offset
// (default 3). For spaced profiles, count 0 returns the starting
// offset itself.
func NextIntervalDays(repetitionCount int, profile string) int {
	profile = strings.ToLower(strings.TrimSpace(profile))

	if strings.HasPrefix(profile, ProfileSpaced) {
		start := 3
		if rest, ok := strings.CutPrefix(profile, ProfileSpaced+"-"); ok {
			if n, err := strconv.Atoi(rest); err == nil && n > 0 {
				start = n
			}
		}
		if repetitionCount == 0 {
			return start
		}
		if steps, ok := spacedIntervals[start]; ok {
			if days, ok := steps[repetitionCount]; ok {
				return days
			}
		}
		return terminalIntervalDays
	}

	if days, ok := smartIntervals[repetitionCount]; ok {
		return days
	}
	return terminalIntervalDays
}
