// Package notify formats and delivers outbound WhatsApp messages. All
// user-facing text is bilingual; the language is picked per message by
// inspecting the item's own title for Hebrew script, never from a
// stored user preference.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/nadavhl/secondbrain/internal/storage"
)

// IsHebrew reports whether s contains any character in the Hebrew
// unicode block.
func IsHebrew(s string) bool {
	for _, r := range s {
		if r >= 0x0590 && r <= 0x05FF {
			return true
		}
	}
	return false
}

// appLink builds the open-in-app deep link for an item, or "" when no
// app URL is configured.
func appLink(appURL, itemID string) string {
	if appURL == "" || itemID == "" {
		return ""
	}
	return fmt.Sprintf("%s?linkId=%s", appURL, itemID)
}

// FormatSaveConfirmation is the reply after a successful save.
func FormatSaveConfirmation(item storage.Item, appURL string) string {
	var sb strings.Builder
	if IsHebrew(item.Title) {
		fmt.Fprintf(&sb, "✅ נשמר: %s\nקטגוריה: %s", item.Title, item.Category)
		if len(item.Tags) > 0 {
			fmt.Fprintf(&sb, "\nתגיות: %s", strings.Join(item.Tags, ", "))
		}
		if item.ReadTime > 0 {
			fmt.Fprintf(&sb, "\nזמן קריאה: ~%d דק'", item.ReadTime)
		}
		if n := len(item.Related); n > 0 {
			fmt.Fprintf(&sb, "\n🔗 מקושר ל-%d פריטים שמורים", n)
		}
		if item.Takeaway != "" {
			fmt.Fprintf(&sb, "\n\n💡 תובנה מרכזית: %s", item.Takeaway)
		}
		sb.WriteString("\n\nלתזכורת: 1 = מחר, 2 = בעוד 3 ימים, 3 = בשבוע הבא")
		if link := appLink(appURL, item.ID); link != "" {
			fmt.Fprintf(&sb, "\n\n🔗 פתח במוח השני:\n%s", link)
		}
		return sb.String()
	}

	fmt.Fprintf(&sb, "✅ Saved: %s\nCategory: %s", item.Title, item.Category)
	if len(item.Tags) > 0 {
		fmt.Fprintf(&sb, "\nTags: %s", strings.Join(item.Tags, ", "))
	}
	if item.ReadTime > 0 {
		fmt.Fprintf(&sb, "\nRead time: ~%d min", item.ReadTime)
	}
	if n := len(item.Related); n > 0 {
		fmt.Fprintf(&sb, "\n🔗 Linked to %d saved items", n)
	}
	if item.Takeaway != "" {
		fmt.Fprintf(&sb, "\n\n💡 Key insight: %s", item.Takeaway)
	}
	sb.WriteString("\n\nFor a reminder: 1 = tomorrow, 2 = in 3 days, 3 = next week")
	if link := appLink(appURL, item.ID); link != "" {
		fmt.Fprintf(&sb, "\n\n🔗 Open in Second Brain:\n%s", link)
	}
	return sb.String()
}

// FormatDegradedSave is the reply when the item was persisted but
// analysis could not enrich it.
func FormatDegradedSave(item storage.Item) string {
	if IsHebrew(item.Title) {
		return fmt.Sprintf("⚠️ נשמר עם מידע חלקי: %s\nאפשר לחזור לזה מאוחר יותר.", item.Title)
	}
	return fmt.Sprintf("⚠️ Saved with limited info: %s\nYou can come back to it later.", item.Title)
}

// FormatReminderSet confirms a scheduled reminder.
func FormatReminderSet(title string, due time.Time) string {
	day := due.Format("02/01/2006")
	if IsHebrew(title) {
		return fmt.Sprintf("⏰ אזכיר לך על \"%s\" בתאריך %s", title, day)
	}
	return fmt.Sprintf("⏰ I'll remind you about \"%s\" on %s", title, day)
}

// FormatReminderMessage is the notification fired by the sweep.
func FormatReminderMessage(item storage.Item, appURL string) string {
	hebrew := IsHebrew(item.Title)

	var sb strings.Builder
	if hebrew {
		fmt.Fprintf(&sb, "⏰ תזכורת: %s", item.Title)
		if item.Summary != "" && item.Summary != item.Title {
			fmt.Fprintf(&sb, "\n%s", item.Summary)
		}
	} else {
		fmt.Fprintf(&sb, "⏰ Reminder: %s", item.Title)
		if item.Summary != "" && item.Summary != item.Title {
			fmt.Fprintf(&sb, "\n%s", item.Summary)
		}
	}
	if item.URL != "" {
		fmt.Fprintf(&sb, "\n%s", item.URL)
	}
	if link := appLink(appURL, item.ID); link != "" {
		if hebrew {
			fmt.Fprintf(&sb, "\n\n🔗 פתח במוח השני:\n%s", link)
		} else {
			fmt.Fprintf(&sb, "\n\n🔗 Open in Second Brain:\n%s", link)
		}
	}
	return sb.String()
}

// FormatMenu lists what the bot understands.
func FormatMenu() string {
	return "Send me a link, an image or a recipe and I'll save it for you.\n" +
		"Reminders: reply 1 (tomorrow), 2 (in 3 days) or 3 (next week) after saving, " +
		"or write \"tomorrow\" / \"next week\" next to the link.\n\n" +
		"שלחו לי קישור, תמונה או מתכון ואשמור אותם.\n" +
		"תזכורות: השיבו 1 (מחר), 2 (בעוד 3 ימים) או 3 (בשבוע הבא), " +
		"או כתבו \"מחר\" / \"שבוע הבא\" ליד הקישור."
}

// FormatUnauthorized is sent to senders the system does not know.
func FormatUnauthorized() string {
	return "Sorry, I don't recognize this number. / מצטער, אני לא מזהה את המספר הזה."
}
