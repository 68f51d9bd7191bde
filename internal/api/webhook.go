package api

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nadavhl/secondbrain/internal/notify"
	"github.com/nadavhl/secondbrain/internal/reminder"
	"github.com/nadavhl/secondbrain/internal/storage"
)

var urlInMessage = regexp.MustCompile(`https?://\S+`)

// inboundMessage is the normalized inbound shape. The webhook accepts
// both Twilio's form encoding and a plain JSON body so local testing
// does not need a Twilio sandbox.
type inboundMessage struct {
	SenderID  string `json:"senderId"`
	Text      string `json:"messageText"`
	MediaURL  string
	MediaMIME string
	asJSON    bool
}

// UnmarshalJSON keeps the optional media object flat.
func (m *inboundMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		SenderID string `json:"senderId"`
		Text     string `json:"messageText"`
		Media    *struct {
			URL      string `json:"url"`
			MIMEType string `json:"mimeType"`
		} `json:"media"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.SenderID = raw.SenderID
	m.Text = raw.Text
	if raw.Media != nil {
		m.MediaURL = raw.Media.URL
		m.MediaMIME = raw.Media.MIMEType
	}
	return nil
}

// handleWebhook is the inbound WhatsApp entry point. It authorizes the
// sender, decides between the save flow and the conversational flow,
// and always answers fast; the heavy work happens in the queue worker.
func handleWebhook(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msg, err := parseInbound(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "parsing message: %v", err)
			return
		}

		user, err := deps.Store.FindUserByPhone(msg.SenderID)
		if err == storage.ErrNotFound {
			deps.Log.Info("rejected unknown sender", "sender", msg.SenderID)
			reply(w, msg, notify.FormatUnauthorized())
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "looking up sender: %v", err)
			return
		}

		url := urlInMessage.FindString(msg.Text)
		if url == "" && msg.MediaURL == "" {
			reply(w, msg, conversationalReply(deps, user, msg.Text))
			return
		}

		p := storage.PendingItem{
			ID:        uuid.NewString(),
			OwnerID:   user.ID,
			URL:       url,
			RawText:   msg.Text,
			MediaURL:  msg.MediaURL,
			MediaMIME: msg.MediaMIME,
		}
		if err := deps.Store.EnqueuePending(p); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "queueing item: %v", err)
			return
		}
		deps.Log.Info("queued inbound item", "pending_id", p.ID, "owner", user.ID, "has_media", p.HasMedia())

		// The confirmation arrives asynchronously once the worker is done.
		reply(w, msg, "")
	}
}

// conversationalReply handles messages without a URL or media: reminder
// commands against the last saved item, otherwise the menu.
func conversationalReply(deps AppDeps, user storage.User, text string) string {
	due, ok := reminder.ParseIntent(text, time.Now())
	if !ok || user.LastSavedItemID == "" {
		return notify.FormatMenu()
	}

	item, err := deps.Store.GetItem(user.LastSavedItemID)
	if err != nil {
		deps.Log.Warn("last saved item missing", "user", user.ID, "item", user.LastSavedItemID, "error", err)
		return notify.FormatMenu()
	}

	profile := item.ReminderProfile
	if profile == "" {
		profile = reminder.ProfileSmart
	}
	if err := deps.Store.SetReminder(item.ID, due.UnixMilli(), profile); err != nil {
		deps.Log.Error("reminder not scheduled", "item", item.ID, "error", err)
		return notify.FormatMenu()
	}
	return notify.FormatReminderSet(item.Title, due)
}

func parseInbound(r *http.Request) (inboundMessage, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var msg inboundMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			return inboundMessage{}, err
		}
		if msg.SenderID == "" {
			return inboundMessage{}, fmt.Errorf("senderId is required")
		}
		msg.asJSON = true
		return msg, nil
	}

	if err := r.ParseForm(); err != nil {
		return inboundMessage{}, err
	}
	msg := inboundMessage{
		SenderID: r.PostFormValue("From"),
		Text:     r.PostFormValue("Body"),
	}
	if msg.SenderID == "" {
		return inboundMessage{}, fmt.Errorf("From is required")
	}
	if r.PostFormValue("NumMedia") != "" && r.PostFormValue("NumMedia") != "0" {
		msg.MediaURL = r.PostFormValue("MediaUrl0")
		msg.MediaMIME = r.PostFormValue("MediaContentType0")
	}
	return msg, nil
}

// reply answers in the shape the caller spoke: JSON for JSON clients,
// TwiML for Twilio. An empty message is a bare acknowledgment.
func reply(w http.ResponseWriter, msg inboundMessage, body string) {
	if msg.asJSON {
		if body == "" {
			writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "reply": body})
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	if body == "" {
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`)
		return
	}
	var escaped strings.Builder
	xml.EscapeText(&escaped, []byte(body))
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Response><Message>%s</Message></Response>`, escaped.String())
}
