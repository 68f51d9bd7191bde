package storage

import (
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUserRoundTrip(t *testing.T) {
	s := openTestStore(t)

	u := User{ID: "u1", PhoneNumber: "+972501234567", RemindersEnabled: true}
	if err := s.SaveUser(u); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	got, err := s.GetUser("u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.PhoneNumber != u.PhoneNumber {
		t.Errorf("PhoneNumber = %q, want %q", got.PhoneNumber, u.PhoneNumber)
	}
	if got.ReminderProfile != "smart" {
		t.Errorf("ReminderProfile = %q, want smart", got.ReminderProfile)
	}
	if got.CreatedAt == 0 {
		t.Error("CreatedAt not backfilled")
	}
}

func TestFindUserByPhoneNormalizes(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveUser(User{ID: "u1", PhoneNumber: "+972501234567"}); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	for _, phone := range []string{"+972501234567", "972501234567", "whatsapp:+972501234567", "+972-50-123-4567"} {
		got, err := s.FindUserByPhone(phone)
		if err != nil {
			t.Errorf("FindUserByPhone(%q): %v", phone, err)
			continue
		}
		if got.ID != "u1" {
			t.Errorf("FindUserByPhone(%q) = %q, want u1", phone, got.ID)
		}
	}

	if _, err := s.FindUserByPhone("+15550001111"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown phone: err = %v, want ErrNotFound", err)
	}
}

func TestItemRoundTrip(t *testing.T) {
	s := openTestStore(t)

	due := time.Now().UTC().Add(24 * time.Hour).UnixMilli()
	it := Item{
		ID:         "i1",
		OwnerID:    "u1",
		URL:        "https://example.com/article",
		SourceType: SourceWeb,
		Title:      "A Title",
		Summary:    "A summary.",
		Category:   "Tech",
		Tags:       []string{"go", "testing"},
		Concepts:   []string{"unit tests"},
		Language:   "en",
		Confidence: "high",
		ReadTime:   3,
		Recipe: &Recipe{
			Ingredients:  []string{"flour", "water"},
			Instructions: []string{"mix", "bake"},
			Servings:     "4",
		},
		Related: []RelatedLink{
			{TargetID: "i0", Title: "Older", Reason: "same topic", Similarity: 0.9, SharedConcepts: []string{"go"}},
		},
		ReminderStatus: ReminderPending,
		NextReminderAt: &due,
		ReminderCount:  1,
	}
	if err := s.SaveItem(it); err != nil {
		t.Fatalf("SaveItem: %v", err)
	}

	got, err := s.GetItem("i1")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.Status != "unread" {
		t.Errorf("Status = %q, want unread", got.Status)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "go" {
		t.Errorf("Tags = %v", got.Tags)
	}
	if got.Recipe == nil || len(got.Recipe.Ingredients) != 2 {
		t.Errorf("Recipe = %+v", got.Recipe)
	}
	if len(got.Related) != 1 || got.Related[0].TargetID != "i0" {
		t.Errorf("Related = %+v", got.Related)
	}
	if got.NextReminderAt == nil || *got.NextReminderAt != due {
		t.Errorf("NextReminderAt = %v, want %d", got.NextReminderAt, due)
	}
}

func TestUserTags(t *testing.T) {
	s := openTestStore(t)

	items := []Item{
		{ID: "i1", OwnerID: "u1", URL: "u", SourceType: SourceWeb, Title: "t", Summary: "s", Category: "c", Tags: []string{"go", "ai"}},
		{ID: "i2", OwnerID: "u1", URL: "u", SourceType: SourceWeb, Title: "t", Summary: "s", Category: "c", Tags: []string{"ai", "health"}},
		{ID: "i3", OwnerID: "u2", URL: "u", SourceType: SourceWeb, Title: "t", Summary: "s", Category: "c", Tags: []string{"other-user"}},
	}
	for _, it := range items {
		if err := s.SaveItem(it); err != nil {
			t.Fatalf("SaveItem(%s): %v", it.ID, err)
		}
	}

	tags, err := s.UserTags("u1")
	if err != nil {
		t.Fatalf("UserTags: %v", err)
	}
	want := []string{"ai", "go", "health"}
	if len(tags) != len(want) {
		t.Fatalf("tags = %v, want %v", tags, want)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Errorf("tags[%d] = %q, want %q", i, tags[i], want[i])
		}
	}
}

func TestDueReminders(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().UnixMilli()

	past := now - 1000
	future := now + 86_400_000
	items := []Item{
		{ID: "due1", OwnerID: "u1", URL: "u", SourceType: SourceWeb, Title: "t", Summary: "s", Category: "c",
			ReminderStatus: ReminderPending, NextReminderAt: &past},
		{ID: "later", OwnerID: "u1", URL: "u", SourceType: SourceWeb, Title: "t", Summary: "s", Category: "c",
			ReminderStatus: ReminderPending, NextReminderAt: &future},
		{ID: "none", OwnerID: "u1", URL: "u", SourceType: SourceWeb, Title: "t", Summary: "s", Category: "c"},
	}
	for _, it := range items {
		if err := s.SaveItem(it); err != nil {
			t.Fatalf("SaveItem(%s): %v", it.ID, err)
		}
	}

	due, err := s.DueReminders("u1", now, 10)
	if err != nil {
		t.Fatalf("DueReminders: %v", err)
	}
	if len(due) != 1 || due[0].ID != "due1" {
		t.Fatalf("due = %+v, want only due1", due)
	}
}

func TestNormalizeReminderTimestamps(t *testing.T) {
	s := openTestStore(t)

	it := Item{ID: "i1", OwnerID: "u1", URL: "u", SourceType: SourceWeb, Title: "t", Summary: "s", Category: "c",
		ReminderStatus: ReminderPending}
	if err := s.SaveItem(it); err != nil {
		t.Fatalf("SaveItem: %v", err)
	}

	// Simulate a legacy writer that stored an RFC3339 string.
	legacy := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if _, err := s.db.Exec(`UPDATE items SET next_reminder_at = ? WHERE id = 'i1'`, legacy.Format(time.RFC3339)); err != nil {
		t.Fatalf("injecting legacy value: %v", err)
	}

	fixed, err := s.NormalizeReminderTimestamps("u1")
	if err != nil {
		t.Fatalf("NormalizeReminderTimestamps: %v", err)
	}
	if fixed != 1 {
		t.Errorf("fixed = %d, want 1", fixed)
	}

	// The numeric due query should now see the item.
	due, err := s.DueReminders("u1", time.Now().UTC().UnixMilli(), 10)
	if err != nil {
		t.Fatalf("DueReminders: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("due = %+v, want 1 item after normalization", due)
	}
	if *due[0].NextReminderAt != legacy.UnixMilli() {
		t.Errorf("NextReminderAt = %d, want %d", *due[0].NextReminderAt, legacy.UnixMilli())
	}
}

func TestAdvanceReminder(t *testing.T) {
	s := openTestStore(t)
	past := time.Now().UTC().Add(-time.Hour).UnixMilli()
	it := Item{ID: "i1", OwnerID: "u1", URL: "u", SourceType: SourceWeb, Title: "t", Summary: "s", Category: "c",
		ReminderStatus: ReminderPending, NextReminderAt: &past, ReminderCount: 2}
	if err := s.SaveItem(it); err != nil {
		t.Fatalf("SaveItem: %v", err)
	}

	// Third firing completes the loop.
	if err := s.AdvanceReminder("i1", 3, nil); err != nil {
		t.Fatalf("AdvanceReminder: %v", err)
	}
	got, err := s.GetItem("i1")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.ReminderStatus != ReminderCompleted {
		t.Errorf("ReminderStatus = %q, want completed", got.ReminderStatus)
	}
	if got.NextReminderAt != nil {
		t.Errorf("NextReminderAt = %v, want nil", got.NextReminderAt)
	}
	if got.ReminderCount != 3 {
		t.Errorf("ReminderCount = %d, want 3", got.ReminderCount)
	}
}

func TestPendingQueueLifecycle(t *testing.T) {
	s := openTestStore(t)

	p := PendingItem{ID: "p1", OwnerID: "u1", URL: "https://example.com", RawText: "check this out"}
	if err := s.EnqueuePending(p); err != nil {
		t.Fatalf("EnqueuePending: %v", err)
	}

	claimed, err := s.ClaimNextPending()
	if err != nil {
		t.Fatalf("ClaimNextPending: %v", err)
	}
	if claimed == nil || claimed.ID != "p1" {
		t.Fatalf("claimed = %+v, want p1", claimed)
	}
	if claimed.Status != PendingProcessing {
		t.Errorf("Status = %q, want processing", claimed.Status)
	}
	if claimed.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", claimed.Attempts)
	}

	// Nothing else to claim.
	again, err := s.ClaimNextPending()
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if again != nil {
		t.Fatalf("second claim = %+v, want nil", again)
	}

	// Failure retains the row with error detail.
	if err := s.FailPending("p1", "scrape exploded"); err != nil {
		t.Fatalf("FailPending: %v", err)
	}
	got, err := s.GetPending("p1")
	if err != nil {
		t.Fatalf("GetPending after fail: %v", err)
	}
	if got.Status != PendingFailed || got.LastError != "scrape exploded" {
		t.Errorf("after fail: %+v", got)
	}

	// Success deletes the row.
	if err := s.DeletePending("p1"); err != nil {
		t.Fatalf("DeletePending: %v", err)
	}
	if _, err := s.GetPending("p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete: err = %v, want ErrNotFound", err)
	}
}

func TestClaimOrderIsFIFO(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().UTC().UnixMilli()
	for i, id := range []string{"a", "b", "c"} {
		p := PendingItem{ID: id, OwnerID: "u1", URL: "u", CreatedAt: base + int64(i)}
		if err := s.EnqueuePending(p); err != nil {
			t.Fatalf("EnqueuePending(%s): %v", id, err)
		}
	}
	first, err := s.ClaimNextPending()
	if err != nil {
		t.Fatalf("ClaimNextPending: %v", err)
	}
	if first.ID != "a" {
		t.Errorf("first claim = %q, want a", first.ID)
	}
}

func TestSetLastSavedItem(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveUser(User{ID: "u1", PhoneNumber: "+15550001111"}); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	if err := s.SetLastSavedItem("u1", "i42"); err != nil {
		t.Fatalf("SetLastSavedItem: %v", err)
	}
	u, err := s.GetUser("u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.LastSavedItemID != "i42" {
		t.Errorf("LastSavedItemID = %q, want i42", u.LastSavedItemID)
	}
	if err := s.SetLastSavedItem("ghost", "i1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown user: err = %v, want ErrNotFound", err)
	}
}
