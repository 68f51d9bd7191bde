package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for users, items, and the
// pending-work queue.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "secondbrain.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// DB exposes the underlying connection for the vector store.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func nowMS() int64 {
	return time.Now().UTC().UnixMilli()
}

// --- Users ---

func (s *Store) SaveUser(u User) error {
	createdAt := u.CreatedAt
	if createdAt == 0 {
		createdAt = nowMS()
	}
	profile := u.ReminderProfile
	if profile == "" {
		profile = "smart"
	}
	_, err := s.db.Exec(`
		INSERT INTO users (id, phone_number, reminders_enabled, reminder_profile, last_saved_item_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.PhoneNumber, boolToInt(u.RemindersEnabled), profile, u.LastSavedItemID, createdAt,
	)
	return err
}

func (s *Store) GetUser(id string) (User, error) {
	return s.scanUser(s.db.QueryRow(`
		SELECT id, phone_number, reminders_enabled, reminder_profile, last_saved_item_id, created_at
		FROM users WHERE id = ?`, id))
}

var nonDigits = regexp.MustCompile(`\D`)

// FindUserByPhone looks up a user by phone number. Matching is robust to
// formatting: both "+<digits>" and bare digit forms are tried.
func (s *Store) FindUserByPhone(phone string) (User, error) {
	clean := nonDigits.ReplaceAllString(phone, "")
	for _, val := range []string{"+" + clean, clean} {
		u, err := s.scanUser(s.db.QueryRow(`
			SELECT id, phone_number, reminders_enabled, reminder_profile, last_saved_item_id, created_at
			FROM users WHERE phone_number = ?`, val))
		if err == nil {
			return u, nil
		}
		if err != ErrNotFound {
			return User{}, err
		}
	}
	return User{}, ErrNotFound
}

func (s *Store) scanUser(row *sql.Row) (User, error) {
	var u User
	var enabled int
	err := row.Scan(&u.ID, &u.PhoneNumber, &enabled, &u.ReminderProfile, &u.LastSavedItemID, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	u.RemindersEnabled = enabled != 0
	return u, nil
}

// ListUsersWithReminders returns all users whose reminder delivery is enabled.
func (s *Store) ListUsersWithReminders() ([]User, error) {
	rows, err := s.db.Query(`
		SELECT id, phone_number, reminders_enabled, reminder_profile, last_saved_item_id, created_at
		FROM users WHERE reminders_enabled = 1 ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var enabled int
		if err := rows.Scan(&u.ID, &u.PhoneNumber, &enabled, &u.ReminderProfile, &u.LastSavedItemID, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.RemindersEnabled = enabled != 0
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountUsers returns the total number of registered users.
func (s *Store) CountUsers() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&n)
	return n, err
}

// SetLastSavedItem updates the last-saved pointer. Last write wins by design:
// it only gives context to a sequentially following conversational command.
func (s *Store) SetLastSavedItem(userID, itemID string) error {
	res, err := s.db.Exec(`UPDATE users SET last_saved_item_id = ? WHERE id = ?`, itemID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Items ---

func (s *Store) SaveItem(it Item) error {
	createdAt := it.CreatedAt
	if createdAt == 0 {
		createdAt = nowMS()
	}
	status := it.Status
	if status == "" {
		status = "unread"
	}
	reminderStatus := it.ReminderStatus
	if reminderStatus == "" {
		reminderStatus = ReminderNone
	}
	profile := it.ReminderProfile
	if profile == "" {
		profile = "smart"
	}

	tags, err := marshalStrings(it.Tags)
	if err != nil {
		return fmt.Errorf("marshaling tags: %w", err)
	}
	concepts, err := marshalStrings(it.Concepts)
	if err != nil {
		return fmt.Errorf("marshaling concepts: %w", err)
	}
	related := "[]"
	if len(it.Related) > 0 {
		b, err := json.Marshal(it.Related)
		if err != nil {
			return fmt.Errorf("marshaling related links: %w", err)
		}
		related = string(b)
	}
	var recipe sql.NullString
	if it.Recipe != nil {
		b, err := json.Marshal(it.Recipe)
		if err != nil {
			return fmt.Errorf("marshaling recipe: %w", err)
		}
		recipe = sql.NullString{String: string(b), Valid: true}
	}
	var nextAt any
	if it.NextReminderAt != nil {
		nextAt = *it.NextReminderAt
	}

	_, err = s.db.Exec(`
		INSERT INTO items (id, owner_id, url, source_type, original_title, title, summary, detailed_summary,
			category, tags, concepts, language, confidence, takeaway, recipe, read_time, status, related,
			reminder_status, next_reminder_at, reminder_count, reminder_profile, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.OwnerID, it.URL, it.SourceType, it.OriginalTitle, it.Title, it.Summary, it.DetailedSummary,
		it.Category, tags, concepts, it.Language, it.Confidence, it.Takeaway, recipe, it.ReadTime, status, related,
		reminderStatus, nextAt, it.ReminderCount, profile, createdAt,
	)
	return err
}

const itemColumns = `id, owner_id, url, source_type, original_title, title, summary, detailed_summary,
	category, tags, concepts, language, confidence, takeaway, recipe, read_time, status, related,
	reminder_status, next_reminder_at, reminder_count, reminder_profile, created_at`

func (s *Store) GetItem(id string) (Item, error) {
	row := s.db.QueryRow(`SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return Item{}, ErrNotFound
	}
	return it, err
}

// GetItems returns the items matching the given IDs, in no particular order.
func (s *Store) GetItems(ids []string) ([]Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT ` + itemColumns + ` FROM items WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// UserTags returns the distinct tag vocabulary across a user's items, sorted.
func (s *Store) UserTags(ownerID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT tags FROM items WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var tags []string
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			continue
		}
		for _, t := range tags {
			seen[t] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// --- Reminders ---

// SetReminder arms a reminder on an item: status pending, count reset,
// due timestamp in epoch ms.
func (s *Store) SetReminder(itemID string, dueMS int64, profile string) error {
	if profile == "" {
		profile = "smart"
	}
	res, err := s.db.Exec(`
		UPDATE items SET reminder_status = ?, next_reminder_at = ?, reminder_count = 0, reminder_profile = ?
		WHERE id = ?`,
		ReminderPending, dueMS, profile, itemID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AdvanceReminder records a fired reminder: bumps the count and either
// schedules the next firing or completes the loop (clearing the due time).
func (s *Store) AdvanceReminder(itemID string, newCount int, nextAtMS *int64) error {
	var err error
	if nextAtMS == nil {
		_, err = s.db.Exec(`
			UPDATE items SET reminder_status = ?, reminder_count = ?, next_reminder_at = NULL
			WHERE id = ?`,
			ReminderCompleted, newCount, itemID,
		)
	} else {
		_, err = s.db.Exec(`
			UPDATE items SET reminder_count = ?, next_reminder_at = ? WHERE id = ?`,
			newCount, *nextAtMS, itemID,
		)
	}
	return err
}

// NormalizeReminderTimestamps rewrites legacy textual next_reminder_at values
// (RFC3339 strings from older writers) as epoch-ms integers so the due-range
// query compares a consistent numeric type. Returns the number of rows fixed.
func (s *Store) NormalizeReminderTimestamps(ownerID string) (int, error) {
	rows, err := s.db.Query(`
		SELECT id, next_reminder_at FROM items
		WHERE owner_id = ? AND reminder_status = ? AND typeof(next_reminder_at) = 'text'`,
		ownerID, ReminderPending,
	)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	type fix struct {
		id string
		ms int64
	}
	var fixes []fix
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return 0, err
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			continue
		}
		fixes = append(fixes, fix{id: id, ms: t.UnixMilli()})
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, f := range fixes {
		if _, err := s.db.Exec(`UPDATE items SET next_reminder_at = ? WHERE id = ?`, f.ms, f.id); err != nil {
			return 0, err
		}
	}
	return len(fixes), nil
}

// DueReminders returns up to limit pending items due at or before nowMS.
func (s *Store) DueReminders(ownerID string, nowMS int64, limit int) ([]Item, error) {
	rows, err := s.db.Query(`
		SELECT `+itemColumns+` FROM items
		WHERE owner_id = ? AND reminder_status = ? AND next_reminder_at <= ?
		ORDER BY next_reminder_at ASC LIMIT ?`,
		ownerID, ReminderPending, nowMS, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// --- Pending work queue ---

func (s *Store) EnqueuePending(p PendingItem) error {
	createdAt := p.CreatedAt
	if createdAt == 0 {
		createdAt = nowMS()
	}
	status := p.Status
	if status == "" {
		status = PendingQueued
	}
	_, err := s.db.Exec(`
		INSERT INTO pending_items (id, owner_id, url, raw_text, media_url, media_mime, status, attempts, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, p.URL, p.RawText, p.MediaURL, p.MediaMIME, status, p.Attempts, p.LastError, createdAt,
	)
	return err
}

// ClaimNextPending atomically claims the oldest queued item, moving it to
// processing and bumping its attempt counter. Returns nil when the queue
// is empty.
func (s *Store) ClaimNextPending() (*PendingItem, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	var p PendingItem
	err = tx.QueryRow(`
		SELECT id, owner_id, url, raw_text, media_url, media_mime, status, attempts, last_error, created_at
		FROM pending_items WHERE status = ? ORDER BY created_at ASC LIMIT 1`,
		PendingQueued,
	).Scan(&p.ID, &p.OwnerID, &p.URL, &p.RawText, &p.MediaURL, &p.MediaMIME, &p.Status, &p.Attempts, &p.LastError, &p.CreatedAt)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting next pending item: %w", err)
	}

	res, err := tx.Exec(`
		UPDATE pending_items SET status = ?, attempts = attempts + 1
		WHERE id = ? AND status = ?`,
		PendingProcessing, p.ID, PendingQueued,
	)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("claiming pending item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking claim: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	p.Status = PendingProcessing
	p.Attempts++
	return &p, nil
}

// SetPendingStatus advances a claimed item's stage marker.
func (s *Store) SetPendingStatus(id, status string) error {
	_, err := s.db.Exec(`UPDATE pending_items SET status = ? WHERE id = ?`, status, id)
	return err
}

// FailPending marks an item failed, retaining it with error detail for
// manual inspection. Failures are not retried automatically.
func (s *Store) FailPending(id, errMsg string) error {
	_, err := s.db.Exec(`UPDATE pending_items SET status = ?, last_error = ? WHERE id = ?`, PendingFailed, errMsg, id)
	return err
}

// DeletePending removes a successfully processed queue entry.
func (s *Store) DeletePending(id string) error {
	res, err := s.db.Exec(`DELETE FROM pending_items WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetPending returns a queue entry by ID.
func (s *Store) GetPending(id string) (PendingItem, error) {
	var p PendingItem
	err := s.db.QueryRow(`
		SELECT id, owner_id, url, raw_text, media_url, media_mime, status, attempts, last_error, created_at
		FROM pending_items WHERE id = ?`, id,
	).Scan(&p.ID, &p.OwnerID, &p.URL, &p.RawText, &p.MediaURL, &p.MediaMIME, &p.Status, &p.Attempts, &p.LastError, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return PendingItem{}, ErrNotFound
	}
	return p, err
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var it Item
	var tags, concepts, related string
	var recipe sql.NullString
	var nextAt any
	err := row.Scan(&it.ID, &it.OwnerID, &it.URL, &it.SourceType, &it.OriginalTitle, &it.Title, &it.Summary,
		&it.DetailedSummary, &it.Category, &tags, &concepts, &it.Language, &it.Confidence, &it.Takeaway,
		&recipe, &it.ReadTime, &it.Status, &related, &it.ReminderStatus, &nextAt, &it.ReminderCount,
		&it.ReminderProfile, &it.CreatedAt)
	if err != nil {
		return Item{}, err
	}

	if err := json.Unmarshal([]byte(tags), &it.Tags); err != nil {
		return Item{}, fmt.Errorf("parsing tags for item %s: %w", it.ID, err)
	}
	if err := json.Unmarshal([]byte(concepts), &it.Concepts); err != nil {
		return Item{}, fmt.Errorf("parsing concepts for item %s: %w", it.ID, err)
	}
	if err := json.Unmarshal([]byte(related), &it.Related); err != nil {
		return Item{}, fmt.Errorf("parsing related links for item %s: %w", it.ID, err)
	}
	if recipe.Valid {
		var r Recipe
		if err := json.Unmarshal([]byte(recipe.String), &r); err != nil {
			return Item{}, fmt.Errorf("parsing recipe for item %s: %w", it.ID, err)
		}
		it.Recipe = &r
	}
	if ms, ok := reminderMS(nextAt); ok {
		it.NextReminderAt = &ms
	}
	return it, nil
}

func scanItems(rows *sql.Rows) ([]Item, error) {
	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// reminderMS coerces a dynamically typed next_reminder_at column value to
// epoch ms. Legacy textual RFC3339 values are tolerated here; the sweep
// rewrites them in place.
func reminderMS(v any) (int64, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case int64:
		return val, true
	case float64:
		return int64(val), true
	case string:
		if t, err := time.Parse(time.RFC3339, val); err == nil {
			return t.UnixMilli(), true
		}
		return 0, false
	case []byte:
		if t, err := time.Parse(time.RFC3339, string(val)); err == nil {
			return t.UnixMilli(), true
		}
		return 0, false
	default:
		return 0, false
	}
}

func marshalStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
