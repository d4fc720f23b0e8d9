package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// Frequency is how often a topic is checked for new literature.
type Frequency string

const (
	FrequencyWeekly      Frequency = "weekly"
	FrequencyMonthly     Frequency = "monthly"
	FrequencyQuarterly   Frequency = "quarterly"
	FrequencyCustomRange Frequency = "custom_range"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyCustomRange:
		return true
	}
	return false
}

// Channel is a notification delivery channel.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelAppPush Channel = "app_push"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelAppPush
}

// UpdateStatus is the outcome of a detection run.
type UpdateStatus string

const (
	UpdateSuccess UpdateStatus = "success"
	UpdateFailed  UpdateStatus = "failed"
)

// PushStatus is the delivery state of a pushed deck.
type PushStatus string

const (
	PushSuccess PushStatus = "success"
	PushFailed  PushStatus = "failed"
	PushPending PushStatus = "pending"
)

// Topic is a monitored subject with its detection and deck settings.
type Topic struct {
	ID                   int64     `db:"id" json:"id"`
	Name                 string    `db:"name" json:"name"`
	Keywords             []string  `json:"keywords" db:"-"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	LastUpdated          time.Time `db:"last_updated" json:"last_updated"`
	Frequency            Frequency `db:"frequency" json:"frequency"`
	CustomDateRange      *string   `db:"custom_date_range" json:"custom_date_range,omitempty"`
	DetectionTime        *string   `db:"detection_time" json:"detection_time,omitempty"`
	NotificationChannels []Channel `json:"notification_channels" db:"-"`
	Template             string    `db:"template" json:"template"`
	KeywordsJSON         string    `json:"-" db:"keywords"`
	ChannelsJSON         string    `json:"-" db:"notification_channels"`
}

// TopicUpdate is a partial topic mutation. Nil fields are left untouched.
type TopicUpdate struct {
	Name                 *string
	Keywords             []string
	Frequency            *Frequency
	CustomDateRange      *string
	DetectionTime        *string
	NotificationChannels []Channel
	Template             *string
}

// UpdateRecord is one detection/update attempt for a topic. Immutable.
type UpdateRecord struct {
	ID             int64        `db:"id" json:"id"`
	TopicID        int64        `db:"topic_id" json:"topic_id"`
	Timestamp      time.Time    `db:"timestamp" json:"timestamp"`
	Status         UpdateStatus `db:"status" json:"status"`
	PPTPreviewLink *string      `db:"ppt_preview_link" json:"ppt_preview_link,omitempty"`
}

// Literature is a tracked publication attributed to a topic. Append-only.
type Literature struct {
	ID              int64     `db:"id" json:"id"`
	TopicID         int64     `db:"topic_id" json:"topic_id"`
	Title           string    `db:"title" json:"title"`
	Authors         []string  `json:"authors" db:"-"`
	PublicationDate time.Time `db:"publication_date" json:"publication_date"`
	JournalName     string    `db:"journal_name" json:"journal_name"`
	Keywords        []string  `json:"keywords" db:"-"`
	Summary         string    `db:"summary" json:"summary"`
	LiteratureType  string    `db:"literature_type" json:"literature_type"`
	AuthorsJSON     string    `json:"-" db:"authors"`
	KeywordsJSON    string    `json:"-" db:"keywords"`
}

// PushRecord is one delivery of a generated deck. Append-only.
//
// TopicID carries no foreign key: the ledger outlives its topic, and lineage
// groups by id rather than the display name so a rename cannot fragment it.
type PushRecord struct {
	ID             int64      `db:"id" json:"id"`
	TopicID        int64      `db:"topic_id" json:"topic_id"`
	TopicName      string     `db:"topic_name" json:"topic_name"`
	PushTime       time.Time  `db:"push_time" json:"push_time"`
	PPTFilename    string     `db:"ppt_filename" json:"ppt_filename"`
	Recipients     []string   `json:"recipients" db:"-"`
	Channel        string     `db:"channel" json:"channel"`
	Status         PushStatus `db:"status" json:"status"`
	DiffSummary    *string    `db:"diff_summary" json:"diff_summary"`
	RecipientsJSON string     `json:"-" db:"recipients"`
}

// Diff links a push record to its immediate predecessor in the same lineage.
type Diff struct {
	ID               int64     `db:"id" json:"id"`
	CurrentRecordID  int64     `db:"current_record_id" json:"current_record_id"`
	PreviousRecordID int64     `db:"previous_record_id" json:"previous_record_id"`
	Summary          string    `db:"summary" json:"summary"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// TrendPoint is a per-month literature count.
type TrendPoint struct {
	Month string `db:"month" json:"date"`
	Count int    `db:"count" json:"count"`
}

// DistributionPoint is a per-type literature count.
type DistributionPoint struct {
	Type  string `db:"literature_type" json:"type"`
	Count int    `db:"count" json:"count"`
}

// Store is the persistence interface.
type Store interface {
	CreateTopic(ctx context.Context, t *Topic) error
	GetTopic(ctx context.Context, id int64) (*Topic, error)
	ListTopics(ctx context.Context, offset, limit int) ([]Topic, error)
	UpdateTopic(ctx context.Context, id int64, upd TopicUpdate) (*Topic, error)
	DeleteTopic(ctx context.Context, id int64) (bool, error)

	AddUpdateRecord(ctx context.Context, r *UpdateRecord) error
	ListTopicHistory(ctx context.Context, topicID int64) ([]UpdateRecord, error)
	LatestUpdateRecord(ctx context.Context, topicID int64) (*UpdateRecord, error)

	InsertLiterature(ctx context.Context, l *Literature) error
	CountLiterature(ctx context.Context, topicID int64) (int, error)
	CountLiteratureByType(ctx context.Context, topicID int64, pattern string) (int, error)
	LiteratureTrend(ctx context.Context, topicID int64, since time.Time) ([]TrendPoint, error)
	LiteratureDistribution(ctx context.Context, topicID int64) ([]DistributionPoint, error)
	ListLiterature(ctx context.Context, topicID int64, offset, limit int) ([]Literature, error)

	InsertPushRecord(ctx context.Context, r *PushRecord) error
	InsertPushRecordWithDiff(ctx context.Context, r *PushRecord, previousID int64, summary string) error
	LatestPushBefore(ctx context.Context, topicID int64, before time.Time) (*PushRecord, error)
	ListAllPushRecords(ctx context.Context) ([]PushRecord, error)
	ListDiffs(ctx context.Context) ([]Diff, error)
	CreateDiff(ctx context.Context, d *Diff) error
	ListPushHistory(ctx context.Context, offset, limit int) ([]PushRecord, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateTopic(ctx context.Context, t *Topic) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.LastUpdated.IsZero() {
		t.LastUpdated = now
	}
	if t.Frequency == "" {
		t.Frequency = FrequencyWeekly
	}
	if len(t.NotificationChannels) == 0 {
		t.NotificationChannels = []Channel{ChannelEmail}
	}
	if t.Template == "" {
		t.Template = "default"
	}

	keywordsJSON, _ := json.Marshal(t.Keywords)
	channelsJSON, _ := json.Marshal(t.NotificationChannels)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO topics (name, keywords, created_at, last_updated, frequency, custom_date_range, detection_time, notification_channels, template)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.Name, string(keywordsJSON), t.CreatedAt, t.LastUpdated, t.Frequency,
		t.CustomDateRange, t.DetectionTime, string(channelsJSON), t.Template)
	if err != nil {
		return fmt.Errorf("create topic %q: %w", t.Name, err)
	}
	t.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) GetTopic(ctx context.Context, id int64) (*Topic, error) {
	var t Topic
	err := s.db.GetContext(ctx, &t, "SELECT * FROM topics WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("topic %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get topic %d: %w", id, err)
	}
	decodeTopic(&t)
	return &t, nil
}

func (s *SQLiteStore) ListTopics(ctx context.Context, offset, limit int) ([]Topic, error) {
	if limit <= 0 {
		limit = 100
	}
	var topics []Topic
	err := s.db.SelectContext(ctx, &topics,
		"SELECT * FROM topics ORDER BY id LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	for i := range topics {
		decodeTopic(&topics[i])
	}
	return topics, nil
}

// UpdateTopic applies a partial update in a single statement. Absent fields
// keep their prior values; last_updated is always bumped.
func (s *SQLiteStore) UpdateTopic(ctx context.Context, id int64, upd TopicUpdate) (*Topic, error) {
	sets := []string{"last_updated = ?"}
	args := []any{time.Now().UTC()}

	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.Keywords != nil {
		keywordsJSON, _ := json.Marshal(upd.Keywords)
		sets = append(sets, "keywords = ?")
		args = append(args, string(keywordsJSON))
	}
	if upd.Frequency != nil {
		sets = append(sets, "frequency = ?")
		args = append(args, *upd.Frequency)
	}
	if upd.CustomDateRange != nil {
		sets = append(sets, "custom_date_range = ?")
		args = append(args, *upd.CustomDateRange)
	}
	if upd.DetectionTime != nil {
		sets = append(sets, "detection_time = ?")
		args = append(args, *upd.DetectionTime)
	}
	if upd.NotificationChannels != nil {
		channelsJSON, _ := json.Marshal(upd.NotificationChannels)
		sets = append(sets, "notification_channels = ?")
		args = append(args, string(channelsJSON))
	}
	if upd.Template != nil {
		sets = append(sets, "template = ?")
		args = append(args, *upd.Template)
	}

	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		"UPDATE topics SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("update topic %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("topic %d: %w", id, ErrNotFound)
	}
	return s.GetTopic(ctx, id)
}

// DeleteTopic removes a topic and, via foreign keys, its literature and update
// history. Push records are retained.
func (s *SQLiteStore) DeleteTopic(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM topics WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete topic %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) AddUpdateRecord(ctx context.Context, r *UpdateRecord) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO update_records (topic_id, timestamp, status, ppt_preview_link)
		VALUES (?, ?, ?, ?)
	`, r.TopicID, r.Timestamp, r.Status, r.PPTPreviewLink)
	if err != nil {
		return fmt.Errorf("add update record for topic %d: %w", r.TopicID, err)
	}
	r.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) ListTopicHistory(ctx context.Context, topicID int64) ([]UpdateRecord, error) {
	var records []UpdateRecord
	err := s.db.SelectContext(ctx, &records,
		"SELECT * FROM update_records WHERE topic_id = ? ORDER BY timestamp", topicID)
	if err != nil {
		return nil, fmt.Errorf("list history for topic %d: %w", topicID, err)
	}
	return records, nil
}

func (s *SQLiteStore) LatestUpdateRecord(ctx context.Context, topicID int64) (*UpdateRecord, error) {
	var r UpdateRecord
	err := s.db.GetContext(ctx, &r,
		"SELECT * FROM update_records WHERE topic_id = ? ORDER BY timestamp DESC LIMIT 1", topicID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update record for topic %d: %w", topicID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest update record for topic %d: %w", topicID, err)
	}
	return &r, nil
}

func decodeTopic(t *Topic) {
	json.Unmarshal([]byte(t.KeywordsJSON), &t.Keywords)
	json.Unmarshal([]byte(t.ChannelsJSON), &t.NotificationChannels)
}
