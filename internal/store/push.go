package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

func (s *SQLiteStore) InsertPushRecord(ctx context.Context, r *PushRecord) error {
	if r.PushTime.IsZero() {
		r.PushTime = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = PushPending
	}
	recipientsJSON, _ := json.Marshal(r.Recipients)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ppt_push_records (topic_id, topic_name, push_time, ppt_filename, recipients, channel, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.TopicID, r.TopicName, r.PushTime, r.PPTFilename,
		string(recipientsJSON), r.Channel, r.Status)
	if err != nil {
		return fmt.Errorf("insert push record %q: %w", r.PPTFilename, err)
	}
	r.ID, _ = res.LastInsertId()
	return nil
}

// InsertPushRecordWithDiff inserts a push record together with the diff
// linking it to previousID, atomically. A crash cannot leave the record
// without its diff.
func (s *SQLiteStore) InsertPushRecordWithDiff(ctx context.Context, r *PushRecord, previousID int64, summary string) error {
	if r.PushTime.IsZero() {
		r.PushTime = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = PushPending
	}
	recipientsJSON, _ := json.Marshal(r.Recipients)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin push tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO ppt_push_records (topic_id, topic_name, push_time, ppt_filename, recipients, channel, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.TopicID, r.TopicName, r.PushTime, r.PPTFilename,
		string(recipientsJSON), r.Channel, r.Status)
	if err != nil {
		return fmt.Errorf("insert push record %q: %w", r.PPTFilename, err)
	}
	id, _ := res.LastInsertId()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ppt_diffs (current_record_id, previous_record_id, summary, created_at)
		VALUES (?, ?, ?, ?)
	`, id, previousID, summary, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert diff for push %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit push tx: %w", err)
	}
	r.ID = id
	return nil
}

// LatestPushBefore returns the push record with the largest push_time strictly
// less than before for the given topic, or ErrNotFound if the lineage is empty.
func (s *SQLiteStore) LatestPushBefore(ctx context.Context, topicID int64, before time.Time) (*PushRecord, error) {
	var r PushRecord
	err := s.db.GetContext(ctx, &r, `
		SELECT * FROM ppt_push_records
		WHERE topic_id = ? AND push_time < ?
		ORDER BY push_time DESC
		LIMIT 1
	`, topicID, before)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("predecessor push for topic %d: %w", topicID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest push before for topic %d: %w", topicID, err)
	}
	decodePushRecord(&r)
	return &r, nil
}

func (s *SQLiteStore) ListAllPushRecords(ctx context.Context) ([]PushRecord, error) {
	var records []PushRecord
	err := s.db.SelectContext(ctx, &records,
		"SELECT * FROM ppt_push_records ORDER BY topic_id, push_time")
	if err != nil {
		return nil, fmt.Errorf("list push records: %w", err)
	}
	for i := range records {
		decodePushRecord(&records[i])
	}
	return records, nil
}

func (s *SQLiteStore) ListDiffs(ctx context.Context) ([]Diff, error) {
	var diffs []Diff
	err := s.db.SelectContext(ctx, &diffs, "SELECT * FROM ppt_diffs ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list diffs: %w", err)
	}
	return diffs, nil
}

func (s *SQLiteStore) CreateDiff(ctx context.Context, d *Diff) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ppt_diffs (current_record_id, previous_record_id, summary, created_at)
		VALUES (?, ?, ?, ?)
	`, d.CurrentRecordID, d.PreviousRecordID, d.Summary, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("create diff %d<-%d: %w", d.CurrentRecordID, d.PreviousRecordID, err)
	}
	d.ID, _ = res.LastInsertId()
	return nil
}

// ListPushHistory returns push records newest first, each with the summary of
// its outgoing diff when one exists.
func (s *SQLiteStore) ListPushHistory(ctx context.Context, offset, limit int) ([]PushRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []PushRecord
	err := s.db.SelectContext(ctx, &records, `
		SELECT p.*, d.summary AS diff_summary
		FROM ppt_push_records p
		LEFT JOIN ppt_diffs d ON d.current_record_id = p.id
		ORDER BY p.push_time DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list push history: %w", err)
	}
	for i := range records {
		decodePushRecord(&records[i])
	}
	return records, nil
}

func decodePushRecord(r *PushRecord) {
	json.Unmarshal([]byte(r.RecipientsJSON), &r.Recipients)
}
