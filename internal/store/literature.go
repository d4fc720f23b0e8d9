package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

func (s *SQLiteStore) InsertLiterature(ctx context.Context, l *Literature) error {
	authorsJSON, _ := json.Marshal(l.Authors)
	keywordsJSON, _ := json.Marshal(l.Keywords)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO literature (topic_id, title, authors, publication_date, journal_name, keywords, summary, literature_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, l.TopicID, l.Title, string(authorsJSON), l.PublicationDate,
		l.JournalName, string(keywordsJSON), l.Summary, l.LiteratureType)
	if err != nil {
		return fmt.Errorf("insert literature %q: %w", l.Title, err)
	}
	l.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) CountLiterature(ctx context.Context, topicID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM literature WHERE topic_id = ?", topicID)
	if err != nil {
		return 0, fmt.Errorf("count literature for topic %d: %w", topicID, err)
	}
	return count, nil
}

// CountLiteratureByType counts rows whose literature_type contains pattern,
// case-insensitively.
func (s *SQLiteStore) CountLiteratureByType(ctx context.Context, topicID int64, pattern string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM literature WHERE topic_id = ? AND literature_type LIKE ?",
		topicID, "%"+pattern+"%")
	if err != nil {
		return 0, fmt.Errorf("count literature type %q for topic %d: %w", pattern, topicID, err)
	}
	return count, nil
}

// LiteratureTrend returns per-month counts for literature published at or
// after since, ordered by month ascending. Months with no rows are absent.
func (s *SQLiteStore) LiteratureTrend(ctx context.Context, topicID int64, since time.Time) ([]TrendPoint, error) {
	var points []TrendPoint
	// substr(publication_date, 1, 7) is the "YYYY-MM" prefix of the stored
	// datetime text regardless of the exact layout the driver writes.
	err := s.db.SelectContext(ctx, &points, `
		SELECT substr(publication_date, 1, 7) AS month, COUNT(*) AS count
		FROM literature
		WHERE topic_id = ? AND publication_date >= ?
		GROUP BY month
		ORDER BY month
	`, topicID, since)
	if err != nil {
		return nil, fmt.Errorf("literature trend for topic %d: %w", topicID, err)
	}
	return points, nil
}

func (s *SQLiteStore) LiteratureDistribution(ctx context.Context, topicID int64) ([]DistributionPoint, error) {
	var points []DistributionPoint
	err := s.db.SelectContext(ctx, &points, `
		SELECT literature_type, COUNT(*) AS count
		FROM literature
		WHERE topic_id = ?
		GROUP BY literature_type
	`, topicID)
	if err != nil {
		return nil, fmt.Errorf("literature distribution for topic %d: %w", topicID, err)
	}
	return points, nil
}

func (s *SQLiteStore) ListLiterature(ctx context.Context, topicID int64, offset, limit int) ([]Literature, error) {
	if limit <= 0 {
		limit = 10
	}
	var items []Literature
	err := s.db.SelectContext(ctx, &items, `
		SELECT * FROM literature
		WHERE topic_id = ?
		ORDER BY publication_date DESC
		LIMIT ? OFFSET ?
	`, topicID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list literature for topic %d: %w", topicID, err)
	}
	for i := range items {
		json.Unmarshal([]byte(items[i].AuthorsJSON), &items[i].Authors)
		json.Unmarshal([]byte(items[i].KeywordsJSON), &items[i].Keywords)
	}
	return items, nil
}
