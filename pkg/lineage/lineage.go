package lineage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"medbrief/internal/store"
)

// TextExtractor returns the plain text of a stored deck file.
type TextExtractor interface {
	Extract(ctx context.Context, filename string) (string, error)
}

// Comparator produces a textual difference summary of two deck texts.
type Comparator interface {
	Compare(ctx context.Context, prevText, curText, prevLabel, curLabel string) (string, error)
}

// Engine maintains push/diff lineage: every push record is linked to its
// immediate predecessor within the same topic, never skipping or duplicating.
type Engine struct {
	store      store.Store
	extractor  TextExtractor
	comparator Comparator
}

// NewEngine creates a lineage engine.
func NewEngine(s store.Store, extractor TextExtractor, comparator Comparator) *Engine {
	return &Engine{store: s, extractor: extractor, comparator: comparator}
}

// Record inserts a new push record and, when a predecessor exists, creates
// the diff linking them in the same transaction. The first push of a topic
// gets no diff. A comparator or extractor failure aborts the whole operation;
// nothing is inserted.
func (e *Engine) Record(ctx context.Context, rec *store.PushRecord) (*store.Diff, error) {
	if rec.PushTime.IsZero() {
		rec.PushTime = time.Now().UTC()
	}

	prev, err := e.store.LatestPushBefore(ctx, rec.TopicID, rec.PushTime)
	if errors.Is(err, store.ErrNotFound) {
		if err := e.store.InsertPushRecord(ctx, rec); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	summary, err := e.summarize(ctx, prev, rec)
	if err != nil {
		return nil, err
	}

	if err := e.store.InsertPushRecordWithDiff(ctx, rec, prev.ID, summary); err != nil {
		return nil, err
	}
	return &store.Diff{
		CurrentRecordID:  rec.ID,
		PreviousRecordID: prev.ID,
		Summary:          summary,
	}, nil
}

// Backfill scans the whole ledger, groups records by topic, sorts each group
// by push time, and creates the missing diff for every adjacent pair. Pairs
// already linked are skipped. Returns the number of diffs created.
func (e *Engine) Backfill(ctx context.Context) (int, error) {
	records, err := e.store.ListAllPushRecords(ctx)
	if err != nil {
		return 0, err
	}

	existing, err := e.store.ListDiffs(ctx)
	if err != nil {
		return 0, err
	}
	linked := make(map[int64]bool, len(existing))
	for _, d := range existing {
		linked[d.CurrentRecordID] = true
	}

	groups := make(map[int64][]store.PushRecord)
	for _, r := range records {
		groups[r.TopicID] = append(groups[r.TopicID], r)
	}

	created := 0
	for _, group := range groups {
		sort.Slice(group, func(i, j int) bool {
			return group[i].PushTime.Before(group[j].PushTime)
		})

		for i := 1; i < len(group); i++ {
			cur := group[i]
			if linked[cur.ID] {
				continue
			}
			prev := group[i-1]

			summary, err := e.summarize(ctx, &prev, &cur)
			if err != nil {
				return created, fmt.Errorf("summarize %s -> %s: %w", prev.PPTFilename, cur.PPTFilename, err)
			}

			if err := e.store.CreateDiff(ctx, &store.Diff{
				CurrentRecordID:  cur.ID,
				PreviousRecordID: prev.ID,
				Summary:          summary,
			}); err != nil {
				return created, err
			}
			created++
		}
	}
	return created, nil
}

func (e *Engine) summarize(ctx context.Context, prev, cur *store.PushRecord) (string, error) {
	var prevText, curText string
	if e.extractor != nil {
		var err error
		prevText, err = e.extractor.Extract(ctx, prev.PPTFilename)
		if err != nil {
			return "", fmt.Errorf("extract %s: %w", prev.PPTFilename, err)
		}
		curText, err = e.extractor.Extract(ctx, cur.PPTFilename)
		if err != nil {
			return "", fmt.Errorf("extract %s: %w", cur.PPTFilename, err)
		}
	}
	return e.comparator.Compare(ctx, prevText, curText, prev.PPTFilename, cur.PPTFilename)
}
