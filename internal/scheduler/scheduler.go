package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"medbrief/internal/store"
	"medbrief/pkg/deckgen"
	"medbrief/pkg/fetch"
	"medbrief/pkg/lineage"
	"medbrief/pkg/push"
)

// Scheduler runs the periodic detection loop over all topics. When a deck
// generation client and lineage engine are configured, each successful run
// also generates the topic's deck, notifies its channels, and records the
// push with its diff.
type Scheduler struct {
	store    store.Store
	sources  []fetch.Source
	gen      *deckgen.Client // optional, nil = detection only
	lineage  *lineage.Engine
	pusher   *push.Manager
	decksDir string
	genOpts  deckgen.Options
	interval time.Duration
}

// New creates a new scheduler.
func New(
	s store.Store,
	sources []fetch.Source,
	gen *deckgen.Client,
	eng *lineage.Engine,
	pusher *push.Manager,
	decksDir string,
	genOpts deckgen.Options,
	interval time.Duration,
) *Scheduler {
	if interval == 0 {
		interval = time.Hour
	}
	if decksDir == "" {
		decksDir = "./PPT"
	}
	return &Scheduler{
		store:    s,
		sources:  sources,
		gen:      gen,
		lineage:  eng,
		pusher:   pusher,
		decksDir: decksDir,
		genOpts:  genOpts,
		interval: interval,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start.
	fmt.Fprintln(os.Stderr, "scheduler: initial detection run...")
	s.RunOnce(ctx)

	fmt.Fprintf(os.Stderr, "scheduler: running (check every %s)\n", s.interval)

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			fmt.Fprintln(os.Stderr, "scheduler: checking topics...")
			s.RunOnce(ctx)
		}
	}
}

// RunOnce checks every topic and fetches literature for those due.
func (s *Scheduler) RunOnce(ctx context.Context) {
	topics, err := s.store.ListTopics(ctx, 0, 1000)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  list topics error: %v\n", err)
		return
	}

	now := time.Now().UTC()
	for i := range topics {
		topic := &topics[i]
		due, err := s.topicDue(ctx, topic, now)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %s due check error: %v\n", topic.Name, err)
			continue
		}
		if !due {
			continue
		}
		s.detect(ctx, topic, now)
	}
}

// topicDue reports whether a topic's detection interval has elapsed since
// its last successful run. Topics with a custom date range are driven
// manually and never picked up here.
func (s *Scheduler) topicDue(ctx context.Context, topic *store.Topic, now time.Time) (bool, error) {
	interval, ok := detectionInterval(topic.Frequency)
	if !ok {
		return false, nil
	}

	last, err := s.store.LatestUpdateRecord(ctx, topic.ID)
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return now.Sub(last.Timestamp) >= interval, nil
}

func detectionInterval(f store.Frequency) (time.Duration, bool) {
	switch f {
	case store.FrequencyWeekly:
		return 7 * 24 * time.Hour, true
	case store.FrequencyMonthly:
		return 30 * 24 * time.Hour, true
	case store.FrequencyQuarterly:
		return 90 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// detect fetches literature for one topic from every source, runs the deck
// pipeline when one is configured, and records the run's outcome.
func (s *Scheduler) detect(ctx context.Context, topic *store.Topic, now time.Time) {
	total := 0
	var failures []error
	for _, src := range s.sources {
		entries, err := src.Fetch(ctx, topic)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %s/%s error: %v\n", topic.Name, src.Name(), err)
			failures = append(failures, err)
			continue
		}
		for i := range entries {
			if err := s.store.InsertLiterature(ctx, &entries[i]); err != nil {
				fmt.Fprintf(os.Stderr, "  %s/%s store error: %v\n", topic.Name, src.Name(), err)
				failures = append(failures, err)
			}
		}
		fmt.Fprintf(os.Stderr, "  %s/%s: %d entries\n", topic.Name, src.Name(), len(entries))
		total += len(entries)
	}

	status := store.UpdateSuccess
	if total == 0 && len(failures) > 0 {
		status = store.UpdateFailed
	}

	rec := store.UpdateRecord{TopicID: topic.ID, Timestamp: now, Status: status}
	if status == store.UpdateSuccess && s.gen != nil && s.lineage != nil {
		link, err := s.generateAndPush(ctx, topic, now)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %s deck error: %v\n", topic.Name, err)
		} else {
			rec.PPTPreviewLink = &link
		}
	}
	if err := s.store.AddUpdateRecord(ctx, &rec); err != nil {
		fmt.Fprintf(os.Stderr, "  %s record error: %v\n", topic.Name, err)
	}
}

// generateAndPush runs the deck pipeline for a completed detection: generate
// the deck, store the file, notify the topic's channels, and record the push
// with its lineage diff. Returns the deck's preview link.
func (s *Scheduler) generateAndPush(ctx context.Context, topic *store.Topic, now time.Time) (string, error) {
	content, err := s.gen.Generate(ctx, topic.Name, s.genOpts)
	if err != nil {
		return "", fmt.Errorf("generate deck: %w", err)
	}

	filename := deckgen.DeckFilename(topic.Name, now)
	if err := os.MkdirAll(s.decksDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(s.decksDir, filename), []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write deck: %w", err)
	}

	link := "/PPT/" + filename
	status := store.PushSuccess
	if s.pusher != nil && s.pusher.HasNotifiers() {
		delivery := &push.Delivery{
			TopicName:   topic.Name,
			PPTFilename: filename,
			PreviewLink: link,
		}
		if err := s.pusher.Broadcast(ctx, topic.NotificationChannels, delivery); err != nil {
			fmt.Fprintf(os.Stderr, "  %s push error: %v\n", topic.Name, err)
			status = store.PushFailed
		}
	}

	if _, err := s.lineage.Record(ctx, &store.PushRecord{
		TopicID:     topic.ID,
		TopicName:   topic.Name,
		PushTime:    now,
		PPTFilename: filename,
		Channel:     "scheduler",
		Status:      status,
	}); err != nil {
		return "", fmt.Errorf("record push: %w", err)
	}
	fmt.Fprintf(os.Stderr, "  %s: deck %s pushed\n", topic.Name, filename)
	return link, nil
}
