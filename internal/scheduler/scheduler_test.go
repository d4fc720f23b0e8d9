package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"medbrief/internal/store"
	"medbrief/pkg/compare"
	"medbrief/pkg/deckgen"
	"medbrief/pkg/fetch"
	"medbrief/pkg/lineage"
	"medbrief/pkg/push"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newDetectScheduler(s store.Store, sources []fetch.Source) *Scheduler {
	return New(s, sources, nil, nil, nil, "", deckgen.Options{}, time.Hour)
}

type fakeSource struct {
	entries []store.Literature
	err     error
	calls   int
}

func (f *fakeSource) Name() string { return "fake" }
func (f *fakeSource) Fetch(ctx context.Context, topic *store.Topic) ([]store.Literature, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]store.Literature, len(f.entries))
	copy(out, f.entries)
	for i := range out {
		out[i].TopicID = topic.ID
	}
	return out, nil
}

// agentStub serves a single-chunk SSE response in the deck agents' format.
func agentStub(t *testing.T, text string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: {\"result\":{\"artifact\":{\"parts\":[{\"kind\":\"text\",\"text\":%q}]}}}\n\n", text)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunOnceFetchesDueTopic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	topic := store.Topic{Name: "CLL", Frequency: store.FrequencyWeekly}
	require.NoError(t, s.CreateTopic(ctx, &topic))

	src := &fakeSource{entries: []store.Literature{
		{Title: "new trial", PublicationDate: time.Now().UTC(), LiteratureType: "Clinical Trial"},
	}}
	sched := newDetectScheduler(s, []fetch.Source{src})
	sched.RunOnce(ctx)

	require.Equal(t, 1, src.calls, "a topic with no runs yet is due")

	count, err := s.CountLiterature(ctx, topic.ID)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	latest, err := s.LatestUpdateRecord(ctx, topic.ID)
	require.NoError(t, err)
	require.Equal(t, store.UpdateSuccess, latest.Status)
	require.Nil(t, latest.PPTPreviewLink, "no deck pipeline configured")
}

func TestRunOnceSkipsRecentlyUpdated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	topic := store.Topic{Name: "CLL", Frequency: store.FrequencyWeekly}
	require.NoError(t, s.CreateTopic(ctx, &topic))
	require.NoError(t, s.AddUpdateRecord(ctx, &store.UpdateRecord{
		TopicID:   topic.ID,
		Timestamp: time.Now().UTC().Add(-24 * time.Hour),
		Status:    store.UpdateSuccess,
	}))

	src := &fakeSource{}
	newDetectScheduler(s, []fetch.Source{src}).RunOnce(ctx)
	require.Zero(t, src.calls, "a weekly topic updated yesterday is not due")
}

func TestRunOnceRefetchesAfterInterval(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	topic := store.Topic{Name: "CLL", Frequency: store.FrequencyWeekly}
	require.NoError(t, s.CreateTopic(ctx, &topic))
	require.NoError(t, s.AddUpdateRecord(ctx, &store.UpdateRecord{
		TopicID:   topic.ID,
		Timestamp: time.Now().UTC().Add(-8 * 24 * time.Hour),
		Status:    store.UpdateSuccess,
	}))

	src := &fakeSource{}
	newDetectScheduler(s, []fetch.Source{src}).RunOnce(ctx)
	require.Equal(t, 1, src.calls)
}

func TestRunOnceSkipsCustomRangeTopics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	topic := store.Topic{Name: "CLL archive", Frequency: store.FrequencyCustomRange}
	require.NoError(t, s.CreateTopic(ctx, &topic))

	src := &fakeSource{}
	newDetectScheduler(s, []fetch.Source{src}).RunOnce(ctx)
	require.Zero(t, src.calls, "custom range topics are driven manually")
}

func TestRunOnceRecordsFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	topic := store.Topic{Name: "CLL", Frequency: store.FrequencyWeekly}
	require.NoError(t, s.CreateTopic(ctx, &topic))

	src := &fakeSource{err: errors.New("feed unreachable")}
	newDetectScheduler(s, []fetch.Source{src}).RunOnce(ctx)

	latest, err := s.LatestUpdateRecord(ctx, topic.ID)
	require.NoError(t, err)
	require.Equal(t, store.UpdateFailed, latest.Status)
}

func TestRunOnceGeneratesDeckAfterDetection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	topic := store.Topic{
		Name:                 "CLL",
		Frequency:            store.FrequencyWeekly,
		NotificationChannels: []store.Channel{store.ChannelAppPush},
	}
	require.NoError(t, s.CreateTopic(ctx, &topic))

	outline := agentStub(t, "1. Epidemiology")
	deck := agentStub(t, "# Slide 1")

	var pushed int
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushed++
		w.WriteHeader(http.StatusOK)
	}))
	defer receiver.Close()

	decksDir := t.TempDir()
	src := &fakeSource{entries: []store.Literature{
		{Title: "new trial", PublicationDate: time.Now().UTC(), LiteratureType: "Clinical Trial"},
	}}
	sched := New(
		s,
		[]fetch.Source{src},
		deckgen.New(outline.URL, deck.URL, 5*time.Second),
		lineage.NewEngine(s, nil, compare.StaticComparator{Summary: "first deck"}),
		push.NewManager([]push.Notifier{push.NewAppPush(receiver.URL, "secret")}),
		decksDir,
		deckgen.Options{Language: "English", SlideCount: 8},
		time.Hour,
	)
	sched.RunOnce(ctx)

	latest, err := s.LatestUpdateRecord(ctx, topic.ID)
	require.NoError(t, err)
	require.Equal(t, store.UpdateSuccess, latest.Status)
	require.NotNil(t, latest.PPTPreviewLink)
	require.Equal(t, "/PPT/CLL_"+time.Now().UTC().Format("2006-01-02")+".md", *latest.PPTPreviewLink)

	content, err := os.ReadFile(filepath.Join(decksDir, "CLL_"+time.Now().UTC().Format("2006-01-02")+".md"))
	require.NoError(t, err)
	require.Equal(t, "# Slide 1", string(content))

	require.Equal(t, 1, pushed)

	pushes, err := s.ListPushHistory(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, pushes, 1)
	require.Equal(t, store.PushSuccess, pushes[0].Status)
	require.Equal(t, "scheduler", pushes[0].Channel)
}

func TestRunOnceSurvivesGenerationFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	topic := store.Topic{Name: "CLL", Frequency: store.FrequencyWeekly}
	require.NoError(t, s.CreateTopic(ctx, &topic))

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	src := &fakeSource{entries: []store.Literature{
		{Title: "new trial", PublicationDate: time.Now().UTC(), LiteratureType: "Clinical Trial"},
	}}
	sched := New(
		s,
		[]fetch.Source{src},
		deckgen.New(broken.URL, broken.URL, 5*time.Second),
		lineage.NewEngine(s, nil, compare.StaticComparator{}),
		push.NewManager(nil),
		t.TempDir(),
		deckgen.Options{},
		time.Hour,
	)
	sched.RunOnce(ctx)

	// Detection itself still succeeds; the record just carries no link.
	latest, err := s.LatestUpdateRecord(ctx, topic.ID)
	require.NoError(t, err)
	require.Equal(t, store.UpdateSuccess, latest.Status)
	require.Nil(t, latest.PPTPreviewLink)
}

func TestDetectionInterval(t *testing.T) {
	d, ok := detectionInterval(store.FrequencyWeekly)
	require.True(t, ok)
	require.Equal(t, 7*24*time.Hour, d)

	d, ok = detectionInterval(store.FrequencyMonthly)
	require.True(t, ok)
	require.Equal(t, 30*24*time.Hour, d)

	d, ok = detectionInterval(store.FrequencyQuarterly)
	require.True(t, ok)
	require.Equal(t, 90*24*time.Hour, d)

	_, ok = detectionInterval(store.FrequencyCustomRange)
	require.False(t, ok)
}
