package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"medbrief/internal/store"
	"medbrief/pkg/analysis"
	"medbrief/pkg/compare"
	"medbrief/pkg/deckgen"
	"medbrief/pkg/lineage"
	"medbrief/pkg/push"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	eng := lineage.NewEngine(s, nil, compare.StaticComparator{})
	srv := New(s, analysis.NewAnalyzer(s), eng, nil, push.NewManager(nil), t.TempDir(), 0)
	return srv, s
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func createTopic(t *testing.T, srv *Server, name string) int64 {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/topics", map[string]any{
		"name":     name,
		"keywords": []string{"CLL", "Venetoclax"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var topic store.Topic
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &topic))
	return topic.ID
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateTopic(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/topics", map[string]any{
		"name":     "CLL",
		"keywords": []string{"CLL"},
		"settings": map[string]any{
			"frequency":             "quarterly",
			"notification_channels": []string{"email", "app_push"},
		},
		"ppt_settings": map[string]any{"template": "modern_blue"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var topic store.Topic
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &topic))
	require.NotZero(t, topic.ID)
	require.Equal(t, store.FrequencyQuarterly, topic.Frequency)
	require.Equal(t, "modern_blue", topic.Template)
}

func TestCreateTopicValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/topics", map[string]any{
		"keywords": []string{"CLL"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, "name is required")

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/topics", map[string]any{
		"name":     "CLL",
		"settings": map[string]any{"frequency": "daily"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, "unknown frequency rejected")

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/topics", map[string]any{
		"name":     "CLL",
		"settings": map[string]any{"notification_channels": []string{"sms"}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, "unknown channel rejected")
}

func TestListTopicsEnvelope(t *testing.T) {
	srv, _ := newTestServer(t)
	createTopic(t, srv, "CLL")
	createTopic(t, srv, "Multiple Myeloma")

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/topics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data  []store.Topic `json:"data"`
		Count int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	require.Len(t, resp.Data, 2)
}

func TestGetTopicNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/topics/99", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/topics/abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateTopicPartial(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createTopic(t, srv, "CLL")

	rec := doJSON(t, srv, http.MethodPut, fmt.Sprintf("/api/v1/topics/%d", id), map[string]any{
		"settings": map[string]any{"frequency": "monthly"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var topic store.Topic
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &topic))
	require.Equal(t, store.FrequencyMonthly, topic.Frequency)
	require.Equal(t, "CLL", topic.Name, "absent fields keep their values")
	require.Equal(t, []string{"CLL", "Venetoclax"}, topic.Keywords)
}

func TestUpdateTopicNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPut, "/api/v1/topics/99", map[string]any{"name": "x"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteTopic(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createTopic(t, srv, "CLL")

	rec := doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/v1/topics/%d", id), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/topics/%d", id), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/v1/topics/%d", id), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTopicHistory(t *testing.T) {
	srv, s := newTestServer(t)
	id := createTopic(t, srv, "CLL")

	rec := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/topics/%d/history", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		TopicID int64                `json:"topic_id"`
		Updates []store.UpdateRecord `json:"updates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, id, resp.TopicID)
	require.NotNil(t, resp.Updates)
	require.Empty(t, resp.Updates)

	require.NoError(t, s.AddUpdateRecord(context.Background(), &store.UpdateRecord{
		TopicID: id, Status: store.UpdateSuccess,
	}))

	rec = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/topics/%d/history", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Updates, 1)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/topics/99/history", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateLiterature(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createTopic(t, srv, "CLL")

	rec := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/topics/%d/literature", id), map[string]any{
		"title":            "MRD-guided therapy in CLL",
		"authors":          []string{"Munir, T."},
		"publication_date": time.Now().UTC().Format(time.RFC3339),
		"journal_name":     "NEJM",
		"literature_type":  "Clinical Trial",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/topics/%d/literature", id), map[string]any{
		"publication_date": time.Now().UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, "title is required")

	rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/topics/%d/literature", id), map[string]any{
		"title": "no date",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, "publication_date is required")

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/topics/99/literature", map[string]any{
		"title":            "orphan",
		"publication_date": time.Now().UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLiteratureAnalysis(t *testing.T) {
	srv, s := newTestServer(t)
	id := createTopic(t, srv, "CLL")

	rec := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/topics/%d/literature-analysis", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Stats struct {
			TotalCount         int `json:"total_count"`
			ClinicalTrialCount int `json:"clinical_trial_count"`
		} `json:"stats"`
		Trend        []json.RawMessage `json:"trend_data"`
		Distribution []json.RawMessage `json:"distribution_data"`
		Literature   []json.RawMessage `json:"literature"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Zero(t, resp.Stats.TotalCount)
	require.NotNil(t, resp.Trend, "empty topic yields empty arrays, not null")
	require.NotNil(t, resp.Distribution)
	require.NotNil(t, resp.Literature)

	require.NoError(t, s.InsertLiterature(context.Background(), &store.Literature{
		TopicID:         id,
		Title:           "trial",
		PublicationDate: time.Now().UTC(),
		LiteratureType:  "Clinical Trial",
	}))

	rec = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/topics/%d/literature-analysis", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Stats.TotalCount)
	require.Equal(t, 1, resp.Stats.ClinicalTrialCount)
	require.Len(t, resp.Literature, 1)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/topics/99/literature-analysis", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateUnconfigured(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createTopic(t, srv, "CLL")

	rec := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/topics/%d/generate", id), nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// newGenTestServer wires a server to local deck agents serving one-chunk
// SSE responses.
func newGenTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"result":{"artifact":{"parts":[{"kind":"text","text":"# Slide 1"}]}}}`+"\n\n")
	}))
	t.Cleanup(agent.Close)

	decksDir := t.TempDir()
	eng := lineage.NewEngine(s, nil, compare.StaticComparator{})
	gen := deckgen.New(agent.URL, agent.URL, 5*time.Second)
	srv := New(s, analysis.NewAnalyzer(s), eng, gen, push.NewManager(nil), decksDir, 0)
	return srv, decksDir
}

func TestGenerate(t *testing.T) {
	srv, decksDir := newGenTestServer(t)
	id := createTopic(t, srv, "CLL/2025 review")

	rec := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/topics/%d/generate", id), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		PPTFilename string `json:"ppt_filename"`
		Status      string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotContains(t, resp.PPTFilename, "/", "topic name separators never reach the filename")
	require.True(t, strings.HasPrefix(resp.PPTFilename, "CLL_2025 review_"))

	content, err := os.ReadFile(filepath.Join(decksDir, resp.PPTFilename))
	require.NoError(t, err)
	require.Equal(t, "# Slide 1", string(content))
}

func TestGenerateMalformedBody(t *testing.T) {
	srv, _ := newGenTestServer(t)
	id := createTopic(t, srv, "CLL")

	req := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/api/v1/topics/%d/generate", id),
		strings.NewReader(`{"language": `))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// An empty body still means default options.
	rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/topics/%d/generate", id), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestPushHistory(t *testing.T) {
	srv, s := newTestServer(t)
	ctx := context.Background()

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/ppt-history", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data  []store.PushRecord `json:"data"`
		Count int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data)
	require.Zero(t, resp.Count)

	now := time.Now().UTC()
	first := store.PushRecord{TopicID: 1, TopicName: "CLL", PushTime: now.Add(-time.Hour), PPTFilename: "q1.pptx"}
	require.NoError(t, s.InsertPushRecord(ctx, &first))
	second := store.PushRecord{TopicID: 1, TopicName: "CLL", PushTime: now, PPTFilename: "q2.pptx"}
	require.NoError(t, s.InsertPushRecordWithDiff(ctx, &second, first.ID, "updated trial data"))

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/ppt-history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	require.Equal(t, "q2.pptx", resp.Data[0].PPTFilename)
	require.NotNil(t, resp.Data[0].DiffSummary)
	require.Equal(t, "updated trial data", *resp.Data[0].DiffSummary)
	require.Nil(t, resp.Data[1].DiffSummary)
}
