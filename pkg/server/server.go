package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"medbrief/internal/store"
	"medbrief/pkg/analysis"
	"medbrief/pkg/deckgen"
	"medbrief/pkg/lineage"
	"medbrief/pkg/push"
)

// Server provides the HTTP API.
type Server struct {
	store    store.Store
	analyzer *analysis.Analyzer
	lineage  *lineage.Engine
	gen      *deckgen.Client // optional, nil = generation disabled
	pusher   *push.Manager
	decksDir string
	port     int
}

// New creates a new HTTP server.
func New(s store.Store, analyzer *analysis.Analyzer, eng *lineage.Engine, gen *deckgen.Client, pusher *push.Manager, decksDir string, port int) *Server {
	if port == 0 {
		port = 8080
	}
	if decksDir == "" {
		decksDir = "./PPT"
	}
	return &Server{
		store:    s,
		analyzer: analyzer,
		lineage:  eng,
		gen:      gen,
		pusher:   pusher,
		decksDir: decksDir,
		port:     port,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/v1/topics", s.handleCreateTopic)
	mux.HandleFunc("GET /api/v1/topics", s.handleListTopics)
	mux.HandleFunc("GET /api/v1/topics/{id}", s.handleGetTopic)
	mux.HandleFunc("PUT /api/v1/topics/{id}", s.handleUpdateTopic)
	mux.HandleFunc("DELETE /api/v1/topics/{id}", s.handleDeleteTopic)
	mux.HandleFunc("GET /api/v1/topics/{id}/history", s.handleTopicHistory)
	mux.HandleFunc("POST /api/v1/topics/{id}/literature", s.handleCreateLiterature)
	mux.HandleFunc("GET /api/v1/topics/{id}/literature-analysis", s.handleLiteratureAnalysis)
	mux.HandleFunc("POST /api/v1/topics/{id}/generate", s.handleGenerate)

	mux.HandleFunc("GET /api/v1/ppt-history", s.handlePushHistory)

	// Generated decks are served directly for preview links.
	mux.Handle("GET /PPT/", http.StripPrefix("/PPT/", http.FileServer(http.Dir(s.decksDir))))
	return mux
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.port)
	fmt.Fprintf(os.Stderr, "medbrief server listening on %s\n", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// topicPayload is the create/update request body. Settings groups are
// flattened onto the topic's own columns; absent fields stay untouched.
type topicPayload struct {
	Name     *string  `json:"name"`
	Keywords []string `json:"keywords"`
	Settings *struct {
		Frequency            *store.Frequency `json:"frequency"`
		CustomDateRange      *string          `json:"custom_date_range"`
		DetectionTime        *string          `json:"detection_time"`
		NotificationChannels []store.Channel  `json:"notification_channels"`
	} `json:"settings"`
	PPTSettings *struct {
		Template *string `json:"template"`
	} `json:"ppt_settings"`
}

func (p *topicPayload) validate() error {
	if p.Settings != nil {
		if f := p.Settings.Frequency; f != nil && !f.Valid() {
			return fmt.Errorf("unknown frequency %q", *f)
		}
		for _, c := range p.Settings.NotificationChannels {
			if !c.Valid() {
				return fmt.Errorf("unknown notification channel %q", c)
			}
		}
	}
	return nil
}

func (p *topicPayload) toUpdate() store.TopicUpdate {
	upd := store.TopicUpdate{
		Name:     p.Name,
		Keywords: p.Keywords,
	}
	if p.Settings != nil {
		upd.Frequency = p.Settings.Frequency
		upd.CustomDateRange = p.Settings.CustomDateRange
		upd.DetectionTime = p.Settings.DetectionTime
		upd.NotificationChannels = p.Settings.NotificationChannels
	}
	if p.PPTSettings != nil {
		upd.Template = p.PPTSettings.Template
	}
	return upd
}

func (s *Server) handleCreateTopic(w http.ResponseWriter, r *http.Request) {
	var payload topicPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	if payload.Name == nil || *payload.Name == "" {
		writeError(w, http.StatusBadRequest, errors.New("name is required"))
		return
	}
	if err := payload.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	topic := store.Topic{
		Name:     *payload.Name,
		Keywords: payload.Keywords,
	}
	if payload.Settings != nil {
		if payload.Settings.Frequency != nil {
			topic.Frequency = *payload.Settings.Frequency
		}
		topic.CustomDateRange = payload.Settings.CustomDateRange
		topic.DetectionTime = payload.Settings.DetectionTime
		topic.NotificationChannels = payload.Settings.NotificationChannels
	}
	if payload.PPTSettings != nil && payload.PPTSettings.Template != nil {
		topic.Template = *payload.PPTSettings.Template
	}

	if err := s.store.CreateTopic(r.Context(), &topic); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, topic)
}

func (s *Server) handleListTopics(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageParams(r, 100)
	topics, err := s.store.ListTopics(r.Context(), offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  topics,
		"count": len(topics),
	})
}

func (s *Server) handleGetTopic(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	topic, err := s.store.GetTopic(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topic)
}

func (s *Server) handleUpdateTopic(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload topicPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	if payload.Name != nil && *payload.Name == "" {
		writeError(w, http.StatusBadRequest, errors.New("name must not be empty"))
		return
	}
	if err := payload.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	topic, err := s.store.UpdateTopic(r.Context(), id, payload.toUpdate())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topic)
}

func (s *Server) handleDeleteTopic(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	deleted, err := s.store.DeleteTopic(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, errors.New("topic not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTopicHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := s.store.GetTopic(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	records, err := s.store.ListTopicHistory(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if records == nil {
		records = []store.UpdateRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"topic_id": id,
		"updates":  records,
	})
}

type literaturePayload struct {
	Title           string    `json:"title"`
	Authors         []string  `json:"authors"`
	PublicationDate time.Time `json:"publication_date"`
	JournalName     string    `json:"journal_name"`
	Keywords        []string  `json:"keywords"`
	Summary         string    `json:"summary"`
	LiteratureType  string    `json:"literature_type"`
}

func (s *Server) handleCreateLiterature(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload literaturePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	if payload.Title == "" {
		writeError(w, http.StatusBadRequest, errors.New("title is required"))
		return
	}
	if payload.PublicationDate.IsZero() {
		writeError(w, http.StatusBadRequest, errors.New("publication_date is required"))
		return
	}
	if _, err := s.store.GetTopic(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}

	lit := store.Literature{
		TopicID:         id,
		Title:           payload.Title,
		Authors:         payload.Authors,
		PublicationDate: payload.PublicationDate.UTC(),
		JournalName:     payload.JournalName,
		Keywords:        payload.Keywords,
		Summary:         payload.Summary,
		LiteratureType:  payload.LiteratureType,
	}
	if err := s.store.InsertLiterature(r.Context(), &lit); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, lit)
}

func (s *Server) handleLiteratureAnalysis(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := s.store.GetTopic(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	offset, limit := pageParams(r, 10)
	result, err := s.analyzer.Analyze(r.Context(), id, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if result.Trend == nil {
		result.Trend = []store.TrendPoint{}
	}
	if result.Distribution == nil {
		result.Distribution = []store.DistributionPoint{}
	}
	if result.Literature == nil {
		result.Literature = []store.Literature{}
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGenerate runs the full delivery path: generate the deck through the
// external pipeline, store it, notify the topic's channels, and record the
// push with its lineage diff.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.gen == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("generation pipeline not configured"))
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	topic, err := s.store.GetTopic(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var opts struct {
		Language   string   `json:"language"`
		StartYear  int      `json:"start_year"`
		EndYear    int      `json:"end_year"`
		SlideCount int      `json:"slide_count"`
		Recipients []string `json:"recipients"`
	}
	// An empty body means default options; a malformed one is rejected.
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}

	content, err := s.gen.Generate(r.Context(), topic.Name, deckgen.Options{
		Language:   opts.Language,
		StartYear:  opts.StartYear,
		EndYear:    opts.EndYear,
		SlideCount: opts.SlideCount,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	now := time.Now().UTC()
	filename := deckgen.DeckFilename(topic.Name, now)
	if err := os.MkdirAll(s.decksDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := os.WriteFile(filepath.Join(s.decksDir, filename), []byte(content), 0o644); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	status := store.PushSuccess
	if s.pusher != nil && s.pusher.HasNotifiers() {
		delivery := &push.Delivery{
			TopicName:   topic.Name,
			PPTFilename: filename,
			Recipients:  opts.Recipients,
			PreviewLink: "/PPT/" + filename,
		}
		if err := s.pusher.Broadcast(r.Context(), topic.NotificationChannels, delivery); err != nil {
			fmt.Fprintf(os.Stderr, "push delivery error for %q: %v\n", topic.Name, err)
			status = store.PushFailed
		}
	}

	rec := store.PushRecord{
		TopicID:     topic.ID,
		TopicName:   topic.Name,
		PushTime:    now,
		PPTFilename: filename,
		Recipients:  opts.Recipients,
		Channel:     "api",
		Status:      status,
	}
	diff, err := s.lineage.Record(r.Context(), &rec)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	link := "/PPT/" + filename
	_ = s.store.AddUpdateRecord(r.Context(), &store.UpdateRecord{
		TopicID:        topic.ID,
		Timestamp:      now,
		Status:         store.UpdateSuccess,
		PPTPreviewLink: &link,
	})

	resp := map[string]any{
		"ppt_filename": filename,
		"status":       status,
	}
	if diff != nil {
		resp["diff_summary"] = diff.Summary
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handlePushHistory(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageParams(r, 100)
	records, err := s.store.ListPushHistory(r.Context(), offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if records == nil {
		records = []store.PushRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  records,
		"count": len(records),
	})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid id %q", r.PathValue("id")))
		return 0, false
	}
	return id, true
}

func pageParams(r *http.Request, defaultLimit int) (offset, limit int) {
	limit = defaultLimit
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	return offset, limit
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
