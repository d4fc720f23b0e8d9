package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"medbrief/internal/config"
	"medbrief/internal/scheduler"
	"medbrief/internal/seed"
	"medbrief/internal/store"
	"medbrief/pkg/analysis"
	"medbrief/pkg/compare"
	"medbrief/pkg/deckgen"
	"medbrief/pkg/fetch"
	"medbrief/pkg/lineage"
	"medbrief/pkg/push"
	"medbrief/pkg/server"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func buildComparator(cfg *config.Config) lineage.Comparator {
	if cfg.Compare.LLM.Enabled && cfg.Compare.LLM.APIKey != "" {
		fmt.Fprintf(os.Stderr, "llm comparator: %s/%s\n",
			cfg.Compare.LLM.Provider, cfg.Compare.LLM.Model)
		return compare.NewLLMComparator(
			cfg.Compare.LLM.Provider,
			cfg.Compare.LLM.Model,
			cfg.Compare.LLM.APIKey,
			cfg.Compare.LLM.BaseURL,
		)
	}
	return compare.StaticComparator{}
}

func buildExtractor(cfg *config.Config) lineage.TextExtractor {
	if cfg.Compare.ExtractorURL == "" {
		return nil
	}
	return compare.NewHTTPExtractor(cfg.Compare.ExtractorURL)
}

func buildLineage(cfg *config.Config, db store.Store) *lineage.Engine {
	return lineage.NewEngine(db, buildExtractor(cfg), buildComparator(cfg))
}

func buildGenerator(cfg *config.Config) *deckgen.Client {
	if cfg.Generation.OutlineURL == "" || cfg.Generation.DeckURL == "" {
		return nil
	}
	return deckgen.New(cfg.Generation.OutlineURL, cfg.Generation.DeckURL, cfg.Generation.ParseTimeout())
}

func buildPushManager(cfg *config.Config) *push.Manager {
	var notifiers []push.Notifier

	if cfg.Push.Email.Enabled && cfg.Push.Email.Host != "" {
		notifiers = append(notifiers, push.NewEmail(
			cfg.Push.Email.Host,
			cfg.Push.Email.Port,
			cfg.Push.Email.Username,
			cfg.Push.Email.Password,
			cfg.Push.Email.From,
		))
	}
	if cfg.Push.AppPush.Enabled && cfg.Push.AppPush.URL != "" {
		notifiers = append(notifiers, push.NewAppPush(cfg.Push.AppPush.URL, cfg.Push.AppPush.Secret))
	}

	return push.NewManager(notifiers)
}

func buildScheduler(cfg *config.Config, db store.Store) *scheduler.Scheduler {
	return scheduler.New(
		db,
		buildSources(cfg),
		buildGenerator(cfg),
		buildLineage(cfg, db),
		buildPushManager(cfg),
		cfg.Decks.Dir,
		deckgen.Options{Language: cfg.Generation.Language, SlideCount: cfg.Generation.SlideCount},
		cfg.Schedule.ParseCheckInterval(),
	)
}

func buildSources(cfg *config.Config) []fetch.Source {
	var sources []fetch.Source
	for _, f := range cfg.Fetch.Feeds {
		sources = append(sources, fetch.NewFeedSource(f.Name, f.URLTemplate))
	}
	return sources
}

func buildServer(cfg *config.Config, db store.Store, port int) *server.Server {
	if port == 0 {
		port = cfg.Server.Port
	}
	return server.New(
		db,
		analysis.NewAnalyzer(db),
		buildLineage(cfg, db),
		buildGenerator(cfg),
		buildPushManager(cfg),
		cfg.Decks.Dir,
		port,
	)
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	return buildServer(cfg, db, port).ListenAndServe()
}

func runDaemon(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := buildScheduler(cfg, db)

	// Start scheduler in background.
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "scheduler error: %v\n", err)
		}
	}()

	srv := buildServer(cfg, db, port)
	go func() {
		<-ctx.Done()
		fmt.Fprintln(os.Stderr, "\nshutting down...")
	}()

	return srv.ListenAndServe()
}

func runDetect() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	buildScheduler(cfg, db).RunOnce(context.Background())
	return nil
}

func runGenerate(idArg, language string, startYear, endYear, slideCount int) error {
	topicID, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid topic id %q", idArg)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gen := buildGenerator(cfg)
	if gen == nil {
		return fmt.Errorf("generation pipeline not configured (set generation.outline_url and generation.deck_url)")
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	topic, err := db.GetTopic(ctx, topicID)
	if err != nil {
		return fmt.Errorf("get topic %d: %w", topicID, err)
	}

	if language == "" {
		language = cfg.Generation.Language
	}
	if slideCount == 0 {
		slideCount = cfg.Generation.SlideCount
	}

	fmt.Fprintf(os.Stderr, "generating deck for %q...\n", topic.Name)
	content, err := gen.Generate(ctx, topic.Name, deckgen.Options{
		Language:   language,
		StartYear:  startYear,
		EndYear:    endYear,
		SlideCount: slideCount,
	})
	if err != nil {
		return fmt.Errorf("generate deck: %w", err)
	}

	now := time.Now().UTC()
	filename := deckgen.DeckFilename(topic.Name, now)
	if err := os.MkdirAll(cfg.Decks.Dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(cfg.Decks.Dir, filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write deck: %w", err)
	}

	diff, err := buildLineage(cfg, db).Record(ctx, &store.PushRecord{
		TopicID:     topic.ID,
		TopicName:   topic.Name,
		PushTime:    now,
		PPTFilename: filename,
		Channel:     "cli",
		Status:      store.PushSuccess,
	})
	if err != nil {
		return fmt.Errorf("record push: %w", err)
	}

	link := "/PPT/" + filename
	_ = db.AddUpdateRecord(ctx, &store.UpdateRecord{
		TopicID:        topic.ID,
		Timestamp:      now,
		Status:         store.UpdateSuccess,
		PPTPreviewLink: &link,
	})

	fmt.Printf("deck written to %s\n", path)
	if diff != nil {
		fmt.Printf("\nchanges since previous deck:\n%s\n", diff.Summary)
	}
	return nil
}

func runCompare(prevFile, curFile string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	var prevText, curText string

	if extractor := buildExtractor(cfg); extractor != nil {
		if prevText, err = extractor.Extract(ctx, prevFile); err != nil {
			return fmt.Errorf("extract %s: %w", prevFile, err)
		}
		if curText, err = extractor.Extract(ctx, curFile); err != nil {
			return fmt.Errorf("extract %s: %w", curFile, err)
		}
	} else {
		prev, err := os.ReadFile(prevFile)
		if err != nil {
			return err
		}
		cur, err := os.ReadFile(curFile)
		if err != nil {
			return err
		}
		prevText, curText = string(prev), string(cur)
	}

	summary, err := buildComparator(cfg).Compare(ctx, prevText, curText,
		filepath.Base(prevFile), filepath.Base(curFile))
	if err != nil {
		return fmt.Errorf("compare decks: %w", err)
	}

	fmt.Println(summary)
	return nil
}

func runBackfill() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	created, err := buildLineage(cfg, db).Backfill(context.Background())
	if err != nil {
		return fmt.Errorf("backfill diffs: %w", err)
	}
	fmt.Printf("created %d diff records\n", created)
	return nil
}

func runSeed() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	return seed.Run(context.Background(), db)
}
