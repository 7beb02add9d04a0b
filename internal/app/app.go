package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/suPer8Hu/learning-buddy/internal/ai"
	"github.com/suPer8Hu/learning-buddy/internal/chat"
	"github.com/suPer8Hu/learning-buddy/internal/config"
	"github.com/suPer8Hu/learning-buddy/internal/db"
	"github.com/suPer8Hu/learning-buddy/internal/embeddings"
	"github.com/suPer8Hu/learning-buddy/internal/logger"
	"github.com/suPer8Hu/learning-buddy/internal/memory"
	"github.com/suPer8Hu/learning-buddy/internal/metrics"
	"github.com/suPer8Hu/learning-buddy/internal/store/redisstore"
	"github.com/suPer8Hu/learning-buddy/internal/video"
	"gorm.io/gorm"
)

// App holds the services shared by the API server and the worker.
type App struct {
	Cfg      config.Config
	Log      *logger.Logger
	DB       *gorm.DB
	Chat     *chat.Service
	Memory   *memory.Service
	Videos   *video.Locator
	Ingester *video.Ingester
	// MetricsHandler is nil unless METRICS_ENABLED is set.
	MetricsHandler http.Handler

	redis *redisstore.Store
}

func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	a := &App{Cfg: cfg, Log: log}

	if cfg.MetricsEnabled {
		a.MetricsHandler = metrics.EnablePrometheus()
	}

	gdb, err := db.Open(cfg.DBDSN, log)
	if err != nil {
		return nil, err
	}
	models := append(chat.Models(), memory.Models()...)
	models = append(models, video.Models()...)
	if err := db.Migrate(gdb, models...); err != nil {
		return nil, err
	}
	a.DB = gdb

	var cache video.ChunkCache
	if cfg.RedisAddr != "" {
		rs, err := redisstore.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisChunkTTL)
		if err != nil {
			log.Warn("redis unavailable, chunk cache disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			a.redis = rs
			cache = rs
		}
	}

	dict, err := video.LoadDictionary(cfg.DictionaryPath)
	if err != nil {
		return nil, err
	}
	a.Videos = video.NewLocator(video.NewRepo(gdb, log), cache, log)

	var primary video.TranscriptSource
	if cfg.TranscriptURL != "" {
		primary = video.NewHTTPTranscriptSource(cfg.TranscriptURL)
	}
	a.Ingester = video.NewIngester(
		&video.FallbackSource{Primary: primary, Log: log},
		video.NewChunker(cfg.Chunking, dict),
		a.Videos,
		log,
	)

	a.Memory = memory.NewService(memory.NewRepo(gdb, log), memory.Limits{
		MaxEntities:  cfg.MemoryMaxEntities,
		MaxRelations: cfg.MemoryMaxRelations,
	}, log)
	extractor := memory.NewExtractor(ctx, embeddings.New(cfg), nil, cfg.SimilarityThreshold, log)

	a.Chat = chat.NewService(chat.NewRepo(gdb), ai.NewRegistryFromConfig(cfg), cfg.ChatContextWindowSize, chat.Deps{
		Memory:  a.Memory,
		Videos:  a.Videos,
		Updater: memory.NewUpdater(a.Memory, extractor, log),
		Log:     log,
	})

	log.Info("app wired",
		"db", dbKind(cfg.DBDSN),
		"chunk_cache", cache != nil,
		"extractor", fmt.Sprintf("%T", extractor),
		"metrics", cfg.MetricsEnabled,
	)
	return a, nil
}

func dbKind(dsn string) string {
	if db.IsSQLite(dsn) {
		return "sqlite"
	}
	return "mysql"
}

func (a *App) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
