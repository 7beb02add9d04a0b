package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/learning-buddy/internal/app"
	"github.com/suPer8Hu/learning-buddy/internal/config"
	"github.com/suPer8Hu/learning-buddy/internal/httpapi"
	"github.com/suPer8Hu/learning-buddy/internal/httpapi/handlers"
	"github.com/suPer8Hu/learning-buddy/internal/logger"
	"github.com/suPer8Hu/learning-buddy/internal/store/rabbitmq"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.LogMode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("app init failed", "error", err)
	}
	defer a.Close()

	h := &handlers.Handler{
		Log:      log,
		ChatSvc:  a.Chat,
		Memory:   a.Memory,
		Videos:   a.Videos,
		Ingester: a.Ingester,
	}
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue, cfg.RabbitIngestQueue)
		if err != nil {
			log.Fatal("rabbit publisher init failed", "error", err)
		}
		defer pub.Close()
		h.Rabbit = pub
	} else {
		log.Warn("RABBIT_URL not set, async jobs and ingest run in process")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(cfg, h, a.MetricsHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "error", err)
	}
}
