package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/learning-buddy/internal/app"
	"github.com/suPer8Hu/learning-buddy/internal/config"
	"github.com/suPer8Hu/learning-buddy/internal/logger"
	"github.com/suPer8Hu/learning-buddy/internal/store/rabbitmq"
)

var errBadMessage = errors.New("bad message")

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.RabbitURL == "" {
		log.Fatal("RABBIT_URL is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("app init failed", "error", err)
	}
	defer a.Close()

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal("rabbit dial failed", "error", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal("rabbit channel failed", "error", err)
	}
	defer ch.Close()

	for _, q := range []string{cfg.RabbitQueue, cfg.RabbitIngestQueue} {
		if err := rabbitmq.DeclareQueues(ch, q); err != nil {
			log.Fatal("queue declare failed", "queue", q, "error", err)
		}
	}

	//  strict concurrency control
	concurrency := workerConcurrency()

	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatal("qos failed", "error", err)
	}

	chatMsgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal("consume failed", "queue", cfg.RabbitQueue, "error", err)
	}
	ingestMsgs, err := ch.Consume(cfg.RabbitIngestQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal("consume failed", "queue", cfg.RabbitIngestQueue, "error", err)
	}

	log.Info("worker started",
		"queue", cfg.RabbitQueue,
		"ingest_queue", cfg.RabbitIngestQueue,
		"concurrency", concurrency,
	)

	// worker pool
	type task struct {
		d      amqp.Delivery
		ingest bool
	}
	tasks := make(chan task, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			wlog := log.With("worker", workerID)
			for t := range tasks {
				var err error
				if t.ingest {
					err = handleIngest(ctx, a, wlog, t.d.Body)
				} else {
					err = handleJob(ctx, a, wlog, t.d.Body)
				}
				if err != nil {
					_ = t.d.Nack(false, false)
					continue
				}
				if err := t.d.Ack(false); err != nil {
					wlog.Error("ack failed", "error", err)
				}
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(tasks)
			wg.Wait()
			return

		case d, ok := <-chatMsgs:
			if !ok {
				log.Warn("delivery channel closed", "queue", cfg.RabbitQueue)
				chatMsgs = nil
				time.Sleep(1 * time.Second)
				continue
			}
			tasks <- task{d: d}

		case d, ok := <-ingestMsgs:
			if !ok {
				log.Warn("delivery channel closed", "queue", cfg.RabbitIngestQueue)
				ingestMsgs = nil
				time.Sleep(1 * time.Second)
				continue
			}
			tasks <- task{d: d, ingest: true}
		}
	}
}

func handleJob(ctx context.Context, a *app.App, log *logger.Logger, body []byte) error {
	var m rabbitmq.JobMessage
	if err := json.Unmarshal(body, &m); err != nil || m.JobID == "" {
		log.Warn("bad job message", "error", err)
		return errBadMessage
	}

	start := time.Now()
	reply, err := a.Chat.RunJob(ctx, m.JobID)
	cost := time.Since(start)
	if err != nil {
		log.Error("job_failed", "job_id", m.JobID, "cost", cost, "error", err)
		return err
	}
	if reply.Degraded {
		log.Warn("job_degraded", "job_id", m.JobID, "cost", cost, "reason", reply.Reason)
	}
	if cost > 2*time.Second {
		log.Info("job_timing", "job_id", m.JobID, "message_id", reply.MessageID, "total", cost)
	}
	return nil
}

func handleIngest(ctx context.Context, a *app.App, log *logger.Logger, body []byte) error {
	var m rabbitmq.IngestMessage
	if err := json.Unmarshal(body, &m); err != nil || m.VideoID == "" {
		log.Warn("bad ingest message", "error", err)
		return errBadMessage
	}

	start := time.Now()
	rep, err := a.Ingester.Ingest(ctx, m.VideoID)
	if err != nil {
		log.Error("ingest_failed", "video_id", m.VideoID, "cost", time.Since(start), "error", err)
		return err
	}
	log.Info("ingest_done",
		"video_id", rep.VideoID,
		"segments", rep.Segments,
		"chunks", rep.Chunks,
		"fallback", rep.Fallback,
		"total", time.Since(start),
	)
	return nil
}
