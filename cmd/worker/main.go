package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/cookingpapa/internal/app"
	"github.com/suPer8Hu/cookingpapa/internal/config"
	"github.com/suPer8Hu/cookingpapa/internal/logger"
	"github.com/suPer8Hu/cookingpapa/internal/store/rabbitmq"
	"github.com/suPer8Hu/cookingpapa/internal/worker"
	"go.uber.org/zap"
)

const (
	maxRetries    = 3
	retryHeader   = "x-retry-count"
	retryBaseWait = 2 * time.Second
	drainTimeout  = 30 * time.Second
)

// retrier republishes a delivery to the retry queue, whose TTL dead-letters
// it back to the main queue.
type retrier struct {
	mu    sync.Mutex
	ch    *amqp.Channel
	queue string
}

func retryCount(d amqp.Delivery) int {
	switch v := d.Headers[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func (r *retrier) retry(ctx context.Context, d amqp.Delivery, attempt int) error {
	wait := retryBaseWait << (attempt - 1)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ch.PublishWithContext(ctx, "", rabbitmq.RetryQueue(r.queue), false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Body:         d.Body,
		Headers:      amqp.Table{retryHeader: int32(attempt)},
		Expiration:   formatMillis(wait),
		Timestamp:    time.Now(),
	})
}

func formatMillis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

func main() {
	cfg := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	proc := worker.NewProcessor(a.Store, a.Assistant, log)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal("rabbit dial", zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal("rabbit channel", zap.Error(err))
	}
	defer ch.Close()

	if err := rabbitmq.DeclareJobQueues(ch, cfg.RabbitQueue); err != nil {
		log.Fatal("queue declare", zap.Error(err))
	}

	// strict concurrency control
	concurrency := cfg.WorkerConcurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatal("qos", zap.Error(err))
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal("consume", zap.Error(err))
	}

	log.Info("worker started", zap.String("queue", cfg.RabbitQueue), zap.Int("concurrency", concurrency))

	re := &retrier{ch: ch, queue: cfg.RabbitQueue}

	// jobs already taken off the queue run to completion after a signal
	jobCtx := context.WithoutCancel(ctx)

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			wlog := log.With(zap.Int("worker", workerID))
			for d := range jobs {
				var m rabbitmq.JobMessage
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					wlog.Warn("bad message", zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				err := proc.Process(jobCtx, m.JobID)
				if err == nil {
					if err := d.Ack(false); err != nil {
						wlog.Error("ack failed", zap.String("job_id", m.JobID), zap.Error(err))
					}
					continue
				}

				attempt := retryCount(d) + 1
				fields := []zap.Field{zap.String("job_id", m.JobID), zap.Duration("cost", time.Since(start)), zap.Int("attempt", attempt), zap.Error(err)}
				if worker.IsPermanent(err) || attempt > maxRetries {
					wlog.Error("job failed, dead-lettering", fields...)
					_ = d.Nack(false, false)
					continue
				}
				if rerr := re.retry(jobCtx, d, attempt); rerr != nil {
					wlog.Error("retry publish failed, requeueing", append(fields, zap.NamedError("retry_error", rerr))...)
					_ = d.Nack(false, true)
					continue
				}
				wlog.Warn("job failed, scheduled retry", fields...)
				_ = d.Ack(false)
			}
		}(i)
	}

	shutdown := func() {
		close(jobs)
		if !worker.Drain(&wg, drainTimeout) {
			log.Warn("drain deadline passed, unacked jobs will be redelivered", zap.Duration("timeout", drainTimeout))
			return
		}
		log.Info("worker drained")
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			shutdown()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Error("delivery channel closed")
				shutdown()
				return
			}
			select {
			case jobs <- d:
			case <-ctx.Done():
				_ = d.Nack(false, true)
				log.Info("worker shutting down")
				shutdown()
				return
			}
		}
	}
}
