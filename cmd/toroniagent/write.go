package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/adred-codev/toroni/internal/config"
	"github.com/adred-codev/toroni/internal/obsmetrics"
	"github.com/adred-codev/toroni/rmp"
	"github.com/adred-codev/toroni/tp"
)

// runWrite starts cfg.WriterCount goroutines that together post topic
// messages at cfg.WriteRatePerS (each at an equal share of that rate)
// through a shared tp.AsyncWriter until ctx is cancelled. A backpressure
// retry is throttled with a rate.Limiter rather than spinning, and after
// cfg.BackpressureMaxRetries retries of the same write it is forced through.
func runWrite(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	r, err := attachRegions(cfg, log)
	if err != nil {
		return err
	}

	lock, err := r.writerLock(cfg.LockDir)
	if err != nil {
		return fmt.Errorf("open writer lock: %w", err)
	}
	writer, err := rmp.NewWriter(r.ring, r.rmpInfo, lock)
	if err != nil {
		return fmt.Errorf("construct writer: %w", err)
	}

	notifier, closeNotifier, err := buildNotifier(cfg)
	if err != nil {
		return fmt.Errorf("build notifier: %w", err)
	}
	defer closeNotifier()

	retryLimiter := rate.NewLimiter(rate.Limit(200), 1)
	// The ring's tail does not move while one write is being retried, so a
	// new freePos marks a new write and restarts the retry count.
	retries := 0
	var lastFreePos rmp.Position
	bp := func(bpPos, freePos rmp.Position) bool {
		obsmetrics.BackpressureEvents.Inc()
		if freePos != lastFreePos {
			lastFreePos, retries = freePos, 0
		}
		if retries >= cfg.BackpressureMaxRetries {
			return false
		}
		retries++
		_ = retryLimiter.Wait(ctx)
		return ctx.Err() == nil
	}

	aw, err := tp.NewAsyncWriter(writer, r.ring, r.topicInfo, notifier, bp, log)
	if err != nil {
		return fmt.Errorf("construct async writer: %w", err)
	}
	aw.SetBatchObserver(func(n int) { obsmetrics.WriteBatchSize.Observe(float64(n)) })

	go sampleRingMetrics(ctx, r)

	var wg sync.WaitGroup
	for i := 0; i < cfg.WriterCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			writeLoop(ctx, id, cfg, aw, r, log)
		}(i)
	}
	wg.Wait()
	return nil
}

func writeLoop(ctx context.Context, id int, cfg *config.Config, aw *tp.AsyncWriter, r *regions, log zerolog.Logger) {
	limiter := rate.NewLimiter(rate.Limit(cfg.WriteRatePerS/float64(cfg.WriterCount)), 1)
	payload := make([]byte, cfg.MessageSize)
	channel := fmt.Sprintf("toroni/demo/writer-%d", id)

	r.stats.ReadyWriters.Add(1)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		start := time.Now()
		msg, err := aw.CreateMessage(false, channel, payload)
		if err != nil {
			log.Error().Err(err).Int("writer", id).Msg("agent: create message failed")
			continue
		}
		aw.Post(msg)
		r.stats.RecordWrite(uint64(time.Since(start).Nanoseconds()))

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
