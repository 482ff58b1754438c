package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/adred-codev/toroni/internal/config"
	"github.com/adred-codev/toroni/internal/obsmetrics"
	"github.com/adred-codev/toroni/rmp"
	"github.com/adred-codev/toroni/tp"
)

// runRead starts cfg.ReaderCount tp.Reader instances, each subscribing to
// every writer's channel wildcarded under "toroni/demo", counting
// deliveries and expirations, and periodically logging host resource usage
// alongside the agent's own Prometheus counters.
func runRead(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	r, err := attachRegions(cfg, log)
	if err != nil {
		return err
	}

	for i := 0; i < cfg.ReaderCount; i++ {
		if err := startReader(ctx, i, cfg, r, log); err != nil {
			return fmt.Errorf("start reader %d: %w", i, err)
		}
	}

	go reportResourceUsage(ctx, log)

	<-ctx.Done()
	return nil
}

func startReader(ctx context.Context, id int, cfg *config.Config, r *regions, log zerolog.Logger) error {
	rmpReader, err := rmp.NewReaderWithBackpressure(r.ring, r.rmpInfo)
	if err != nil {
		return err
	}

	notifier, closeNotifier, err := buildNotifier(cfg)
	if err != nil {
		return err
	}

	onEvent := func(event tp.LifecycleEvent) {
		if event == tp.AllExpired {
			obsmetrics.ExpiredReaderEvents.Inc()
		}
	}

	reader, err := tp.NewReader(rmpReader, r.topicInfo, notifier, onEvent, 50*time.Millisecond, log)
	if err != nil {
		closeNotifier()
		return err
	}
	reader.Run(ctx)

	reader.CreateChannelReader("toroni/demo", true, func(channel string, payload []byte) {
		obsmetrics.TopicDispatches.WithLabelValues(channel).Inc()
		r.stats.RecordRead()
	})
	r.stats.ReadyReaders.Add(1)

	go func() {
		<-ctx.Done()
		_ = reader.Close()
		closeNotifier()
	}()
	log.Debug().Int("readerID", id).Msg("agent: reader started")
	return nil
}

func reportResourceUsage(ctx context.Context, log zerolog.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn().Err(err).Msg("agent: resource reporting unavailable")
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			percents, err := cpu.Percent(0, false)
			cpuPct := 0.0
			if err == nil && len(percents) > 0 {
				cpuPct = percents[0]
			}
			mem, err := self.MemoryInfo()
			rss := uint64(0)
			if err == nil && mem != nil {
				rss = mem.RSS
			}
			log.Info().
				Float64("cpuPercent", cpuPct).
				Uint64("rssBytes", rss).
				Msg("agent: resource usage")
		}
	}
}
