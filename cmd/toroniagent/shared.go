package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/adred-codev/toroni/internal/agentstats"
	"github.com/adred-codev/toroni/internal/config"
	"github.com/adred-codev/toroni/internal/obsmetrics"
	"github.com/adred-codev/toroni/rmp"
	"github.com/adred-codev/toroni/traits/notify"
	"github.com/adred-codev/toroni/traits/procmutex"
	"github.com/adred-codev/toroni/traits/shm"
	"github.com/adred-codev/toroni/tp"
)

// regions bundles every shared-memory-backed collaborator a writer or
// reader subcommand needs, attached (and, for the creating process,
// initialized) from configuration.
type regions struct {
	ringRegion  *shm.Region
	infoRegion  *shm.Region
	genRegion   *shm.Region
	statsRegion *shm.Region

	ring      *rmp.Ring
	rmpInfo   *rmp.ReaderInfoTable
	topicInfo *tp.ReaderInfo
	stats     *agentstats.Block
}

func attachRegions(cfg *config.Config, log zerolog.Logger) (*regions, error) {
	ringSize := rmp.RegionSize(cfg.RingSizeBytes)
	ringRegion, err := shm.CreateOrOpen(cfg.RingName+".ring", int64(ringSize))
	if err != nil {
		return nil, fmt.Errorf("attach ring region: %w", err)
	}
	var ring *rmp.Ring
	if ringRegion.IsCreator() {
		ring = rmp.Attach(ringRegion.Ptr())
		if err := ring.Init(cfg.RingSizeBytes); err != nil {
			return nil, fmt.Errorf("init ring: %w", err)
		}
		log.Info().Str("region", cfg.RingName+".ring").Msg("agent: created ring region")
	} else {
		ring, err = rmp.Open(ringRegion.Ptr(), cfg.RingSizeBytes)
		if err != nil {
			return nil, fmt.Errorf("open ring: %w", err)
		}
	}

	infoSize := rmp.ReaderInfoRegionSize(cfg.MaxReaders)
	infoRegion, err := shm.CreateOrOpen(cfg.RingName+".readerinfo", int64(infoSize))
	if err != nil {
		return nil, fmt.Errorf("attach reader-info region: %w", err)
	}
	if err := os.MkdirAll(cfg.LockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir %s: %w", cfg.LockDir, err)
	}
	rmpInfo := rmp.AttachReaderInfo(infoRegion.Ptr(), cfg.MaxReaders, cfg.LockDir)
	if infoRegion.IsCreator() {
		rmpInfo.Init(cfg.MaxReaders)
	}

	genRegion, err := shm.CreateOrOpen(cfg.RingName+".topicgen", int64(tp.TopicHeaderSize()))
	if err != nil {
		return nil, fmt.Errorf("attach topic generation region: %w", err)
	}
	topicInfo := tp.AttachReaderInfo(rmpInfo, genRegion.Ptr())
	if genRegion.IsCreator() {
		topicInfo.Init()
	}

	statsRegion, err := shm.CreateOrOpen(cfg.RingName+".stats", int64(agentstats.Size()))
	if err != nil {
		return nil, fmt.Errorf("attach stats region: %w", err)
	}
	stats := agentstats.Attach(statsRegion.Ptr())
	if statsRegion.IsCreator() {
		stats.Init()
	}

	return &regions{
		ringRegion:  ringRegion,
		infoRegion:  infoRegion,
		genRegion:   genRegion,
		statsRegion: statsRegion,
		ring:        ring,
		rmpInfo:     rmpInfo,
		topicInfo:   topicInfo,
		stats:       stats,
	}, nil
}

// sampleRingMetrics periodically republishes the ring's own shared-memory
// counters and the reader-info active range as Prometheus instruments,
// since those counters live in memory shared across processes rather than
// in this process's own registry.
func sampleRingMetrics(ctx context.Context, r *regions) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	var lastNotified uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			notified := r.ring.Stats().NotificationCount.Load()
			if notified > lastNotified {
				obsmetrics.NotificationsSent.Add(float64(notified - lastNotified))
				lastNotified = notified
			}
			min, max := r.rmpInfo.GetActiveRange()
			obsmetrics.ActiveReaderRange.WithLabelValues("min").Set(float64(min))
			obsmetrics.ActiveReaderRange.WithLabelValues("max").Set(float64(max))
		}
	}
}

func (r *regions) writerLock(lockDir string) (*procmutex.Handle, error) {
	return procmutex.Open(r.ring.WriterMutex(), filepath.Join(lockDir, "writer.lock"))
}

// buildNotifier constructs the configured Notifier backend. For the NATS
// backend it dials cfg.NATSUrl itself; the returned notify.Notifier's
// Close does not close that connection; use closeNotifier to close both.
func buildNotifier(cfg *config.Config) (notify.Notifier, func(), error) {
	switch cfg.NotifyBackend {
	case config.NotifyUDP:
		n, err := notify.NewUDPMulticast(cfg.MulticastAddr, cfg.MulticastPort, nil)
		if err != nil {
			return nil, nil, err
		}
		return n, func() { _ = n.Close() }, nil
	case config.NotifyNATS:
		nc, err := nats.Connect(cfg.NATSUrl)
		if err != nil {
			return nil, nil, fmt.Errorf("connect nats %s: %w", cfg.NATSUrl, err)
		}
		n, err := notify.NewNATS(nc, cfg.NATSSubject)
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		return n, func() { _ = n.Close(); nc.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown notify backend %q", cfg.NotifyBackend)
	}
}
