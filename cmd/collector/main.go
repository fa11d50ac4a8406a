// Package main is the entry point for the tick collector.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	apimiddleware "github.com/nsvirk/tickcollector/internal/api/middleware"
	"github.com/nsvirk/tickcollector/internal/buffer"
	"github.com/nsvirk/tickcollector/internal/catalog"
	"github.com/nsvirk/tickcollector/internal/config"
	"github.com/nsvirk/tickcollector/internal/control"
	"github.com/nsvirk/tickcollector/internal/decoder"
	"github.com/nsvirk/tickcollector/internal/lifecycle"
	"github.com/nsvirk/tickcollector/internal/models"
	"github.com/nsvirk/tickcollector/internal/partition"
	"github.com/nsvirk/tickcollector/internal/ratelimit"
	"github.com/nsvirk/tickcollector/internal/repository"
	"github.com/nsvirk/tickcollector/internal/snapshotter"
	"github.com/nsvirk/tickcollector/internal/streampool"
	"github.com/nsvirk/tickcollector/internal/writer"
	"github.com/nsvirk/tickcollector/pkg/utils/zaplogger"
	"github.com/robfig/cron/v3"
)

func main() {
	defer zaplogger.Sync()

	cfg, err := config.Get()
	if err != nil {
		zaplogger.Fatal("failed to load configuration", zaplogger.Fields{"error": err.Error()})
		return
	}
	zaplogger.SetLogLevel(cfg.ServerLogLevel)

	zaplogger.Info(config.SingleLine)
	zaplogger.Info("Tick Collector")
	zaplogger.Info(config.SingleLine)
	fmt.Println(cfg.String())

	db, err := repository.ConnectPostgres(cfg)
	if err != nil {
		zaplogger.Fatal("failed to connect to Postgres", zaplogger.Fields{"error": err.Error()})
		return
	}

	redisClient, err := repository.ConnectRedis(cfg)
	if err != nil {
		zaplogger.Fatal("failed to connect to Redis", zaplogger.Fields{"error": err.Error()})
		return
	}

	if err := zaplogger.InitLogger(db); err != nil {
		zaplogger.Warn("failed to attach database log sink, continuing with console-only logging", zaplogger.Fields{"error": err.Error()})
	}

	// ------------------------------------------------------------------
	// Repositories
	// ------------------------------------------------------------------
	instrumentRepo := repository.NewInstrumentRepository(db)
	lifecycleRepo := repository.NewLifecycleRepository(db)
	tickRepo := repository.NewTickRepository(db, cfg.Currency)
	dlqRepo := repository.NewDeadLetterRepository(db)
	publisher := repository.NewTickPublisher(redisClient, cfg.Currency)

	// ------------------------------------------------------------------
	// Rate limiting: the overall budget is split into independent buckets,
	// 50% snapshotter / 10% lifecycle, leaving 40% unallocated as headroom.
	// ------------------------------------------------------------------
	shared := ratelimit.NewShared(cfg.RateLimitRPS)
	catalogForSnapshotter := catalog.New(cfg.ExchangeBaseURL, shared.Sub(0.5))
	catalogForLifecycle := catalog.New(cfg.ExchangeBaseURL, shared.Sub(0.1))
	catalogCache := catalog.NewCache(redisClient, time.Duration(cfg.CatalogCacheTTLSec)*time.Second)

	// ------------------------------------------------------------------
	// Tick buffer + batch writer
	// ------------------------------------------------------------------
	buf := buffer.New(cfg.BufferCapacityQuotes, cfg.BufferCapacityTrades)
	batchWriter := writer.New(buf, tickRepo, dlqRepo, instrumentKind, cfg.WriterRetryMax)
	batchWriter.OnFlush(publisher.PublishFlush)

	// ------------------------------------------------------------------
	// Connection pool + partitioner + control API
	// ------------------------------------------------------------------
	var decodeErrors uint64
	sink := func(ev decoder.Event) {
		switch ev.Kind {
		case decoder.EventQuote:
			buf.PushQuote(ev.Quote)
		case decoder.EventTrade:
			buf.PushTrade(ev.Trade)
		}
	}
	errSink := func(err error) {
		atomic.AddUint64(&decodeErrors, 1)
		zaplogger.Warn("stream decode error", zaplogger.Fields{"error": err.Error()})
	}

	heartbeatInterval := time.Duration(cfg.HeartbeatInterval) * time.Second
	pool := streampool.New(cfg.SessionCount, cfg.ExchangeWSURL, cfg.SessionCap, heartbeatInterval, sink, errSink)
	// Each session holds at most two channels (quote+trade) per instrument,
	// so an instrument count approaching SessionCap/2 is what actually
	// exhausts a session's channel budget; the partitioner's initial
	// assignment spills round-robin before that point is reached.
	partitioner := partition.New(cfg.SessionCount, cfg.SessionCap/2)

	statsProvider := func() control.Stats {
		dq, dt, dd := buf.DroppedCounts()
		return control.Stats{
			DroppedQuotes: dq,
			DroppedTrades: dt,
			DroppedDepth:  dd,
			LastWriteAt:   batchWriter.LastSuccess(),
		}
	}
	ctrl := control.New(cfg.Currency, pool, partitioner, statsProvider)

	// ------------------------------------------------------------------
	// Depth snapshotter: sweeps whatever the pool is currently tracking.
	// ------------------------------------------------------------------
	tracked := func() []string {
		seen := make(map[string]struct{})
		var out []string
		for _, s := range pool.SessionState() {
			for _, name := range s.Instruments {
				if _, ok := seen[name]; !ok {
					seen[name] = struct{}{}
					out = append(out, name)
				}
			}
		}
		return out
	}
	depthSnapshotter := snapshotter.New(catalogForSnapshotter, buf, tracked, cfg.DepthMaxLevels)

	// ------------------------------------------------------------------
	// Lifecycle manager
	// ------------------------------------------------------------------
	expiryBuffer := time.Duration(cfg.ExpiryBufferMin) * time.Minute
	rebalanceInterval := time.Duration(cfg.RebalanceIntervalSec) * time.Second
	lifecycleMgr := lifecycle.New(cfg.Currency, catalogForLifecycle, catalogCache, instrumentRepo, lifecycleRepo, ctrl, partitioner, expiryBuffer, rebalanceInterval)

	// ------------------------------------------------------------------
	// Control API (Echo)
	// ------------------------------------------------------------------
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	apimiddleware.SetupLoggerMiddleware(e)
	control.RegisterRoutes(e, ctrl)

	// ------------------------------------------------------------------
	// Daily catalog-refresh failsafe cron job, grounded on the teacher's
	// CronService.addScheduledJob pattern.
	// ------------------------------------------------------------------
	c := cron.New()
	if _, err := c.AddFunc("0 0 * * *", func() {
		zaplogger.Info("daily catalog-refresh failsafe firing")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		lifecycleMgr.ForceReconcile(ctx)
	}); err != nil {
		zaplogger.Warn("failed to schedule daily catalog-refresh job", zaplogger.Fields{"error": err.Error()})
	}
	c.Start()

	// ------------------------------------------------------------------
	// Start everything.
	// ------------------------------------------------------------------
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	schedulingCtx, cancelScheduling := context.WithCancel(rootCtx)
	writerCtx, cancelWriter := context.WithCancel(context.Background())
	writerDone := make(chan struct{})

	pool.Start(rootCtx)
	go func() {
		batchWriter.Run(writerCtx, time.Duration(cfg.FlushIntervalSec)*time.Second)
		close(writerDone)
	}()
	go depthSnapshotter.Run(schedulingCtx, time.Duration(cfg.DepthIntervalSec)*time.Second)
	go lifecycleMgr.Run(schedulingCtx, time.Duration(cfg.LifecycleIntervalSec)*time.Second)

	go func() {
		zaplogger.Info(fmt.Sprintf("control API listening on :%d", cfg.BasePort))
		if err := e.Start(fmt.Sprintf(":%d", cfg.BasePort)); err != nil {
			zaplogger.Info("control API server stopped", zaplogger.Fields{"reason": err.Error()})
		}
	}()

	<-rootCtx.Done()
	zaplogger.Info("shutdown signal received, draining")

	// Phase 1: stop scheduling new work; refuse new control requests.
	ctrl.StopAccepting()
	cancelScheduling()
	c.Stop()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	_ = e.Shutdown(shutdownCtx)
	cancelShutdown()

	// Phase 2: sessions close gracefully within a 5s deadline.
	pool.Stop(5 * time.Second)

	// Phase 3: batch writer flushes remaining buffered rows with a hard
	// 15s overall deadline, then stops. Anything still unwritten past the
	// deadline is dropped per the concurrency model's shutdown contract.
	cancelWriter()
	select {
	case <-writerDone:
	case <-time.After(15 * time.Second):
		zaplogger.Error("batch writer did not finish draining within the shutdown deadline, remaining buffered rows dropped")
	}

	zaplogger.Info("shutdown complete")
}

// instrumentKind classifies an instrument name into the table family the
// Batch Writer routes to. Exchange perpetual contracts are named
// "{CURRENCY}-PERPETUAL"; every other name tracked under this currency is
// an option.
func instrumentKind(instrument string) models.Kind {
	if strings.HasSuffix(strings.ToUpper(instrument), "-PERPETUAL") {
		return models.KindPerpetual
	}
	return models.KindOption
}
