package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"pollwatch/internal/audit"
	audithandler "pollwatch/internal/audit/handler"
	"pollwatch/internal/feed"
	"pollwatch/internal/insight"
	insighthandler "pollwatch/internal/insight/handler"
	insightmetrics "pollwatch/internal/insight/metrics"
	"pollwatch/internal/notify"
	notifyhandler "pollwatch/internal/notify/handler"
	notifymetrics "pollwatch/internal/notify/metrics"
	"pollwatch/internal/platform/config"
	"pollwatch/internal/platform/httpserver"
	"pollwatch/internal/platform/logger"
	"pollwatch/internal/platform/metrics"
	registryhandler "pollwatch/internal/registry/handler"
	resultshandler "pollwatch/internal/results/handler"
	resultsmetrics "pollwatch/internal/results/metrics"
	"pollwatch/internal/results/service"
	httptransport "pollwatch/internal/transport/http"
	"pollwatch/pkg/requestcontext"
)

// main wires dependencies, serves HTTP and runs the background workers until
// SIGINT or SIGTERM. Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("pollwatch stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("pollwatch stopped")
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	infra, err := buildInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close(log)

	g, ctx := errgroup.WithContext(ctx)

	// Notifications, with optional Kafka fan-out.
	notifyMetrics := notifymetrics.New(reg)
	notifyOpts := []notify.Option{notify.WithLogger(log), notify.WithMetrics(notifyMetrics)}
	if infra.producer != nil {
		relay := notify.NewRelay(infra.producer, 256, log, notifyMetrics)
		notifyOpts = append(notifyOpts, notify.WithListener(relay.Listener()))
		g.Go(func() error { return ignoreCanceled(relay.Run(ctx)) })
	}
	dispatcher := notify.New(cfg.NotificationCapacity, notifyOpts...)

	// External narration.
	insightMetrics := insightmetrics.New(reg)
	var gateway insight.Gateway
	if cfg.Insight.Enabled() {
		gateway = insight.NewOpenAIGateway(cfg.Insight.APIKey, cfg.Insight.BaseURL, cfg.Insight.Model)
	} else {
		log.Info("insight gateway not configured, running with rule-based findings only")
	}
	insightClient := insight.NewClient(gateway,
		insight.WithTimeout(cfg.Insight.Timeout),
		insight.WithLogger(log),
		insight.WithMetrics(insightMetrics),
	)
	enricher := insight.NewEnricher(insightClient, cfg.Insight.QueueSize,
		insight.WithEnricherLogger(log),
		insight.WithEnricherMetrics(insightMetrics),
	)

	auditor := audit.NewPublisher(infra.auditStore, audit.WithLogger(log))

	svc := service.New(infra.catalog, infra.resultStore,
		service.WithLogger(log),
		service.WithMetrics(resultsmetrics.New(reg)),
		service.WithDispatcher(dispatcher),
		service.WithEnricher(enricher),
		service.WithAuditor(auditor),
		service.WithFindingsCapacity(cfg.FindingsCapacity),
		service.WithResubmissionFlag(cfg.FlagResubmissionAfterReview),
	)
	if err := svc.Restore(ctx); err != nil {
		return err
	}
	if infra.seedRegistry && svc.Snapshot(ctx).ReportedUnits == 0 {
		seedCtx := requestcontext.WithOperator(ctx, requestcontext.OperatorTag{ID: "system", Role: "seed"})
		n, err := feed.SeedReference(seedCtx, svc, requestcontext.Now(seedCtx))
		if err != nil {
			log.Warn("reference results partially seeded", "error", err)
		}
		log.Info("reference results seeded", "count", n)
	}

	g.Go(func() error { return ignoreCanceled(auditor.Run(ctx)) })
	g.Go(func() error { return ignoreCanceled(enricher.Run(ctx, svc)) })
	if cfg.FeedInterval > 0 {
		f := feed.New(svc, cfg.FeedInterval, feed.WithLogger(log))
		g.Go(func() error { return ignoreCanceled(f.Run(ctx)) })
		log.Info("simulated feed enabled", "interval", cfg.FeedInterval.String())
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:   log,
		Metrics:  metrics.New(reg),
		Gatherer: reg,
		Checks:   infra.checks,
	},
		resultshandler.New(svc, log),
		notifyhandler.New(dispatcher, log),
		insighthandler.New(svc, infra.catalog, insightClient, log),
		registryhandler.New(infra.catalog),
		audithandler.New(auditor, log),
	)
	srv := httpserver.New(cfg.Addr, router)

	g.Go(func() error {
		log.Info("starting pollwatch", "addr", cfg.Addr, "store", cfg.Store, "units", infra.catalog.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
