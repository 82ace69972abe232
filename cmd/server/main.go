package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	activityhandler "catalogue/internal/activitylog/handler"
	"catalogue/internal/activitylog/ingest"
	activitymetrics "catalogue/internal/activitylog/metrics"
	"catalogue/internal/activitylog/publisher"
	"catalogue/internal/activitylog/service"
	"catalogue/internal/activitylog/store/cache"
	"catalogue/internal/activitylog/store/memory"
	mongostore "catalogue/internal/activitylog/store/mongo"
	pgstore "catalogue/internal/activitylog/store/postgres"
	jwttoken "catalogue/internal/jwt_token"
	"catalogue/internal/platform/config"
	"catalogue/internal/platform/httpserver"
	"catalogue/internal/platform/kafka/consumer"
	"catalogue/internal/platform/kafka/producer"
	"catalogue/internal/platform/logger"
	"catalogue/internal/platform/metrics"
	mongoclient "catalogue/internal/platform/mongo"
	"catalogue/internal/platform/postgres"
	redisclient "catalogue/internal/platform/redis"
	"catalogue/internal/platform/tracing"
	"catalogue/pkg/platform/httputil"
	"catalogue/pkg/platform/middleware/metadata"
	"catalogue/pkg/platform/middleware/request"
	"catalogue/pkg/platform/middleware/requesttime"
)

const shutdownTimeout = 10 * time.Second

type healthCheck func(ctx context.Context) error

// infra holds the connections opened at start-up so they can be checked
// and released together.
type infra struct {
	checks  map[string]healthCheck
	closers []func(ctx context.Context)
}

func (i *infra) addCheck(name string, check healthCheck) {
	i.checks[name] = check
}

func (i *infra) onClose(fn func(ctx context.Context)) {
	i.closers = append(i.closers, fn)
}

func (i *infra) close(ctx context.Context) {
	for j := len(i.closers) - 1; j >= 0; j-- {
		i.closers[j](ctx)
	}
}

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Environment)

	if err := run(cfg, log); err != nil {
		log.Error("catalogue activity log stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.Environment)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	deps := &infra{checks: make(map[string]healthCheck)}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		deps.close(closeCtx)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	domainMetrics := activitymetrics.New(reg)
	httpMetrics := metrics.New(reg)

	store, err := buildStore(ctx, cfg, log, deps)
	if err != nil {
		return err
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(domainMetrics),
		service.WithStoreTimeout(cfg.StoreTimeout),
	}

	var prod *producer.Producer
	if cfg.Kafka.Enabled() {
		prod, err = producer.New(cfg.Kafka, log)
		if err != nil {
			return err
		}
		deps.onClose(prod.Close)
		deps.addCheck("kafka", prod.Health)
		if cfg.Kafka.CreateTopics {
			if err := prod.EnsureTopics(ctx, 3, 1, cfg.Kafka.RecordedTopic, cfg.Kafka.IngestTopic); err != nil {
				return err
			}
		}
		opts = append(opts, service.WithPublisher(publisher.New(prod, cfg.Kafka.RecordedTopic)))
	}

	svc, err := service.New(store, opts...)
	if err != nil {
		return err
	}

	var ingestConsumer *consumer.Consumer
	if cfg.Kafka.Enabled() {
		router := consumer.NewRouter(log, nil)
		router.Register(cfg.Kafka.IngestTopic, ingest.NewHandler(svc, domainMetrics, log))
		ingestConsumer, err = consumer.New(cfg.Kafka, router.Topics(), router, log)
		if err != nil {
			return err
		}
	}

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	logsHandler := activityhandler.New(svc, jwttoken.NewJWTServiceAdapter(jwtService), log)

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Recovery(log))
	r.Use(request.Logger(log, httpMetrics))
	r.Use(requesttime.Middleware)
	r.Get("/healthz", healthHandler(deps.checks))
	r.Handle("/metrics", metrics.Handler(reg))
	logsHandler.Register(r)

	var handler http.Handler = r
	if cfg.Tracing.Endpoint != "" {
		handler = otelhttp.NewHandler(r, cfg.Tracing.ServiceName)
	}
	srv := httpserver.New(cfg.Addr, handler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting catalogue activity log", "addr", cfg.Addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})

	if ingestConsumer != nil {
		g.Go(func() error {
			log.Info("starting ingest consumer", "topic", cfg.Kafka.IngestTopic)
			return ingestConsumer.Run(gctx)
		})
	}

	return g.Wait()
}

// buildStore opens the configured event store and wraps it with the Redis
// cache when one is configured.
func buildStore(ctx context.Context, cfg config.Server, log *slog.Logger, deps *infra) (cache.Store, error) {
	var store cache.Store

	switch cfg.StoreDriver {
	case config.DriverMemory:
		store = memory.New()
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		deps.onClose(func(context.Context) { _ = db.Close() })
		deps.addCheck("postgres", db.PingContext)
		pg := pgstore.New(db)
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		store = pg
	case config.DriverMongo:
		client, err := mongoclient.New(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		deps.onClose(func(ctx context.Context) { _ = client.Close(ctx) })
		deps.addCheck("mongo", client.Health)
		mg := mongostore.New(client.Database())
		if err := mg.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		store = mg
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc == nil {
		return store, nil
	}
	deps.onClose(func(context.Context) { _ = rc.Close() })
	deps.addCheck("redis", rc.Health)
	log.Info("search cache enabled", "ttl", cfg.Redis.CacheTTL)
	return cache.New(store, rc.Client, cache.WithTTL(cfg.Redis.CacheTTL), cache.WithLogger(log)), nil
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]healthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
