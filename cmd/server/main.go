// Command server runs the paddock API: event/race catalog, registration
// workflow, result recording and the live result stream.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	cataloghandler "paddock/internal/catalog/handler"
	catalogservice "paddock/internal/catalog/service"
	catalogstore "paddock/internal/catalog/store"
	"paddock/internal/platform/config"
	"paddock/internal/platform/events"
	"paddock/internal/platform/httpserver"
	"paddock/internal/platform/logger"
	"paddock/internal/platform/metrics"
	"paddock/internal/platform/middleware"
	"paddock/internal/platform/postgres"
	redisplatform "paddock/internal/platform/redis"
	"paddock/internal/platform/token"
	reghandler "paddock/internal/registration/handler"
	regservice "paddock/internal/registration/service"
	regstore "paddock/internal/registration/store"
	resulthandler "paddock/internal/result/handler"
	resultservice "paddock/internal/result/service"
	resultstore "paddock/internal/result/store"
	"paddock/internal/stream"
	"paddock/pkg/platform/httputil"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Stores: Postgres when a database is configured, in-memory otherwise.
	var (
		catalogStore catalogStores
		regStore     regStores
		resultStore  resultStores
	)
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		catalogStore = catalogstore.NewPostgres(db)
		regStore = regstore.NewPostgres(db)
		resultStore = resultstore.NewPostgres(db)
		log.Info("using postgres stores")
	} else {
		catalogStore = catalogstore.NewInMemory()
		regStore = regstore.NewInMemory()
		resultStore = resultstore.NewInMemory()
		log.Info("using in-memory stores")
	}

	// Audit publisher, optional.
	var audit events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := events.NewKafkaPublisher(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			return err
		}
		defer kafka.Close()
		audit = kafka
		log.Info("audit events flowing to kafka", "topic", cfg.KafkaTopic)
	}

	// Broadcast hub, optionally bridged across instances through Redis.
	hub := stream.NewHub(cfg.StreamHeartbeat, m, log)
	var broadcaster resultservice.Broadcaster = hub
	var relay *stream.Relay
	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		relay = stream.NewRelay(redisClient.Client, cfg.Redis.Channel, hub, log)
		broadcaster = relay
		log.Info("result stream relayed through redis", "channel", cfg.Redis.Channel)
	}

	catalogSvc, err := catalogservice.New(catalogStore, regStore, resultStore, log,
		catalogservice.WithAuditPublisher(audit))
	if err != nil {
		return err
	}
	resultSvc, err := resultservice.New(resultStore, catalogStore, regStore, m, log,
		resultservice.WithBroadcaster(broadcaster),
		resultservice.WithAuditPublisher(audit))
	if err != nil {
		return err
	}
	regSvc, err := regservice.New(regStore, catalogStore, resultSvc, m, log,
		regservice.WithAuditPublisher(audit))
	if err != nil {
		return err
	}

	validator := token.NewValidator(cfg.JWTSigningKey)
	router := newRouter(log, m, validator, hub,
		cataloghandler.New(catalogSvc, log),
		reghandler.New(regSvc, log),
		resulthandler.New(resultSvc, log))

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if relay != nil {
		g.Go(func() error {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func newRouter(log *slog.Logger, m *metrics.Metrics, validator *token.Validator, hub *stream.Hub, catalogH *cataloghandler.Handler, regH *reghandler.Handler, resultH *resulthandler.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	streamH := stream.NewHandler(hub, m, log)

	r.Route("/api", func(api chi.Router) {
		catalogH.Register(api)

		api.Group(func(auth chi.Router) {
			auth.Use(middleware.RequireAuth(validator, log))
			regH.Register(auth)
			streamH.Register(auth)

			auth.Group(func(admin chi.Router) {
				admin.Use(middleware.RequireAdmin(log))
				catalogH.RegisterAdmin(admin)
				regH.RegisterAdmin(admin)
				resultH.RegisterAdmin(admin)
			})
		})
	})
	return r
}

// Store bundles keep run's wiring readable regardless of the backend.
type catalogStores interface {
	catalogservice.Store
	regservice.Catalog
	resultservice.Catalog
}

type regStores interface {
	regservice.Store
	resultservice.Registrations
	catalogservice.RegistrationCleaner
}

type resultStores interface {
	resultservice.Store
	catalogservice.ResultCleaner
}
