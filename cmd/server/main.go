package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"refahi/internal/events"
	"refahi/internal/jwttoken"
	"refahi/internal/member"
	"refahi/internal/participation"
	"refahi/internal/platform/config"
	"refahi/internal/platform/httpserver"
	"refahi/internal/platform/logger"
	"refahi/internal/platform/metrics"
	"refahi/internal/platform/middleware"
	platformredis "refahi/internal/platform/redis"
	"refahi/internal/survey/handler"
	surveymetrics "refahi/internal/survey/metrics"
	"refahi/internal/survey/service"
	"refahi/internal/survey/store"
)

// jwtAdapter bridges the token service to the middleware's validator
// interface without the middleware importing the jwt package.
type jwtAdapter struct {
	svc *jwttoken.JWTService
}

func (a jwtAdapter) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	claims, err := a.svc.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.JWTClaims{
		MemberID:  claims.MemberID,
		SessionID: claims.SessionID,
	}, nil
}

// main wires the dependency graph and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var surveyStore service.Store
	var eventSinks events.FanoutSink

	if cfg.Postgres.DSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			log.Error("postgres pool init failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := store.EnsureSchema(ctx, pool); err != nil {
			log.Error("schema migration failed", "error", err)
			os.Exit(1)
		}
		surveyStore = store.NewPostgresStore(pool)

		archiveDB, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			log.Error("event archive init failed", "error", err)
			os.Exit(1)
		}
		defer archiveDB.Close()
		if err := events.EnsureArchiveSchema(ctx, archiveDB); err != nil {
			log.Error("event archive migration failed", "error", err)
			os.Exit(1)
		}
		eventSinks = append(eventSinks, events.NewPostgresArchive(archiveDB))
	} else {
		log.Warn("no postgres DSN configured, using in-memory store")
		surveyStore = store.NewMemoryStore()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}

	var tracker service.Tracker
	directory := service.Directory(member.NewMemoryDirectory())
	if redisClient != nil {
		defer redisClient.Close()
		tracker = participation.NewRedisTracker(redisClient.Client, cfg.Survey.ParticipationRetention)
		directory = member.NewCachedDirectory(directory, redisClient.Client, 15*time.Minute, log)
	} else {
		log.Warn("no redis URL configured, using in-memory participation tracker")
		tracker = participation.NewMemoryTracker()
	}

	g, ctx := errgroup.WithContext(ctx)

	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := events.NewKafkaPublisher(ctx, events.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, log)
		if err != nil {
			log.Error("kafka publisher init failed", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		eventSinks = append(eventSinks, publisher)
		g.Go(func() error { return publisher.Run(ctx) })
	}

	surveySvc, err := service.New(surveyStore, tracker,
		service.WithLogger(log),
		service.WithMetrics(surveymetrics.New()),
		service.WithDirectory(directory),
		service.WithEventSink(eventSinks),
	)
	if err != nil {
		log.Error("survey service init failed", "error", err)
		os.Exit(1)
	}

	jwtService := jwttoken.NewJWTService(cfg.JWT.SigningKey, cfg.JWT.Issuer)
	appMetrics := metrics.New()

	router := chi.NewRouter()
	surveyHandler := handler.New(surveySvc, log, appMetrics, jwtAdapter{jwtService}, cfg.Survey.AnonymousHashSalt)
	surveyHandler.Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	g.Go(func() error {
		log.Info("starting refahi survey server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		return httpserver.Shutdown(srv, cfg.Server.ShutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}
