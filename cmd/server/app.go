package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/and161185/conote/internal/config"
	"github.com/and161185/conote/internal/events"
	"github.com/and161185/conote/internal/limiter"
	"github.com/and161185/conote/internal/migrate"
	"github.com/and161185/conote/internal/realtime"
	"github.com/and161185/conote/internal/repository"
	"github.com/and161185/conote/internal/repository/memstore"
	"github.com/and161185/conote/internal/repository/postgres"
	grpcserver "github.com/and161185/conote/internal/server/grpc"
	httpserver "github.com/and161185/conote/internal/server/http"
	"github.com/and161185/conote/internal/service"
)

// stores bundles the repositories of one driver.
type stores struct {
	users     repository.UserRepository
	notes     repository.NoteRepository
	revisions repository.RevisionRepository
	shares    repository.ShareRepository
	lim       limiter.Limiter
	db        *postgres.DB // nil for the memory driver
}

func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (*stores, error) {
	policy := limiter.Policy{
		Window:   cfg.Auth.Limiter.Window,
		MaxFails: cfg.Auth.Limiter.MaxFailures,
		BlockFor: cfg.Auth.Limiter.BlockFor,
	}
	if cfg.Database.Driver == config.DriverMemory {
		log.Warn("using in-memory storage, data is lost on restart")
		m := memstore.New()
		return &stores{
			users: m.Users(), notes: m.Notes(), revisions: m.Revisions(), shares: m.Shares(),
			lim: limiter.NewMemory(policy),
		}, nil
	}

	if err := migrate.Up(ctx, cfg.Database.DSN); err != nil {
		return nil, fmt.Errorf("migrate up: %w", err)
	}
	db, err := postgres.New(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	notes := postgres.NewNoteRepo(db)
	return &stores{
		users:     postgres.NewUserRepo(db),
		notes:     notes,
		revisions: notes.Revisions(),
		shares:    postgres.NewShareRepo(db),
		lim:       limiter.NewPG(db.Pool, policy),
		db:        db,
	}, nil
}

func openBus(ctx context.Context, cfg config.RealtimeConfig, log *zap.Logger) (realtime.Bus, error) {
	switch cfg.Bus {
	case config.BusRedis:
		return realtime.NewRedisBus(ctx, &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.Channel, log)
	case config.BusNATS:
		return realtime.NewNATSBus(cfg.NATSURL, cfg.Channel, log)
	default:
		return realtime.NewLocalBus(), nil
	}
}

func openPublisher(cfg config.EventsConfig, log *zap.Logger) events.Publisher {
	if len(cfg.Brokers) == 0 {
		return events.Nop{}
	}
	return events.NewKafkaPublisher(cfg.Brokers, cfg.Topic, log)
}

// run starts every listener and blocks until ctx is cancelled or a listener
// fails.
func run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("driver", cfg.Database.Driver),
		zap.String("bus", cfg.Realtime.Bus),
	)

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if st.db != nil {
		defer st.db.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	bus, err := openBus(ctx, cfg.Realtime, logger)
	if err != nil {
		return fmt.Errorf("realtime bus: %w", err)
	}
	pub := openPublisher(cfg.Events, logger)
	defer func() {
		if err := pub.Close(); err != nil {
			logger.Warn("close publisher", zap.Error(err))
		}
	}()

	authSvc := service.NewAuthService(st.users, st.shares, service.AuthOptions{
		SignKey:     []byte(cfg.Auth.JWTKey),
		ExternalKey: []byte(cfg.Auth.ExternalKey),
		AccessTTL:   cfg.Auth.AccessTTL,
	}, st.lim, logger)

	hub := realtime.NewHub(authSvc, service.NewAccessChecker(st.notes, st.shares), bus,
		realtime.NewMetrics(reg), logger.Named("realtime"), realtime.Options{
			SendBuffer:     cfg.Realtime.SendBuffer,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
		})
	defer func() {
		if err := hub.Close(); err != nil {
			logger.Warn("close hub", zap.Error(err))
		}
	}()

	noteSvc := service.NewNoteService(st.users, st.notes, st.revisions, st.shares, hub, logger)
	shareSvc := service.NewShareService(st.users, st.shares, noteSvc, hub, pub, logger)
	hub.OnSave(service.NewSessionSaver(noteSvc).Save)
	if err := hub.Start(ctx); err != nil {
		return fmt.Errorf("start hub: %w", err)
	}

	api := httpserver.New(httpserver.Deps{
		Auth:     authSvc,
		Notes:    noteSvc,
		Shares:   shareSvc,
		Realtime: hub,
		Gatherer: reg,
		Metrics:  httpserver.NewMetrics(reg),
		Log:      logger.Named("http"),
		Dev:      cfg.Dev,
	})
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var gs *grpc.Server
	if cfg.GRPC.HealthAddr != "" {
		var pinger grpcserver.Pinger
		if st.db != nil {
			pinger = st.db
		}
		health := grpcserver.NewHealth(pinger, 0, logger.Named("health"))
		gs = grpcserver.NewServer(health, grpcserver.NewInterceptors(logger.Named("grpc"), reg))
		lis, err := net.Listen("tcp", cfg.GRPC.HealthAddr)
		if err != nil {
			return fmt.Errorf("health listen: %w", err)
		}
		go health.Run(ctx)
		go func() {
			logger.Info("health listening", zap.String("addr", cfg.GRPC.HealthAddr))
			if err := gs.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if gs != nil {
		done := make(chan struct{})
		go func() {
			gs.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			gs.Stop()
		}
	}
	logger.Info("shutdown complete")
	return nil
}
