package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/caseportal/messaging/internal/app"
	"github.com/caseportal/messaging/internal/auth"
	"github.com/caseportal/messaging/internal/config"
	"github.com/caseportal/messaging/internal/grpcserver"
	"github.com/caseportal/messaging/pkg/database"
	"github.com/caseportal/messaging/pkg/jwt"
	"github.com/caseportal/messaging/pkg/log"
	"github.com/caseportal/messaging/pkg/pubsub"
	"github.com/caseportal/messaging/pkg/storage"
)

func main() {
	configPath := "./config"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log)
	l := log.L()

	if log.ParseLevel(cfg.Log.Level) > log.ParseLevel("debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	// Database
	db, err := database.New(&cfg.Database)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close(db)
	if err := database.AutoMigrate(db, app.Models()...); err != nil {
		l.Fatal().Err(err).Msg("failed to migrate database")
	}
	l.Info().Str("driver", cfg.Database.Driver).Msg("connected to database")

	// Redis
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			l.Warn().Err(err).Str("address", cfg.Redis.Address).Msg("redis unreachable, caches disabled")
			rdb.Close()
			rdb = nil
		} else {
			defer rdb.Close()
			l.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")
		}
	}

	// Event bus
	bus, err := pubsub.NewPubSub(cfg.Events)
	if err != nil {
		l.Fatal().Err(err).Str("driver", cfg.Events.Driver).Msg("failed to initialize event bus")
	}
	defer bus.Close()
	l.Info().Str("driver", cfg.Events.Driver).Msg("event bus ready")

	// Auth
	tokens, err := jwt.NewManager(cfg.Auth.JWT)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to initialize jwt manager")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Transcript storage
	var objects storage.Storage
	if cfg.Transcript.Enabled {
		objects, err = storage.New(ctx, cfg.Transcript.Storage)
		if err != nil {
			l.Fatal().Err(err).Str("driver", cfg.Transcript.Storage.Driver).Msg("failed to initialize transcript storage")
		}
		l.Info().Str("driver", cfg.Transcript.Storage.Driver).Msg("transcript storage ready")
	}

	gateway, err := app.New(ctx, cfg, app.Deps{
		DB:       db,
		Redis:    rdb,
		Bus:      bus,
		Verifier: auth.NewJWTVerifier(tokens),
		Objects:  objects,
	})
	if err != nil {
		l.Fatal().Err(err).Msg("failed to build gateway")
	}
	if err := gateway.Start(ctx); err != nil {
		l.Fatal().Err(err).Msg("failed to start gateway")
	}

	// gRPC health
	var grpcSrv *grpcserver.Server
	if cfg.GRPC.Enabled {
		grpcSrv, err = grpcserver.New(fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port), l)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to start grpc server")
		}
		grpcSrv.WatchHub(gateway.Hub.Done())
		go func() {
			if err := grpcSrv.Serve(); err != nil {
				l.Error().Err(err).Msg("grpc server error")
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      gateway.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		l.Info().Str("address", server.Addr).Msg("messaging gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info().Msg("shutting down messaging gateway")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting upgrades first, then disconnect live sessions.
	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("server forced to shutdown")
	}
	gateway.Stop()
	cancel()
	if grpcSrv != nil {
		grpcSrv.Shutdown()
	}

	l.Info().Msg("messaging gateway stopped")
}
