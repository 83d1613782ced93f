package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/caseportal/messaging/internal/access"
	"github.com/caseportal/messaging/internal/auth"
	"github.com/caseportal/messaging/internal/cache"
	"github.com/caseportal/messaging/internal/config"
	"github.com/caseportal/messaging/internal/events"
	"github.com/caseportal/messaging/internal/fanout"
	"github.com/caseportal/messaging/internal/handler"
	"github.com/caseportal/messaging/internal/hub"
	"github.com/caseportal/messaging/internal/membership"
	"github.com/caseportal/messaging/internal/metrics"
	"github.com/caseportal/messaging/internal/relay"
	"github.com/caseportal/messaging/internal/service"
	"github.com/caseportal/messaging/internal/store"
	"github.com/caseportal/messaging/internal/transcript"
	"github.com/caseportal/messaging/pkg/log"
	"github.com/caseportal/messaging/pkg/middleware"
	"github.com/caseportal/messaging/pkg/pubsub"
	"github.com/caseportal/messaging/pkg/storage"
)

// Deps are the external resources the gateway runs on. DB, Bus and
// Verifier are required. Redis enables the read and access caches when
// cache.enabled is set. Checker overrides the participant table lookup.
// Objects enables transcript export.
type Deps struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Bus      pubsub.PubSub
	Verifier auth.Verifier
	Checker  access.Checker
	Objects  storage.Storage
}

// App is the assembled gateway.
type App struct {
	Hub         *hub.Hub
	Router      *gin.Engine
	Gateway     service.GatewayService
	Store       store.MessageStore
	Checker     access.Checker
	CaseUpdates *events.CaseUpdates
}

// Models lists the tables the gateway reads and writes. The participant
// table is owned by the case service; it is migrated here for local runs.
func Models() []interface{} {
	return append(store.Models(), &access.ParticipantModel{})
}

// New wires the gateway. Nothing runs until Start.
func New(baseCtx context.Context, cfg *config.Config, deps Deps) (*App, error) {
	if deps.DB == nil || deps.Bus == nil || deps.Verifier == nil {
		return nil, errors.New("app: DB, Bus and Verifier are required")
	}

	var st store.MessageStore = store.NewGormStore(deps.DB)
	checker := deps.Checker
	if checker == nil {
		checker = access.NewGormChecker(deps.DB)
	}
	var invalidator events.AccessInvalidator
	if deps.Redis != nil && cfg.Cache.Enabled {
		st = cache.NewCachedStore(st,
			cache.NewRedisMessageCache(deps.Redis, cfg.Cache.KeyPrefix),
			cfg.Cache.HistoryTTL, cfg.Cache.UnreadTTL)
		cached := access.NewCachedChecker(checker, deps.Redis, cfg.Cache.KeyPrefix, cfg.Cache.AccessTTL)
		checker = cached
		invalidator = cached
	}

	verifier := auth.WithTimeout(deps.Verifier, cfg.Auth.VerifyTimeout)

	h := hub.NewHub(hub.NewMemoryRegistry(), hub.NewMemoryRoomTable())
	fo := fanout.New(h, metrics.FanoutRecorder{})
	members := membership.NewManager(h, checker)

	publisher := events.NewPublisher(deps.Bus)
	rl := relay.New(h, checker, st, fo, cfg.Relay.MaxContentLength)
	rl.OnMessage(publisher.MessageCreated)

	gateway := service.NewGatewayService(h, verifier, members, rl)
	history := service.NewHistoryService(st, checker, publisher)

	var transcripts service.TranscriptService
	if deps.Objects != nil {
		transcripts = service.NewTranscriptService(
			transcript.NewExporter(st, deps.Objects, cfg.Transcript.URLTTL), checker)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(log.GinMiddleware(log.L()))
	router.Use(metrics.GinMiddleware())

	authMW := middleware.NewAuthMiddleware(auth.MiddlewareFunc(verifier))
	handler.NewHTTPHandler(history, transcripts, h, authMW).RegisterRoutes(router)
	handler.NewWSHandler(baseCtx, h, gateway, cfg.WebSocket, cfg.Server.AllowedOrigins).RegisterRoutes(router)

	return &App{
		Hub:         h,
		Router:      router,
		Gateway:     gateway,
		Store:       st,
		Checker:     checker,
		CaseUpdates: events.NewCaseUpdates(deps.Bus, fo, invalidator),
	}, nil
}

// Start runs the hub loop and subscribes to case updates. Everything stops
// when ctx ends.
func (a *App) Start(ctx context.Context) error {
	go a.Hub.Run(ctx)

	if err := a.Gateway.Start(ctx); err != nil {
		return fmt.Errorf("failed to start gateway service: %w", err)
	}
	if err := a.CaseUpdates.Start(ctx); err != nil {
		return err
	}
	return nil
}

// Stop halts the hub, disconnecting every client, and waits for it.
func (a *App) Stop() {
	a.Hub.Stop()
	<-a.Hub.Done()
	a.Gateway.Stop()
}
