package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	"quizroom/internal/api"
	"quizroom/internal/broadcast"
	"quizroom/internal/config"
	"quizroom/internal/database"
	"quizroom/internal/gateway"
	"quizroom/internal/hub"
	"quizroom/internal/integrity"
	"quizroom/internal/scheduler"
	"quizroom/internal/session"
	"quizroom/internal/websocket"
	pkgdatabase "quizroom/pkg/database"
)

// Application coordinates all system components
// Initialization order: Database → migrations → Registry → Session →
// Integrity → Dispatcher → Gateway → Hub → Scheduler → API → HTTP
type Application struct {
	config         *config.Config
	dbManager      *database.Manager
	registry       *websocket.Registry
	sessionManager *session.Manager
	monitor        *integrity.Monitor
	dispatcher     *broadcast.Dispatcher
	gateway        *gateway.Gateway
	eventHub       *hub.Hub
	scheduler      *scheduler.Scheduler
	apiServer      *api.Server
	httpServer     *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewApplication creates a new application instance with all components initialized
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: database and schema
	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	if err := pkgdatabase.NewMigrationManager(dbManager.GetDB(), dbConfig.MigrationsPath).ApplyMigrations(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if err := pkgdatabase.NewSchemaValidator(dbManager.GetDB()).Validate(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("database schema is invalid: %w", err)
	}
	log.Println("Database migrations applied successfully")

	// STEP 2: room registry and connection sessions
	registry := websocket.NewRegistry()
	sessionManager := session.NewManager(registry, dbManager)

	// STEP 3: integrity monitor and broadcast dispatcher
	monitor := integrity.NewMonitor(integrity.Config{
		ExcessiveMessageThreshold: cfg.Integrity.ExcessiveMessageThreshold,
	})
	dispatcher := broadcast.NewDispatcher(dbManager, registry)

	// STEP 4: gateway, which also decides room joins
	chatGateway := gateway.NewGateway(dbManager, monitor, registry, gateway.Config{
		MaxMessageLength:   cfg.Chat.MaxMessageLength,
		HistoryLimit:       cfg.Chat.HistoryLimit,
		RateLimitPerMinute: cfg.Chat.RateLimitPerMinute,
	})
	sessionManager.SetRoomAuthorizer(chatGateway)

	// STEP 5: event hub and scheduler
	eventHub := hub.NewHub(sessionManager, chatGateway)
	jobs := scheduler.New(dbManager, dispatcher, scheduler.Config{
		Enabled:  cfg.Scheduler.Enabled,
		Interval: cfg.Scheduler.Interval,
	})

	// STEP 6: HTTP surface
	wsHandler := websocket.NewHandler(eventHub, websocket.HandlerConfig{
		AllowedOrigin: cfg.HTTP.BaseURL,
		PingInterval:  cfg.WebSocket.PingInterval,
		ReadTimeout:   cfg.WebSocket.ReadTimeout,
		WriteTimeout:  cfg.WebSocket.WriteTimeout,
		BufferSize:    cfg.WebSocket.BufferSize,
	})
	apiServer := api.NewServer(api.Dependencies{
		Gateway:    chatGateway,
		Dispatcher: dispatcher,
		Scheduler:  jobs,
		Users:      dbManager,
		Health:     dbManager,
		Stats:      registry,
		WebSocket:  http.HandlerFunc(wsHandler.HandleWebSocket),
	}, api.Config{
		BaseURL:    cfg.HTTP.BaseURL,
		CronSecret: cfg.Security.CronSecret,
	})

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:         cfg,
		dbManager:      dbManager,
		registry:       registry,
		sessionManager: sessionManager,
		monitor:        monitor,
		dispatcher:     dispatcher,
		gateway:        chatGateway,
		eventHub:       eventHub,
		scheduler:      jobs,
		apiServer:      apiServer,
		httpServer:     httpServer,
	}, nil
}

// Start begins application execution. The hub runs before the listener
// accepts connections; ctx bounds the lifetime of the background loops.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting quizroom on %s", app.httpServer.Addr)

	if err := app.eventHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event hub: %w", err)
	}

	if err := app.scheduler.Start(ctx); err != nil {
		_ = app.eventHub.Stop()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		app.stopBackground()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.mu.Lock()
	app.listener = listener
	app.mu.Unlock()

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	log.Printf("quizroom started successfully on %s", listener.Addr())
	return nil
}

// Stop shuts down in reverse order: HTTP → Scheduler → Hub → Database
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down quizroom")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	app.stopBackground()

	if err := app.dbManager.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	log.Printf("quizroom shutdown complete")
	return nil
}

func (app *Application) stopBackground() {
	if app.scheduler.IsRunning() {
		if err := app.scheduler.Stop(); err != nil {
			log.Printf("Scheduler shutdown error: %v", err)
		}
	}
	if app.eventHub.IsRunning() {
		if err := app.eventHub.Stop(); err != nil {
			log.Printf("Event hub shutdown error: %v", err)
		}
	}
}

// GetAddr returns the bound address once started, the configured one before
func (app *Application) GetAddr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}
