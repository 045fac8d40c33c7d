package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/tunehub/backend/internal/api"
	"github.com/tunehub/backend/internal/auth"
	"github.com/tunehub/backend/internal/config"
	"github.com/tunehub/backend/internal/domain"
	"github.com/tunehub/backend/internal/fcm"
	"github.com/tunehub/backend/internal/logging"
	"github.com/tunehub/backend/internal/middleware"
	"github.com/tunehub/backend/internal/pubsub"
	"github.com/tunehub/backend/internal/realtime"
	"github.com/tunehub/backend/internal/repository"
	"github.com/tunehub/backend/internal/worker"
)

const version = "1.0.0"

// deviceStore keeps push tokens and forgets stale ones.
type deviceStore interface {
	domain.DeviceRepository
	worker.DeviceTokenPurger
}

// stores bundles the repositories selected by STORE_DRIVER.
type stores struct {
	users         domain.UserRepository
	releases      domain.ReleaseRepository
	follows       domain.FollowRepository
	favorites     domain.FavoriteRepository
	comments      domain.CommentRepository
	devices       deviceStore
	notifications domain.NotificationRepository
	messages      domain.MessageRepository
	conversations domain.ConversationStore
	checks        map[string]api.Pinger
	closers       []func()
}

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.New(logging.Config{
		Env:      cfg.Server.Env,
		Level:    cfg.Log.Level,
		FilePath: cfg.Log.FilePath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting TuneHub API",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Firebase backs Firestore, push and ID token verification. It is
	// optional with in-memory stores.
	var app *firebase.App
	if cfg.UsesLiveStores() || cfg.Firebase.ProjectID != "" || cfg.Firebase.CredentialsFile != "" {
		app, err = fcm.NewApp(ctx, logger, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			if cfg.UsesLiveStores() {
				logger.Fatal("Failed to initialize Firebase", zap.Error(err))
			}
			logger.Warn("Firebase disabled", zap.Error(err))
		}
	}

	st, err := initStores(ctx, cfg, app, logger)
	if err != nil {
		logger.Fatal("Failed to initialize stores", zap.Error(err))
	}
	defer func() {
		for i := len(st.closers) - 1; i >= 0; i-- {
			st.closers[i]()
		}
	}()

	// Event bus: Redis when configured so every instance sees every event
	var bus pubsub.Bus = pubsub.NewLocalBus()
	if cfg.Redis.URL != "" {
		redisBus, err := pubsub.NewRedisBus(ctx, cfg.Redis.URL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		st.checks["redis"] = redisBus
		bus = redisBus
		logger.Info("Connected to Redis")
	}
	defer bus.Close()

	// Push
	var pusher domain.Pusher
	if app != nil {
		fcmClient, err := fcm.NewClient(ctx, app, logger)
		if err != nil {
			logger.Warn("Failed to initialize FCM client - push notifications will be disabled", zap.Error(err))
		} else {
			pusher = fcmClient
			logger.Info("FCM client initialized")
		}
	}

	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer)
	identities := initIdentities(ctx, cfg, app, logger)
	verifier := append(auth.Chain{jwtManager}, identities...)

	// Initialize services
	notificationService := domain.NewNotificationService(st.notifications, st.devices, pusher, bus, cfg.Notify.Timeout, logger)
	messageService := domain.NewMessageService(st.messages, notificationService, bus, logger)
	chatService := domain.NewChatService(st.conversations, bus, logger)
	activityService := domain.NewActivityService(domain.ActivityRepositories{
		Users:     st.users,
		Releases:  st.releases,
		Follows:   st.follows,
		Favorites: st.favorites,
		Comments:  st.comments,
	}, notificationService, logger)
	userService := domain.NewUserService(st.users)
	authService := domain.NewAuthService(identities, jwtManager, st.users, cfg.JWT.AccessTTL, logger)

	// Initialize WebSocket manager
	wsManager := api.NewWebSocketManager(logger)
	go wsManager.Run(ctx)
	go wsManager.ConsumeEvents(ctx, bus)

	// Background workers
	retention, err := worker.NewRetention(cfg.Retention.Schedule, notificationService, st.devices,
		cfg.Retention.ReadAge, cfg.Retention.DeviceRefresh, logger)
	if err != nil {
		logger.Fatal("Failed to schedule retention", zap.Error(err))
	}
	retention.Start()

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger)
	rateLimiter.StartCleanup(ctx, 5*time.Minute)

	// Initialize router
	router := api.NewRouter(api.Handlers{
		Auth:          api.NewAuthHandler(authService, initOAuth(cfg), logger),
		Notifications: api.NewNotificationHandler(notificationService, logger),
		Messages:      api.NewMessageHandler(messageService, logger),
		Chat:          api.NewChatHandler(chatService, notificationService, wsManager, cfg.Notify.PollInterval, logger),
		Activity:      api.NewActivityHandler(activityService, logger),
		Profile:       api.NewProfileHandler(userService, logger),
		Health:        api.NewHealthHandler(version, st.checks, logger),
	}, verifier, rateLimiter, cfg.Server.AllowedOrigins, logger)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}
	retention.Stop(shutdownCtx)

	// let in-flight notification fan-outs reach the stores
	drained := make(chan struct{})
	go func() {
		activityService.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		logger.Warn("Gave up waiting for notification fan-out")
	}

	logger.Info("Server stopped")
}

func initStores(ctx context.Context, cfg *config.Config, app *firebase.App, logger *zap.Logger) (*stores, error) {
	if !cfg.UsesLiveStores() {
		mem := repository.NewMemoryStore()
		logger.Warn("Using in-memory stores - data is lost on restart")
		return &stores{
			users:         mem,
			releases:      mem,
			follows:       mem,
			favorites:     mem,
			comments:      mem,
			devices:       mem,
			notifications: mem,
			messages:      mem,
			conversations: realtime.NewMemoryStore(),
			checks:        map[string]api.Pinger{"memory": mem},
		}, nil
	}

	st := &stores{checks: make(map[string]api.Pinger)}

	// PostgreSQL: users, catalog, social graph, devices
	db, err := initDatabase(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	st.closers = append(st.closers, db.Close)
	pg := repository.NewPostgresRepository(db)
	if err := pg.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	st.users, st.releases, st.follows, st.favorites, st.comments, st.devices = pg, pg, pg, pg, pg, pg
	st.checks["postgres"] = pg
	logger.Info("Connected to database")

	// MongoDB: notifications and direct messages
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	st.closers = append(st.closers, func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
	})
	mg := repository.NewMongoRepository(client.Database(cfg.Mongo.Database))
	if err := mg.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("ensure mongo indexes: %w", err)
	}
	st.notifications, st.messages = mg, mg
	st.checks["mongo"] = mg
	logger.Info("Connected to MongoDB", zap.String("database", cfg.Mongo.Database))

	// Firestore: live conversations
	if app == nil {
		return nil, fmt.Errorf("firestore requires firebase")
	}
	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to firestore: %w", err)
	}
	st.closers = append(st.closers, func() { _ = fs.Close() })
	conversations := realtime.NewFirestoreStore(fs)
	st.conversations = conversations
	st.checks["firestore"] = conversations
	logger.Info("Connected to Firestore")

	return st, nil
}

// initIdentities returns the Google and Firebase ID token verifiers that
// are configured.
func initIdentities(ctx context.Context, cfg *config.Config, app *firebase.App, logger *zap.Logger) auth.Chain {
	var chain auth.Chain

	googleIDs := auth.NewGoogleAuthVerifier(cfg.Google.ClientIDs)
	if googleIDs.IsConfigured() {
		chain = append(chain, googleIDs)
		logger.Info("Google sign-in is configured")
	} else {
		logger.Warn("Google sign-in is NOT configured - set GOOGLE_CLIENT_ID to enable")
	}

	if app != nil {
		authClient, err := app.Auth(ctx)
		if err != nil {
			logger.Warn("Firebase token verification disabled", zap.Error(err))
		} else {
			chain = append(chain, auth.NewFirebaseVerifier(authClient))
		}
	}
	return chain
}

// initOAuth returns the Google browser sign-in config, or nil when it is not
// configured.
func initOAuth(cfg *config.Config) *oauth2.Config {
	if !cfg.GoogleWebFlowEnabled() {
		return nil
	}
	return &oauth2.Config{
		ClientID:     cfg.Google.ClientIDs[0],
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}
}

func initDatabase(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pool settings
	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
