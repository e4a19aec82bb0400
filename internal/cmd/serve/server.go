package serve

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/chat-service/internal/chat"
	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/dataencryption"
	"github.com/chirino/chat-service/internal/plugin/route/groups"
	"github.com/chirino/chat-service/internal/plugin/route/messages"
	"github.com/chirino/chat-service/internal/plugin/route/socket"
	routesystem "github.com/chirino/chat-service/internal/plugin/route/system"
	"github.com/chirino/chat-service/internal/plugin/route/users"
	storemetrics "github.com/chirino/chat-service/internal/plugin/store/metrics"
	registrycache "github.com/chirino/chat-service/internal/registry/cache"
	registrymigrate "github.com/chirino/chat-service/internal/registry/migrate"
	registryroute "github.com/chirino/chat-service/internal/registry/route"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/chirino/chat-service/internal/security"
	"github.com/gin-gonic/gin"
)

// limiterIdleTTL is how long an idle user's send limiter is retained.
const limiterIdleTTL = 10 * time.Minute

// Server holds the running server and its subsystems.
type Server struct {
	Config          *config.Config
	Store           registrystore.ChatStore
	Chat            *chat.Service
	Router          *gin.Engine
	Running         *RunningServers
	closeManagement func(context.Context) error
	stopBackground  context.CancelFunc
}

// Shutdown gracefully shuts down the server. Live sockets are dropped from
// presence before the listeners close.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.stopBackground != nil {
		s.stopBackground()
	}
	if s.Chat != nil {
		s.Chat.Presence.Reset()
	}
	if s.closeManagement != nil {
		_ = s.closeManagement(ctx)
	}
	return s.Running.Close(ctx)
}

// StartServer initializes all subsystems and starts HTTP and WebSocket traffic on a single port.
// Use cfg.Listener.Port=0 for a random port. Actual port: Server.Running.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting chat service",
		"httpPort", cfg.Listener.Port,
		"db", cfg.DatastoreType,
		"cache", cfg.CacheType,
		"mode", cfg.Mode,
	)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if config.FromContext(ctx) == nil {
		ctx = config.WithContext(ctx, cfg)
	}

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(metricsLabels)

	// Run migrations
	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	enc, err := dataencryption.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}
	ctx = dataencryption.WithContext(ctx, enc)
	log.Info("Message text encryption", "provider", enc.PrimaryID())

	// The user cache is optional; hydration falls back to the store.
	var userCache registrycache.UserCache
	if cacheLoader, err := registrycache.Select(cfg.CacheType); err != nil {
		log.Warn("Cache not available", "cache", cfg.CacheType, "err", err)
	} else if userCache, err = cacheLoader(ctx); err != nil {
		log.Warn("Failed to initialize cache", "cache", cfg.CacheType, "err", err)
		userCache = nil
	} else {
		ctx = registrycache.WithUserCacheContext(ctx, userCache)
	}

	// Initialize store
	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	store = storemetrics.Wrap(store)

	svc := chat.NewService(store, userCache, cfg.UserCacheTTL)

	// Set up gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(security.AccessLogMiddleware())
	} else {
		router.Use(security.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(security.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	origins := security.ParseOrigins(cfg.CORSOrigins)
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(origins))
	}

	// Mount main route plugins on the main router.
	for _, loader := range registryroute.MainRouteLoaders() {
		if err := loader(router); err != nil {
			return nil, fmt.Errorf("failed to load routes: %w", err)
		}
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())

	// Create shared token resolver and auth middleware. Callers are
	// registered as users on first contact.
	resolver := security.NewTokenResolver(cfg)
	auth := security.AuthMiddleware(resolver)
	ensure := users.EnsureUser(svc.Profiles)

	limiter := security.NewSendLimiter(cfg.SendRateLimit, cfg.SendRateBurst, limiterIdleTTL)
	go limiter.Run(bgCtx)

	users.MountRoutes(router, svc.Profiles, auth, ensure)
	messages.MountRoutes(router, svc.Direct, limiter.Middleware(), auth, ensure)
	groups.MountRoutes(router, svc.Groups, limiter.Middleware(), auth, ensure)
	socket.MountRoutes(router, svc.Presence, cfg.WebSocket, origins, auth, ensure)

	// Mount management route plugins. If a dedicated management port is configured,
	// run them on a bare gin engine served by the management server. Otherwise,
	// mount them on the main router.
	var closeManagement func(context.Context) error
	if cfg.ManagementListenerEnabled {
		mgmtRouter := gin.New()
		mgmtRouter.Use(gin.Recovery())
		if cfg.ManagementAccessLog {
			mgmtRouter.Use(security.AccessLogMiddleware())
		}
		for _, loader := range registryroute.ManagementRouteLoaders() {
			if err := loader(mgmtRouter); err != nil {
				stopBackground()
				return nil, fmt.Errorf("failed to load management routes: %w", err)
			}
		}
		// Management listener shares TLS cert/key with the main listener.
		mgmtCfg := cfg.ManagementListener
		mgmtCfg.TLSCertFile = cfg.Listener.TLSCertFile
		mgmtCfg.TLSKeyFile = cfg.Listener.TLSKeyFile
		_, closeManagement, err = startManagementServer(mgmtCfg, mgmtRouter)
		if err != nil {
			stopBackground()
			return nil, fmt.Errorf("failed to start management server: %w", err)
		}
	} else {
		for _, loader := range registryroute.ManagementRouteLoaders() {
			if err := loader(router); err != nil {
				stopBackground()
				return nil, fmt.Errorf("failed to load management routes: %w", err)
			}
		}
	}

	running, err := StartSinglePortHTTP(ctx, cfg.Listener, router)
	if err != nil {
		stopBackground()
		if closeManagement != nil {
			_ = closeManagement(context.Background())
		}
		return nil, err
	}

	log.Info("Server listening",
		"port", running.Port,
		"plaintext", cfg.Listener.EnablePlainText,
		"tls", cfg.Listener.EnableTLS,
	)

	routesystem.MarkReady()
	return &Server{
		Config:          cfg,
		Store:           store,
		Chat:            svc,
		Router:          router,
		Running:         running,
		closeManagement: closeManagement,
		stopBackground:  stopBackground,
	}, nil
}
