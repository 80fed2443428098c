// Command server boots the module plane core: it loads configuration,
// connects the relational store and session cache, constructs the Auth
// Gate, the Connection Hub, and the module plane, then serves HTTP and
// WebSocket traffic until an interrupt or termination signal arrives.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/modplane/server/internal/auth"
	"github.com/modplane/server/internal/cache"
	"github.com/modplane/server/internal/config"
	"github.com/modplane/server/internal/db"
	apperrors "github.com/modplane/server/internal/errors"
	"github.com/modplane/server/internal/hub"
	"github.com/modplane/server/internal/logger"
	"github.com/modplane/server/internal/middleware"
	"github.com/modplane/server/internal/models"
	"github.com/modplane/server/internal/modules"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.Initialize(getEnv("LOG_LEVEL", "info"), getEnv("GIN_MODE", "release") != "release")
	logger.Log.Info().Msg("starting module plane core")

	database, err := db.NewDatabase(db.Config{
		DSN:      cfg.PGURL,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("connecting to database")
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		logger.Log.Fatal().Err(err).Msg("running migrations")
	}

	cacheEnabled := getEnv("CACHE_ENABLED", "true") == "true"
	sessionCache, err := cache.NewCache(cache.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       0,
		Enabled:  cacheEnabled,
	})
	if err != nil {
		logger.Log.Warn().Err(err).Msg("session cache unreachable, continuing without it")
		sessionCache = cache.NewDisabled()
	}
	defer sessionCache.Close()

	tokens := auth.NewTokenIssuer(cfg.Secret)
	sessions := auth.NewSessionStore(sessionCache)
	gate := auth.NewGate(tokens, sessions, database)
	authHandlers := auth.NewHandlers(gate)

	// The Connection Hub (C7) needs a Dispatcher at construction time,
	// but the module plane needs the Hub as its ClientSender at its own
	// construction time. planeHandle breaks the cycle: it is wired into
	// the Hub immediately and pointed at the real Plane once it exists.
	planeHandle := &dispatcherHandle{}
	wsHub := hub.New(planeHandle, gate, checkOriginFunc(cfg.OriginWhitelist))

	plane := modules.New(cfg.ModulesDir, database, wsHub, cfg.LoadBalancing)
	planeHandle.plane = plane

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := plane.Boot(ctx); err != nil {
		logger.Log.Fatal().Err(err).Msg("booting module plane")
	}
	go wsHub.Run(ctx)

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(apperrors.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.SizeLimit(0))
	router.Use(middleware.NewRateLimiter(cfg.RateLimitRPM).Middleware())
	router.Use(middleware.OriginWhitelist(cfg.OriginWhitelist))
	router.Use(gate.Middleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	authHandlers.Register(router)
	authHandlers.RegisterAdmin(router)

	if p := cfg.OAuth["google"]; p.ClientID != "" {
		googleProvider, err := auth.NewGoogleProvider(ctx, p.ClientID, p.ClientSecret, p.RedirectURL, gate)
		if err != nil {
			logger.Log.Warn().Err(err).Msg("google oauth disabled: discovery failed")
		} else {
			googleProvider.Register(router)
		}
	}
	if p := cfg.OAuth["discord"]; p.ClientID != "" {
		auth.NewDiscordProvider(p.ClientID, p.ClientSecret, p.RedirectURL, gate).Register(router)
	}

	router.GET("/ws", func(c *gin.Context) {
		wsHub.ServeWS(c.Writer, c.Request)
	})

	router.NoRoute(func(c *gin.Context) {
		dispatchModuleRequest(c, plane)
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Log.Info().Str("port", cfg.Port).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Log.Info().Str("signal", sig.String()).Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error().Err(err).Msg("http server forced to shut down")
	}
	cancel()
}

// dispatcherHandle implements hub.Dispatcher by forwarding to a *modules.Plane
// set after both the Hub and the Plane exist. See main's construction order.
type dispatcherHandle struct {
	plane *modules.Plane
}

func (d *dispatcherHandle) LookupCommand(fullName string) (hub.CommandDescriptor, bool) {
	return d.plane.LookupCommand(fullName)
}

func (d *dispatcherHandle) Invoke(ctx context.Context, desc hub.CommandDescriptor, clientID string, payload json.RawMessage, identity *models.Identity, shardKey string) (any, error) {
	return d.plane.Invoke(ctx, desc, clientID, payload, identity, shardKey)
}

func (d *dispatcherHandle) NotifyClientConnect(clientID string) {
	d.plane.NotifyClientConnect(clientID)
}

func (d *dispatcherHandle) NotifyClientDisconnect(clientID string) {
	d.plane.NotifyClientDisconnect(clientID)
}

// dispatchModuleRequest is the HTTP glue for C4: it translates a Gin
// request into a framework-agnostic modules.HTTPRequest and writes back
// whatever DispatchHTTP returns. Routes are resolved as /<module>/<rest>
// or /<@ns>/<module>/<rest>, per §4.4.
func dispatchModuleRequest(c *gin.Context, plane *modules.Plane) {
	moduleName, subPath, ok := splitModulePath(c.Request.URL.Path, plane)
	if !ok {
		apperrors.AbortWithError(c, apperrors.NotFound("route"))
		return
	}

	var identity *models.Identity
	if id, ok := auth.IdentityFromContext(c); ok {
		identity = id
	}

	headers := make(map[string]string, len(c.Request.Header))
	for k := range c.Request.Header {
		headers[k] = c.Request.Header.Get(k)
	}
	params := make(map[string]string, len(c.Params))
	for _, p := range c.Params {
		params[p.Key] = p.Value
	}

	contentType := c.ContentType()
	multipart := strings.HasPrefix(contentType, "multipart/form-data")

	var body json.RawMessage
	if c.Request.Body != nil && !multipart {
		raw, err := readBody(c)
		if err != nil {
			apperrors.AbortWithError(c, apperrors.Internal())
			return
		}
		body = raw
	}

	result, err := plane.DispatchHTTP(c.Request.Context(), modules.HTTPRequest{
		Method:      c.Request.Method,
		ModuleName:  moduleName,
		SubPath:     subPath,
		Query:       c.Request.URL.Query(),
		Params:      params,
		Body:        body,
		Headers:     headers,
		Identity:    identity,
		Multipart:   multipart,
		ShardHeader: c.GetHeader("x-shard-key"),
	})
	if err != nil {
		if appErr, ok := err.(*apperrors.AppError); ok {
			apperrors.AbortWithError(c, appErr)
			return
		}
		apperrors.AbortWithError(c, apperrors.Internal())
		return
	}

	if result.ContentType != "" {
		c.Data(result.Status, result.ContentType, result.Body)
		return
	}
	c.Data(result.Status, "application/json", result.Body)
}

// splitModulePath matches /<module>/... or /<@ns>/<module>/... against the
// router's known modules (§6.1). A namespaced module keeps its "@" in
// both the manifest name and the router key (see internal/modules
// manifest scanning and WS command resolution in internal/hub/frame.go),
// so the URL carries it literally too: "/@ns/mod/..." resolves to module
// name "@ns/mod", the same string a WS command's "@ns/mod.cmd" prefix
// resolves to.
func splitModulePath(path string, plane *modules.Plane) (moduleName, subPath string, ok bool) {
	trimmed := strings.TrimPrefix(path, "/")
	segments := strings.SplitN(trimmed, "/", 3)
	if len(segments) == 0 || segments[0] == "" {
		return "", "", false
	}

	if strings.HasPrefix(segments[0], "@") && len(segments) >= 2 {
		nsModule := segments[0] + "/" + segments[1]
		if plane.HasModule(nsModule) {
			rest := ""
			if len(segments) == 3 {
				rest = segments[2]
			}
			return nsModule, "/" + rest, true
		}
	}

	if plane.HasModule(segments[0]) {
		rest := ""
		if len(segments) >= 2 {
			rest = strings.Join(segments[1:], "/")
		}
		return segments[0], "/" + rest, true
	}

	return "", "", false
}

func readBody(c *gin.Context) (json.RawMessage, error) {
	buf, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(buf), nil
}

func checkOriginFunc(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
