package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/tasktrack/internal/authkit"
	"github.com/tyemirov/tasktrack/internal/database"
	"github.com/tyemirov/tasktrack/internal/identitypg"
	"github.com/tyemirov/tasktrack/internal/tasks"
	"github.com/tyemirov/tasktrack/internal/web"
	"github.com/tyemirov/tasktrack/pkg/sessiontoken"
	"go.uber.org/zap"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

var buildGoogleTokenValidator = func(ctx context.Context) (authkit.GoogleTokenValidator, error) {
	return authkit.NewGoogleTokenValidator(ctx)
}

var buildOAuthClient = func(serverConfig authkit.ServerConfig) (authkit.OAuthClient, error) {
	return authkit.NewGoogleOAuthClient(serverConfig.GoogleClientID, serverConfig.GoogleClientSecret, serverConfig.GoogleRedirectURL)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "tasktrack",
		Short:   "Task tracker API with Google sign-in and stateless bearer sessions",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("jwt_signing_key", "", "HS256 signing secret for session tokens")
	rootCmd.Flags().Duration("session_ttl", 24*time.Hour, "Session token TTL")
	rootCmd.Flags().String("frontend_callback_url", "http://localhost:4200/auth/callback", "Frontend URL that receives the session token")
	rootCmd.Flags().String("frontend_error_url", "http://localhost:4200/login", "Frontend URL that receives failed logins")
	rootCmd.Flags().String("google_client_id", "", "Google OAuth client ID")
	rootCmd.Flags().String("google_client_secret", "", "Google OAuth client secret")
	rootCmd.Flags().String("google_redirect_url", "", "Absolute URL of the OAuth callback route registered with Google")
	rootCmd.Flags().Duration("login_state_ttl", 5*time.Minute, "Lifetime of a pending login handshake")
	rootCmd.Flags().String("database_url", "sqlite://tasktrack.db", "Database URL (postgres:// or sqlite://)")
	rootCmd.Flags().String("identity_backend", identityBackendGorm, "Identity store backend (gorm or pgx; pgx requires a postgres database_url)")
	rootCmd.Flags().String("redis_url", "", "Redis URL for shared login state; leave empty for in-memory state")
	rootCmd.Flags().Bool("dev_insecure_http", false, "Allow insecure HTTP for local dev")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for the frontend origins")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")

	for _, flagName := range []string{
		"listen_addr",
		"jwt_signing_key",
		"session_ttl",
		"frontend_callback_url",
		"frontend_error_url",
		"google_client_id",
		"google_client_secret",
		"google_redirect_url",
		"login_state_ttl",
		"database_url",
		"identity_backend",
		"redis_url",
		"dev_insecure_http",
		"enable_cors",
		"cors_allowed_origins",
	} {
		_ = viper.BindPFlag(flagName, rootCmd.Flags().Lookup(flagName))
	}

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	sessionTokenIssuer = "tasktrack"

	identityBackendGorm = "gorm"
	identityBackendPgx  = "pgx"

	configCodeMissingGoogleClientID     = "config.missing_google_client_id"
	configCodeMissingGoogleClientSecret = "config.missing_google_client_secret"
	configCodeMissingGoogleRedirectURL  = "config.missing_google_redirect_url"
	configCodeMissingJWTSigningKey      = "config.missing_jwt_signing_key"
	configCodeInvalidSessionTTL         = "config.invalid_session_ttl"
	configCodeUninitializedServerConf   = "config.uninitialized_server_config"
	configCodeGoogleValidatorInit       = "config.google_validator_init"
	configCodeUnsupportedIdentityStore  = "config.unsupported_identity_backend"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

func LoadServerConfig() (authkit.ServerConfig, error) {
	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return authkit.ServerConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	sessionTTL := viper.GetDuration("session_ttl")
	if sessionTTL <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidSessionTTL, "session_ttl must be greater than zero")
	}

	googleClientID := viper.GetString("google_client_id")
	if googleClientID == "" {
		return authkit.ServerConfig{}, configError(configCodeMissingGoogleClientID, "google_client_id must be provided")
	}
	googleClientSecret := viper.GetString("google_client_secret")
	if googleClientSecret == "" {
		return authkit.ServerConfig{}, configError(configCodeMissingGoogleClientSecret, "google_client_secret must be provided")
	}
	googleRedirectURL := viper.GetString("google_redirect_url")
	if googleRedirectURL == "" {
		return authkit.ServerConfig{}, configError(configCodeMissingGoogleRedirectURL, "google_redirect_url must be provided")
	}

	loginStateTTL := 5 * time.Minute
	if configuredLoginStateTTL := viper.GetDuration("login_state_ttl"); configuredLoginStateTTL > 0 {
		loginStateTTL = configuredLoginStateTTL
	}

	return authkit.ServerConfig{
		AppJWTSigningKey:    []byte(jwtSigningKey),
		AppJWTIssuer:        sessionTokenIssuer,
		SessionTTL:          sessionTTL,
		FrontendCallbackURL: viper.GetString("frontend_callback_url"),
		FrontendErrorURL:    viper.GetString("frontend_error_url"),
		GoogleClientID:      googleClientID,
		GoogleClientSecret:  googleClientSecret,
		GoogleRedirectURL:   googleRedirectURL,
		LoginStateTTL:       loginStateTTL,
		AllowInsecureHTTP:   viper.GetBool("dev_insecure_http"),
	}, nil
}

// serverOptions holds the settings that select infrastructure rather than auth behaviour.
type serverOptions struct {
	listenAddr         string
	databaseURL        string
	identityBackend    string
	redisURL           string
	enableCORS         bool
	corsAllowedOrigins []string
}

func loadServerOptions() serverOptions {
	identityBackend := strings.ToLower(strings.TrimSpace(viper.GetString("identity_backend")))
	if identityBackend == "" {
		identityBackend = identityBackendGorm
	}
	databaseURL := viper.GetString("database_url")
	if strings.TrimSpace(databaseURL) == "" {
		databaseURL = "sqlite://tasktrack.db"
	}
	return serverOptions{
		listenAddr:         viper.GetString("listen_addr"),
		databaseURL:        databaseURL,
		identityBackend:    identityBackend,
		redisURL:           viper.GetString("redis_url"),
		enableCORS:         viper.GetBool("enable_cors"),
		corsAllowedOrigins: viper.GetStringSlice("cors_allowed_origins"),
	}
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(authkit.ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}
	options := loadServerOptions()

	validator, validatorErr := buildGoogleTokenValidator(commandContext)
	if validatorErr != nil {
		return fmt.Errorf("%s: %w", configCodeGoogleValidatorInit, validatorErr)
	}
	oauthClient, oauthErr := buildOAuthClient(serverConfig)
	if oauthErr != nil {
		return oauthErr
	}

	app, buildErr := buildApplication(commandContext, serverConfig, options, oauthClient, validator, logger)
	if buildErr != nil {
		return buildErr
	}
	defer app.close()

	server := &http.Server{
		Addr:              options.listenAddr,
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(stopSignals)
		select {
		case <-stopSignals:
		case <-shutdownCtx.Done():
			return
		}
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", options.listenAddr))
	serveErr := serveHTTP(server)
	logger.Info("metrics snapshot", zap.Any("counters", app.metrics.Snapshot()))
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", serveErr)
	}
	return nil
}

// application is the fully wired HTTP surface together with its resources.
type application struct {
	router  *gin.Engine
	metrics *authkit.CounterMetrics
	closers []func()
}

func (app *application) close() {
	for index := len(app.closers) - 1; index >= 0; index-- {
		app.closers[index]()
	}
}

func buildApplication(ctx context.Context, serverConfig authkit.ServerConfig, options serverOptions, oauthClient authkit.OAuthClient, validator authkit.GoogleTokenValidator, logger *zap.Logger) (*application, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	app := &application{metrics: authkit.NewCounterMetrics()}
	cleanupOnError := func(err error) (*application, error) {
		app.close()
		return nil, err
	}

	gormDB, driverLabel, openErr := database.Open(ctx, options.databaseURL, &authkit.IdentityRecord{}, &tasks.TaskRecord{})
	if openErr != nil {
		return cleanupOnError(openErr)
	}
	if sqlDB, sqlErr := gormDB.DB(); sqlErr == nil {
		app.closers = append(app.closers, func() { _ = sqlDB.Close() })
	}

	var identityStore authkit.IdentityStore
	switch options.identityBackend {
	case identityBackendGorm:
		identityStore = authkit.NewGormIdentityStore(gormDB, driverLabel)
	case identityBackendPgx:
		if driverLabel != database.DriverPostgres {
			return cleanupOnError(configError(configCodeUnsupportedIdentityStore, "identity_backend pgx requires a postgres database_url"))
		}
		pool, poolErr := identitypg.BuildPool(ctx, options.databaseURL)
		if poolErr != nil {
			return cleanupOnError(fmt.Errorf("identity_store.pgx.pool: %w", poolErr))
		}
		app.closers = append(app.closers, pool.Close)
		if schemaErr := identitypg.EnsureSchema(ctx, pool); schemaErr != nil {
			return cleanupOnError(fmt.Errorf("identity_store.pgx.schema: %w", schemaErr))
		}
		identityStore = identitypg.NewPostgresIdentityStore(pool)
	default:
		return cleanupOnError(configError(configCodeUnsupportedIdentityStore, fmt.Sprintf("identity_backend %q is not supported", options.identityBackend)))
	}
	logger.Info("identity store ready",
		zap.String("driver", driverLabel),
		zap.String("backend", options.identityBackend))

	var loginStates authkit.LoginStateStore
	if strings.TrimSpace(options.redisURL) != "" {
		redisClient, redisErr := authkit.ConnectRedis(ctx, options.redisURL)
		if redisErr != nil {
			return cleanupOnError(redisErr)
		}
		app.closers = append(app.closers, func() { _ = redisClient.Close() })
		redisStates, statesErr := authkit.NewRedisLoginStateStore(redisClient, serverConfig.LoginStateTTL)
		if statesErr != nil {
			return cleanupOnError(statesErr)
		}
		loginStates = redisStates
		logger.Info("using redis login state store")
	} else {
		loginStates = authkit.NewMemoryLoginStateStore(serverConfig.LoginStateTTL)
		logger.Info("using in-memory login state store")
	}

	clock := authkit.NewSystemClock()
	codec, codecErr := sessiontoken.New(sessiontoken.Config{
		SigningKey: serverConfig.AppJWTSigningKey,
		Issuer:     serverConfig.AppJWTIssuer,
		TTL:        serverConfig.SessionTTL,
		Clock:      clock,
	})
	if codecErr != nil {
		return cleanupOnError(codecErr)
	}
	resolver := authkit.NewIdentityResolver(identityStore, clock, logger)
	issuer, issuerErr := authkit.NewSessionIssuer(resolver, codec, serverConfig.FrontendCallbackURL, serverConfig.FrontendErrorURL, app.metrics, logger)
	if issuerErr != nil {
		return cleanupOnError(issuerErr)
	}
	authenticator := authkit.NewRequestAuthenticator(codec, app.metrics, logger)
	guard := authkit.NewAccessGuard(app.metrics, logger)
	taskService := tasks.NewService(tasks.NewGormStore(gormDB, driverLabel), guard, clock, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if options.enableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, options.corsAllowedOrigins)
		if corsErr != nil {
			return cleanupOnError(corsErr)
		}
		router.Use(corsMiddleware)
	}

	router.GET("/healthz", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	authkit.NewLoginRoutes(serverConfig, oauthClient, validator, loginStates, issuer, logger).Mount(router)

	protected := router.Group("/api")
	protected.Use(authenticator.RequireSession())
	protected.GET("/auth/user", web.HandleCurrentUser(identityStore, logger))
	protected.POST("/auth/logout", web.HandleLogout(logger))
	tasks.NewHandlers(taskService, logger).Mount(protected)

	app.router = router
	return app, nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
