package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gofiber/fiber/v2"
	authgate "github.com/goliatone/go-authgate"
	"github.com/goliatone/go-authgate/activitymap"
	"github.com/goliatone/go-authgate/api"
	"github.com/goliatone/go-authgate/cache"
	"github.com/goliatone/go-authgate/repository"
	"github.com/goliatone/go-authgate/social"
	"github.com/goliatone/go-authgate/social/providers/github"
	"github.com/goliatone/go-authgate/social/providers/oidc"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type App struct {
	settings *authgate.Settings
	logger   *slog.Logger
	db       *bun.DB
	repo     *repository.Manager
	users    *repository.CachedUsers
	closers  []func() error
	logins   *authgate.Authenticator
	authn    *authgate.RequestAuthenticator
	flow     *social.Authenticator
	srv      server
}

// server is satisfied by router.Server and by httpServer.
type server interface {
	Serve(address string) error
	Shutdown(ctx context.Context) error
}

func main() {
	settings, err := authgate.LoadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if settings.Debug {
		level = slog.LevelDebug
		fmt.Println("============")
		fmt.Println(print.MaybeHighlightJSON(settings.Summary()))
		fmt.Println("============")
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &App{settings: settings, logger: logger}
	defer app.Close()

	for _, step := range []func(context.Context, *App) error{
		WithPersistence,
		WithUserCache,
		WithAuthentication,
		WithSocialLogin,
		WithHTTPServer,
	} {
		if err := step(ctx, app); err != nil {
			logger.Error("failed to initialize", "error", err)
			app.Close()
			os.Exit(1)
		}
	}

	go func() {
		logger.Info("authgate listening", "addr", settings.HTTPAddr, "transport", settings.HTTPTransport)
		if err := app.srv.Serve(settings.HTTPAddr); err != nil {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

func WithPersistence(ctx context.Context, app *App) error {
	var db *bun.DB
	switch app.settings.DatabaseDriver {
	case "postgres":
		sqldb, err := sql.Open("pgx", app.settings.DatabaseDSN)
		if err != nil {
			return err
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		sqldb, err := sql.Open(sqliteshim.ShimName, app.settings.DatabaseDSN)
		if err != nil {
			return err
		}
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}
	app.closers = append(app.closers, db.Close)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}

	app.db = db
	app.repo = repository.NewManager(db)
	app.repo.MustValidate()

	return app.repo.CreateSchema(ctx)
}

func WithUserCache(ctx context.Context, app *App) error {
	var users cache.Cache[*authgate.User]

	if addr := app.settings.RedisAddr; addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		app.closers = append(app.closers, client.Close)
		users = cache.NewRedis[*authgate.User](client,
			cache.WithPrefix[*authgate.User]("authgate"),
			cache.WithRedisTTL[*authgate.User](app.settings.UserCacheTTL),
		)
	} else {
		users = cache.NewMemory[*authgate.User](
			cache.WithDefaultTTL(app.settings.UserCacheTTL),
			cache.WithMaxEntries(10_000),
		)
	}
	app.closers = append(app.closers, users.Close)

	app.users = repository.NewCachedUsers(app.repo.Users(), users,
		repository.WithCacheTTL(app.settings.UserCacheTTL),
		repository.WithCacheLogger(app.logger.With("component", "user_cache")),
	)
	return nil
}

func WithAuthentication(ctx context.Context, app *App) error {
	logger := app.logger.With("component", "authgate")
	sink := activitymap.LogSink(app.logger.With("component", "activity"))

	tokens := authgate.NewTokenServiceFromConfig(app.settings, logger)
	linker := authgate.NewLinkVerifier(app.users, authgate.WithLinkVerifierLogger(logger))

	app.logins = authgate.NewAuthenticator(app.users, linker, tokens,
		authgate.WithLogger(logger),
		authgate.WithActivitySink(sink),
	)
	app.authn = authgate.NewRequestAuthenticator(tokens,
		authgate.WithAuthScheme(app.settings.AuthScheme),
		authgate.WithRequestLogger(logger),
		authgate.WithRequestActivitySink(sink),
	)
	return nil
}

func WithSocialLogin(ctx context.Context, app *App) error {
	s := app.settings
	if !s.SocialLoginEnabled() {
		return nil
	}

	states, err := social.NewEncryptedStateManager([]byte(s.StateEncryptionKey), []byte(s.StateHMACKey), s.StateTTL)
	if err != nil {
		return err
	}

	opts := []social.Option{social.WithLogger(app.logger.With("component", "social"))}

	if s.GitHubClientID != "" {
		opts = append(opts, social.WithProvider(github.New(github.Config{
			ClientID:     s.GitHubClientID,
			ClientSecret: s.GitHubClientSecret,
			CallbackURL:  callbackURL(s.BaseURL, github.Name),
			EmailLookup: social.RetryPolicy{
				Timeout:    s.EmailLookupTimeout,
				MaxRetries: s.EmailLookupRetries,
				Base:       200 * time.Millisecond,
			},
		})))
	}

	if s.GoogleClientID != "" {
		provider, err := oidc.New(ctx, oidc.Config{
			Issuer:       s.GoogleIssuer,
			ClientID:     s.GoogleClientID,
			ClientSecret: s.GoogleClientSecret,
			CallbackURL:  callbackURL(s.BaseURL, "google"),
		})
		if err != nil {
			return fmt.Errorf("google provider: %w", err)
		}
		opts = append(opts, social.WithProvider(provider))
	}

	app.flow = social.NewAuthenticator(app.logins, states, social.Config{
		DefaultRedirectURL: s.BaseURL,
		StateTTL:           s.StateTTL,
	}, opts...)
	return nil
}

func WithHTTPServer(ctx context.Context, app *App) error {
	opts := []api.Option{api.WithLogger(app.logger.With("component", "api"))}
	if app.flow != nil {
		opts = append(opts, api.WithProviderFlow(app.flow))
	}
	handler := api.NewHandler(app.logins, api.Config{ErrorRedirect: app.settings.ErrorRedirect}, opts...)

	if app.settings.HTTPTransport == "chi" {
		app.srv = newChiServer(handler, app.authn)
		return nil
	}

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:               "authgate",
			UnescapePath:          true,
			DisableStartupMessage: true,
			ReadTimeout:           10 * time.Second,
		}))
	})

	srv.Router().Get("/healthz", func(ctx router.Context) error {
		return ctx.NoContent(http.StatusOK)
	})

	api.RegisterRoutes(srv.Router(), handler, api.RouteConfig{
		Authenticator: app.authn,
		ContextKey:    app.settings.GetContextKey(),
	})

	app.srv = srv
	return nil
}

func newChiServer(handler *api.Handler, authn *authgate.RequestAuthenticator) *httpServer {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler.RegisterHTTP(r, authn)

	return &httpServer{srv: &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

type httpServer struct {
	srv *http.Server
}

func (s *httpServer) Serve(address string) error {
	s.srv.Addr = address
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *httpServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func callbackURL(base, registration string) string {
	return strings.TrimRight(base, "/") + "/auth/oauth2/" + registration + "/callback"
}
