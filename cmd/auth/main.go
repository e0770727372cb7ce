package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/config"
	httptransport "github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/http"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/http/handler"
	httpmiddleware "github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/http/middleware"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/identity"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/repository"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/server"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/service"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/telemetry"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/token"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/workspace"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newPGXPool,
			newUserRepository,
			newEntitlementRepository,
			newCodeRepository,
			newDeviceTokenRepository,
			newRefreshTokenRepository,
			newWebhookEventRepository,
			newSessionCodec,
			newWorkspaceChecker,
			newIdentityResolver,
			service.NewAuthService,
			handler.NewAuthHandler,
			handler.NewWebhookHandler,
			newAuthMiddleware,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return repository.NewPostgresUserRepo(pool)
}

func newEntitlementRepository(pool *pgxpool.Pool) repository.EntitlementRepository {
	return repository.NewPostgresEntitlementRepo(pool)
}

func newCodeRepository(pool *pgxpool.Pool) repository.CodeRepository {
	return repository.NewPostgresCodeRepo(pool)
}

func newDeviceTokenRepository(pool *pgxpool.Pool) repository.DeviceTokenRepository {
	return repository.NewPostgresDeviceTokenRepo(pool)
}

func newRefreshTokenRepository(pool *pgxpool.Pool) repository.RefreshTokenRepository {
	return repository.NewPostgresRefreshTokenRepo(pool)
}

func newWebhookEventRepository(pool *pgxpool.Pool) repository.WebhookEventRepository {
	return repository.NewPostgresWebhookEventRepo(pool)
}

func newSessionCodec(cfg config.Config) (*token.Codec, error) {
	return token.NewCodec(cfg.SessionSigningKey, cfg.Issuer)
}

func newWorkspaceChecker(cfg config.Config, logger *zap.Logger) workspace.Checker {
	return workspace.NewHTTPChecker(cfg.WorkspaceAPIBaseURL, logger)
}

func newIdentityResolver(codec *token.Codec, logger *zap.Logger) *identity.Resolver {
	// No external IdP session source is deployed alongside this service;
	// the signed session token (bearer or cookie) is the only browser
	// credential. Wire an identity.Provider here if that changes.
	return identity.NewResolver(codec, nil, logger)
}

func newAuthMiddleware(authService *service.AuthService) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{AuthService: authService}
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
