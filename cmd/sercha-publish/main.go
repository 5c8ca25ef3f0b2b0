package main

// @title           Sercha Publish API
// @version         1.0
// @description     Links Twitter and LinkedIn accounts over OAuth 2.0 and publishes drafted posts.

// @host      localhost:8080
// @BasePath  /
// @schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token. Format: "Bearer {token}"

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-publish/internal/adapters/driven/ai"
	"github.com/custodia-labs/sercha-publish/internal/adapters/driven/auth"
	"github.com/custodia-labs/sercha-publish/internal/adapters/driven/connectors"
	"github.com/custodia-labs/sercha-publish/internal/adapters/driven/connectors/linkedin"
	"github.com/custodia-labs/sercha-publish/internal/adapters/driven/connectors/twitter"
	"github.com/custodia-labs/sercha-publish/internal/adapters/driven/memory"
	"github.com/custodia-labs/sercha-publish/internal/adapters/driven/postgres"
	redisadapter "github.com/custodia-labs/sercha-publish/internal/adapters/driven/redis"
	"github.com/custodia-labs/sercha-publish/internal/adapters/driven/secrets"
	"github.com/custodia-labs/sercha-publish/internal/adapters/driving/http"
	"github.com/custodia-labs/sercha-publish/internal/config"
	"github.com/custodia-labs/sercha-publish/internal/core/domain"
	"github.com/custodia-labs/sercha-publish/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-publish/internal/core/services"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("sercha-publish exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Version == "dev" {
		cfg.Version = version
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("sercha-publish starting", "version", cfg.Version, "store", cfg.StoreBackend)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ===== Credential store =====
	credStore, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// ===== Provider adapters =====
	registry := connectors.NewRegistry()
	registry.RegisterOAuthHandler(twitter.NewOAuthHandler(cfg.ProviderConfig(domain.ProviderTypeTwitter), cfg.UpstreamTimeout))
	registry.RegisterOAuthHandler(linkedin.NewOAuthHandler(cfg.ProviderConfig(domain.ProviderTypeLinkedIn), cfg.UpstreamTimeout))
	registry.RegisterPublisher(twitter.NewPublisher(cfg.APIBaseURL(domain.ProviderTypeTwitter), cfg.UpstreamTimeout))
	registry.RegisterPublisher(linkedin.NewPublisher(cfg.APIBaseURL(domain.ProviderTypeLinkedIn), cfg.UpstreamTimeout))

	for _, provider := range registry.SupportedTypes() {
		handler, _ := registry.OAuthHandler(provider)
		if err := handler.Validate(); err != nil {
			logger.Warn("provider not configured, sign-in will fail", "provider", provider, "error", err)
		}
	}

	// ===== Content generator (optional) =====
	var generator driven.ContentGenerator
	if cfg.OpenAIAPIKey != "" {
		gen, err := ai.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
		if err != nil {
			return fmt.Errorf("create generator: %w", err)
		}
		generator = gen
		logger.Info("content generator enabled", "model", cfg.OpenAIModel)
	} else {
		logger.Info("OPENAI_API_KEY not set, drafting from prompts is disabled")
	}

	// ===== API authentication (optional) =====
	var tokens driven.TokenVerifier
	if cfg.APIJWTSecret != "" {
		tokens = auth.NewAdapter(cfg.APIJWTSecret)
	} else {
		logger.Warn("API_JWT_SECRET not set, connection and post endpoints are unauthenticated")
	}

	// ===== Services =====
	oauthService := services.NewOAuthService(services.OAuthServiceConfig{
		Store:               credStore,
		Registry:            registry,
		Logger:              logger,
		FlowTTL:             cfg.FlowTTL,
		CredentialRetention: cfg.CredentialRetention,
	})
	postService := services.NewPostService(services.PostServiceConfig{
		OAuth:     oauthService,
		Registry:  registry,
		Generator: generator,
		Logger:    logger,
	})
	sweeper := services.NewSweeper(services.SweeperConfig{
		Store:              credStore,
		Logger:             logger,
		FlowInterval:       cfg.SweepFlowInterval,
		CredentialInterval: cfg.SweepCredentialInterval,
	})

	server := http.NewServer(http.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		Version:         cfg.Version,
		FrontendURL:     cfg.FrontendURL,
		CredentialsPath: cfg.CredentialsPath,
	}, oauthService, postService, tokens, credStore, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		if err := sweeper.Start(gctx); err != nil {
			return fmt.Errorf("start sweeper: %w", err)
		}
		<-gctx.Done()
		sweeper.Stop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("sercha-publish stopped")
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// openStore connects the configured backend and returns a close func.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (driven.CredentialStore, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreRedis:
		cipher, err := secrets.NewEncryptorFromSecret(cfg.TokenEncryptionSecret)
		if err != nil {
			return nil, nil, fmt.Errorf("create token cipher: %w", err)
		}
		client, err := redisadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using redis credential store")
		s := redisadapter.NewCredentialStore(client, cipher, redisadapter.WithKeyPrefix(cfg.RedisKeyPrefix))
		return s, func() { _ = client.Close() }, nil

	case config.StorePostgres:
		cipher, err := secrets.NewEncryptorFromSecret(cfg.TokenEncryptionSecret)
		if err != nil {
			return nil, nil, fmt.Errorf("create token cipher: %w", err)
		}
		db, err := postgres.Connect(ctx, postgres.DefaultConfig(cfg.DatabaseURL))
		if err != nil {
			return nil, nil, err
		}
		if err := db.InitSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Info("using postgres credential store")
		return postgres.NewCredentialStore(db.DB, cipher), func() { _ = db.Close() }, nil

	default:
		logger.Info("using in-memory credential store")
		return memory.NewCredentialStore(), func() {}, nil
	}
}
