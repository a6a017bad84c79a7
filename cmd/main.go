package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"hospital-chat/handler"
	"hospital-chat/internal/config"
	"hospital-chat/internal/integrations/azureopenai"
	"hospital-chat/internal/integrations/paramstore"
	"hospital-chat/internal/ratelimit"
	"hospital-chat/internal/repository"
	"hospital-chat/internal/usecase"
)

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("chat service exited", "err", err)
		os.Exit(1)
	}
}

// run wires the service and blocks serving requests. Returning instead of
// exiting lets deferred cleanup such as closing the SQLite handle run.
func run(ctx context.Context) error {
	// ---- Configuration ----
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	// ---- AWS SDK config ----
	var awsCfg aws.Config
	if cfg.NeedsAWS() {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("load AWS config: %w", err)
		}
	}

	// ---- Credential ----
	apiKey := cfg.APIKey
	if apiKey == "" {
		params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return fmt.Errorf("create SSM client: %w", err)
		}
		apiKey, err = params.Credential(ctx, cfg.APIKeyParam)
		if err != nil {
			return fmt.Errorf("resolve completion credential %q: %w", cfg.APIKeyParam, err)
		}
	}

	// ---- Clients ----
	completions, err := azureopenai.NewClient(cfg.Endpoint, apiKey, cfg.Deployment,
		azureopenai.WithAPIVersion(cfg.APIVersion),
		azureopenai.WithTimeout(cfg.CompletionTimeout),
	)
	if err != nil {
		return fmt.Errorf("create completion client: %w", err)
	}

	store, closeStore, err := newMessageStore(cfg, awsCfg)
	if err != nil {
		return fmt.Errorf("create %s message store: %w", cfg.StoreBackend, err)
	}
	defer closeStore()

	var limiter usecase.RateLimiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.New()
	}

	// ---- Handler ----
	chatService, err := usecase.NewChatService(completions, store, limiter, cfg.HistoryLimit)
	if err != nil {
		return fmt.Errorf("create chat service: %w", err)
	}

	h, err := handler.NewHandler(chatService)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	if cfg.LocalAddr == "" {
		lambda.Start(h.Handle)
		return nil
	}

	srv := &http.Server{
		Addr:              cfg.LocalAddr,
		Handler:           handler.HTTPHandler(h),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("serving chat locally", "addr", cfg.LocalAddr, "store", cfg.StoreBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("local server stopped: %w", err)
	}
	return nil
}

func newMessageStore(cfg config.Config, awsCfg aws.Config) (usecase.MessageStore, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		db, err := repository.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		store, err := repository.NewSQLiteStore(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, closeDB(db), nil
	default:
		store, err := repository.NewDynamoStore(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

func closeDB(db *sql.DB) func() {
	return func() {
		if err := db.Close(); err != nil {
			slog.Error("failed to close database", "err", err)
		}
	}
}
