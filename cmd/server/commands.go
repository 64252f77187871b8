package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mindhelper.ai/backend/internal/api"
	"mindhelper.ai/backend/internal/config"
	"mindhelper.ai/backend/internal/core"
	"mindhelper.ai/backend/internal/reference"
	"mindhelper.ai/backend/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			dbStore, err := store.Open(contextOrBackground(cmd.Context()), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer dbStore.Close()
			logger.Info("Database schema is up to date")
			return nil
		},
	}
}

func newPromptCmd() *cobra.Command {
	var persona, tariff string
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Print the system instruction for a persona and tariff",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := core.ParsePersona(persona)
			if err != nil {
				return err
			}
			t, err := core.ParseTariff(tariff)
			if err != nil {
				return err
			}
			instruction, err := core.BuildSystemInstruction(p, t)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), instruction)
			return nil
		},
	}
	cmd.Flags().StringVar(&persona, "persona", "empathic", "empathic, cbt, mindfulness or coach")
	cmd.Flags().StringVar(&tariff, "tariff", "free", "free, basic, pro or premium")
	return cmd
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func newGenerator(ctx context.Context, cfg config.Config, logger *zap.Logger) (core.Generator, func(), error) {
	switch cfg.LLMBackend {
	case config.BackendMock:
		logger.Info("Using mock model backend")
		return core.NewMockGenerator(), func() {}, nil
	case config.BackendVertex:
		gen, err := core.NewGenAIGenerator(ctx, core.GenAIConfig{
			APIKey:   cfg.GeminiAPIKey,
			Vertex:   cfg.GCPProject != "",
			Project:  cfg.GCPProject,
			Location: cfg.GCPLocation,
			BaseURL:  cfg.GenAIBaseURL,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return gen, func() {}, nil
	default:
		gen, err := core.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, logger)
		if err != nil {
			return nil, nil, err
		}
		return gen, gen.Close, nil
	}
}

func runServe(parent context.Context) error {
	cfg := config.Load()
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	if !cfg.EnvFileLoaded {
		logger.Info("No .env file found, relying on environment variables")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(contextOrBackground(parent), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbStore, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbStore.Close()

	ref, err := reference.Load()
	if err != nil {
		return err
	}

	gen, closeGen, err := newGenerator(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize model backend: %w", err)
	}
	defer closeGen()

	pipeline := core.NewPipeline(gen, logger, core.WithModels(cfg.GeminiModel, cfg.GeminiPremiumModel))
	apiHandler := api.NewAPIHandler(
		core.NewAccountService(dbStore),
		core.NewChatService(dbStore, pipeline, logger, cfg.LLMTimeout),
		core.NewMoodService(dbStore),
		ref,
		logger,
		api.Options{
			JWTSecret:        cfg.JWTSecret,
			TelegramBotToken: cfg.TelegramBotToken,
			AllowLocalLogin:  cfg.IsLocal(),
		},
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.NewRouter(apiHandler, logger, cfg.StaticDir),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // model calls can take time
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.AppEnv),
			zap.String("llm_backend", cfg.LLMBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("could not listen on %s: %w", srv.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server exiting gracefully")
	return nil
}
