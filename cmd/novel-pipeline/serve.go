package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"z-novel-pipeline/internal/application/pipeline"
	"z-novel-pipeline/internal/bus"
	"z-novel-pipeline/internal/config"
	"z-novel-pipeline/internal/infrastructure/llm"
	"z-novel-pipeline/internal/infrastructure/messaging"
	"z-novel-pipeline/internal/infrastructure/persistence/filestore"
	"z-novel-pipeline/internal/infrastructure/storage"
	"z-novel-pipeline/internal/interfaces/http/handler"
	"z-novel-pipeline/internal/interfaces/http/router"
	einoobs "z-novel-pipeline/internal/observability/eino"
	"z-novel-pipeline/internal/workflow/generation"
	"z-novel-pipeline/internal/workflow/prompt"
	"z-novel-pipeline/pkg/logger"
	"z-novel-pipeline/pkg/tracer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline worker and its HTTP/WebSocket API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "starting novel-pipeline",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	shutdownTracer, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
		Insecure:    cfg.Observability.Tracing.Insecure,
	})
	if err != nil {
		logger.Error(ctx, "failed to initialize tracer", err)
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Error(context.Background(), "failed to shutdown tracer", err)
			}
		}()
	}

	einoobs.Init()

	factory := llm.NewEinoFactory(&cfg.LLM)
	modelName := factory.DefaultModel()
	prober := llm.NewOllamaClient(cfg.LLM.Ollama.BaseURL, cfg.LLM.Ollama.ProbeTimeout)
	if err := probeModel(ctx, prober, modelName, cfg.LLM.Ollama.RequireModel); err != nil {
		return err
	}

	store, err := newStore(cfg, modelName)
	if err != nil {
		return fmt.Errorf("failed to open project store: %w", err)
	}

	uploader, err := newUploader(cfg.Storage.Backup)
	if err != nil {
		return err
	}

	events := bus.New(cfg.Pipeline.EventBuffer)

	// 生成客户端的重试提示写入当前项目日志，orch 在下方创建
	var orch *pipeline.Orchestrator
	client := generation.NewClient(factory,
		generation.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			Multiplier:  cfg.Retry.Multiplier,
		},
		generation.WithReporter(generation.ReporterFunc(func(ctx context.Context, message string) {
			orch.Log(ctx, message)
		})),
	)
	orch = pipeline.New(store, client, prompt.NewRegistry(), events,
		pipeline.SettingsFromConfig(cfg.Pipeline, modelName),
		pipeline.WithBackup(func(ctx context.Context, project string) ([]string, error) {
			return store.Backup(ctx, project, uploader)
		}),
	)

	var rdb *redis.Client
	if cfg.Messaging.RedisStream.Enabled {
		rdb, err = messaging.NewClient(ctx, cfg.Messaging.RedisStream)
		if err != nil {
			return err
		}
		defer rdb.Close()
		logger.Info(ctx, "redis stream enabled", "addr", cfg.Messaging.RedisStream.Addr)
	}

	r := router.New(cfg, router.Handlers{
		Health:  handler.NewHealthHandler(prober, modelName, rdb, Version),
		Project: handler.NewProjectHandler(store, orch),
		Command: handler.NewCommandHandler(orch),
		Event:   handler.NewEventHandler(events, orch),
	})

	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
		// 关闭时结束 SSE 等长连接
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error { return orch.Run(gctx) })
	g.Go(func() error { return orch.RunBackups(gctx) })

	if rdb != nil {
		rs := cfg.Messaging.RedisStream
		forwarder := messaging.NewForwarder(messaging.NewProducer(rdb, rs.MaxLen), messaging.Stream(rs.Stream), rs.ForwardContent)
		sub := events.Subscribe("redis")
		g.Go(func() error { return forwarder.Run(gctx, sub) })

		if rs.CommandStream != "" {
			consumer := messaging.NewConsumer(rdb, messaging.ConsumerConfig{
				Stream:       messaging.Stream(rs.CommandStream),
				Group:        messaging.ConsumerGroup(rs.Group),
				ConsumerName: rs.ConsumerName,
				BlockTimeout: rs.BlockTimeout,
				RetryLimit:   rs.RetryLimit,
			})
			consumer.RegisterHandler(messaging.TypeCommand, messaging.CommandHandler(orch.Dispatch))
			if err := consumer.Start(gctx); err != nil {
				stop()
				_ = g.Wait()
				return fmt.Errorf("failed to start command consumer: %w", err)
			}
			defer consumer.Stop()
		}
	}

	g.Go(func() error {
		logger.Info(gctx, "HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info(context.Background(), "shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	// 退出前做一次最终备份
	orch.BackupNow(context.Background())
	if err != nil {
		logger.Error(context.Background(), "server exited with error", err)
		return err
	}
	logger.Info(context.Background(), "server exited")
	return nil
}

// probeModel 检查推理服务与模型；不可达只告警，模型缺失按配置决定是否致命
func probeModel(ctx context.Context, prober *llm.OllamaClient, modelName string, require bool) error {
	if err := prober.Ping(ctx); err != nil {
		logger.Warn(ctx, "ollama is not reachable, generation will fail until it is up", "error", err.Error())
		return nil
	}
	ok, err := prober.HasModel(ctx, modelName)
	if err != nil {
		logger.Warn(ctx, "failed to list ollama models", "error", err.Error())
		return nil
	}
	if !ok {
		if require {
			return fmt.Errorf("model %q is not available in ollama, run: ollama pull %s", modelName, modelName)
		}
		logger.Warn(ctx, "model is not available in ollama", "model", modelName)
		return nil
	}
	logger.Info(ctx, "ollama model available", "model", modelName)
	return nil
}

// newUploader 备份未启用时返回 nil，只做本地备份
func newUploader(cfg config.BackupStorageConfig) (filestore.Uploader, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	u, err := storage.NewS3Uploader(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup uploader: %w", err)
	}
	return u, nil
}
