package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/kevinesg/ph-top-headlines-ETL/internal/config"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/handlers"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/models"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/pipeline"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/repository"
	"github.com/kevinesg/ph-top-headlines-ETL/logger"
	"github.com/kevinesg/ph-top-headlines-ETL/pkg/rabbitmq"
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:          "server",
	Short:        "HTTP trigger for pipeline runs",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(flagConfig)
	},
}

func main() {
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "path to config file")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(configPath string) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	log, err := logger.NewColorfulLogger("ETL Server", cfg.LogLevel, cfg.LogDir)
	if err != nil {
		return err
	}
	defer log.Close()
	log.Info("Starting ETL server with %s", cfg)

	var runs repository.RunRepository
	if cfg.RedisAddr != "" {
		rdb, err := config.NewRedisClient(ctx, cfg)
		if err != nil {
			log.Error("%v", err)
			return err
		}
		defer rdb.Close()
		runs = repository.NewRedisRunRepository(rdb, cfg.RunTTL)
		log.Info("Run registry: redis %s (ttl %s)", cfg.RedisAddr, cfg.RunTTL)
	} else {
		runs = repository.NewMemoryRunRepository()
		log.Warn("Redis.addr not set, run history is kept in memory")
	}

	var notifier pipeline.Notifier
	if cfg.RabbitMQURL != "" {
		conn, ch, err := rabbitmq.SetupRabbitMQ(cfg.RabbitMQURL, cfg.QueueName)
		if err != nil {
			log.Error("Failed to setup RabbitMQ: %v", err)
			return err
		}
		defer conn.Close()
		defer ch.Close()
		notifier = rabbitmq.NewNotifier(ch, cfg.QueueName)
		log.Info("Run reports are published to queue %s", cfg.QueueName)
	}

	run := func(ctx context.Context, runCfg config.Config, runID string) (models.RunReport, error) {
		p, err := pipeline.Open(ctx, runCfg, log)
		if err != nil {
			return models.RunReport{}, err
		}
		defer p.Close()
		if notifier != nil {
			p.SetNotifier(notifier)
		}
		return p.Run(ctx, runID)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), handlers.RequestLogger(log))

	runHandler := handlers.NewRunHandler(ctx, cfg, run, runs, log)
	runHandler.RegisterRoutes(router)

	log.Info("Listening on http://localhost%s", cfg.ServerPort)
	if err := router.Run(cfg.ServerPort); err != nil {
		log.Error("Failed to start server: %v", err)
		return err
	}
	return nil
}
