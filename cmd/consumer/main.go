package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kevinesg/ph-top-headlines-ETL/internal/config"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/models"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/repository"
	"github.com/kevinesg/ph-top-headlines-ETL/logger"
	"github.com/kevinesg/ph-top-headlines-ETL/pkg/rabbitmq"
)

var errInvalidReport = errors.New("invalid run report")

var flagConfig string

var rootCmd = &cobra.Command{
	Use:          "consumer",
	Short:        "Record published run reports in the run registry",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return consume(flagConfig)
	},
}

func main() {
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "path to config file")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// handleReport decodes one message and stores it. Undecodable messages are
// reported with errInvalidReport so the caller can drop them.
func handleReport(ctx context.Context, body []byte, runs repository.RunRepository, log *logger.ColorfulLogger) error {
	var report models.RunReport
	if err := json.Unmarshal(body, &report); err != nil {
		return fmt.Errorf("%w: %v", errInvalidReport, err)
	}
	if report.RunID == "" {
		return fmt.Errorf("%w: missing run_id", errInvalidReport)
	}

	if err := runs.Save(ctx, report); err != nil {
		return err
	}

	if report.Status == models.RunError {
		log.Warn("Run %s failed (%s): %s", report.RunID, report.ErrorClass, report.Error)
	} else {
		log.Info("Run %s %s: %d fetched, %d new, %d loaded", report.RunID, report.Status, report.Fetched, report.New, report.Loaded)
	}
	return nil
}

func consume(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}
	log, err := logger.NewColorfulLogger("Consumer", cfg.LogLevel, cfg.LogDir)
	if err != nil {
		return err
	}
	defer log.Close()

	if cfg.RabbitMQURL == "" || cfg.RedisAddr == "" {
		err := errors.New("Rabbit.addr and Redis.addr are required")
		log.Error("%v", err)
		return err
	}

	conn, ch, err := rabbitmq.SetupRabbitMQ(cfg.RabbitMQURL, cfg.QueueName)
	if err != nil {
		log.Error("Failed to setup RabbitMQ: %v", err)
		return err
	}
	defer conn.Close()
	defer ch.Close()

	// Настройка QoS (Quality of Service)
	if err := ch.Qos(
		1,     // prefetch count
		0,     // prefetch size
		false, // global
	); err != nil {
		log.Error("Failed to set QoS: %v", err)
		return err
	}

	msgs, err := ch.ConsumeWithContext(ctx,
		cfg.QueueName, // queue
		"",            // consumer
		false,         // auto-ack
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,           // args
	)
	if err != nil {
		log.Error("Failed to register a consumer: %v", err)
		return err
	}

	rdb, err := config.NewRedisClient(ctx, cfg)
	if err != nil {
		log.Error("%v", err)
		return err
	}
	defer rdb.Close()
	runs := repository.NewRedisRunRepository(rdb, cfg.RunTTL)

	log.Info("Consumer started on queue '%s'. Press Ctrl+C to exit.", cfg.QueueName)
	for {
		select {
		case <-ctx.Done():
			log.Info("Shutting down consumer")
			return nil
		case d, ok := <-msgs:
			if !ok {
				log.Info("Message channel closed, exiting")
				return nil
			}
			log.Debug("Received a message: %s", d.Body)

			err := handleReport(ctx, d.Body, runs, log)
			switch {
			case err == nil:
				d.Ack(false)
			case errors.Is(err, errInvalidReport):
				log.Error("Dropping message: %v", err)
				d.Ack(false)
			default:
				log.Error("Failed to store report, requeueing: %v", err)
				d.Nack(false, true)
			}
		}
	}
}
