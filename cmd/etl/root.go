package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kevinesg/ph-top-headlines-ETL/internal/config"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/pipeline"
	"github.com/kevinesg/ph-top-headlines-ETL/logger"
	"github.com/kevinesg/ph-top-headlines-ETL/pkg/lock"
	"github.com/kevinesg/ph-top-headlines-ETL/pkg/rabbitmq"
)

var (
	flagConfig    string
	flagOverrides config.Overrides
	flagPreview   int
	flagNoLock    bool
)

var rootCmd = &cobra.Command{
	Use:           "etl",
	Short:         "Philippine top headlines ingest",
	Long:          "etl pulls the latest headlines from mediastack, keeps a snapshot of the last batch in object storage and appends newly seen articles to the warehouse.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run web-to-store followed by store-to-table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), "ETL", func(ctx context.Context, p *pipeline.Pipeline, log *logger.ColorfulLogger) error {
			if cfg := p.Config(); cfg.RabbitMQURL != "" {
				conn, ch, err := rabbitmq.SetupRabbitMQ(cfg.RabbitMQURL, cfg.QueueName)
				if err != nil {
					log.Warn("run reports will not be published: %v", err)
				} else {
					defer conn.Close()
					defer ch.Close()
					p.SetNotifier(rabbitmq.NewNotifier(ch, cfg.QueueName))
				}
			}

			report, err := p.Run(ctx, uuid.New().String())
			if err != nil {
				return err
			}
			fmt.Printf("Run %s: %d fetched, %d new, %d loaded.\n", report.RunID, report.Fetched, report.New, report.Loaded)
			return nil
		})
	},
}

var webToStoreCmd = &cobra.Command{
	Use:   "web-to-store",
	Short: "Fetch headlines and store the latest batch and its delta",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), "Web To Store", func(ctx context.Context, p *pipeline.Pipeline, log *logger.ColorfulLogger) error {
			res, err := p.WebToStore(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%d fetched, %d new.\n", res.Fetched, len(res.Delta))
			if flagPreview > 0 {
				fmt.Print(previewTable(res.Delta, flagPreview))
			}
			return nil
		})
	},
}

var storeToTableCmd = &cobra.Command{
	Use:   "store-to-table",
	Short: "Clean the stored delta and append it to the warehouse",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), "Store To Table", func(ctx context.Context, p *pipeline.Pipeline, log *logger.ColorfulLogger) error {
			res, err := p.StoreToTable(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%d read, %d loaded into %s.\n", res.Read, res.Loaded, p.Destination())
			return nil
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("etl %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "path to config file (default ./config.yaml, then "+config.DefaultConfigPath()+")")
	pf.StringVar(&flagOverrides.Country, "country", "", "override Pipeline.country")
	pf.StringVar(&flagOverrides.MinDate, "min-date", "", "override Pipeline.min_date (e.g. \"2023-06-01 00:00:00+08:00\")")
	pf.StringVar(&flagOverrides.Bucket, "bucket", "", "override Storage.bucket")
	pf.StringVar(&flagOverrides.Project, "project", "", "override Warehouse.project and Storage.project")
	pf.StringVar(&flagOverrides.Dataset, "dataset", "", "override Warehouse.dataset")
	pf.StringVar(&flagOverrides.Table, "table", "", "override Warehouse.table")
	pf.BoolVar(&flagNoLock, "no-lock", false, "skip the single-instance lock file")

	webToStoreCmd.Flags().IntVar(&flagPreview, "preview", 0, "print the first N new headlines")

	rootCmd.AddCommand(runCmd, webToStoreCmd, storeToTableCmd, versionCmd)
}

// loadConfig reads the config file and applies the command line overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	cfg, err = cfg.WithOverrides(flagOverrides)
	if err != nil {
		return config.Config{}, fmt.Errorf("applying overrides: %w", err)
	}
	return cfg, nil
}

func withPipeline(parent context.Context, name string, fn func(context.Context, *pipeline.Pipeline, *logger.ColorfulLogger) error) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	log, err := logger.NewColorfulLogger(name, cfg.LogLevel, cfg.LogDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer log.Close()
	log.Debug("configuration: %s", cfg)

	if !flagNoLock {
		l, err := lock.Acquire(cfg.LockFile)
		if err != nil {
			log.Error("%v", err)
			return err
		}
		defer l.Release()
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.Open(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialise pipeline: %v", err)
		return err
	}
	defer p.Close()

	if err := fn(ctx, p, log); err != nil {
		log.Error("%s failed (%s): %v", name, pipeline.Classify(err), err)
		return err
	}
	return nil
}
