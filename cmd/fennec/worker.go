package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/fennec-api/fennec/internal/config"
	"github.com/fennec-api/fennec/internal/log"
	"github.com/fennec-api/fennec/internal/queue"
)

var workerConcurrency int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the job queue worker pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger := log.Must("info", false)
		defer logger.Sync()

		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		concurrency := cfg.Queue.Concurrency
		if workerConcurrency > 0 {
			concurrency = workerConcurrency
		}

		q := queue.New(client, cfg.Queue.Name)
		worker := queue.NewWorker(q, logger, concurrency)
		worker.Start(cmd.Context())

		color.Green("Workers running on queue %q (concurrency %d)", cfg.Queue.Name, concurrency)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("stopping workers")
		worker.Stop()
		return nil
	},
}

func init() {
	workerCmd.Flags().IntVar(&workerConcurrency, "concurrency", 0, "override configured worker concurrency")
}
