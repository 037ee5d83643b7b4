package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/inboxpilot/inboxpilot/internal/api"
	"github.com/inboxpilot/inboxpilot/internal/config"
	"github.com/inboxpilot/inboxpilot/internal/engine"
	"github.com/inboxpilot/inboxpilot/internal/events"
	"github.com/inboxpilot/inboxpilot/internal/mailbox"
	"github.com/inboxpilot/inboxpilot/internal/metrics"
	"github.com/inboxpilot/inboxpilot/internal/orders"
	"github.com/inboxpilot/inboxpilot/internal/queue"
	"github.com/inboxpilot/inboxpilot/internal/repository"
	"github.com/inboxpilot/inboxpilot/internal/runner"
	"github.com/inboxpilot/inboxpilot/internal/runner/tasks"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "inboxpilot",
	Short: "InboxPilot - automated inbox rule matching and order acceptance",
	Long: `InboxPilot watches connected mailboxes, matches incoming messages
against per-account rules and follows order accept links automatically.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the polling worker, queues and HTTP surface",
	RunE:  runWorker,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs", "directory containing default.yaml")
	rootCmd.AddCommand(workerCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runWorker(cmd *cobra.Command, args []string) error {
	logger := log.New(os.Stdout, "[WORKER] ", log.LstdFlags)

	if err := config.Load(configPath); err != nil {
		return err
	}
	cfg := config.Get()

	db, err := repository.Open(cfg.Database.DSN(),
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	accounts := repository.NewAccountRepository(db)
	ruleRepo := repository.NewRuleRepository(db)
	records := repository.NewProcessedEmailRepository(db)
	activity := repository.NewActivityLogRepository(db)
	status := repository.NewSystemStatusRepository(db)

	m := metrics.New(prometheus.DefaultRegisterer)

	var publisher events.Publisher = events.NopPublisher{}
	var hub *events.Hub
	if cfg.Events.Enabled {
		hub = events.NewHub()
		go hub.Run()
		defer hub.Close()
		publisher = hub
	}

	mail := mailbox.NewGmailClient(mailbox.GmailConfig{
		ClientID:     cfg.Mailbox.ClientID,
		ClientSecret: cfg.Mailbox.ClientSecret,
		RedirectURL:  cfg.Mailbox.RedirectURL,
	})

	dispatcher, err := buildDispatcher(cfg)
	if err != nil {
		return err
	}

	acceptor := orders.NewAcceptor(
		orders.WithRetryPolicy(cfg.Orders.MaxRetries, cfg.Orders.RetryDelay),
	)
	executor := engine.NewExecutor(mail)
	checker := engine.NewChecker(accounts, ruleRepo, records, activity, mail, executor, dispatcher, publisher, m)
	processor := engine.NewOrderProcessor(accounts, ruleRepo, records, activity, acceptor, publisher, m)

	checkConcurrency := cfg.Queue.EmailCheckConcurrency
	if checkConcurrency <= 0 {
		checkConcurrency = queue.DefaultEmailCheckConcurrency
	}
	orderConcurrency := cfg.Queue.OrderProcessConcurrency
	if orderConcurrency <= 0 {
		orderConcurrency = queue.DefaultOrderProcessConcurrency
	}
	dispatcher.RegisterProcessor(queue.QueueEmailCheck, checkConcurrency, checker.Handler())
	dispatcher.RegisterProcessor(queue.QueueOrderProcess, orderConcurrency, processor.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start queue workers: %w", err)
	}

	registry := runner.NewTaskRegistry()
	registry.Register(tasks.NewAccountSweepTask(accounts, dispatcher, m))
	registry.Register(tasks.NewCleanupTask(records, m))
	registry.Register(tasks.NewHeartbeatTask(status, "email-worker"))

	sched := runner.NewRunner(registry)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	server := api.NewServer(cfg.Server, cfg.Metrics, db, activity, hub)
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	logger.Printf("worker started (queue driver %s)", cfg.Queue.Driver)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Printf("received %v, shutting down", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Printf("http server failed: %v", err)
		}
	}

	sched.Stop()
	dispatcher.Stop()
	cancel()

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown: %v", err)
	}
	logger.Println("worker stopped")
	return nil
}

func buildDispatcher(cfg *config.Config) (queue.Dispatcher, error) {
	switch cfg.Queue.Driver {
	case "inline":
		return queue.NewInlineDispatcher(), nil
	case "redis", "":
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		var opts []queue.RedisDispatcherOption
		if cfg.Queue.RetryBackoff > 0 {
			opts = append(opts, queue.WithRetryBackoff(cfg.Queue.RetryBackoff))
		}
		return queue.NewRedisDispatcher(client, opts...), nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}
}
