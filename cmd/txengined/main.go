package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"txengine/internal/admission"
	"txengine/internal/api"
	"txengine/internal/config"
	"txengine/internal/identity"
	"txengine/internal/ledger"
	"txengine/internal/orchestrator"
	"txengine/internal/retry"
	"txengine/internal/scheduler"
	"txengine/internal/storage"

	"github.com/joho/godotenv"
)

// workerIdentity is the internal caller the drain loop executes as
const workerIdentity = "engine-executor"

func main() {
	fmt.Println("🌟 Starting transaction engine...")

	// 1. Load configuration
	_ = godotenv.Load()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	// 2. Configure logger
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Configuration loaded",
		"storage_backend", cfg.StorageBackend,
		"api_port", cfg.APIPort,
		"workers", cfg.WorkerCount,
		"log_level", cfg.LogLevel,
	)

	// 3. Initialize the audit trail backend
	ctx := context.Background()
	repository, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to open audit storage: %v", err)
	}
	if repository != nil {
		defer repository.Close()
		slog.Info("Audit storage connected", "backend", cfg.StorageBackend)
	}

	// 4. Build the engine components
	ldg := ledger.New(ledger.Config{
		MinDeposit: cfg.MinDeposit,
		MaxDeposit: cfg.MaxDeposit,
	})
	control := admission.NewController(admission.DefaultNetworks(), admission.GlobalLimits{})
	sched := scheduler.New(cfg.MaxQueueSize, cfg.ThroughputEstimate)

	authorizer := identity.NewStaticAuthorizer()
	authorizer.Grant(workerIdentity, identity.CapabilityExecute)
	for _, admin := range adminAccounts() {
		authorizer.Grant(admin, identity.CapabilityAdmin)
	}

	engine, err := orchestrator.New(
		orchestrator.Config{
			Fees: orchestrator.FeeConfig{
				OrchestratorFeeBps:  cfg.OrchestratorFeeBps,
				PlatformFeeBps:      cfg.PlatformFeeBps,
				ProviderFeeBps:      cfg.ProviderFeeBps,
				OrchestratorAccount: cfg.OrchestratorAccount,
				PlatformAccount:     cfg.PlatformAccount,
				ProviderAccount:     cfg.ProviderAccount,
			},
			MinUnitPrice:         cfg.MinUnitPrice,
			MaxUnitPrice:         cfg.MaxUnitPrice,
			MaxQueueSize:         cfg.MaxQueueSize,
			QueueTimeout:         cfg.QueueTimeout,
			MinExecutionInterval: cfg.MinExecutionInterval,
			MaxBatchSize:         cfg.MaxBatchSize,
			ExecutionTimeout:     cfg.ExecutionTimeout,
			RetentionWindow:      cfg.RetentionWindow,
			ThroughputEstimate:   cfg.ThroughputEstimate,
		},
		ldg,
		control,
		sched,
		defaultExecutor(),
		authorizer,
		repository,
		retry.NewStrategy(retry.LoadConfig()),
	)
	if err != nil {
		log.Fatalf("❌ Failed to build orchestrator: %v", err)
	}

	// 5. Start the observability API
	server := api.NewServer(cfg.APIPort, engine)
	if err := server.Start(); err != nil {
		log.Fatalf("❌ Failed to start API server: %v", err)
	}

	// 6. Run the background loops
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			drainLoop(runCtx, engine, cfg.DrainInterval, workerID)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		cleanupLoop(runCtx, engine, cfg.CleanupInterval)
	}()

	slog.Info("Engine running",
		"workers", cfg.WorkerCount,
		"drain_interval", cfg.DrainInterval,
		"cleanup_interval", cfg.CleanupInterval,
	)

	// 7. Wait for interrupt
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Warn("Interrupt received, shutting down...")
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error stopping API server", "error", err)
	}

	slog.Info("Engine stopped")
}

// openRepository builds the configured audit backend; "none" disables it
func openRepository(ctx context.Context, cfg *config.Config) (storage.Repository, error) {
	switch cfg.StorageBackend {
	case "postgres":
		var repo storage.Repository
		// Transient connection failures at boot retry with backoff
		err := retry.NewStrategy(retry.LoadConfig()).Execute(ctx, func() error {
			var err error
			repo, err = storage.NewPostgresRepository(ctx, cfg.DatabaseURL)
			return err
		})
		return repo, err
	case "sqlite":
		return storage.NewSQLiteRepository(cfg.SQLitePath)
	case "memory":
		return storage.NewMemoryRepository(), nil
	default: // "none"
		return nil, nil
	}
}

// adminAccounts reads the comma-free ADMIN_ACCOUNT env var
func adminAccounts() []string {
	if admin := os.Getenv("ADMIN_ACCOUNT"); admin != "" {
		return []string{admin}
	}
	return nil
}

// drainLoop repeatedly executes the highest-priority queued operation
func drainLoop(ctx context.Context, engine *orchestrator.Orchestrator, interval time.Duration, workerID int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			id, err := engine.ExecuteNext(ctx, workerIdentity)
			if err != nil {
				// Empty queues and throttle pushback are routine here
				continue
			}
			slog.Debug("Worker executed operation",
				"worker_id", workerID,
				"operation_id", id,
			)
		}
	}
}

// cleanupLoop expires stale operations on a fixed interval
func cleanupLoop(ctx context.Context, engine *orchestrator.Orchestrator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if expired := engine.Cleanup(); expired > 0 {
				slog.Info("Cleanup expired operations", "count", expired)
			}
		}
	}
}

// defaultExecutor is the local placeholder dispatch used when no downstream
// executor is wired in. It acknowledges the call and reports roughly half the
// resource limit as consumed.
func defaultExecutor() orchestrator.Executor {
	return orchestrator.ExecutorFunc(func(ctx context.Context, target string, payload []byte, resourceLimit uint64) orchestrator.Result {
		select {
		case <-ctx.Done():
			return orchestrator.Result{Success: false, Error: "execution cancelled"}
		case <-time.After(5 * time.Millisecond):
		}
		return orchestrator.Result{Success: true, ResourceUsed: resourceLimit / 2}
	})
}
