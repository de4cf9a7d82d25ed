// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"loan-workers/internal/common/config"
	"loan-workers/internal/common/database"
	"loan-workers/internal/common/logger"
	"loan-workers/internal/common/notify"
	"loan-workers/internal/common/observability"
	"loan-workers/internal/common/ocr"
	"loan-workers/internal/common/render"
	"loan-workers/internal/loan/audit"
	"loan-workers/internal/loan/documents"
	"loan-workers/internal/loan/lifecycle"
	"loan-workers/internal/loan/store"

	// Loan Pipeline Workers (6)
	aa "loan-workers/internal/workers/loan/approve-application"
	pa "loan-workers/internal/workers/loan/process-application"
	qa "loan-workers/internal/workers/loan/query-application"
	ra "loan-workers/internal/workers/loan/reject-application"
	sdn "loan-workers/internal/workers/loan/send-decision-notification"
	sa "loan-workers/internal/workers/loan/submit-application"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("worker-manager")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var zeebeClient zbc.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebeClient, err = zbc.NewClient(&zbc.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")

	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		// Test the connection with context
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		// Test the connection
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		// Test the connection with context
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Build the Loan Pipeline ---
	pgStore := store.NewPostgresStore(pg.DB, log)
	if err := pgStore.Migrate(ctx); err != nil {
		zapLog.Fatal("store migration failed", zap.Error(err))
	}

	appStore := store.NewCachedStore(
		pgStore,
		redis.Client,
		time.Duration(cfg.Loan.CacheTTL)*time.Millisecond,
		log,
	)

	auditRecorder := audit.NewElasticRecorder(esClient.Client, cfg.Database.Elasticsearch.AuditIndex, log)

	ocrClient := ocr.NewClient(
		cfg.Collaborators.OCR.BaseURL,
		cfg.Collaborators.OCR.Enabled,
		time.Duration(cfg.Collaborators.OCR.Timeout)*time.Millisecond,
	)
	if ocrClient.Available() {
		zapLog.Info("OCR collaborator enabled", zap.String("baseURL", cfg.Collaborators.OCR.BaseURL))
	} else {
		zapLog.Info("OCR collaborator disabled, falling back to declared income")
	}

	renderClient := render.NewClient(
		cfg.Collaborators.Render.BaseURL,
		time.Duration(cfg.Collaborators.Render.Timeout)*time.Millisecond,
	)
	issuer := documents.NewIssuer(renderClient, log)

	machine := lifecycle.NewMachine(appStore, ocrClient, issuer, auditRecorder, lifecycle.Config{
		AnnualRate:            cfg.Loan.AnnualRate,
		IncomeTolerance:       cfg.Loan.IncomeTolerance,
		AffordabilityMultiple: cfg.Loan.AffordabilityMultiple,
	}, log)

	notifier, err := notify.NewService(ctx, cfg.Notifications)
	if err != nil {
		zapLog.Fatal("notification service init failed", zap.Error(err))
	}

	zapLog.Info("Loan pipeline initialized")

	// --- Register Workers ---

	if cfg.Workers[sa.TaskType].Enabled {
		handler := sa.NewHandler(
			&sa.Config{
				Timeout: time.Duration(cfg.Workers[sa.TaskType].Timeout) * time.Millisecond,
			},
			machine, log,
		)
		startWorker(zeebeClient, sa.TaskType, cfg.Workers[sa.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[pa.TaskType].Enabled {
		handler := pa.NewHandler(
			&pa.Config{
				Timeout: time.Duration(cfg.Workers[pa.TaskType].Timeout) * time.Millisecond,
			},
			machine, log,
		)
		startWorker(zeebeClient, pa.TaskType, cfg.Workers[pa.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[aa.TaskType].Enabled {
		handler := aa.NewHandler(
			&aa.Config{
				Timeout: time.Duration(cfg.Workers[aa.TaskType].Timeout) * time.Millisecond,
			},
			machine, log,
		)
		startWorker(zeebeClient, aa.TaskType, cfg.Workers[aa.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[ra.TaskType].Enabled {
		handler := ra.NewHandler(
			&ra.Config{
				Timeout: time.Duration(cfg.Workers[ra.TaskType].Timeout) * time.Millisecond,
			},
			machine, log,
		)
		startWorker(zeebeClient, ra.TaskType, cfg.Workers[ra.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[qa.TaskType].Enabled {
		handler := qa.NewHandler(
			&qa.Config{
				Timeout: time.Duration(cfg.Workers[qa.TaskType].Timeout) * time.Millisecond,
			},
			machine, log,
		)
		startWorker(zeebeClient, qa.TaskType, cfg.Workers[qa.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[sdn.TaskType].Enabled {
		handler := sdn.NewHandler(
			&sdn.Config{
				Timeout: time.Duration(cfg.Workers[sdn.TaskType].Timeout) * time.Millisecond,
			},
			notifier, log,
		)
		startWorker(zeebeClient, sdn.TaskType, cfg.Workers[sdn.TaskType], handler.Handle, zapLog)
	}

	zapLog.Info("All workers registered successfully")

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status":       "healthy",
				"ocrAvailable": ocrClient.Available(),
				"time":         time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_ = shutdownCtx

	if err := zeebeClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func startWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handlerFunc func(worker.JobClient, entities.Job), log *zap.Logger) {
	if !wcfg.Enabled {
		log.Info("worker disabled", zap.String("taskType", taskType))
		return
	}

	client.NewJobWorker().
		JobType(taskType).
		Handler(handlerFunc).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	log.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", wcfg.MaxJobsActive),
		zap.Int("timeout_ms", wcfg.Timeout),
	)
}
