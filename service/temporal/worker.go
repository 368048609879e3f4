package temporal

import (
	"fmt"
	"log/slog"

	"github.com/brojonat/txledger/service/metrics"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	// Temporal connection settings
	TemporalHost      string
	TemporalNamespace string
	TaskQueue         string

	// Dependencies
	Store       StoreInterface
	Feeds       map[string]FeedInterface // by network
	Publisher   PublisherInterface
	Recommended int
	Metrics     *metrics.Metrics // Optional: if nil, no metrics will be recorded
	Logger      *slog.Logger
}

// Worker wraps a Temporal worker and provides lifecycle management.
type Worker struct {
	client client.Client
	worker worker.Worker
	logger *slog.Logger
}

// NewWorker creates and configures a new Temporal worker.
// The worker will process workflows and activities on the configured task queue.
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	logger := config.Logger.With("component", "temporal_worker")

	logger.Info("creating temporal worker",
		"host", config.TemporalHost,
		"namespace", config.TemporalNamespace,
		"task_queue", config.TaskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  config.TemporalHost,
		Namespace: config.TemporalNamespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal: %w", err)
	}

	w := worker.New(c, config.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     10,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	w.RegisterWorkflow(SyncWalletWorkflow)
	logger.Info("registered workflow", "name", "SyncWalletWorkflow")

	activities := NewActivities(
		config.Store,
		config.Feeds,
		config.Publisher,
		config.Recommended,
		config.Metrics,
		logger,
	)
	registerActivities(w, activities)

	return &Worker{
		client: c,
		worker: w,
		logger: logger,
	}, nil
}

// activityRegistry is satisfied by worker.Worker and the test environment.
type activityRegistry interface {
	RegisterActivity(a any)
}

// registerActivities registers every activity SyncWalletWorkflow invokes.
func registerActivities(r activityRegistry, activities *Activities) {
	r.RegisterActivity(activities.LoadWallet)
	r.RegisterActivity(activities.FetchTransactions)
	r.RegisterActivity(activities.RefreshConfirmations)
	r.RegisterActivity(activities.WriteTransactions)
	r.RegisterActivity(activities.PublishLedgerUpdated)
	r.RegisterActivity(activities.CompleteSync)
}

// Start begins processing workflows and activities.
// This method blocks until Stop is called or an interrupt is received.
func (w *Worker) Start() error {
	w.logger.Info("starting temporal worker")
	err := w.worker.Run(worker.InterruptCh())
	if err != nil {
		w.logger.Error("worker stopped with error", "error", err)
		return fmt.Errorf("worker stopped with error: %w", err)
	}
	w.logger.Info("worker stopped gracefully")
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping temporal worker")
	w.worker.Stop()
	w.client.Close()
	w.logger.Info("temporal worker stopped")
}
