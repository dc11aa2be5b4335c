package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"petshop_backend/internal/autosales/sequence"
	"petshop_backend/platform/apperr"
	"petshop_backend/platform/config"
	"petshop_backend/platform/logger"
)

// StepExecutor runs one scheduled sequence step. Executing a sequence that
// is no longer scheduled is a no-op, so redelivered tasks are harmless.
type StepExecutor interface {
	ExecuteStep(ctx context.Context, sequenceID uuid.UUID) (sequence.StepResult, error)
}

type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	executor StepExecutor
	log      *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, executor StepExecutor, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		executor: executor,
		log:      log,
	}

	mux.HandleFunc(TaskSequenceStepExecute, w.handleSequenceStep)

	return w, nil
}

func (w *Worker) handleSequenceStep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseSequenceStepPayload(task)
	if err != nil {
		return err
	}

	sequenceID, err := uuid.Parse(payload.SequenceID)
	if err != nil {
		return err
	}

	result, err := w.executor.ExecuteStep(ctx, sequenceID)
	if err != nil {
		// A deleted sequence has nothing left to execute; retrying is futile.
		if apperr.Is(err, apperr.KindNotFound) {
			w.log.Warn("scheduled step for missing sequence", "sequenceId", payload.SequenceID)
			return nil
		}
		return err
	}

	if result.Skipped {
		w.log.Debug("scheduled step skipped", "sequenceId", payload.SequenceID, "status", result.Status)
	}
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
