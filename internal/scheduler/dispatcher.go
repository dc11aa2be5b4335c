package scheduler

import (
	"context"
	"time"

	"petshop_backend/platform/config"
	"petshop_backend/platform/logger"
)

const (
	defaultPollInterval = 30 * time.Second
	defaultPollBatch    = 10
)

// QueueProcessor drains due sequences in batches.
type QueueProcessor interface {
	ProcessDueQueue(ctx context.Context, limit int) (int, error)
}

// DueSequenceDispatcher sweeps the due queue on a fixed interval. It is the
// catch-up path behind the precisely timed asynq tasks: steps whose task was
// lost or never enqueued still run, at most one interval late.
type DueSequenceDispatcher struct {
	processor QueueProcessor
	log       *logger.Logger
	interval  time.Duration
	batch     int
}

func NewDueSequenceDispatcher(cfg config.SchedulerConfig, processor QueueProcessor, log *logger.Logger) *DueSequenceDispatcher {
	interval := cfg.GetPollInterval()
	if interval <= 0 {
		interval = defaultPollInterval
	}
	batch := cfg.GetPollBatchSize()
	if batch < 1 {
		batch = defaultPollBatch
	}

	return &DueSequenceDispatcher{
		processor: processor,
		log:       log,
		interval:  interval,
		batch:     batch,
	}
}

func (d *DueSequenceDispatcher) Run(ctx context.Context) {
	if d == nil || d.processor == nil {
		return
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		count, err := d.processor.ProcessDueQueue(ctx, d.batch)
		if err != nil {
			d.log.Warn("due queue sweep failed", "error", err)
			continue
		}
		if count > 0 {
			d.log.Info("due queue sweep complete", "processed", count)
		}
	}
}
