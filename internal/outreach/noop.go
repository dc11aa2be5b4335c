package outreach

import (
	"context"

	"petshop_backend/platform/logger"
)

// NoopSender logs the message and reports it as queued. Used when no SMTP
// channel is configured; a human operator sends from the logged content.
type NoopSender struct {
	log *logger.Logger
}

func NewNoopSender(log *logger.Logger) *NoopSender {
	return &NoopSender{log: log}
}

func (s *NoopSender) Send(ctx context.Context, msg Message) (string, error) {
	s.log.WithContext(ctx).Info("outreach message queued for manual delivery",
		"phone", msg.Phone,
		"step_type", msg.StepType,
	)
	return "queued", nil
}
