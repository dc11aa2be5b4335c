package outreach

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"petshop_backend/platform/config"
	"petshop_backend/platform/logger"
)

// SMTPSender delivers outreach messages over email for leads that left an
// address. Leads without email fall through as queued for manual WhatsApp
// delivery.
type SMTPSender struct {
	client      *mail.Client
	fromName    string
	fromAddress string
	log         *logger.Logger
}

func NewSMTPSender(cfg config.OutreachConfig, log *logger.Logger) (*SMTPSender, error) {
	client, err := mail.NewClient(cfg.GetOutreachSMTPHost(),
		mail.WithPort(cfg.GetOutreachSMTPPort()),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.GetOutreachSMTPUsername()),
		mail.WithPassword(cfg.GetOutreachSMTPPassword()),
	)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	return &SMTPSender{
		client:      client,
		fromName:    cfg.GetOutreachFromName(),
		fromAddress: cfg.GetOutreachFromAddress(),
		log:         log,
	}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) (string, error) {
	if msg.Email == nil || *msg.Email == "" {
		s.log.WithContext(ctx).Info("lead has no email, message queued for manual delivery",
			"phone", msg.Phone,
			"step_type", msg.StepType,
		)
		return "queued", nil
	}

	m := mail.NewMsg()
	if err := m.FromFormat(s.fromName, s.fromAddress); err != nil {
		return "failed", fmt.Errorf("from address: %w", err)
	}
	if err := m.To(*msg.Email); err != nil {
		return "failed", fmt.Errorf("to address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body+"\n\n"+msg.CTALink)

	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return "failed", fmt.Errorf("send mail: %w", err)
	}

	return "sent", nil
}
