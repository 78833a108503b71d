package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/movesintl/moves-study-hub-sub001/internal/config"
)

// CompositeEmailSender delivers each message through every registered sender.
type CompositeEmailSender struct {
	senders []Sender
}

func NewCompositeEmailSender(senders ...Sender) *CompositeEmailSender {
	return &CompositeEmailSender{senders: senders}
}

// AddSender adds a sender; nil is ignored.
func (cs *CompositeEmailSender) AddSender(sender Sender) {
	if sender != nil {
		cs.senders = append(cs.senders, sender)
	}
}

// Send calls every sender and joins their errors.
func (cs *CompositeEmailSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	if len(cs.senders) == 0 {
		return fmt.Errorf("no senders configured in CompositeEmailSender")
	}

	var errs []error
	for _, sender := range cs.senders {
		if err := sender.Send(ctx, to, subject, rawMessage); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("composite email send failed: %w", errors.Join(errs...))
	}
	return nil
}

// NewFromConfig assembles the sender chain for the process: the Redis mock
// mailbox in mock mode, SMTP (or logging) otherwise, plus an optional file
// copy.
func NewFromConfig(cfg *config.Config, rdb redis.Cmdable) (Sender, error) {
	composite := NewCompositeEmailSender()
	if cfg.MockServices {
		composite.AddSender(NewRedisSender(rdb, cfg.SmtpFromAddress))
	} else {
		composite.AddSender(NewSMTPSender(cfg))
	}
	if cfg.EmailLogFile != "" {
		fileSender, err := NewFileEmailSender(cfg.EmailLogFile)
		if err != nil {
			return nil, err
		}
		composite.AddSender(fileSender)
	}
	return composite, nil
}
