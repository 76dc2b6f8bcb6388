package mail

import (
	"context"
	"errors"
	"log/slog"

	"pollworker/pkg/platform/circuit"
	"pollworker/pkg/requestcontext"
)

// ErrCircuitOpen is returned while the primary transport is being bypassed.
var ErrCircuitOpen = errors.New("mail transport circuit open")

// GuardedSender stops calling a failing transport for a cooldown and hands
// messages to the fallback instead, so an operator can still see and resend them.
type GuardedSender struct {
	primary  Sender
	fallback Sender
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewGuardedSender(primary, fallback Sender, breaker *circuit.Breaker, logger *slog.Logger) *GuardedSender {
	return &GuardedSender{primary: primary, fallback: fallback, breaker: breaker, logger: logger}
}

func (s *GuardedSender) Send(ctx context.Context, msg Message) error {
	now := requestcontext.Now(ctx)
	if !s.breaker.Allow(now) {
		_ = s.fallback.Send(ctx, msg)
		return ErrCircuitOpen
	}

	err := s.primary.Send(ctx, msg)
	if err == nil {
		if s.breaker.RecordSuccess() {
			s.logger.InfoContext(ctx, "mail transport recovered", "transport", s.breaker.Name())
		}
		return nil
	}
	if s.breaker.RecordFailure(now) {
		s.logger.WarnContext(ctx, "mail transport failing, circuit opened",
			"transport", s.breaker.Name(),
			"error", err,
		)
	}
	_ = s.fallback.Send(ctx, msg)
	return err
}
