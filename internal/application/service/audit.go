package service

import (
	"context"

	"pollworker/internal/audit"
	"pollworker/pkg/attrs"
	id "pollworker/pkg/domain"
	"pollworker/pkg/requestcontext"
)

// logAudit writes an audit log line and emits the event. Emission failures
// are logged; they never fail the operation that produced them.
func (s *Service) logAudit(ctx context.Context, action string, appID id.ApplicationID, attributes ...any) {
	attributes = append(attributes, "application_id", appID.String())
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	actor := requestcontext.UserID(ctx)
	if !actor.IsNil() {
		attributes = append(attributes, "actor_id", actor.String())
	}
	s.logger.InfoContext(ctx, action, append(attributes, "event", action, "log_type", "audit")...)

	if s.auditPublisher == nil {
		return
	}
	e := audit.Event{
		Action:        action,
		ApplicationID: appID.String(),
		Subject:       attrs.ExtractString(attributes, "user_id"),
		Detail:        detailOf(attributes),
	}
	if !actor.IsNil() {
		e.ActorID = actor.String()
	}
	if err := s.auditPublisher.Emit(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "error", err, "event", action)
	}
}

func detailOf(attributes []any) string {
	for _, key := range []string{"residency_status", "party_affiliation", "outcome", "source"} {
		if v := attrs.ExtractString(attributes, key); v != "" {
			return v
		}
	}
	return ""
}
