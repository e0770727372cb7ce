package service

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// Billing event types this service reacts to. Anything else is acknowledged
// and ignored so the billing provider stops retrying.
const (
	EventPaymentSucceeded     = "payment.succeeded"
	EventChargeRefunded       = "charge.refunded"
	EventSubscriptionCanceled = "subscription.canceled"
)

// BillingEvent is the parsed webhook payload.
type BillingEvent struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	UserID         int64  `json:"user_id"`
	EntitlementKey string `json:"entitlement_key"`
}

// ApplyBillingEvent applies a billing webhook: activation on payment,
// entitlement deactivation plus full revocation on refund or cancellation.
// Redelivery of a recorded event id is a no-op.
func (s *AuthService) ApplyBillingEvent(ctx context.Context, ev BillingEvent) error {
	ctx, span := s.startSpan(ctx, "AuthService.ApplyBillingEvent")
	defer span.End()

	if ev.ID == "" || ev.UserID <= 0 {
		return newOAuthError(ErrCodeInvalidRequest, "Event id and user_id are required.", http.StatusBadRequest)
	}

	fresh, err := s.events.MarkProcessed(ctx, ev.ID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("record webhook event: %w", err)
	}
	if !fresh {
		s.log().Debug("duplicate billing event ignored", zap.String("event_id", ev.ID))
		return nil
	}

	switch ev.Type {
	case EventPaymentSucceeded:
		if err := s.entitlements.Activate(ctx, ev.UserID, ev.EntitlementKey); err != nil {
			span.RecordError(err)
			return fmt.Errorf("activate entitlement: %w", err)
		}
		s.audit("webhook.entitlement_activated", zap.String("event_id", ev.ID), zap.Int64("user_id", ev.UserID))

	case EventChargeRefunded, EventSubscriptionCanceled:
		if err := s.entitlements.Deactivate(ctx, ev.UserID); err != nil {
			span.RecordError(err)
			return fmt.Errorf("deactivate entitlement: %w", err)
		}
		if err := s.RevokeAll(ctx, ev.UserID); err != nil {
			span.RecordError(err)
			return err
		}
		s.audit("webhook.entitlement_revoked", zap.String("event_id", ev.ID), zap.Int64("user_id", ev.UserID))

	default:
		s.log().Debug("unhandled billing event type", zap.String("type", ev.Type))
	}

	return nil
}
