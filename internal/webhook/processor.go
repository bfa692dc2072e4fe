package webhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"go.uber.org/atomic"

	"intently.app/cloud/internal/billing"
	"intently.app/cloud/internal/license"
	"intently.app/cloud/internal/logger"
	"intently.app/cloud/internal/models"
	"intently.app/cloud/internal/storage"
)

// Processor verifies inbound Stripe events and dispatches them to the
// lifecycle manager. Both dispatch paths write the provider's current state
// rather than deltas, so at-least-once redelivery converges on its own.
type Processor struct {
	gateway billing.Gateway
	manager *license.Manager
	store   storage.Storage

	processed atomic.Int64
	dropped   atomic.Int64
	rejected  atomic.Int64
}

// Stats is a point-in-time snapshot of the ingestion counters.
type Stats struct {
	Processed int64 `json:"processed"`
	Dropped   int64 `json:"dropped"`
	Rejected  int64 `json:"rejected"`
}

func NewProcessor(gateway billing.Gateway, manager *license.Manager, store storage.Storage) *Processor {
	return &Processor{
		gateway: gateway,
		manager: manager,
		store:   store,
	}
}

func (p *Processor) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Dropped:   p.dropped.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// Process verifies the payload signature and applies the event. Verification
// failure mutates nothing and surfaces as billing.ErrInvalidSignature.
// Handler errors are returned so the transport can answer 5xx and Stripe's
// retry mechanism re-delivers.
func (p *Processor) Process(ctx context.Context, payload []byte, signature string) error {
	event, err := p.gateway.VerifyEvent(payload, signature)
	if err != nil {
		p.rejected.Inc()
		return err
	}

	logger.Info("stripe event received", map[string]interface{}{
		"event_type": event.Type,
		"event_id":   event.ID,
	})

	switch event.Type {
	case "checkout.session.completed":
		return p.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.updated", "customer.subscription.deleted":
		return p.handleSubscriptionChange(ctx, event)
	default:
		logger.Debug("unhandled stripe event type", map[string]interface{}{
			"event_type": event.Type,
			"event_id":   event.ID,
		})
		return nil
	}
}

func (p *Processor) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("failed to parse checkout session: %w", err)
	}

	if session.Mode != stripe.CheckoutSessionModeSubscription {
		logger.Debug("ignoring non-subscription checkout", map[string]interface{}{
			"session_id": session.ID,
			"mode":       session.Mode,
		})
		return nil
	}

	userID := session.ClientReferenceID
	if userID == "" {
		// Without the correlation field the event cannot be mapped to a
		// local user; the resolver picks such sessions up on demand.
		logger.Warn("checkout completed without client reference", map[string]interface{}{
			"session_id": session.ID,
		})
		p.dropped.Inc()
		return nil
	}

	existing, err := p.store.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if existing != nil && existing.Status == models.StatusActive {
		logger.Info("license already active, ignoring redelivery", map[string]interface{}{
			"user_id":    userID,
			"session_id": session.ID,
		})
		p.processed.Inc()
		return nil
	}

	subscriptionID := billing.SubscriptionID(&session)
	customerID := billing.CustomerID(session.Customer)
	if subscriptionID != "" {
		// The webhook payload embeds the subscription as a bare id;
		// retrieve it for the authoritative customer.
		sub, err := p.gateway.Subscription(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if id := billing.CustomerID(sub.Customer); id != "" {
			customerID = id
		}
	}

	if _, err := p.manager.CreateOrGet(ctx, userID, customerID, subscriptionID); err != nil {
		return err
	}

	p.processed.Inc()
	return nil
}

func (p *Processor) handleSubscriptionChange(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to parse subscription: %w", err)
	}

	customerID := billing.CustomerID(sub.Customer)
	if customerID == "" {
		logger.Warn("subscription event without customer", map[string]interface{}{
			"event_id": event.ID,
		})
		p.dropped.Inc()
		return nil
	}

	userID, err := p.store.GetUserIDByCustomerID(ctx, customerID)
	if err != nil {
		return err
	}
	if userID == "" {
		// The subscription event raced ahead of checkout correlation.
		// Dropped, not retried here; Stripe redelivers and the resolver
		// self-heals when the user next polls.
		logger.Warn("subscription event for unknown customer, dropping", map[string]interface{}{
			"customer_id": customerID,
			"event_type":  event.Type,
		})
		p.dropped.Inc()
		return nil
	}

	status := models.StatusCanceled
	if billing.SubscriptionGrantsAccess(sub.Status) {
		status = models.StatusActive
	}

	if err := p.manager.SetStatus(ctx, userID, status); err != nil {
		return err
	}

	p.processed.Inc()
	return nil
}
