package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// ErrInvalidSignature marks a webhook payload whose signature did not verify
// against the endpoint secret. Nothing may be mutated on this error.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Gateway abstracts the Stripe API surface the engine consumes. Stripe is
// treated as untrusted, eventually consistent and rate limited; callers own
// retries.
type Gateway interface {
	VerifyEvent(payload []byte, signature string) (stripe.Event, error)
	CheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
	// RecentCheckoutSessions returns a bounded window of the newest
	// checkout sessions. Stripe offers no server-side filter on
	// client_reference_id, so correlation matching happens client-side.
	RecentCheckoutSessions(ctx context.Context, limit int64) ([]*stripe.CheckoutSession, error)
	Subscription(ctx context.Context, id string) (*stripe.Subscription, error)
	ActiveSubscriptions(ctx context.Context, limit int64) ([]*stripe.Subscription, error)
}

type StripeGateway struct {
	webhookSecret string
}

func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{webhookSecret: webhookSecret}
}

func (g *StripeGateway) VerifyEvent(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}

func (g *StripeGateway) CheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := session.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve checkout session %s: %w", id, err)
	}
	return s, nil
}

func (g *StripeGateway) RecentCheckoutSessions(ctx context.Context, limit int64) ([]*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(limit)

	var sessions []*stripe.CheckoutSession
	iter := session.List(params)
	for iter.Next() {
		sessions = append(sessions, iter.CheckoutSession())
		if int64(len(sessions)) >= limit {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list checkout sessions: %w", err)
	}
	return sessions, nil
}

func (g *StripeGateway) Subscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := subscription.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve subscription %s: %w", id, err)
	}
	return sub, nil
}

func (g *StripeGateway) ActiveSubscriptions(ctx context.Context, limit int64) ([]*stripe.Subscription, error) {
	params := &stripe.SubscriptionListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(limit)
	params.Status = stripe.String(string(stripe.SubscriptionStatusActive))

	var subs []*stripe.Subscription
	iter := subscription.List(params)
	for iter.Next() {
		subs = append(subs, iter.Subscription())
		if int64(len(subs)) >= limit {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

// CustomerID normalizes the customer reference Stripe embeds in sessions and
// subscriptions, which may be an expanded object or a bare id.
func CustomerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

// SubscriptionID normalizes the subscription reference on a checkout session.
func SubscriptionID(s *stripe.CheckoutSession) string {
	if s == nil || s.Subscription == nil {
		return ""
	}
	return s.Subscription.ID
}

// SubscriptionGrantsAccess reports whether the provider considers the
// subscription entitled. Trialing counts; everything else does not.
func SubscriptionGrantsAccess(status stripe.SubscriptionStatus) bool {
	return status == stripe.SubscriptionStatusActive || status == stripe.SubscriptionStatusTrialing
}
