package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82"

	"intently.app/cloud/internal/billing"
	"intently.app/cloud/internal/license"
	"intently.app/cloud/internal/models"
	"intently.app/cloud/internal/storage"
)

// NewStorage creates an empty memory store for tests.
func NewStorage() *storage.MemoryStorage {
	return storage.NewMemoryStorage()
}

// NewLicense builds a license record with sensible test defaults.
func NewLicense(userID, customerID, status string) *models.License {
	now := time.Now().UTC()
	return &models.License{
		UserID:         userID,
		Key:            license.NewKey(),
		CustomerID:     customerID,
		SubscriptionID: "sub_" + userID,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// SaveLicense persists a record, failing the test on error.
func SaveLicense(t *testing.T, store storage.Storage, lic *models.License) {
	t.Helper()
	if err := store.Upsert(context.Background(), lic); err != nil {
		t.Fatalf("Failed to save license: %v", err)
	}
}

// FakeGateway is an in-memory billing.Gateway. VerifyEvent treats any
// parseable payload as correctly signed unless VerifyErr is set.
type FakeGateway struct {
	VerifyErr error
	ListErr   error

	Sessions      map[string]*stripe.CheckoutSession
	Subscriptions map[string]*stripe.Subscription

	RecentSessions []*stripe.CheckoutSession
	ActiveSubs     []*stripe.Subscription
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		Sessions:      make(map[string]*stripe.CheckoutSession),
		Subscriptions: make(map[string]*stripe.Subscription),
	}
}

func (g *FakeGateway) VerifyEvent(payload []byte, signature string) (stripe.Event, error) {
	if g.VerifyErr != nil {
		return stripe.Event{}, g.VerifyErr
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", billing.ErrInvalidSignature, err)
	}
	return event, nil
}

func (g *FakeGateway) CheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	session, ok := g.Sessions[id]
	if !ok {
		return nil, fmt.Errorf("no such checkout session: %s", id)
	}
	return session, nil
}

func (g *FakeGateway) RecentCheckoutSessions(ctx context.Context, limit int64) ([]*stripe.CheckoutSession, error) {
	if g.ListErr != nil {
		return nil, g.ListErr
	}
	if int64(len(g.RecentSessions)) > limit {
		return g.RecentSessions[:limit], nil
	}
	return g.RecentSessions, nil
}

func (g *FakeGateway) Subscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	sub, ok := g.Subscriptions[id]
	if !ok {
		return nil, fmt.Errorf("no such subscription: %s", id)
	}
	return sub, nil
}

func (g *FakeGateway) ActiveSubscriptions(ctx context.Context, limit int64) ([]*stripe.Subscription, error) {
	if g.ListErr != nil {
		return nil, g.ListErr
	}
	if int64(len(g.ActiveSubs)) > limit {
		return g.ActiveSubs[:limit], nil
	}
	return g.ActiveSubs, nil
}

// AddSubscription registers a subscription with the fake provider and
// returns it for further tweaking.
func (g *FakeGateway) AddSubscription(id, customerID string, status stripe.SubscriptionStatus) *stripe.Subscription {
	sub := &stripe.Subscription{
		ID:       id,
		Status:   status,
		Customer: &stripe.Customer{ID: customerID},
		Metadata: map[string]string{},
	}
	g.Subscriptions[id] = sub
	return sub
}

// AddCheckoutSession registers a paid subscription-mode checkout session
// linked to an already registered subscription.
func (g *FakeGateway) AddCheckoutSession(id, clientReferenceID, subscriptionID string) *stripe.CheckoutSession {
	session := &stripe.CheckoutSession{
		ID:                id,
		Mode:              stripe.CheckoutSessionModeSubscription,
		PaymentStatus:     stripe.CheckoutSessionPaymentStatusPaid,
		ClientReferenceID: clientReferenceID,
		Metadata:          map[string]string{},
	}
	if subscriptionID != "" {
		session.Subscription = &stripe.Subscription{ID: subscriptionID}
	}
	g.Sessions[id] = session
	return session
}

// WebhookPayload builds a raw Stripe event body the fake gateway will accept.
func WebhookPayload(t *testing.T, eventType string, object map[string]interface{}) []byte {
	t.Helper()

	payload, err := json.Marshal(map[string]interface{}{
		"id":   "evt_test123",
		"type": eventType,
		"data": map[string]interface{}{
			"object": object,
		},
	})
	if err != nil {
		t.Fatalf("Failed to marshal event: %v", err)
	}
	return payload
}

// CheckoutSessionObject is the webhook-side shape of a completed checkout.
func CheckoutSessionObject(sessionID, clientReferenceID, subscriptionID, customerID string) map[string]interface{} {
	object := map[string]interface{}{
		"id":             sessionID,
		"mode":           "subscription",
		"payment_status": "paid",
	}
	if clientReferenceID != "" {
		object["client_reference_id"] = clientReferenceID
	}
	if subscriptionID != "" {
		object["subscription"] = subscriptionID
	}
	if customerID != "" {
		object["customer"] = customerID
	}
	return object
}

// SubscriptionObject is the webhook-side shape of a subscription event.
func SubscriptionObject(subscriptionID, customerID, status string) map[string]interface{} {
	return map[string]interface{}{
		"id":       subscriptionID,
		"customer": customerID,
		"status":   status,
	}
}
