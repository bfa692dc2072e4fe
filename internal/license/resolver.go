package license

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/stripe/stripe-go/v82"

	"intently.app/cloud/internal/billing"
	"intently.app/cloud/internal/logger"
	"intently.app/cloud/internal/models"
	"intently.app/cloud/internal/storage"
)

// ErrNotEligible is the normal negative outcome of AutoReconcile: the session
// or its subscription does not qualify for an entitlement. It is not a
// provider or transport failure.
var ErrNotEligible = errors.New("not eligible for a license")

const defaultScanLimit = 25

// Resolver recovers license state synchronously when the webhook path has not
// (yet) produced it. Strategies run in fixed order and stop at the first one
// that yields a result; provider failures along the way are collected so the
// caller can tell "Stripe was down" apart from "no entitlement exists".
type Resolver struct {
	store     storage.Storage
	manager   *Manager
	gateway   billing.Gateway
	scanLimit int64
}

func NewResolver(store storage.Storage, manager *Manager, gateway billing.Gateway, scanLimit int64) *Resolver {
	if scanLimit <= 0 {
		scanLimit = defaultScanLimit
	}
	return &Resolver{
		store:     store,
		manager:   manager,
		gateway:   gateway,
		scanLimit: scanLimit,
	}
}

// Resolve looks up the license for userID, falling back to Stripe when the
// local record is missing or stale. presentedKey is optional and covers
// clients that lost their user id binding but kept the key.
func (r *Resolver) Resolve(ctx context.Context, userID, presentedKey string) (*models.License, error) {
	if userID == "" && presentedKey == "" {
		return nil, nil
	}

	direct, err := r.store.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if r.manager.IsEntitled(direct) {
		return direct, nil
	}

	// A found-but-invalid record is kept as the fallback answer: a
	// resubscription may exist upstream that no webhook has reported yet,
	// so the provider strategies still run.
	stale := direct

	if presentedKey != "" {
		byKey, err := r.store.GetByLicenseKey(ctx, presentedKey)
		if err != nil {
			return nil, err
		}
		if r.manager.IsEntitled(byKey) {
			return byKey, nil
		}
		if stale == nil {
			stale = byKey
		}
	}

	customerID, subscriptionID, errs := r.discover(ctx, userID)
	if customerID != "" {
		return r.materialize(ctx, userID, customerID, subscriptionID)
	}

	if stale != nil {
		return stale, nil
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("license resolution failed: %w", err)
	}

	// Absence is a legitimate state, not an error.
	return nil, nil
}

// ResolveByKey is the narrow lookup used by key-only validation. No provider
// fallback: a key can only have come from a record that already exists.
func (r *Resolver) ResolveByKey(ctx context.Context, key string) (*models.License, error) {
	return r.store.GetByLicenseKey(ctx, key)
}

// AutoReconcile materializes a license from a specific checkout session the
// caller already holds. The session must be subscription-mode and paid, and
// its subscription must currently grant access.
func (r *Resolver) AutoReconcile(ctx context.Context, sessionID, userID string) (*models.License, error) {
	session, err := r.gateway.CheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Mode != stripe.CheckoutSessionModeSubscription {
		return nil, fmt.Errorf("%w: session %s is not subscription mode", ErrNotEligible, sessionID)
	}
	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil, fmt.Errorf("%w: session %s is not paid", ErrNotEligible, sessionID)
	}

	subscriptionID := billing.SubscriptionID(session)
	if subscriptionID == "" {
		return nil, fmt.Errorf("%w: session %s has no subscription", ErrNotEligible, sessionID)
	}

	sub, err := r.gateway.Subscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if !billing.SubscriptionGrantsAccess(sub.Status) {
		return nil, fmt.Errorf("%w: subscription %s is %s", ErrNotEligible, subscriptionID, sub.Status)
	}

	customerID := billing.CustomerID(sub.Customer)
	if customerID == "" {
		customerID = billing.CustomerID(session.Customer)
	}
	if customerID == "" {
		return nil, fmt.Errorf("%w: no customer on session %s", ErrNotEligible, sessionID)
	}

	return r.materialize(ctx, userID, customerID, sub.ID)
}

// discover runs the provider-side strategies in order: sessions matched on
// the correlation field, sessions matched on embedded metadata, then an
// active-subscription scan. All scans are bounded by scanLimit.
func (r *Resolver) discover(ctx context.Context, userID string) (string, string, *multierror.Error) {
	var errs *multierror.Error

	// An empty user id would "match" every session that never set the
	// correlation field.
	if userID == "" {
		return "", "", nil
	}

	sessions, err := r.gateway.RecentCheckoutSessions(ctx, r.scanLimit)
	if err != nil {
		errs = multierror.Append(errs, err)
	}

	matchers := []func(*stripe.CheckoutSession) bool{
		func(s *stripe.CheckoutSession) bool { return s.ClientReferenceID == userID },
		func(s *stripe.CheckoutSession) bool { return s.Metadata["user_id"] == userID },
	}

	for _, match := range matchers {
		session := bestSession(sessions, match)
		if session == nil {
			continue
		}

		customerID, subscriptionID, err := r.identityFromSession(ctx, session)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if customerID != "" {
			return customerID, subscriptionID, errs
		}
	}

	subs, err := r.gateway.ActiveSubscriptions(ctx, r.scanLimit)
	if err != nil {
		errs = multierror.Append(errs, err)
		return "", "", errs
	}
	for _, sub := range subs {
		if sub.Metadata["user_id"] == userID || sub.Metadata["client_reference_id"] == userID {
			return billing.CustomerID(sub.Customer), sub.ID, errs
		}
	}

	return "", "", errs
}

// identityFromSession turns a matched session into the authoritative
// customer/subscription pair, retrieving the subscription when the session
// carries one.
func (r *Resolver) identityFromSession(ctx context.Context, session *stripe.CheckoutSession) (string, string, error) {
	subscriptionID := billing.SubscriptionID(session)
	if subscriptionID == "" {
		return billing.CustomerID(session.Customer), "", nil
	}

	sub, err := r.gateway.Subscription(ctx, subscriptionID)
	if err != nil {
		return "", "", err
	}

	customerID := billing.CustomerID(sub.Customer)
	if customerID == "" {
		customerID = billing.CustomerID(session.Customer)
	}
	return customerID, sub.ID, nil
}

// materialize creates or returns the record for a discovered customer. If the
// customer already maps to a different local user, that record wins: one
// payer never gets two divergent active licenses, and the newer user id stays
// unlicensed rather than being silently merged.
func (r *Resolver) materialize(ctx context.Context, userID, customerID, subscriptionID string) (*models.License, error) {
	mapped, err := r.store.GetUserIDByCustomerID(ctx, customerID)
	if err != nil {
		return nil, err
	}

	if mapped != "" && mapped != userID {
		logger.Warn("customer already licensed under another user", map[string]interface{}{
			"customer_id":    customerID,
			"mapped_user_id": mapped,
			"user_id":        userID,
		})
		return r.store.GetByUserID(ctx, mapped)
	}

	return r.manager.CreateOrGet(ctx, userID, customerID, subscriptionID)
}

// bestSession picks the most relevant matching session, preferring paid ones.
func bestSession(sessions []*stripe.CheckoutSession, match func(*stripe.CheckoutSession) bool) *stripe.CheckoutSession {
	var fallback *stripe.CheckoutSession
	for _, s := range sessions {
		if s == nil || !match(s) {
			continue
		}
		if s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			return s
		}
		if fallback == nil {
			fallback = s
		}
	}
	return fallback
}
