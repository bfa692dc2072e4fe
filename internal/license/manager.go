package license

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"intently.app/cloud/internal/logger"
	"intently.app/cloud/internal/models"
	"intently.app/cloud/internal/storage"
)

const keyPrefix = "ITP"

// Manager owns every mutation of license records. Status always reflects the
// provider's last reported subscription state, so canceled -> active is a
// legal transition (resubscription) and needs no special casing.
type Manager struct {
	store storage.Storage
}

func NewManager(store storage.Storage) *Manager {
	return &Manager{store: store}
}

// CreateOrGet returns the existing active license for userID unchanged, or
// persists a fresh active record. Concurrent calls for the same user are
// serialized by the store's atomic upsert; the record read back after the
// write is the winner.
func (m *Manager) CreateOrGet(ctx context.Context, userID, customerID, subscriptionID string) (*models.License, error) {
	existing, err := m.store.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up license: %w", err)
	}

	if existing != nil && existing.Status == models.StatusActive {
		logger.Debug("license already active", map[string]interface{}{
			"user_id": userID,
		})
		return existing, nil
	}

	now := time.Now().UTC()
	record := &models.License{
		UserID:         userID,
		Key:            NewKey(),
		CustomerID:     customerID,
		SubscriptionID: subscriptionID,
		Status:         models.StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := m.store.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist license: %w", err)
	}

	stored, err := m.store.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read back license: %w", err)
	}

	logger.Info("license activated", map[string]interface{}{
		"user_id":         userID,
		"customer_id":     customerID,
		"subscription_id": subscriptionID,
	})

	return stored, nil
}

// SetStatus updates the record's status. A missing record is a silent no-op
// because a status event may race ahead of creation.
func (m *Manager) SetStatus(ctx context.Context, userID, status string) error {
	if err := m.store.UpdateStatus(ctx, userID, status); err != nil {
		return fmt.Errorf("failed to update license status: %w", err)
	}

	logger.Info("license status updated", map[string]interface{}{
		"user_id": userID,
		"status":  status,
	})
	return nil
}

// IsEntitled evaluates the boolean entitlement: the record exists, is active,
// and has not expired.
func (m *Manager) IsEntitled(license *models.License) bool {
	if license == nil || license.Status != models.StatusActive {
		return false
	}
	if license.ExpiresAt != nil && license.ExpiresAt.Before(time.Now()) {
		return false
	}
	return true
}

// NewKey builds a license key from a millisecond timestamp and a random
// fragment, so collisions across concurrent generations are negligible.
func NewKey() string {
	random := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%d-%s", keyPrefix, time.Now().UnixMilli(), random)
}
