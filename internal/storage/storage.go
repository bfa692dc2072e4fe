package storage

import (
	"context"
	"sync"

	"intently.app/cloud/internal/models"
)

// Storage is the durable record store for licenses. Upsert must be atomic
// with respect to concurrent callers for the same user id, and the customer
// index must be consistent with the primary table after any committed write.
type Storage interface {
	GetByUserID(ctx context.Context, userID string) (*models.License, error)
	GetByLicenseKey(ctx context.Context, key string) (*models.License, error)
	GetUserIDByCustomerID(ctx context.Context, customerID string) (string, error)
	Upsert(ctx context.Context, license *models.License) error
	UpdateStatus(ctx context.Context, userID, status string) error

	Close() error
}

// MemoryStorage backs tests and local development. The mutex stands in for
// the transactional guarantees the SQLite implementation gets for free.
type MemoryStorage struct {
	mu       sync.Mutex
	licenses map[string]models.License // keyed by user id
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{licenses: make(map[string]models.License)}
}

func (m *MemoryStorage) GetByUserID(ctx context.Context, userID string) (*models.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	license, exists := m.licenses[userID]
	if !exists {
		return nil, nil
	}
	return &license, nil
}

func (m *MemoryStorage) GetByLicenseKey(ctx context.Context, key string) (*models.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, license := range m.licenses {
		if license.Key == key {
			licenseCopy := license
			return &licenseCopy, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) GetUserIDByCustomerID(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for userID, license := range m.licenses {
		if license.CustomerID == customerID {
			return userID, nil
		}
	}
	return "", nil
}

func (m *MemoryStorage) Upsert(ctx context.Context, license *models.License) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record := *license
	if existing, exists := m.licenses[license.UserID]; exists {
		// The creation instant survives replays and re-activations.
		record.CreatedAt = existing.CreatedAt
	}
	m.licenses[license.UserID] = record
	return nil
}

func (m *MemoryStorage) UpdateStatus(ctx context.Context, userID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	license, exists := m.licenses[userID]
	if !exists {
		// A status event may race ahead of creation; not an error.
		return nil
	}
	license.Status = status
	license.UpdatedAt = timeNow()
	m.licenses[userID] = license
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
