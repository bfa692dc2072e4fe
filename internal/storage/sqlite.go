package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"intently.app/cloud/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type SQLiteStorage struct {
	db   *sql.DB
	path string
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; a pool of one connection avoids
	// SQLITE_BUSY under concurrent upserts.
	db.SetMaxOpenConns(1)

	s := &SQLiteStorage{db: db, path: path}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

const licenseColumns = `user_id, license_key, customer_id, subscription_id, status, expires_at, created_at, updated_at`

func (s *SQLiteStorage) GetByUserID(ctx context.Context, userID string) (*models.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE user_id = ?`
	return s.scanLicense(s.db.QueryRowContext(ctx, query, userID))
}

func (s *SQLiteStorage) GetByLicenseKey(ctx context.Context, key string) (*models.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE license_key = ?`
	return s.scanLicense(s.db.QueryRowContext(ctx, query, key))
}

func (s *SQLiteStorage) GetUserIDByCustomerID(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", nil
	}

	var userID string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM licenses WHERE customer_id = ? LIMIT 1`, customerID,
	).Scan(&userID)

	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up customer mapping: %w", err)
	}
	return userID, nil
}

// Upsert writes the record atomically, keyed on user_id. created_at is left
// untouched when the row already exists.
func (s *SQLiteStorage) Upsert(ctx context.Context, license *models.License) error {
	query := `
		INSERT INTO licenses (` + licenseColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			license_key = excluded.license_key,
			customer_id = excluded.customer_id,
			subscription_id = excluded.subscription_id,
			status = excluded.status,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		license.UserID,
		license.Key,
		license.CustomerID,
		license.SubscriptionID,
		license.Status,
		nullableTime(license.ExpiresAt),
		license.CreatedAt,
		license.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert license: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpdateStatus(ctx context.Context, userID, status string) error {
	// Zero rows affected means the record does not exist yet; a status
	// event racing ahead of creation is tolerated, not an error.
	_, err := s.db.ExecContext(ctx,
		`UPDATE licenses SET status = ?, updated_at = ? WHERE user_id = ?`,
		status, timeNow(), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update license status: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) scanLicense(row *sql.Row) (*models.License, error) {
	var license models.License
	var expiresAt sql.NullTime

	err := row.Scan(
		&license.UserID,
		&license.Key,
		&license.CustomerID,
		&license.SubscriptionID,
		&license.Status,
		&expiresAt,
		&license.CreatedAt,
		&license.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan license: %w", err)
	}

	if expiresAt.Valid {
		t := expiresAt.Time
		license.ExpiresAt = &t
	}
	return &license, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func timeNow() time.Time {
	return time.Now().UTC()
}
