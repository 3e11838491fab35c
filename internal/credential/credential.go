// Package credential persists the OAuth2 clients created by pairing.
//
// A Credential is opaque to this package apart from its lookup keys: the
// provider-specific token is stored as raw JSON and decoded by the bridge
// that owns it.
package credential

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no saved client matches.
	ErrNotFound = errors.New("credential: not found")

	// ErrInvalid is returned when a credential is missing required fields.
	ErrInvalid = errors.New("credential: invalid")
)

// timeFormat is fixed width so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Credential is a saved OAuth2 client.
type Credential struct {
	// ID is the pairing session identifier that created the client.
	ID       string
	Provider string
	ConfigID string
	Driver   string

	// UID and Endpoint are copied out of the token for listing.
	UID      string
	Endpoint string

	Token     json.RawMessage
	ExpiresAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the persistence interface for saved clients.
type Store interface {
	// Save inserts or replaces the credential with the same ID.
	Save(ctx context.Context, c *Credential) error

	// First returns the oldest unexpired client for provider and configID.
	First(ctx context.Context, provider, configID string) (*Credential, error)

	Get(ctx context.Context, id string) (*Credential, error)
	List(ctx context.Context, provider string) ([]Credential, error)
	Delete(ctx context.Context, id string) error
}

// SQLiteStore implements Store on the oauth_clients table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store on an open, migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const selectCredential = `
	SELECT id, provider, config_id, driver, uid, endpoint, token_json, expires_at, created_at, updated_at
	FROM oauth_clients`

// Save inserts or replaces c. CreatedAt is preserved across updates.
func (s *SQLiteStore) Save(ctx context.Context, c *Credential) error {
	if c.ID == "" || c.Provider == "" || c.ConfigID == "" {
		return fmt.Errorf("%w: id, provider and config_id are required", ErrInvalid)
	}
	if !json.Valid(c.Token) {
		return fmt.Errorf("%w: token is not valid JSON", ErrInvalid)
	}

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	var expiresAt sql.NullString
	if c.ExpiresAt != nil {
		expiresAt = sql.NullString{String: c.ExpiresAt.UTC().Format(timeFormat), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth_clients (
			id, provider, config_id, driver, uid, endpoint, token_json, expires_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			driver = excluded.driver,
			uid = excluded.uid,
			endpoint = excluded.endpoint,
			token_json = excluded.token_json,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		c.ID, c.Provider, c.ConfigID, c.Driver, c.UID, c.Endpoint, string(c.Token), expiresAt,
		c.CreatedAt.UTC().Format(timeFormat), c.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("saving oauth client: %w", err)
	}
	return nil
}

// First returns the oldest saved client for provider and configID whose
// token has not expired. Clients without a known expiry always qualify.
func (s *SQLiteStore) First(ctx context.Context, provider, configID string) (*Credential, error) {
	row := s.db.QueryRowContext(ctx,
		selectCredential+` WHERE provider = ? AND config_id = ?
			AND (expires_at IS NULL OR expires_at > ?)
			ORDER BY created_at, id LIMIT 1`,
		provider, configID, time.Now().UTC().Format(timeFormat))
	return scanOne(row)
}

// Get returns the saved client with the given ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Credential, error) {
	return scanOne(s.db.QueryRowContext(ctx, selectCredential+" WHERE id = ?", id))
}

// List returns all saved clients for provider, oldest first.
func (s *SQLiteStore) List(ctx context.Context, provider string) ([]Credential, error) {
	rows, err := s.db.QueryContext(ctx, selectCredential+" WHERE provider = ? ORDER BY created_at, id", provider)
	if err != nil {
		return nil, fmt.Errorf("querying oauth clients: %w", err)
	}
	defer rows.Close()

	var out []Credential
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating oauth clients: %w", err)
	}
	return out, nil
}

// Delete removes a saved client.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM oauth_clients WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting oauth client: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row *sql.Row) (*Credential, error) {
	c, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func scan(s scanner) (*Credential, error) {
	var c Credential
	var token, createdAt, updatedAt string
	var expiresAt sql.NullString

	if err := s.Scan(&c.ID, &c.Provider, &c.ConfigID, &c.Driver, &c.UID, &c.Endpoint,
		&token, &expiresAt, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning oauth client: %w", err)
	}

	c.Token = json.RawMessage(token)
	if expiresAt.Valid {
		t, err := time.Parse(timeFormat, expiresAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing expires_at: %w", err)
		}
		c.ExpiresAt = &t
	}

	var err error
	if c.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &c, nil
}
