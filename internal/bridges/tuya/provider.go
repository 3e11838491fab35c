package tuya

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nerrad567/graylogic-tuya/internal/credential"
)

// ProviderName is the credential provider key for Tuya clients.
const ProviderName = "tuya"

// AuthorizedClient is a cloud client bound to an issued credential.
type AuthorizedClient struct {
	// SessionID identifies the saved client.
	SessionID string
	ConfigID  string
	Token     *Token

	AccountClient
}

// ClientProvider constructs, saves and looks up authorized clients.
type ClientProvider interface {
	// FirstSaved returns the first saved client, or ErrNotLinked.
	FirstSaved(ctx context.Context) (*AuthorizedClient, error)

	// Create builds a client for a freshly issued token. Nothing is saved.
	Create(sessionID string, tok *Token) *AuthorizedClient

	// Save persists the client, replacing clients saved earlier for the
	// same config.
	Save(ctx context.Context, c *AuthorizedClient) error

	// Unlink forgets the saved client, or returns ErrNotLinked.
	Unlink(ctx context.Context, sessionID string) error
}

// StoreProviderConfig configures a StoreProvider.
type StoreProviderConfig struct {
	Store    credential.Store
	ConfigID string
	Driver   string

	// APIURL is used when a token carries no endpoint.
	APIURL string

	// HTTPClient is the transport beneath the bearer-token client.
	HTTPClient *http.Client
}

// StoreProvider is a ClientProvider backed by a credential.Store.
type StoreProvider struct {
	cfg StoreProviderConfig
}

// NewStoreProvider validates cfg and returns a provider.
func NewStoreProvider(cfg StoreProviderConfig) (*StoreProvider, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if cfg.ConfigID == "" {
		return nil, fmt.Errorf("config id is required")
	}
	return &StoreProvider{cfg: cfg}, nil
}

// FirstSaved loads the oldest unexpired client for the configured config ID.
func (p *StoreProvider) FirstSaved(ctx context.Context) (*AuthorizedClient, error) {
	cred, err := p.cfg.Store.First(ctx, ProviderName, p.cfg.ConfigID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return nil, ErrNotLinked
		}
		return nil, fmt.Errorf("loading saved client: %w", err)
	}

	var tok Token
	if err := json.Unmarshal(cred.Token, &tok); err != nil {
		return nil, fmt.Errorf("decoding saved token %s: %w", cred.ID, err)
	}
	return p.Create(cred.ID, &tok), nil
}

// Create builds a client for tok.
func (p *StoreProvider) Create(sessionID string, tok *Token) *AuthorizedClient {
	return &AuthorizedClient{
		SessionID:     sessionID,
		ConfigID:      p.cfg.ConfigID,
		Token:         tok,
		AccountClient: NewCloudClient(tok, p.cfg.APIURL, p.cfg.HTTPClient),
	}
}

// Save writes the client's token to the store.
func (p *StoreProvider) Save(ctx context.Context, c *AuthorizedClient) error {
	raw, err := json.Marshal(c.Token)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	cred := &credential.Credential{
		ID:       c.SessionID,
		Provider: ProviderName,
		ConfigID: c.ConfigID,
		Driver:   p.cfg.Driver,
		UID:      c.Token.UID,
		Endpoint: c.Token.Endpoint,
		Token:    raw,
	}
	if exp := c.Token.Expiry(); !exp.IsZero() {
		cred.ExpiresAt = &exp
	}

	if err := p.cfg.Store.Save(ctx, cred); err != nil {
		return fmt.Errorf("saving client %s: %w", c.SessionID, err)
	}
	return p.dropOthers(ctx, c.SessionID)
}

// dropOthers deletes the clients of this config other than keep, so a
// re-pair replaces a stale token instead of queueing behind it.
func (p *StoreProvider) dropOthers(ctx context.Context, keep string) error {
	saved, err := p.cfg.Store.List(ctx, ProviderName)
	if err != nil {
		return fmt.Errorf("listing saved clients: %w", err)
	}
	for _, cred := range saved {
		if cred.ConfigID != p.cfg.ConfigID || cred.ID == keep {
			continue
		}
		if err := p.cfg.Store.Delete(ctx, cred.ID); err != nil && !errors.Is(err, credential.ErrNotFound) {
			return fmt.Errorf("replacing client %s: %w", cred.ID, err)
		}
	}
	return nil
}

// Unlink deletes the saved client sessionID. Clients of other providers or
// configs are reported as not linked.
func (p *StoreProvider) Unlink(ctx context.Context, sessionID string) error {
	cred, err := p.cfg.Store.Get(ctx, sessionID)
	if errors.Is(err, credential.ErrNotFound) {
		return ErrNotLinked
	}
	if err != nil {
		return fmt.Errorf("loading client %s: %w", sessionID, err)
	}
	if cred.Provider != ProviderName || cred.ConfigID != p.cfg.ConfigID {
		return ErrNotLinked
	}

	if err := p.cfg.Store.Delete(ctx, sessionID); err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return ErrNotLinked
		}
		return fmt.Errorf("deleting client %s: %w", sessionID, err)
	}
	return nil
}
