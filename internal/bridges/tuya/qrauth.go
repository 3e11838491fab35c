package tuya

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AuthorizationArtifact is the QR payload issued for a user code. The user
// scans it with the Smart Life app to approve the login.
type AuthorizationArtifact struct {
	Code string `json:"qrcode"`
}

// CredentialExchanger performs the two calls of the QR login flow.
// *AuthClient implements it.
type CredentialExchanger interface {
	RequestAuthorizationArtifact(ctx context.Context, userCode string) (AuthorizationArtifact, error)
	PollForCredential(ctx context.Context, userCode string, artifact AuthorizationArtifact) (*Token, error)
}

// AuthConfig configures an AuthClient.
type AuthConfig struct {
	// AuthURL is the QR token endpoint.
	AuthURL  string
	ClientID string
	Schema   string

	// HTTPClient defaults to a client with a 10 second timeout.
	HTTPClient *http.Client
}

// AuthClient talks to the Tuya QR login gateway.
//
// Thread Safety: safe for concurrent use; overlapping polls share it.
type AuthClient struct {
	http     *http.Client
	base     *url.URL
	clientID string
	schema   string
	now      func() time.Time
}

// NewAuthClient validates cfg and returns a client.
func NewAuthClient(cfg AuthConfig) (*AuthClient, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client id is required")
	}
	if cfg.Schema == "" {
		return nil, fmt.Errorf("schema is required")
	}
	base, err := url.Parse(cfg.AuthURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid auth url %q", cfg.AuthURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &AuthClient{
		http:     httpClient,
		base:     base,
		clientID: cfg.ClientID,
		schema:   cfg.Schema,
		now:      time.Now,
	}, nil
}

// RequestAuthorizationArtifact asks the gateway for a QR code bound to
// userCode.
func (c *AuthClient) RequestAuthorizationArtifact(ctx context.Context, userCode string) (AuthorizationArtifact, error) {
	userCode = strings.TrimSpace(userCode)
	if userCode == "" {
		return AuthorizationArtifact{}, ErrInvalidUserCode
	}

	u := *c.base
	u.RawQuery = url.Values{
		"clientid": {c.clientID},
		"schema":   {c.schema},
		"usercode": {userCode},
	}.Encode()

	result, err := c.do(ctx, http.MethodPost, u.String())
	if err != nil {
		return AuthorizationArtifact{}, fmt.Errorf("requesting qr code: %w", err)
	}

	var payload struct {
		QRCode string `json:"qrcode"`
	}
	if err := decodeResult(result, &payload); err != nil {
		return AuthorizationArtifact{}, fmt.Errorf("requesting qr code: %w", err)
	}
	if payload.QRCode == "" {
		return AuthorizationArtifact{}, fmt.Errorf("requesting qr code: %w: empty qrcode", ErrMalformedResponse)
	}
	return AuthorizationArtifact{Code: payload.QRCode}, nil
}

// PollForCredential asks whether the QR login was approved. The gateway
// reports "not yet" with the same failure envelope as a real rejection, so
// callers retry on every error.
func (c *AuthClient) PollForCredential(ctx context.Context, userCode string, artifact AuthorizationArtifact) (*Token, error) {
	if artifact.Code == "" {
		return nil, fmt.Errorf("polling token: empty qr code")
	}

	u := c.base.JoinPath(artifact.Code)
	u.RawQuery = url.Values{
		"clientid": {c.clientID},
		"usercode": {userCode},
	}.Encode()

	result, err := c.do(ctx, http.MethodGet, u.String())
	if err != nil {
		return nil, fmt.Errorf("polling token: %w", err)
	}

	var tok Token
	if err := decodeResult(result, &tok); err != nil {
		return nil, fmt.Errorf("polling token: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("polling token: %w: missing access token", ErrMalformedResponse)
	}
	tok.ReceivedAt = c.now().UTC()
	return &tok, nil
}

func (c *AuthClient) do(ctx context.Context, method, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp)
}
