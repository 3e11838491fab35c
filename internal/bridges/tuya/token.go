package tuya

import (
	"encoding/json"
	"time"

	"golang.org/x/oauth2"
)

// Token is the credential issued once the user approves the QR login.
//
// The gateway answers in snake_case; camelCase keys are accepted as well.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`

	// ExpireTime is the lifetime in seconds.
	ExpireTime int64 `json:"expire_time"`

	// IssuedAt is the server timestamp in milliseconds, when present.
	IssuedAt int64 `json:"t,omitempty"`

	// ReceivedAt is set locally when the token is fetched.
	ReceivedAt time.Time `json:"received_at"`

	UID        string `json:"uid,omitempty"`
	TerminalID string `json:"terminal_id,omitempty"`
	Endpoint   string `json:"endpoint,omitempty"`
	Username   string `json:"username,omitempty"`
}

type tokenAlias Token

// tokenCamel carries the camelCase spellings.
type tokenCamel struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpireTime   int64  `json:"expireTime"`
	TerminalID   string `json:"terminalId"`
}

// UnmarshalJSON accepts both key spellings; snake_case wins when both are set.
func (t *Token) UnmarshalJSON(data []byte) error {
	var a tokenAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var c tokenCamel
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}

	if a.AccessToken == "" {
		a.AccessToken = c.AccessToken
	}
	if a.RefreshToken == "" {
		a.RefreshToken = c.RefreshToken
	}
	if a.ExpireTime == 0 {
		a.ExpireTime = c.ExpireTime
	}
	if a.TerminalID == "" {
		a.TerminalID = c.TerminalID
	}

	*t = Token(a)
	return nil
}

// Expiry returns when the access token stops being valid, or the zero time
// if the lifetime is unknown.
func (t *Token) Expiry() time.Time {
	if t.ExpireTime <= 0 {
		return time.Time{}
	}
	issued := t.ReceivedAt
	if t.IssuedAt > 0 {
		issued = time.UnixMilli(t.IssuedAt)
	}
	if issued.IsZero() {
		return time.Time{}
	}
	return issued.Add(time.Duration(t.ExpireTime) * time.Second)
}

// OAuth2 converts the token for use with an oauth2 HTTP client.
func (t *Token) OAuth2() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry(),
	}
	return tok.WithExtra(map[string]any{
		"uid":      t.UID,
		"endpoint": t.Endpoint,
	})
}
