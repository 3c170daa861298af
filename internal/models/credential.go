package models

import (
	"encoding/json"
	"time"

	"golang.org/x/oauth2"
)

// Credential is the provider identity held for one account: an access and
// refresh token pair plus metadata. It is serialized to JSON and persisted
// only through the secret store, never to plaintext files.
type Credential struct {
	AccountID    string    `json:"account_id"`
	Email        string    `json:"email,omitempty"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// Valid reports whether the access token is still usable at the given time,
// leaving at least margin before expiry.
func (c *Credential) Valid(now time.Time, margin time.Duration) bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	if c.Expiry.IsZero() {
		return true
	}
	return now.Add(margin).Before(c.Expiry)
}

// HasScopes reports whether every required scope was granted.
func (c *Credential) HasScopes(required []string) bool {
	granted := make(map[string]bool, len(c.Scopes))
	for _, s := range c.Scopes {
		granted[s] = true
	}
	for _, s := range required {
		if !granted[s] {
			return false
		}
	}
	return true
}

// Token converts the credential to an oauth2 token for refresh calls.
func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		Expiry:       c.Expiry,
	}
}

// UpdateFromToken applies a refreshed oauth2 token. The refresh token is
// only replaced when the provider rotated it.
func (c *Credential) UpdateFromToken(tok *oauth2.Token) {
	c.AccessToken = tok.AccessToken
	c.Expiry = tok.Expiry
	if tok.RefreshToken != "" {
		c.RefreshToken = tok.RefreshToken
	}
}

// CredentialFromToken builds a credential from a fresh authorization
// exchange.
func CredentialFromToken(tok *oauth2.Token, accountID string, scopes []string) *Credential {
	return &Credential{
		AccountID:    accountID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Scopes:       scopes,
	}
}

// Marshal serializes the credential into the opaque secret-store blob.
func (c *Credential) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// UnmarshalCredential parses a secret-store blob back into a credential.
func UnmarshalCredential(blob []byte) (*Credential, error) {
	var c Credential
	if err := json.Unmarshal(blob, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
