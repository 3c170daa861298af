package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestCredentialValid(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	margin := 60 * time.Second

	t.Run("nil credential is invalid", func(t *testing.T) {
		var c *Credential
		assert.False(t, c.Valid(now, margin))
	})

	t.Run("empty access token is invalid", func(t *testing.T) {
		c := &Credential{Expiry: now.Add(time.Hour)}
		assert.False(t, c.Valid(now, margin))
	})

	t.Run("expiry outside margin is valid", func(t *testing.T) {
		c := &Credential{AccessToken: "tok", Expiry: now.Add(10 * time.Minute)}
		assert.True(t, c.Valid(now, margin))
	})

	t.Run("expiry within margin is invalid", func(t *testing.T) {
		c := &Credential{AccessToken: "tok", Expiry: now.Add(30 * time.Second)}
		assert.False(t, c.Valid(now, margin))
	})

	t.Run("zero expiry never expires", func(t *testing.T) {
		c := &Credential{AccessToken: "tok"}
		assert.True(t, c.Valid(now, margin))
	})
}

func TestCredentialHasScopes(t *testing.T) {
	c := &Credential{Scopes: []string{"spreadsheets.readonly", "drive.readonly"}}
	assert.True(t, c.HasScopes([]string{"spreadsheets.readonly"}))
	assert.True(t, c.HasScopes(nil))
	assert.False(t, c.HasScopes([]string{"spreadsheets.readonly", "userinfo.email"}))
}

func TestCredentialUpdateFromToken(t *testing.T) {
	expiry := time.Now().Add(time.Hour)
	c := &Credential{AccessToken: "old", RefreshToken: "keep-me"}

	c.UpdateFromToken(&oauth2.Token{AccessToken: "new", Expiry: expiry})
	assert.Equal(t, "new", c.AccessToken)
	assert.Equal(t, "keep-me", c.RefreshToken, "refresh token kept when provider does not rotate")

	c.UpdateFromToken(&oauth2.Token{AccessToken: "newer", RefreshToken: "rotated", Expiry: expiry})
	assert.Equal(t, "rotated", c.RefreshToken)
}

func TestCredentialMarshalRoundTrip(t *testing.T) {
	c := &Credential{
		AccountID:    "default",
		Email:        "user@example.com",
		AccessToken:  "at",
		RefreshToken: "rt",
		Expiry:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Scopes:       []string{"spreadsheets.readonly"},
	}

	blob, err := c.Marshal()
	require.NoError(t, err)

	restored, err := UnmarshalCredential(blob)
	require.NoError(t, err)
	assert.Equal(t, c, restored)

	_, err = UnmarshalCredential([]byte("not json"))
	assert.Error(t, err)
}

func TestAuthSession(t *testing.T) {
	deadline := time.Now().Add(2 * time.Minute)
	s := NewAuthSession("http://127.0.0.1:43121/oauth/callback", deadline)

	require.NotEmpty(t, s.ID)
	require.NotEmpty(t, s.State)
	assert.NotEqual(t, s.ID, s.State)

	other := NewAuthSession("http://127.0.0.1:43121/oauth/callback", deadline)
	assert.NotEqual(t, s.State, other.State, "anti-forgery token must be fresh per session")

	assert.False(t, s.Expired(deadline.Add(-time.Second)))
	assert.True(t, s.Expired(deadline.Add(time.Second)))
}
