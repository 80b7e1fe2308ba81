package models

import "time"

// OAuth1Token is the long-lived signed credential pair obtained through the
// out-of-band login flow. It is only ever used to derive short-lived bearer
// tokens and is never presented on ordinary API calls.
type OAuth1Token struct {
	Token       string `json:"oauth_token"`
	TokenSecret string `json:"oauth_token_secret"`
	MFAToken    string `json:"mfa_token,omitempty"`
	Domain      string `json:"domain,omitempty"`
}

// Valid reports whether the pair carries both halves of the signing key.
func (t *OAuth1Token) Valid() bool {
	return t != nil && t.Token != "" && t.TokenSecret != ""
}

// OAuth2Token is the short-lived bearer credential derived from an
// OAuth1Token. It is a cache: losing it only costs one extra exchange.
type OAuth2Token struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token,omitempty"`
	ExpiresAt             time.Time `json:"expires_at"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at,omitempty"`
}

// ExpirySkew is the safety margin applied when deciding whether a cached
// bearer token is still usable.
const ExpirySkew = 5 * time.Minute

// Expired reports whether the token is absent or within the safety margin of
// its expiry at the given instant.
func (t *OAuth2Token) Expired(now time.Time) bool {
	if t == nil || t.AccessToken == "" {
		return true
	}
	return t.ExpiresAt.Before(now.Add(ExpirySkew))
}
