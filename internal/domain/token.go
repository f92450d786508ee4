package domain

import (
	"errors"
	"time"
)

// VerifiedToken is the subset of a validated JWT used for authentication and revocation.
type VerifiedToken struct {
	Raw       string
	Subject   string
	JWTID     string
	Issuer    string
	Audience  []string
	Expiry    time.Time
	NotBefore time.Time
	IssuedAt  time.Time
	Claims    map[string]any
}

// StringClaim returns a top-level string claim or "".
func (t VerifiedToken) StringClaim(name string) string {
	if t.Claims == nil {
		return ""
	}
	if v, ok := t.Claims[name].(string); ok {
		return v
	}
	return ""
}

// RevocationRecord marks a token as invalid until ValidTo.
type RevocationRecord struct {
	OrganizationID string
	Subject        string
	JWTID          string
	TokenHash      string
	ValidTo        time.Time
	CreatedAt      time.Time
}

// NewRevocationRecord revokes token for orgID until the token expires. The
// token must carry jti and exp claims.
func NewRevocationRecord(orgID string, token VerifiedToken, tokenHash string, now time.Time) (RevocationRecord, error) {
	if token.JWTID == "" {
		return RevocationRecord{}, errors.New("token has no jti claim")
	}
	if token.Expiry.IsZero() {
		return RevocationRecord{}, errors.New("token has no exp claim")
	}
	return RevocationRecord{
		OrganizationID: orgID,
		Subject:        token.Subject,
		JWTID:          token.JWTID,
		TokenHash:      tokenHash,
		ValidTo:        token.Expiry,
		CreatedAt:      now.UTC(),
	}, nil
}
