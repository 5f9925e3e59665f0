package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformedToken is returned when a session token's claims cannot be decoded
var ErrMalformedToken = errors.New("failed to parse session token claims")

// SessionClaims are the claims the validate and refresh flows need from a
// session token: which identity it was minted for and when it stops being valid.
type SessionClaims struct {
	Subject   string
	ExpiresAt time.Time
}

// DecodeSessionClaims extracts subject and expiry from a session token
// without verifying the signature. The provider signed the token; the
// service only cross-checks the subject against the provider's current
// identity binding, which is what actually authorizes the request.
func DecodeSessionClaims(tokenStr string) (SessionClaims, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	_, _, err := parser.ParseUnverified(tokenStr, claims)
	if err != nil {
		return SessionClaims{}, ErrMalformedToken
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return SessionClaims{}, ErrMalformedToken
	}

	expiry, err := claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return SessionClaims{}, ErrMalformedToken
	}

	return SessionClaims{
		Subject:   subject,
		ExpiresAt: expiry.Time,
	}, nil
}
