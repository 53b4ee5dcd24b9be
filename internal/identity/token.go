package identity

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	dErrors "github.com/changeuikim/vercel-kayce/pkg/domain-errors"
)

// TokenParser extracts the provider subject from a signed ID token. The login
// gateway re-signs provider tokens with a shared HMAC key before they reach us.
type TokenParser struct {
	signingKey []byte
	issuer     string
}

func NewTokenParser(signingKey, issuer string) *TokenParser {
	return &TokenParser{signingKey: []byte(signingKey), issuer: issuer}
}

// Subject validates tokenString and returns its sub claim.
func (p *TokenParser) Subject(tokenString string) (string, error) {
	if strings.TrimSpace(tokenString) == "" {
		return "", dErrors.New(dErrors.CodeInvalidIdentity, "id token is required")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{
		jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg(),
	})}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return p.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", dErrors.Wrap(err, dErrors.CodeInvalidIdentity, "id token has expired")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInvalidIdentity, "invalid id token")
	}
	if !parsed.Valid {
		return "", dErrors.New(dErrors.CodeInvalidIdentity, "invalid id token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", dErrors.New(dErrors.CodeInvalidIdentity, "id token has no subject")
	}
	return claims.Subject, nil
}
