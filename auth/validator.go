package auth

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the claim set carried by provider tokens. It is untrusted until
// Validator.Validate returns it.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	// CognitoGroups is the provider-specific group field
	CognitoGroups []string `json:"cognito:groups,omitempty"`
	// Groups is the generic group field used by other OIDC providers
	Groups []string `json:"groups,omitempty"`
}

// Validator checks the signature and registered claims of a token against a
// resolved key.
type Validator struct {
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// NewValidator creates a validator. An empty audience disables the audience check.
func NewValidator(issuer, audience string, leeway time.Duration, now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{
		issuer:   issuer,
		audience: audience,
		leeway:   leeway,
		now:      now,
	}
}

// Validate verifies raw with key and returns the claims on success.
//
// The verification algorithm is taken from the key, never from the header;
// a header that names a different algorithm is rejected outright.
func (v *Validator) Validate(raw string, header *TokenHeader, key Key) (*Claims, error) {
	if key.Method() == nil {
		return nil, signatureError("key %q has unsupported algorithm %q", key.ID, key.Algorithm)
	}
	if header.Algorithm != key.Algorithm {
		return nil, signatureError("header alg %q does not match key alg %q", header.Algorithm, key.Algorithm)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{key.Algorithm}),
		jwt.WithoutClaimsValidation(),
		jwt.WithStrictDecoding(),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return key.Public, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, errors.Join(ErrMalformedToken, err)
		}
		return nil, signatureError("%v", err)
	}

	if err := v.checkClaims(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (v *Validator) checkClaims(claims *Claims) error {
	now := v.now()

	if claims.Issuer != v.issuer {
		return claimError(ClaimIssuer, "expected %q, got %q", v.issuer, claims.Issuer)
	}

	if claims.ExpiresAt == nil {
		return claimError(ClaimExpiry, "exp claim is required")
	}
	if !now.Before(claims.ExpiresAt.Add(v.leeway)) {
		return claimError(ClaimExpiry, "token expired at %s", claims.ExpiresAt.UTC().Format(time.RFC3339))
	}

	if v.audience != "" && !slices.Contains(claims.Audience, v.audience) {
		return claimError(ClaimAudience, "expected %q in %v", v.audience, []string(claims.Audience))
	}

	if claims.Subject == "" {
		return claimError(ClaimSubject, "sub claim is required")
	}

	return nil
}
