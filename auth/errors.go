package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredential is returned when the Authorization header is absent
	// or is not of the form "Bearer <token>"
	ErrMissingCredential = errors.New("missing credential")

	// ErrMalformedToken is returned when the token cannot be structurally decoded
	ErrMalformedToken = errors.New("malformed token")

	// ErrKeyNotFound is returned when the key id is absent from a freshly fetched key set
	ErrKeyNotFound = errors.New("key not found")

	// ErrKeySetFetchFailed is returned when the JWKS endpoint cannot be fetched or parsed
	ErrKeySetFetchFailed = errors.New("failed to fetch JWKS")

	// ErrTokenInvalid groups every signature and claim failure
	ErrTokenInvalid = errors.New("invalid token")

	// ErrSignatureInvalid is returned when the signature does not verify
	ErrSignatureInvalid = errors.New("invalid signature")

	// ErrClaimInvalid is returned when issuer, audience, expiry or subject checks fail
	ErrClaimInvalid = errors.New("invalid claim")

	// ErrConfigurationMissing is returned when no AuthConfig is attached to the request context.
	// It is a server fault, not an authentication failure.
	ErrConfigurationMissing = errors.New("authentication not configured")
)

// Claim names a registered claim checked by the validator.
type Claim string

const (
	ClaimIssuer   Claim = "issuer"
	ClaimAudience Claim = "audience"
	ClaimExpiry   Claim = "expiry"
	ClaimSubject  Claim = "subject"
)

// ClaimError describes which claim failed validation and why.
// It matches both ErrClaimInvalid and ErrTokenInvalid with errors.Is.
type ClaimError struct {
	Claim  Claim
	Reason string
}

func (e *ClaimError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrClaimInvalid, e.Claim, e.Reason)
}

func (e *ClaimError) Is(target error) bool {
	return target == ErrClaimInvalid || target == ErrTokenInvalid
}

func claimError(claim Claim, format string, args ...any) error {
	return &ClaimError{Claim: claim, Reason: fmt.Sprintf(format, args...)}
}

// signatureError wraps a signature failure so it matches ErrSignatureInvalid
// and ErrTokenInvalid.
func signatureError(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrTokenInvalid, ErrSignatureInvalid, fmt.Sprintf(format, args...))
}

// IsServerFault reports whether err is a deployment problem rather than a
// client authentication failure.
func IsServerFault(err error) bool {
	return errors.Is(err, ErrConfigurationMissing)
}

// Kind returns a short, stable label for the error class, used for metrics
// and logs. It never includes attacker-controlled text.
func Kind(err error) string {
	var ce *ClaimError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConfigurationMissing):
		return "configuration_missing"
	case errors.Is(err, ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, ErrMalformedToken):
		return "malformed_token"
	case errors.Is(err, ErrKeyNotFound):
		return "key_not_found"
	case errors.Is(err, ErrKeySetFetchFailed):
		return "key_set_fetch_failed"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature_invalid"
	case errors.As(err, &ce):
		return "claim_invalid_" + string(ce.Claim)
	case errors.Is(err, ErrTokenInvalid):
		return "token_invalid"
	default:
		return "unknown"
	}
}
