package auth

import (
	"encoding/base64"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b64(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestDecodeHeader(t *testing.T) {
	key := generateRSAKey(t)
	raw := signToken(t, jwt.SigningMethodRS256, key, "kid-1", validClaims())

	header, err := DecodeHeader(raw)
	require.NoError(t, err)
	assert.Equal(t, "RS256", header.Algorithm)
	assert.Equal(t, "kid-1", header.KeyID)
	assert.Equal(t, "JWT", header.Type)
}

func TestDecodeHeader_Malformed(t *testing.T) {
	payload := b64(`{"sub":"user-123"}`)
	sig := b64("signature")

	tests := []struct {
		name string
		raw  string
	}{
		{"empty string", ""},
		{"two segments", b64(`{"alg":"RS256","kid":"k"}`) + "." + payload},
		{"four segments", b64(`{"alg":"RS256","kid":"k"}`) + "." + payload + "." + sig + "." + sig},
		{"empty payload segment", b64(`{"alg":"RS256","kid":"k"}`) + ".." + sig},
		{"empty signature segment", b64(`{"alg":"RS256","kid":"k"}`) + "." + payload + "."},
		{"header not base64url", "!!!." + payload + "." + sig},
		{"signature not base64url", b64(`{"alg":"RS256","kid":"k"}`) + "." + payload + ".***"},
		{"header not json", b64("not json") + "." + payload + "." + sig},
		{"header is json array", b64(`["RS256"]`) + "." + payload + "." + sig},
		{"header missing kid", b64(`{"alg":"RS256"}`) + "." + payload + "." + sig},
		{"header missing alg", b64(`{"kid":"k"}`) + "." + payload + "." + sig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, err := DecodeHeader(tt.raw)
			assert.Nil(t, header)
			assert.ErrorIs(t, err, ErrMalformedToken)
			assert.Equal(t, "malformed_token", Kind(err))
		})
	}
}

func TestDecodeHeader_DoesNotVerify(t *testing.T) {
	// A structurally valid token with a garbage signature still decodes
	raw := b64(`{"alg":"none","kid":"k"}`) + "." + b64(`{"sub":"x"}`) + "." + b64("garbage")

	header, err := DecodeHeader(raw)
	require.NoError(t, err)
	assert.Equal(t, "none", header.Algorithm)
	assert.Equal(t, "k", header.KeyID)
}
