package auth

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// TokenHeader is the decoded but unverified JOSE header of a compact JWT.
// Every field is attacker controlled.
type TokenHeader struct {
	Algorithm string `json:"alg"`
	KeyID     string `json:"kid"`
	Type      string `json:"typ,omitempty"`
}

// segmentParser is only used for its base64url segment decoding.
var segmentParser = jwt.NewParser(jwt.WithStrictDecoding())

// DecodeHeader structurally parses a compact token and returns its header.
// It performs no trust decisions: the signature is not checked and the
// claims are not interpreted.
func DecodeHeader(raw string) (*TokenHeader, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(parts))
	}

	segments := make([][]byte, len(parts))
	for i, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("%w: segment %d is empty", ErrMalformedToken, i)
		}
		decoded, err := segmentParser.DecodeSegment(part)
		if err != nil {
			return nil, fmt.Errorf("%w: segment %d is not base64url: %v", ErrMalformedToken, i, err)
		}
		segments[i] = decoded
	}

	var header TokenHeader
	if err := json.Unmarshal(segments[0], &header); err != nil {
		return nil, fmt.Errorf("%w: header is not a JSON object: %v", ErrMalformedToken, err)
	}
	if header.Algorithm == "" {
		return nil, fmt.Errorf("%w: header missing alg", ErrMalformedToken)
	}
	if header.KeyID == "" {
		return nil, fmt.Errorf("%w: header missing kid", ErrMalformedToken)
	}

	return &header, nil
}
