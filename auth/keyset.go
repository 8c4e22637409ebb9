package auth

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

// Key is a single public verification key published by the provider.
type Key struct {
	ID        string
	Algorithm string
	Use       string
	Type      string
	Public    crypto.PublicKey
}

// Method returns the signing method implied by the key's own algorithm.
func (k Key) Method() jwt.SigningMethod {
	return jwt.GetSigningMethod(k.Algorithm)
}

// KeySet is an immutable snapshot of a JWKS document indexed by key id.
type KeySet struct {
	keys      map[string]Key
	FetchedAt time.Time
	// Skipped holds a reason for each published key that was not usable.
	Skipped []string
}

// Lookup returns the key with the given id.
func (s *KeySet) Lookup(kid string) (Key, bool) {
	if s == nil {
		return Key{}, false
	}
	k, ok := s.keys[kid]
	return k, ok
}

// Len returns the number of usable keys.
func (s *KeySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// KeyIDs returns the usable key ids in sorted order.
func (s *KeySet) KeyIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.keys))
	for id := range s.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Keys returns the usable keys sorted by id.
func (s *KeySet) Keys() []Key {
	ids := s.KeyIDs()
	out := make([]Key, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.keys[id])
	}
	return out
}

// ParseKeySet parses a JSON Web Key Set document. Keys that cannot be used
// for signature verification are recorded in Skipped instead of failing the
// whole set.
func ParseKeySet(data []byte, fetchedAt time.Time) (*KeySet, error) {
	var doc struct {
		Keys *[]json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode JWKS: %w", err)
	}
	if doc.Keys == nil {
		return nil, errors.New("decode JWKS: missing keys array")
	}

	set := &KeySet{
		keys:      make(map[string]Key, len(*doc.Keys)),
		FetchedAt: fetchedAt,
	}
	for i, raw := range *doc.Keys {
		key, err := parseKey(raw)
		if err != nil {
			set.Skipped = append(set.Skipped, fmt.Sprintf("key %d: %v", i, err))
			continue
		}
		if _, dup := set.keys[key.ID]; dup {
			set.Skipped = append(set.Skipped, fmt.Sprintf("key %d: duplicate kid %q", i, key.ID))
			continue
		}
		set.keys[key.ID] = key
	}

	return set, nil
}

func parseKey(raw json.RawMessage) (Key, error) {
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(raw); err != nil {
		return Key{}, err
	}
	if jwk.KeyID == "" {
		return Key{}, errors.New("missing kid")
	}
	if jwk.Use != "" && jwk.Use != "sig" {
		return Key{}, fmt.Errorf("kid %q: use %q is not sig", jwk.KeyID, jwk.Use)
	}
	if !jwk.Valid() {
		return Key{}, fmt.Errorf("kid %q: invalid key material", jwk.KeyID)
	}
	if !jwk.IsPublic() {
		jwk = jwk.Public()
	}

	kty, alg, err := keyAlgorithm(jwk.Key, jwk.Algorithm)
	if err != nil {
		return Key{}, fmt.Errorf("kid %q: %w", jwk.KeyID, err)
	}

	return Key{
		ID:        jwk.KeyID,
		Algorithm: alg,
		Use:       jwk.Use,
		Type:      kty,
		Public:    jwk.Key,
	}, nil
}

// keyAlgorithm checks that the declared algorithm fits the key material and
// derives one from the key type when the JWK omits "alg".
func keyAlgorithm(pub any, declared string) (string, string, error) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		switch declared {
		case "":
			return "RSA", "RS256", nil
		case "RS256", "RS384", "RS512", "PS256", "PS384", "PS512":
			return "RSA", declared, nil
		}
		return "", "", fmt.Errorf("alg %q does not match RSA key", declared)
	case *ecdsa.PublicKey:
		var want string
		switch k.Curve {
		case elliptic.P256():
			want = "ES256"
		case elliptic.P384():
			want = "ES384"
		case elliptic.P521():
			want = "ES512"
		default:
			return "", "", errors.New("unsupported curve")
		}
		if declared != "" && declared != want {
			return "", "", fmt.Errorf("alg %q does not match %s curve", declared, k.Curve.Params().Name)
		}
		return "EC", want, nil
	case ed25519.PublicKey:
		if declared != "" && declared != "EdDSA" {
			return "", "", fmt.Errorf("alg %q does not match Ed25519 key", declared)
		}
		return "OKP", "EdDSA", nil
	default:
		return "", "", fmt.Errorf("unsupported key type %T", pub)
	}
}
