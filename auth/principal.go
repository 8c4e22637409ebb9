package auth

import "slices"

// Principal is the authenticated caller built from validated claims.
type Principal struct {
	Subject string   `json:"sub"`
	Email   string   `json:"email,omitempty"`
	Groups  []string `json:"groups"`
	// Claims is the full validated claim set for callers that need more
	Claims Claims `json:"claims"`
}

// HasRole reports whether the principal belongs to the given group.
func (p *Principal) HasRole(role string) bool {
	return slices.Contains(p.Groups, role)
}

// HasAnyRole reports whether the principal belongs to at least one of roles.
func (p *Principal) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if p.HasRole(role) {
			return true
		}
	}
	return false
}

// HasAllRoles reports whether the principal belongs to every one of roles.
func (p *Principal) HasAllRoles(roles ...string) bool {
	for _, role := range roles {
		if !p.HasRole(role) {
			return false
		}
	}
	return true
}

// ResolveGroups picks the group list for a claim set: the provider-specific
// cognito:groups when present and non-empty, else the generic groups field,
// else an empty list.
func ResolveGroups(claims *Claims) []string {
	switch {
	case len(claims.CognitoGroups) > 0:
		return slices.Clone(claims.CognitoGroups)
	case len(claims.Groups) > 0:
		return slices.Clone(claims.Groups)
	default:
		return []string{}
	}
}

// newPrincipal must only be called with claims returned by Validator.Validate.
func newPrincipal(claims *Claims) *Principal {
	return &Principal{
		Subject: claims.Subject,
		Email:   claims.Email,
		Groups:  ResolveGroups(claims),
		Claims:  *claims,
	}
}
