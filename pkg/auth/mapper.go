package auth

import (
	"strings"

	sserr "github.com/StricklySoft/stricklysoft-authcore/pkg/errors"
)

// Claim names read by [IdentityMapper].
const (
	ClaimSubject          = "sub"
	ClaimRoles            = "roles"
	ClaimGivenName        = "given_name"
	ClaimFamilyName       = "family_name"
	ClaimOrganisationID   = "customer_organisation_id"
	ClaimCustomerID       = "customer_id"
	ClaimCentralAuthority = "cca"
)

// Claims are the decoded payload of a verified token.
type Claims map[string]any

// String returns claim name when it is a string.
func (c Claims) String(name string) (string, bool) {
	s, ok := c[name].(string)
	return s, ok
}

// IdentityMapper converts verified claims into an [Identity].
type IdentityMapper struct{}

// NewIdentityMapper returns a mapper.
func NewIdentityMapper() *IdentityMapper {
	return &IdentityMapper{}
}

// Map builds the identity for claims. sub and roles are required; a missing
// or malformed one fails with [sserr.CodeMalformedIdentity]. rawToken is
// kept as the identity's ID token.
func (m *IdentityMapper) Map(claims Claims, rawToken string) (*Identity, error) {
	sub, _ := claims.String(ClaimSubject)
	if strings.TrimSpace(sub) == "" {
		return nil, malformedClaim(ClaimSubject, "missing")
	}

	rawRoles, present := claims[ClaimRoles]
	if !present {
		return nil, malformedClaim(ClaimRoles, "missing")
	}
	list, ok := rawRoles.([]any)
	if !ok {
		return nil, malformedClaim(ClaimRoles, "malformed")
	}
	roles := make([]string, 0, len(list))
	for _, r := range list {
		s, ok := r.(string)
		if !ok {
			return nil, malformedClaim(ClaimRoles, "malformed")
		}
		roles = append(roles, s)
	}

	given, _ := claims.String(ClaimGivenName)
	family, _ := claims.String(ClaimFamilyName)
	displayName := strings.TrimSpace(given + " " + family)
	if displayName == "" {
		displayName = sub
	}

	orgID, _ := claims.String(ClaimOrganisationID)
	customerID, _ := claims.String(ClaimCustomerID)
	cca, _ := claims.String(ClaimCentralAuthority)

	return NewIdentity(IdentityFields{
		Subject:          sub,
		DisplayName:      displayName,
		Username:         sub,
		IDToken:          rawToken,
		OrganisationID:   orgID,
		CustomerID:       customerID,
		CentralAuthority: cca,
		Authorities:      MapRoles(roles),
	}), nil
}

func malformedClaim(claim, reason string) *sserr.Error {
	return sserr.New(sserr.CodeMalformedIdentity, "auth: token does not carry a valid identity").
		WithDetails(map[string]any{"claim": claim, "reason": reason})
}

// MapRoles parses each raw role in order. Duplicates are kept.
func MapRoles(roles []string) []Authority {
	out := make([]Authority, len(roles))
	for i, r := range roles {
		out[i] = ParseAuthority(r)
	}
	return out
}

// ParseAuthority returns an organisation authority when raw splits on ":"
// into exactly three non-empty parts, and a simple authority otherwise.
//
//	ParseAuthority("org1:reader:active") // Organisation{org1, reader, active}
//	ParseAuthority("AD_ROLE")            // Simple{AD_ROLE}
//	ParseAuthority("a::b")               // Simple{a::b}
func ParseAuthority(raw string) Authority {
	parts := strings.Split(raw, ":")
	if len(parts) == 3 && parts[0] != "" && parts[1] != "" && parts[2] != "" {
		return OrganisationAuthority(parts[0], parts[1], parts[2])
	}
	return SimpleAuthority(raw)
}
