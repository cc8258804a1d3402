// Package auth authenticates bearer tokens issued by one of several identity
// providers and maps their claims to an [Identity].
//
// The request pipeline is:
//
//	ExtractBearerToken → Validator.Decode → IdentityMapper.Map → (permissions stage)
//
// [KeyCache] holds verification keys per provider, [ProviderRegistry]
// resolves a key id to every provider that serves it, and [Validator] tries
// each candidate in order. Every rejection reason of an individual
// candidate is logged; callers only ever see [sserr.CodeCredentialsInvalid].
//
// Transport adapters ([Middleware], [UnaryServerInterceptor],
// [StreamServerInterceptor]) are the only place errors are mapped to HTTP
// statuses or gRPC codes.
package auth

import (
	"encoding/json"
	"slices"
)

// AuthorityKind distinguishes the two shapes of [Authority].
type AuthorityKind int

const (
	// AuthoritySimple is a plain role or permission name.
	AuthoritySimple AuthorityKind = iota

	// AuthorityOrganisation is an organisation:role:status triple.
	AuthorityOrganisation
)

func (k AuthorityKind) String() string {
	if k == AuthorityOrganisation {
		return "organisation"
	}
	return "simple"
}

// Authority is a role or permission attached to an [Identity]. Only the
// fields of its Kind are set.
type Authority struct {
	Kind AuthorityKind

	Name string

	Organisation string
	Role         string
	Status       string
}

// SimpleAuthority returns a passthrough authority.
func SimpleAuthority(name string) Authority {
	return Authority{Kind: AuthoritySimple, Name: name}
}

// OrganisationAuthority returns an organisation-scoped role.
func OrganisationAuthority(organisation, role, status string) Authority {
	return Authority{Kind: AuthorityOrganisation, Organisation: organisation, Role: role, Status: status}
}

// RoleName is the name used to look up permissions: Name for simple
// authorities, Role for organisation authorities.
func (a Authority) RoleName() string {
	if a.Kind == AuthorityOrganisation {
		return a.Role
	}
	return a.Name
}

// String returns the authority in its raw claim form.
func (a Authority) String() string {
	if a.Kind == AuthorityOrganisation {
		return a.Organisation + ":" + a.Role + ":" + a.Status
	}
	return a.Name
}

// MarshalJSON renders simple authorities as {"name"} and organisation
// authorities as {"organisation","role","status"}.
func (a Authority) MarshalJSON() ([]byte, error) {
	if a.Kind == AuthorityOrganisation {
		return json.Marshal(struct {
			Organisation string `json:"organisation"`
			Role         string `json:"role"`
			Status       string `json:"status"`
		}{a.Organisation, a.Role, a.Status})
	}
	return json.Marshal(struct {
		Name string `json:"name"`
	}{a.Name})
}

// IdentityFields carries the values used to build an [Identity].
type IdentityFields struct {
	Subject          string
	DisplayName      string
	Username         string
	IDToken          string
	OrganisationID   string
	CustomerID       string
	CentralAuthority string
	Authorities      []Authority
}

// Identity is the authenticated caller. It is immutable: the only way to
// change its authorities is [Identity.WithAuthorities], which returns a new
// value.
type Identity struct {
	subject          string
	displayName      string
	username         string
	idToken          string
	organisationID   string
	customerID       string
	centralAuthority string
	authorities      []Authority
}

// NewIdentity copies f into a new Identity.
func NewIdentity(f IdentityFields) *Identity {
	return &Identity{
		subject:          f.Subject,
		displayName:      f.DisplayName,
		username:         f.Username,
		idToken:          f.IDToken,
		organisationID:   f.OrganisationID,
		customerID:       f.CustomerID,
		centralAuthority: f.CentralAuthority,
		authorities:      slices.Clone(f.Authorities),
	}
}

// Subject returns the token's sub claim.
func (i *Identity) Subject() string { return i.subject }

// DisplayName returns the given and family names, or the subject when both are absent.
func (i *Identity) DisplayName() string { return i.displayName }

// Username returns the login name, which is always the subject.
func (i *Identity) Username() string { return i.username }

// IDToken returns the raw token the identity was built from.
func (i *Identity) IDToken() string { return i.idToken }

// OrganisationID returns the customer organisation id, or "" when absent.
func (i *Identity) OrganisationID() string { return i.organisationID }

// CustomerID returns the customer id, or "" when absent.
func (i *Identity) CustomerID() string { return i.customerID }

// CentralAuthority returns the central authority code and whether the token
// carried one.
func (i *Identity) CentralAuthority() (string, bool) {
	return i.centralAuthority, i.centralAuthority != ""
}

// Authorities returns a copy of the authority list.
func (i *Identity) Authorities() []Authority {
	return slices.Clone(i.authorities)
}

// WithAuthorities returns a copy of i whose authorities are replaced
// wholesale by authorities. i is not modified.
func (i *Identity) WithAuthorities(authorities []Authority) *Identity {
	next := *i
	next.authorities = slices.Clone(authorities)
	return &next
}

// RoleNames flattens the authorities to their role names, in order,
// skipping empty names.
func (i *Identity) RoleNames() []string {
	names := make([]string, 0, len(i.authorities))
	for _, a := range i.authorities {
		if n := a.RoleName(); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// HasAuthority reports whether any authority's raw form equals name.
func (i *Identity) HasAuthority(name string) bool {
	return slices.ContainsFunc(i.authorities, func(a Authority) bool {
		return a.String() == name
	})
}

// MarshalJSON renders the identity without the raw token.
func (i *Identity) MarshalJSON() ([]byte, error) {
	authorities := i.authorities
	if authorities == nil {
		authorities = []Authority{}
	}
	return json.Marshal(struct {
		Subject          string      `json:"subject"`
		DisplayName      string      `json:"display_name"`
		Username         string      `json:"username"`
		OrganisationID   string      `json:"organisation_id,omitempty"`
		CustomerID       string      `json:"customer_id,omitempty"`
		CentralAuthority string      `json:"central_authority,omitempty"`
		Authorities      []Authority `json:"authorities"`
	}{
		Subject:          i.subject,
		DisplayName:      i.displayName,
		Username:         i.username,
		OrganisationID:   i.organisationID,
		CustomerID:       i.customerID,
		CentralAuthority: i.centralAuthority,
		Authorities:      authorities,
	})
}
