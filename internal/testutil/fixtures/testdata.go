// Package fixtures provides shared test data for the auth core test suite.
package fixtures

// Identity provider values.
const (
	IssuerA   = "https://idp-a.stricklysoft.test"
	AudienceA = "authcore-a"

	IssuerB   = "https://idp-b.stricklysoft.test"
	AudienceB = "authcore-b"

	// SharedKID is served by both test providers.
	SharedKID = "shared-kid"

	KIDA = "kid-a"
	KIDB = "kid-b"
)

// Claim values.
const (
	Subject     = "user-abc-123"
	GivenName   = "Ada"
	FamilyName  = "Lovelace"
	DisplayName = "Ada Lovelace"
	Username    = "ada@stricklysoft.test"

	OrganisationID   = "org-42"
	CustomerID       = "cust-7"
	CentralAuthority = "CA1"

	OrgRole    = "org1:reader:active"
	SimpleRole = "AD_ROLE"
	Importer   = "importer"
)

// Service credential used by the x-auth-basic filter and the permissions
// client.
const (
	ServiceUser     = "authcore-svc"
	ServicePassword = "svc-password"
)

// Config loader values.
const (
	TestEnvPrefix = "TESTAPP"
)
