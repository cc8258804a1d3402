package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/StricklySoft/stricklysoft-authcore/internal/testutil"
	"github.com/StricklySoft/stricklysoft-authcore/internal/testutil/fixtures"
)

func newTestIdentity(authorities ...Authority) *Identity {
	return NewIdentity(IdentityFields{
		Subject:     fixtures.Subject,
		DisplayName: fixtures.DisplayName,
		Username:    fixtures.Username,
		IDToken:     "raw-token",
		Authorities: authorities,
	})
}

func TestAuthority_RoleName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "reader", OrganisationAuthority("org1", "reader", "active").RoleName())
	assert.Equal(t, "AD_ROLE", SimpleAuthority("AD_ROLE").RoleName())
	assert.Equal(t, "organisation", AuthorityOrganisation.String())
	assert.Equal(t, "simple", AuthoritySimple.String())
}

func TestIdentity_WithAuthoritiesReturnsNewValue(t *testing.T) {
	t.Parallel()
	original := newTestIdentity(SimpleAuthority(fixtures.SimpleRole))

	expanded := original.WithAuthorities([]Authority{SimpleAuthority("read"), SimpleAuthority("write")})

	assert.Equal(t, []Authority{SimpleAuthority(fixtures.SimpleRole)}, original.Authorities(),
		"the original identity must not change")
	assert.Equal(t, []Authority{SimpleAuthority("read"), SimpleAuthority("write")}, expanded.Authorities())
	assert.Equal(t, original.Subject(), expanded.Subject())
	assert.Equal(t, original.IDToken(), expanded.IDToken())
}

func TestIdentity_AuthoritiesIsACopy(t *testing.T) {
	t.Parallel()
	in := []Authority{SimpleAuthority("a")}
	identity := newTestIdentity(in...)
	in[0] = SimpleAuthority("mutated")

	got := identity.Authorities()
	got[0] = SimpleAuthority("mutated")
	assert.Equal(t, []Authority{SimpleAuthority("a")}, identity.Authorities())
}

func TestIdentity_RoleNames(t *testing.T) {
	t.Parallel()
	identity := newTestIdentity(
		OrganisationAuthority("org1", "reader", "active"),
		SimpleAuthority(""),
		SimpleAuthority(fixtures.SimpleRole),
	)
	assert.Equal(t, []string{"reader", fixtures.SimpleRole}, identity.RoleNames())
}

func TestIdentity_HasAuthority(t *testing.T) {
	t.Parallel()
	identity := newTestIdentity(OrganisationAuthority("org1", "reader", "active"), SimpleAuthority(fixtures.Importer))
	assert.True(t, identity.HasAuthority(fixtures.Importer))
	assert.True(t, identity.HasAuthority(fixtures.OrgRole))
	assert.False(t, identity.HasAuthority("reader"))
}

func TestIdentity_MarshalJSON_OmitsToken(t *testing.T) {
	t.Parallel()
	identity := newTestIdentity(OrganisationAuthority("org1", "reader", "active"), SimpleAuthority("read"))

	testutil.AssertJSONContains(t, identity, `"subject":"`+fixtures.Subject+`"`)
	testutil.AssertJSONContains(t, identity, `{"organisation":"org1","role":"reader","status":"active"}`)
	testutil.AssertJSONContains(t, identity, `{"name":"read"}`)
	testutil.AssertJSONNotContains(t, identity, "raw-token")
}

func TestIdentity_MarshalJSON_EmptyAuthorities(t *testing.T) {
	t.Parallel()
	testutil.AssertJSONContains(t, newTestIdentity(), `"authorities":[]`)
}
