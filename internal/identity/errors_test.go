package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderErrorClassification(t *testing.T) {
	assert.True(t, (&ProviderError{StatusCode: 0}).Transient())
	assert.True(t, (&ProviderError{StatusCode: 429}).Transient())
	assert.True(t, (&ProviderError{StatusCode: 503}).Transient())
	assert.False(t, (&ProviderError{StatusCode: 422}).Transient())
	assert.True(t, (&ProviderError{StatusCode: 404}).NotFound())
	assert.False(t, (&ProviderError{StatusCode: 400}).NotFound())
}

func TestMembershipErrorAggregatesAttempts(t *testing.T) {
	err := &MembershipError{
		OrganizationID: "org_1",
		UserID:         "user_1",
		Attempts: []RoleAttempt{
			{Role: "admin", Reason: "role not recognized"},
			{Role: "org:admin", Reason: "forbidden"},
		},
	}

	// attempt order is the candidate order and must survive into the
	// message and the role list
	assert.Equal(t, []string{"admin", "org:admin"}, err.AttemptedRoles())
	msg := err.Error()
	assert.Contains(t, msg, "org_1")
	assert.Contains(t, msg, "user_1")
	assert.Contains(t, msg, "admin: role not recognized")
	assert.Contains(t, msg, "org:admin: forbidden")
}
