package identity

import "time"

// Conf holds identity-provider client settings. The role vocabularies are
// ordered candidate lists because the provider's accepted role strings have
// changed over time and are not a fixed enum.
type Conf struct {
	BaseURL    string `mapstructure:"baseUrl"`
	SecretKey  string `mapstructure:"secretKey"`
	Timeout    time.Duration
	AdminRoles []string `mapstructure:"adminRoles"`
	MemberRoles []string `mapstructure:"memberRoles"`
}

// DefaultAdminRoles is the historically observed admin-role vocabulary,
// in preference order.
var DefaultAdminRoles = []string{"admin", "org:admin"}

// DefaultMemberRoles is the historically observed member-role vocabulary.
var DefaultMemberRoles = []string{"member", "basic_member", "org:member"}

// AdminRoleCandidates returns the configured admin-role list or the default.
func (c Conf) AdminRoleCandidates() []string {
	if len(c.AdminRoles) > 0 {
		return c.AdminRoles
	}
	return DefaultAdminRoles
}

// MemberRoleCandidates returns the configured member-role list or the default.
func (c Conf) MemberRoleCandidates() []string {
	if len(c.MemberRoles) > 0 {
		return c.MemberRoles
	}
	return DefaultMemberRoles
}

// Organization is the provider-owned organization record.
type Organization struct {
	ID       string
	Name     string
	Metadata OrgMetadata
}

// Membership is the provider-owned (organization, user) association.
// Role is a free-form provider string, not an enum.
type Membership struct {
	ID             string
	OrganizationID string
	UserID         string
	Role           string
}

// Invitation is a pending email invitation into an organization.
type Invitation struct {
	ID             string
	OrganizationID string
	Email          string
	Role           string
	Status         string
}

// MetadataPatch carries metadata keys to merge into an organization.
// A nil map leaves that location untouched; supplied keys overwrite and
// existing unsupplied keys are preserved.
type MetadataPatch struct {
	Private map[string]interface{}
	Public  map[string]interface{}
}

// IsAdminRole reports whether a provider role string semantically means
// admin, regardless of which vocabulary generation produced it.
func IsAdminRole(role string, adminCandidates []string) bool {
	for _, c := range adminCandidates {
		if role == c {
			return true
		}
	}
	return false
}
