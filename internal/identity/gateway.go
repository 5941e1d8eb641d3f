package identity

import "context"

// Gateway wraps the identity provider's organization API.
//
// Callers must assume every write may have taken effect even when it
// returns an error (the provider has no idempotency keys), so none of the
// mutating calls are retried automatically. Reads are retried on transient
// failures.
type Gateway interface {
	// CreateOrganization creates a provider organization. A retried call
	// after a timed-out success creates a duplicate; callers own that risk.
	CreateOrganization(ctx context.Context, name string, metadata MetadataPatch) (*Organization, error)

	GetOrganization(ctx context.Context, orgID string) (*Organization, error)

	// UpdateOrganizationMetadata merges the patch into the organization's
	// metadata: supplied keys overwrite, existing unsupplied keys are kept.
	UpdateOrganizationMetadata(ctx context.Context, orgID string, patch MetadataPatch) error

	// CreateMembership tries each candidate role in order, stopping at the
	// first the provider accepts. When every candidate fails it returns a
	// *MembershipError aggregating the per-role reasons.
	CreateMembership(ctx context.Context, orgID, userID string, candidateRoles []string) (*Membership, error)

	// UpdateMembershipRole promotes an existing membership, trying each
	// candidate role in order like CreateMembership.
	UpdateMembershipRole(ctx context.Context, orgID, membershipID string, candidateRoles []string) (*Membership, error)

	// ListMemberships returns every organization membership of the user.
	// The provider is eventually consistent: a membership written moments
	// ago may be missing from the response.
	ListMemberships(ctx context.Context, userID string) ([]Membership, error)

	// CreateInvitation sends an email invitation into the organization.
	// An empty role lets the provider pick its default member role.
	CreateInvitation(ctx context.Context, orgID, email, role string) (*Invitation, error)
}
