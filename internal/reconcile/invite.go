package reconcile

import (
	"context"

	"github.com/pkg/errors"

	"github.com/superlearn/school-central/internal/identity"
	"github.com/superlearn/school-central/internal/repo"
	"github.com/superlearn/school-central/pkg/id"
	"github.com/superlearn/school-central/pkg/log"
)

// Inviter sends teacher invitations. Before every send it re-runs the
// membership reconciliation for the inviting admin, because a membership
// that looked fine at onboarding can have regressed or never converged.
type Inviter struct {
	gateway identity.Gateway
	subs    repo.ISubscriptionRepository
	members *MembershipReconciler
	conf    identity.Conf
}

func NewInviter(gateway identity.Gateway, subs repo.ISubscriptionRepository, members *MembershipReconciler, conf identity.Conf) *Inviter {
	return &Inviter{gateway: gateway, subs: subs, members: members, conf: conf}
}

// InviteTeacher consumes a teacher seat and sends an email invitation into
// the organization. When schoolID is empty it is resolved from the
// organization's metadata.
func (i *Inviter) InviteTeacher(ctx context.Context, orgID, adminUserID, email, schoolID string) (*identity.Invitation, error) {
	reqID := id.Correlation(ctx)

	if _, err := i.members.EnsureAdmin(ctx, orgID, adminUserID); err != nil {
		return nil, err
	}

	if schoolID == "" {
		org, err := i.gateway.GetOrganization(ctx, orgID)
		if err != nil {
			var pe *identity.ProviderError
			if errors.As(err, &pe) && pe.NotFound() {
				return nil, newError(KindNotFound, "no organization resolvable for this invitation", err)
			}
			return nil, err
		}
		schoolID, err = org.Metadata.ResolveSchoolID()
		if err != nil {
			return nil, newError(KindConfigurationFatal, "missing school information", err)
		}
	}

	if err := i.subs.ConsumeTeacherSeat(ctx, schoolID); err != nil {
		switch {
		case errors.Is(err, repo.ErrNoSeatsAvailable):
			return nil, newError(KindConflict, "no teacher seats available, add seats to your subscription", err)
		case errors.Is(err, repo.ErrNotFound):
			return nil, newError(KindNotFound, "no subscription for this school", err)
		default:
			return nil, err
		}
	}

	// invitations take the preferred spelling from the member-role
	// vocabulary; see Conf.MemberRoles for why this is configurable
	role := i.conf.MemberRoleCandidates()[0]
	invitation, err := i.gateway.CreateInvitation(ctx, orgID, email, role)
	if err != nil {
		// the consumed seat is not released: the admin will retry, and a
		// leaked seat is recoverable by support while a double-send is not
		log.Errorw("invitation send failed after seat was consumed",
			"orgId", orgID, "schoolId", schoolID, "email", email, "requestId", reqID, "error", err)
		return nil, err
	}

	log.Infow("teacher invitation sent", "orgId", orgID, "schoolId", schoolID,
		"email", email, "requestId", reqID)
	return invitation, nil
}
