// Copyright 2025 Superlearn Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reconcile

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/superlearn/school-central/internal/identity"
	"github.com/superlearn/school-central/pkg/id"
	"github.com/superlearn/school-central/pkg/log"
	"github.com/superlearn/school-central/pkg/retry"
)

const (
	verifyAttempts  = 3
	verifyBaseDelay = 500 * time.Millisecond
	verifyMaxDelay  = 4 * time.Second
)

var errMembershipNotVisible = errors.New("membership not yet visible")

// MembershipResult reports how the admin membership converged.
type MembershipResult struct {
	IsAdmin     bool     `json:"isAdmin"`
	Role        string   `json:"role"`
	WasPromoted bool     `json:"wasPromoted"`
	WasAdded    bool     `json:"wasAdded"`
	Errors      []string `json:"errors,omitempty"`
}

// MembershipReconciler drives a (organization, user) pair to an admin
// membership. It is invoked during onboarding and again defensively before
// every teacher invitation, because the provider's eventual consistency
// means an earlier run may not have converged.
type MembershipReconciler struct {
	gateway    identity.Gateway
	adminRoles []string
}

func NewMembershipReconciler(gateway identity.Gateway, conf identity.Conf) *MembershipReconciler {
	return &MembershipReconciler{
		gateway:    gateway,
		adminRoles: conf.AdminRoleCandidates(),
	}
}

// EnsureAdmin guarantees userID is an admin member of orgID.
//
// Existing admin memberships are left alone, non-admin memberships are
// promoted, and missing memberships are added and then verified by
// re-reading until the write becomes visible.
func (r *MembershipReconciler) EnsureAdmin(ctx context.Context, orgID, userID string) (*MembershipResult, error) {
	reqID := id.Correlation(ctx)

	current, err := r.findMembership(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}

	if current != nil {
		if identity.IsAdminRole(current.Role, r.adminRoles) {
			return &MembershipResult{IsAdmin: true, Role: current.Role}, nil
		}
		log.Infow("promoting membership to admin", "orgId", orgID, "userId", userID,
			"currentRole", current.Role, "requestId", reqID)
		promoted, err := r.gateway.UpdateMembershipRole(ctx, orgID, current.ID, r.adminRoles)
		if err != nil {
			return r.failed(orgID, userID, err), newError(KindProviderRejected,
				"could not promote membership to admin, contact support", err)
		}
		return &MembershipResult{IsAdmin: true, Role: promoted.Role, WasPromoted: true}, nil
	}

	log.Infow("adding admin membership", "orgId", orgID, "userId", userID, "requestId", reqID)
	added, err := r.gateway.CreateMembership(ctx, orgID, userID, r.adminRoles)
	if err != nil {
		return r.failed(orgID, userID, err), newError(KindProviderRejected,
			"could not add admin membership, contact support", err)
	}

	// The provider may not show a fresh write to an immediate read. Re-list
	// with backoff until the membership appears.
	visible, err := retry.DoValue(ctx, func(ctx context.Context) (*identity.Membership, error) {
		m, err := r.findMembership(ctx, orgID, userID)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, errMembershipNotVisible
		}
		return m, nil
	}, retry.WithMaxAttempts(verifyAttempts),
		retry.WithBackoff(retry.Exponential(verifyBaseDelay, verifyMaxDelay)),
		retry.WithJitter(retry.EqualJitter),
		retry.WithRetryIf(func(err error) bool {
			return errors.Is(err, errMembershipNotVisible)
		}))
	if err != nil {
		if errors.Is(err, errMembershipNotVisible) {
			log.Errorw("membership write accepted but never became visible",
				"orgId", orgID, "userId", userID, "role", added.Role, "requestId", reqID)
			return r.failed(orgID, userID, err), newError(KindProviderTransient,
				"membership was created but is not yet visible, retry shortly", err)
		}
		return nil, err
	}

	return &MembershipResult{IsAdmin: true, Role: visible.Role, WasAdded: true}, nil
}

func (r *MembershipReconciler) findMembership(ctx context.Context, orgID, userID string) (*identity.Membership, error) {
	memberships, err := r.gateway.ListMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range memberships {
		if memberships[i].OrganizationID == orgID {
			return &memberships[i], nil
		}
	}
	return nil, nil
}

func (r *MembershipReconciler) failed(orgID, userID string, err error) *MembershipResult {
	result := &MembershipResult{}
	var me *identity.MembershipError
	if errors.As(err, &me) {
		for _, a := range me.Attempts {
			result.Errors = append(result.Errors, a.Role+": "+a.Reason)
		}
		log.Warnw("membership reconciliation failed", "orgId", orgID, "userId", userID,
			"attemptedRoles", me.AttemptedRoles(), "errors", result.Errors)
		return result
	}
	result.Errors = append(result.Errors, err.Error())
	log.Warnw("membership reconciliation failed", "orgId", orgID, "userId", userID, "errors", result.Errors)
	return result
}
