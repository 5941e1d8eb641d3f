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
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/superlearn/school-central/internal/identity"
	"github.com/superlearn/school-central/internal/model"
	"github.com/superlearn/school-central/internal/repo"
	"github.com/superlearn/school-central/pkg/id"
	"github.com/superlearn/school-central/pkg/log"
)

// OnboardingParams are the signup inputs.
type OnboardingParams struct {
	SchoolID string
	UserID   string
	FullName string
	Email    string
}

// OnboardingResult reports the created organization and how the admin
// membership converged.
type OnboardingResult struct {
	OrganizationID string            `json:"organizationId"`
	Membership     *MembershipResult `json:"membership"`
}

// OnboardingOrchestrator sequences school-claim, organization creation,
// admin membership, metadata, and the relational mirror rows.
//
// There is no transactional rollback across the three systems: a school
// claim is never released and a created organization is never deleted.
// When a late step fails the state is logged and RecoverOrganizationLink
// is the idempotent repair path.
type OnboardingOrchestrator struct {
	schools  repo.ISchoolRepository
	orgs     repo.IOrganizationRepository
	profiles repo.IProfileRepository
	subs     repo.ISubscriptionRepository
	gateway  identity.Gateway
	members  *MembershipReconciler
	metadata *MetadataReconciler
}

func NewOnboardingOrchestrator(
	schools repo.ISchoolRepository,
	orgs repo.IOrganizationRepository,
	profiles repo.IProfileRepository,
	subs repo.ISubscriptionRepository,
	gateway identity.Gateway,
	members *MembershipReconciler,
	metadata *MetadataReconciler,
) *OnboardingOrchestrator {
	return &OnboardingOrchestrator{
		schools:  schools,
		orgs:     orgs,
		profiles: profiles,
		subs:     subs,
		gateway:  gateway,
		members:  members,
		metadata: metadata,
	}
}

// ClaimSchool runs the full onboarding sequence for a signup.
func (o *OnboardingOrchestrator) ClaimSchool(ctx context.Context, params OnboardingParams) (*OnboardingResult, error) {
	reqID := id.Correlation(ctx)

	school, err := o.schools.GetBySchoolID(ctx, params.SchoolID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, newError(KindNotFound, "school not found, check the school id", err)
		}
		return nil, err
	}

	if err := o.schools.Claim(ctx, params.SchoolID, params.UserID); err != nil {
		if errors.Is(err, repo.ErrSchoolAlreadyClaimed) {
			return nil, newError(KindConflict, "this school is already claimed", err)
		}
		return nil, err
	}
	log.Infow("school claimed", "schoolId", params.SchoolID, "userId", params.UserID, "requestId", reqID)

	return o.provision(ctx, school, params)
}

// provision runs organization creation through the relational mirror writes.
// Shared by signup and by link recovery.
func (o *OnboardingOrchestrator) provision(ctx context.Context, school *model.School, params OnboardingParams) (*OnboardingResult, error) {
	reqID := id.Correlation(ctx)

	org, err := o.gateway.CreateOrganization(ctx, school.Name, identity.MetadataPatch{
		Private: map[string]interface{}{identity.SchoolIDKey: params.SchoolID},
	})
	if err != nil {
		log.Errorw("organization creation failed, school stays claimed for recovery",
			"schoolId", params.SchoolID, "userId", params.UserID, "requestId", reqID, "error", err)
		return nil, err
	}

	return o.converge(ctx, org.ID, school, params)
}

// converge drives an existing organization to the fully-onboarded state:
// admin membership, canonical metadata, and the relational rows. Idempotent.
func (o *OnboardingOrchestrator) converge(ctx context.Context, orgID string, school *model.School, params OnboardingParams) (*OnboardingResult, error) {
	reqID := id.Correlation(ctx)

	membership, err := o.members.EnsureAdmin(ctx, orgID, params.UserID)
	if err != nil {
		// The organization exists without a confirmed admin. Deleting it
		// risks losing a partially-applied association, so it stays for the
		// recovery path to pick up.
		log.Errorw("admin membership failed on new organization, organization left for recovery",
			"orgId", orgID, "schoolId", params.SchoolID, "userId", params.UserID,
			"requestId", reqID, "error", err)
		return nil, err
	}

	if _, err := o.metadata.EnsureSchoolID(ctx, orgID, params.SchoolID, false); err != nil {
		log.Errorw("school id metadata failed on new organization, organization left for recovery",
			"orgId", orgID, "schoolId", params.SchoolID, "requestId", reqID, "error", err)
		return nil, err
	}

	if err := o.schools.LinkOrganization(ctx, params.SchoolID, orgID); err != nil {
		return nil, errors.Wrap(err, "link organization to school")
	}

	metadataJSON, _ := json.Marshal(map[string]string{identity.SchoolIDKey: params.SchoolID})
	if err := o.orgs.Upsert(ctx, &model.Organization{
		OrgId:     orgID,
		Name:      school.Name,
		SchoolId:  params.SchoolID,
		Metadata:  metadataJSON,
		AdminUser: params.UserID,
	}); err != nil {
		return nil, errors.Wrap(err, "write organization mirror row")
	}

	if err := o.profiles.Upsert(ctx, &model.Profile{
		UserId:   params.UserID,
		SchoolId: params.SchoolID,
		Role:     model.ProfileRoleAdmin,
		FullName: params.FullName,
		Email:    params.Email,
	}); err != nil {
		return nil, errors.Wrap(err, "write admin profile")
	}

	if _, err := o.subs.GetBySchoolID(ctx, params.SchoolID); errors.Is(err, repo.ErrNotFound) {
		if err := o.subs.Create(ctx, &model.Subscription{
			SchoolId: params.SchoolID,
			Status:   model.SubStatusInactive,
		}); err != nil {
			return nil, errors.Wrap(err, "create initial subscription row")
		}
	} else if err != nil {
		return nil, errors.Wrap(err, "read subscription row")
	}

	log.Infow("onboarding complete", "schoolId", params.SchoolID, "orgId", orgID,
		"userId", params.UserID, "role", membership.Role, "requestId", reqID)
	return &OnboardingResult{OrganizationID: orgID, Membership: membership}, nil
}

// RecoverOrganizationLink repairs a school whose onboarding stopped partway:
// a claimed school with no linked organization gets the remaining steps
// re-run, and a school with a reachable organization only has its state
// re-converged. Safe to call repeatedly.
func (o *OnboardingOrchestrator) RecoverOrganizationLink(ctx context.Context, params OnboardingParams) (*OnboardingResult, error) {
	reqID := id.Correlation(ctx)

	school, err := o.schools.GetBySchoolID(ctx, params.SchoolID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, newError(KindNotFound, "school not found, check the school id", err)
		}
		return nil, err
	}
	if !school.Claimed || school.ClaimedByUserId != params.UserID {
		return nil, newError(KindConflict, "school is not claimed by this user", nil)
	}

	if school.ClerkOrgId != "" {
		_, err := o.gateway.GetOrganization(ctx, school.ClerkOrgId)
		if err == nil {
			log.Infow("organization reachable, re-converging state",
				"schoolId", params.SchoolID, "orgId", school.ClerkOrgId, "requestId", reqID)
			return o.converge(ctx, school.ClerkOrgId, school, params)
		}
		var pe *identity.ProviderError
		if !errors.As(err, &pe) || !pe.NotFound() {
			return nil, err
		}
		log.Warnw("linked organization no longer exists, provisioning a new one",
			"schoolId", params.SchoolID, "orgId", school.ClerkOrgId, "requestId", reqID)
	}

	return o.provision(ctx, school, params)
}
