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

package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/superlearn/school-central/pkg/id"
	"github.com/superlearn/school-central/pkg/log"
	"github.com/superlearn/school-central/pkg/retry"
)

const defaultTimeout = 12 * time.Second

// Client is the resty-backed Gateway implementation.
type Client struct {
	conf Conf
	http *resty.Client
}

var _ Gateway = (*Client)(nil)

// NewClient creates an identity-provider client.
func NewClient(conf Conf) *Client {
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := resty.New().
		SetBaseURL(conf.BaseURL).
		SetTimeout(timeout).
		SetAuthToken(conf.SecretKey).
		SetHeader("Content-Type", "application/json")

	return &Client{conf: conf, http: httpClient}
}

// wire DTOs

type orgDTO struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	PrivateMetadata map[string]interface{} `json:"private_metadata"`
	PublicMetadata  map[string]interface{} `json:"public_metadata"`
}

func (d *orgDTO) toDomain() *Organization {
	return &Organization{
		ID:   d.ID,
		Name: d.Name,
		Metadata: OrgMetadata{
			Private: d.PrivateMetadata,
			Public:  d.PublicMetadata,
		},
	}
}

type membershipDTO struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	UserID         string `json:"user_id"`
	Role           string `json:"role"`
}

func (d *membershipDTO) toDomain() Membership {
	return Membership{
		ID:             d.ID,
		OrganizationID: d.OrganizationID,
		UserID:         d.UserID,
		Role:           d.Role,
	}
}

type invitationDTO struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	EmailAddress   string `json:"email_address"`
	Role           string `json:"role"`
	Status         string `json:"status"`
}

func (c *Client) CreateOrganization(ctx context.Context, name string, metadata MetadataPatch) (*Organization, error) {
	reqID := id.Correlation(ctx)
	body := map[string]interface{}{"name": name}
	if metadata.Private != nil {
		body["private_metadata"] = metadata.Private
	}
	if metadata.Public != nil {
		body["public_metadata"] = metadata.Public
	}

	var out orgDTO
	log.Infow("creating organization", "name", name, "requestId", reqID)
	if err := c.do(ctx, "createOrganization", http.MethodPost, "/organizations", body, &out); err != nil {
		log.Errorw("create organization failed", "name", name, "requestId", reqID, "error", err)
		return nil, err
	}
	log.Infow("organization created", "orgId", out.ID, "requestId", reqID)
	return out.toDomain(), nil
}

func (c *Client) GetOrganization(ctx context.Context, orgID string) (*Organization, error) {
	var out orgDTO
	err := retry.Do(ctx, func(ctx context.Context) error {
		return c.do(ctx, "getOrganization", http.MethodGet, "/organizations/"+orgID, nil, &out)
	}, retry.WithMaxAttempts(3),
		retry.WithBackoff(retry.Exponential(300*time.Millisecond, 2*time.Second)),
		retry.WithJitter(retry.FullJitter),
		retry.WithRetryIf(isTransient))
	if err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) UpdateOrganizationMetadata(ctx context.Context, orgID string, patch MetadataPatch) error {
	reqID := id.Correlation(ctx)

	// The provider replaces whichever metadata map is supplied, so the
	// merge with existing keys has to happen here: read, merge, write.
	current, err := c.GetOrganization(ctx, orgID)
	if err != nil {
		return err
	}

	body := map[string]interface{}{}
	if patch.Private != nil {
		body["private_metadata"] = merged(current.Metadata.Private, patch.Private)
	}
	if patch.Public != nil {
		body["public_metadata"] = merged(current.Metadata.Public, patch.Public)
	}
	if len(body) == 0 {
		return nil
	}

	log.Infow("updating organization metadata", "orgId", orgID, "requestId", reqID)
	if err := c.do(ctx, "updateOrganizationMetadata", http.MethodPatch, "/organizations/"+orgID+"/metadata", body, nil); err != nil {
		log.Errorw("update organization metadata failed", "orgId", orgID, "requestId", reqID, "error", err)
		return err
	}
	return nil
}

func (c *Client) CreateMembership(ctx context.Context, orgID, userID string, candidateRoles []string) (*Membership, error) {
	reqID := id.Correlation(ctx)
	memErr := &MembershipError{OrganizationID: orgID, UserID: userID}

	for _, role := range candidateRoles {
		body := map[string]interface{}{"user_id": userID, "role": role}
		var out membershipDTO
		log.Infow("creating membership", "orgId", orgID, "userId", userID, "role", role, "requestId", reqID)
		err := c.do(ctx, "createMembership", http.MethodPost, "/organizations/"+orgID+"/memberships", body, &out)
		if err == nil {
			m := out.toDomain()
			log.Infow("membership created", "orgId", orgID, "userId", userID, "role", m.Role, "requestId", reqID)
			return &m, nil
		}
		log.Warnw("membership role candidate rejected", "orgId", orgID, "userId", userID,
			"role", role, "requestId", reqID, "error", err)
		memErr.Attempts = append(memErr.Attempts, RoleAttempt{Role: role, Reason: err.Error()})
	}
	return nil, memErr
}

func (c *Client) UpdateMembershipRole(ctx context.Context, orgID, membershipID string, candidateRoles []string) (*Membership, error) {
	reqID := id.Correlation(ctx)
	memErr := &MembershipError{OrganizationID: orgID}

	for _, role := range candidateRoles {
		body := map[string]interface{}{"role": role}
		var out membershipDTO
		log.Infow("updating membership role", "orgId", orgID, "membershipId", membershipID, "role", role, "requestId", reqID)
		err := c.do(ctx, "updateMembershipRole", http.MethodPatch,
			"/organizations/"+orgID+"/memberships/"+membershipID, body, &out)
		if err == nil {
			m := out.toDomain()
			return &m, nil
		}
		log.Warnw("membership promote candidate rejected", "orgId", orgID,
			"membershipId", membershipID, "role", role, "requestId", reqID, "error", err)
		memErr.Attempts = append(memErr.Attempts, RoleAttempt{Role: role, Reason: err.Error()})
	}
	return nil, memErr
}

func (c *Client) ListMemberships(ctx context.Context, userID string) ([]Membership, error) {
	var out struct {
		Data []membershipDTO `json:"data"`
	}
	err := retry.Do(ctx, func(ctx context.Context) error {
		return c.do(ctx, "listMemberships", http.MethodGet, "/users/"+userID+"/organization_memberships", nil, &out)
	}, retry.WithMaxAttempts(3),
		retry.WithBackoff(retry.Exponential(300*time.Millisecond, 2*time.Second)),
		retry.WithJitter(retry.FullJitter),
		retry.WithRetryIf(isTransient))
	if err != nil {
		return nil, err
	}

	memberships := make([]Membership, 0, len(out.Data))
	for i := range out.Data {
		memberships = append(memberships, out.Data[i].toDomain())
	}
	return memberships, nil
}

func (c *Client) CreateInvitation(ctx context.Context, orgID, email, role string) (*Invitation, error) {
	reqID := id.Correlation(ctx)
	body := map[string]interface{}{"email_address": email}
	if role != "" {
		body["role"] = role
	}

	var out invitationDTO
	log.Infow("creating invitation", "orgId", orgID, "email", email, "role", role, "requestId", reqID)
	if err := c.do(ctx, "createInvitation", http.MethodPost, "/organizations/"+orgID+"/invitations", body, &out); err != nil {
		log.Errorw("create invitation failed", "orgId", orgID, "email", email, "requestId", reqID, "error", err)
		return nil, err
	}
	return &Invitation{
		ID:             out.ID,
		OrganizationID: out.OrganizationID,
		Email:          out.EmailAddress,
		Role:           out.Role,
		Status:         out.Status,
	}, nil
}

// do executes one request and maps failures to *ProviderError.
func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("X-Request-Id", id.Correlation(ctx))
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return &ProviderError{Op: op, StatusCode: 0, Message: err.Error()}
	}
	if resp.IsError() {
		return &ProviderError{Op: op, StatusCode: resp.StatusCode(), Message: apiMessage(resp.Body())}
	}
	return nil
}

// apiMessage extracts the provider's error message from a response body.
func apiMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Errors  []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if len(parsed.Errors) > 0 && parsed.Errors[0].Message != "" {
			return parsed.Errors[0].Message
		}
	}
	if len(body) > 256 {
		body = body[:256]
	}
	return string(body)
}

// isTransient is the retry predicate for provider reads.
func isTransient(err error) bool {
	if pe, ok := err.(*ProviderError); ok {
		return pe.Transient()
	}
	return retry.IsRetryableError(err)
}
