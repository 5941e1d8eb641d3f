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

package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"

	"github.com/superlearn/school-central/internal/payments"
	"github.com/superlearn/school-central/internal/reconcile"
	"github.com/superlearn/school-central/pkg/httpx"
	"github.com/superlearn/school-central/pkg/log"
)

func (rt *Router) fail(c *fiber.Ctx, op string, err error) error {
	kind := reconcile.KindOf(err)
	reconcileRuns.WithLabelValues(op, string(kind)).Inc()
	log.Warnw("request failed", "op", op, "kind", kind, "path", c.Path(), "error", err)
	return httpx.WithError(c, statusFor(kind), reconcile.Message(err))
}

func (rt *Router) ok(c *fiber.Ctx, op string, detail fiber.Map) error {
	reconcileRuns.WithLabelValues(op, "success").Inc()
	return httpx.WithSuccess(c, detail)
}

func (rt *Router) claimSchool(c *fiber.Ctx) error {
	var req struct {
		SchoolID string `json:"schoolId"`
		FullName string `json:"fullName"`
		Email    string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil || req.SchoolID == "" {
		return httpx.WithError(c, fiber.StatusBadRequest, "schoolId is required")
	}

	result, err := rt.Onboarding.ClaimSchool(c.UserContext(), reconcile.OnboardingParams{
		SchoolID: req.SchoolID,
		UserID:   c.Locals(httpx.LocalUserID).(string),
		FullName: req.FullName,
		Email:    req.Email,
	})
	if err != nil {
		return rt.fail(c, "claim_school", err)
	}
	return rt.ok(c, "claim_school", fiber.Map{
		"organizationId": result.OrganizationID,
		"membership":     result.Membership,
	})
}

func (rt *Router) recoverOrganizationLink(c *fiber.Ctx) error {
	var req struct {
		SchoolID string `json:"schoolId"`
		FullName string `json:"fullName"`
		Email    string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil || req.SchoolID == "" {
		return httpx.WithError(c, fiber.StatusBadRequest, "schoolId is required")
	}

	result, err := rt.Onboarding.RecoverOrganizationLink(c.UserContext(), reconcile.OnboardingParams{
		SchoolID: req.SchoolID,
		UserID:   c.Locals(httpx.LocalUserID).(string),
		FullName: req.FullName,
		Email:    req.Email,
	})
	if err != nil {
		return rt.fail(c, "recover_organization_link", err)
	}
	return rt.ok(c, "recover_organization_link", fiber.Map{
		"organizationId": result.OrganizationID,
		"membership":     result.Membership,
	})
}

func (rt *Router) inviteTeacher(c *fiber.Ctx) error {
	var req struct {
		OrganizationID string `json:"organizationId"`
		EmailAddress   string `json:"emailAddress"`
		SchoolID       string `json:"schoolId"`
	}
	if err := c.BodyParser(&req); err != nil || req.OrganizationID == "" || req.EmailAddress == "" {
		return httpx.WithError(c, fiber.StatusBadRequest, "organizationId and emailAddress are required")
	}

	invitation, err := rt.Inviter.InviteTeacher(c.UserContext(),
		req.OrganizationID, c.Locals(httpx.LocalUserID).(string), req.EmailAddress, req.SchoolID)
	if err != nil {
		return rt.fail(c, "invite_teacher", err)
	}
	return rt.ok(c, "invite_teacher", fiber.Map{"invitation": invitation})
}

func (rt *Router) verifyAdminMembership(c *fiber.Ctx) error {
	var req struct {
		OrganizationID string `json:"organizationId"`
		UserID         string `json:"userId"`
	}
	if err := c.BodyParser(&req); err != nil || req.OrganizationID == "" {
		return httpx.WithError(c, fiber.StatusBadRequest, "organizationId is required")
	}
	if req.UserID == "" {
		req.UserID = c.Locals(httpx.LocalUserID).(string)
	}

	result, err := rt.Members.EnsureAdmin(c.UserContext(), req.OrganizationID, req.UserID)
	if err != nil {
		if result != nil {
			// membership state is still useful diagnostics on failure
			reconcileRuns.WithLabelValues("verify_admin_membership", string(reconcile.KindOf(err))).Inc()
			return httpx.WithFailure(c, fiber.Map{
				"isAdmin":     result.IsAdmin,
				"wasPromoted": result.WasPromoted,
				"wasAdded":    result.WasAdded,
				"errors":      result.Errors,
			})
		}
		return rt.fail(c, "verify_admin_membership", err)
	}
	return rt.ok(c, "verify_admin_membership", fiber.Map{
		"isAdmin":     result.IsAdmin,
		"role":        result.Role,
		"wasPromoted": result.WasPromoted,
		"wasAdded":    result.WasAdded,
	})
}

func (rt *Router) fixOrganizationMetadata(c *fiber.Ctx) error {
	var req struct {
		OrganizationID string `json:"organizationId"`
		SchoolID       string `json:"schoolId"`
		Operation      string `json:"operation"`
	}
	if err := c.BodyParser(&req); err != nil || req.OrganizationID == "" || req.SchoolID == "" {
		return httpx.WithError(c, fiber.StatusBadRequest, "organizationId and schoolId are required")
	}

	cleanup := req.Operation == "cleanup"
	result, err := rt.Metadata.EnsureSchoolID(c.UserContext(), req.OrganizationID, req.SchoolID, cleanup)
	if err != nil {
		return rt.fail(c, "fix_organization_metadata", err)
	}
	return rt.ok(c, "fix_organization_metadata", fiber.Map{
		"changed":  result.Changed,
		"degraded": result.Degraded,
		"message":  result.Message,
	})
}

func (rt *Router) createCheckoutSession(c *fiber.Ctx) error {
	var req struct {
		SchoolID     string `json:"schoolId"`
		TeacherSeats int    `json:"teacherSeats"`
		StudentSeats int    `json:"studentSeats"`
	}
	if err := c.BodyParser(&req); err != nil || req.SchoolID == "" {
		return httpx.WithError(c, fiber.StatusBadRequest, "schoolId is required")
	}

	url, err := rt.Subs.CreateCheckout(c.UserContext(), req.SchoolID, req.TeacherSeats, req.StudentSeats)
	if err != nil {
		return rt.fail(c, "create_checkout_session", err)
	}
	return rt.ok(c, "create_checkout_session", fiber.Map{"checkoutUrl": url})
}

func (rt *Router) verifyCheckoutSession(c *fiber.Ctx) error {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.BodyParser(&req); err != nil || req.SessionID == "" {
		return httpx.WithError(c, fiber.StatusBadRequest, "sessionId is required")
	}

	sub, err := rt.Subs.VerifySession(c.UserContext(), req.SessionID)
	if err != nil {
		if errors.Is(err, reconcile.ErrSessionNotReady) {
			reconcileRuns.WithLabelValues("verify_checkout_session", "not_ready").Inc()
			return httpx.WithFailure(c, fiber.Map{"notReady": true})
		}
		return rt.fail(c, "verify_checkout_session", err)
	}
	return rt.ok(c, "verify_checkout_session", fiber.Map{"subscription": sub})
}

func (rt *Router) updateSubscription(c *fiber.Ctx) error {
	var req struct {
		SchoolID     string `json:"schoolId"`
		TeacherSeats int    `json:"teacherSeats"`
		StudentSeats int    `json:"studentSeats"`
	}
	if err := c.BodyParser(&req); err != nil || req.SchoolID == "" {
		return httpx.WithError(c, fiber.StatusBadRequest, "schoolId is required")
	}

	sub, err := rt.Subs.UpdateSeats(c.UserContext(), req.SchoolID, req.TeacherSeats, req.StudentSeats)
	if err != nil {
		return rt.fail(c, "update_subscription", err)
	}
	return rt.ok(c, "update_subscription", fiber.Map{
		"teacherSeats": sub.TotalTeacherSeats,
		"studentSeats": sub.TotalStudentSeats,
	})
}

// stripeWebhook acknowledges with 200 whenever re-delivery cannot help:
// signature failures get 400, transient processing failures get 500 so the
// provider retries, and everything else acks to stop the redelivery loop.
func (rt *Router) stripeWebhook(c *fiber.Ctx) error {
	payload := c.Body()
	signature := c.Get("Stripe-Signature")

	evt, err := payments.ParseEvent(rt.webhookSecret, signature, payload)
	if err != nil {
		webhookEvents.WithLabelValues("unknown", "bad_signature").Inc()
		log.Warnw("webhook rejected", "path", c.Path(), "error", err)
		return httpx.WithError(c, fiber.StatusBadRequest, "invalid signature")
	}

	if err := rt.Subs.HandleEvent(c.UserContext(), evt); err != nil {
		kind := reconcile.KindOf(err)
		webhookEvents.WithLabelValues(evt.Type, string(kind)).Inc()
		if kind == reconcile.KindProviderTransient {
			log.Errorw("webhook processing failed, provider will redeliver",
				"eventId", evt.ID, "type", evt.Type, "error", err)
			return httpx.WithError(c, fiber.StatusInternalServerError, "processing failed")
		}
		// configuration and integrity defects are logged for follow-up but
		// acked, redelivering the same event cannot fix them
		log.Errorw("webhook event unprocessable, acknowledged anyway",
			"eventId", evt.ID, "type", evt.Type, "kind", kind, "error", err)
		return c.JSON(fiber.Map{"received": true})
	}

	webhookEvents.WithLabelValues(evt.Type, "success").Inc()
	return c.JSON(fiber.Map{"received": true})
}
