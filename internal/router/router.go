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
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/superlearn/school-central/internal/payments"
	"github.com/superlearn/school-central/internal/reconcile"
	"github.com/superlearn/school-central/pkg/httpx"
	"github.com/superlearn/school-central/pkg/server"
)

type Router struct {
	Http       *server.Http
	Onboarding *reconcile.OnboardingOrchestrator
	Members    *reconcile.MembershipReconciler
	Metadata   *reconcile.MetadataReconciler
	Subs       *reconcile.SubscriptionReconciler
	Inviter    *reconcile.Inviter

	webhookSecret string
}

func NewRouter(
	httpConf *server.Http,
	onboarding *reconcile.OnboardingOrchestrator,
	members *reconcile.MembershipReconciler,
	metadata *reconcile.MetadataReconciler,
	subs *reconcile.SubscriptionReconciler,
	inviter *reconcile.Inviter,
	paymentsConf payments.Conf,
) *Router {
	return &Router{
		Http:          httpConf,
		Onboarding:    onboarding,
		Members:       members,
		Metadata:      metadata,
		Subs:          subs,
		Inviter:       inviter,
		webhookSecret: paymentsConf.WebhookSecret,
	}
}

func (rt *Router) Router() *fiber.App {
	app := fiber.New(rt.Http.FiberConfig())

	app.Use(
		httpx.ExceptionMiddleware,
		cors.New(),
		httpx.RequestIDMiddleware,
		httpx.AccessLogMiddleware(rt.Http.AccessLog),
	)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	if rt.Http.ExposeMetrics {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}

	auth := httpx.AuthMiddleware(rt.Http.Auth.SecretKey)
	v1 := app.Group("/api/v1")
	{
		// webhook is provider-signed, not JWT-authenticated
		v1.Post("/stripe-webhook", rt.stripeWebhook)

		v1.Post("/claim-school", auth, rt.claimSchool)
		v1.Post("/recover-organization-link", auth, rt.recoverOrganizationLink)
		v1.Post("/invite-teacher", auth, rt.inviteTeacher)
		v1.Post("/verify-admin-membership", auth, rt.verifyAdminMembership)
		v1.Post("/fix-organization-metadata", auth, rt.fixOrganizationMetadata)
		v1.Post("/create-checkout-session", auth, rt.createCheckoutSession)
		v1.Post("/verify-checkout-session", auth, rt.verifyCheckoutSession)
		v1.Post("/update-subscription", auth, rt.updateSubscription)
	}

	app.Use(func(c *fiber.Ctx) error {
		return httpx.WithError(c, fiber.StatusNotFound, "request path not found")
	})

	return app
}

// statusFor maps a reconciliation failure kind to an HTTP status.
func statusFor(kind reconcile.Kind) int {
	switch kind {
	case reconcile.KindConflict:
		return fiber.StatusConflict
	case reconcile.KindNotFound:
		return fiber.StatusNotFound
	case reconcile.KindProviderRejected:
		return fiber.StatusUnprocessableEntity
	case reconcile.KindProviderTransient:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
