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

package bootstrap

import (
	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"

	"github.com/superlearn/school-central/internal/conf"
	"github.com/superlearn/school-central/internal/identity"
	"github.com/superlearn/school-central/internal/payments"
	"github.com/superlearn/school-central/internal/reconcile"
	"github.com/superlearn/school-central/internal/repo"
	"github.com/superlearn/school-central/internal/router"
	"github.com/superlearn/school-central/pkg/database"
	"github.com/superlearn/school-central/pkg/log"
)

// App holds the wired service.
type App struct {
	HttpApp *fiber.App
	AppConf conf.AppConfig
}

// NewApp builds the full dependency graph from a loaded configuration.
func NewApp(appConf conf.AppConfig) (*App, func(), error) {
	gormDB, err := database.NewDatabase(appConf.Database)
	if err != nil {
		return nil, nil, errors.Wrap(err, "init database")
	}
	db := database.NewGormDB(gormDB)

	schools := repo.NewSchoolRepo(db)
	orgs := repo.NewOrganizationRepo(db)
	profiles := repo.NewProfileRepo(db)
	subs := repo.NewSubscriptionRepo(db)

	gateway := identity.NewClient(appConf.Identity)
	paymentsAPI := payments.NewClient(appConf.Payments)

	members := reconcile.NewMembershipReconciler(gateway, appConf.Identity)
	metadata := reconcile.NewMetadataReconciler(gateway)
	subscription := reconcile.NewSubscriptionReconciler(subs, paymentsAPI, appConf.Payments)
	onboarding := reconcile.NewOnboardingOrchestrator(schools, orgs, profiles, subs, gateway, members, metadata)
	inviter := reconcile.NewInviter(gateway, subs, members, appConf.Identity)

	rt := router.NewRouter(&appConf.Http, onboarding, members, metadata, subscription, inviter, appConf.Payments)

	cleanup := func() {
		log.Info("shutting down")
		if sqlDB, err := db.Database().DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	return &App{HttpApp: rt.Router(), AppConf: appConf}, cleanup, nil
}
