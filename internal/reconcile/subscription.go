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
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/superlearn/school-central/internal/model"
	"github.com/superlearn/school-central/internal/payments"
	"github.com/superlearn/school-central/internal/repo"
	"github.com/superlearn/school-central/pkg/id"
	"github.com/superlearn/school-central/pkg/log"
)

// ErrSessionNotReady means the checkout session exists but the provider has
// not attached a subscription yet. Callers should retry later.
var ErrSessionNotReady = errors.New("checkout session has no subscription yet")

// SubscriptionReconciler converges the relational subscription row onto the
// payment provider's state. It has a push entry point (webhook events) and a
// pull entry point (manual session verification) that both drive the row to
// the same target, so racing the two is safe.
type SubscriptionReconciler struct {
	subs repo.ISubscriptionRepository
	api  payments.API
	conf payments.Conf
}

func NewSubscriptionReconciler(subs repo.ISubscriptionRepository, api payments.API, conf payments.Conf) *SubscriptionReconciler {
	return &SubscriptionReconciler{subs: subs, api: api, conf: conf}
}

// CreateCheckout opens a checkout session for the school's seat purchase
// and returns the hosted payment page URL.
func (r *SubscriptionReconciler) CreateCheckout(ctx context.Context, schoolID string, teacherSeats, studentSeats int) (string, error) {
	if schoolID == "" {
		return "", newError(KindConfigurationFatal, "school id is required", nil)
	}
	if teacherSeats <= 0 && studentSeats <= 0 {
		return "", newError(KindProviderRejected, "at least one seat is required", nil)
	}
	session, err := r.api.CreateCheckoutSession(ctx, payments.CheckoutParams{
		SchoolID:     schoolID,
		TeacherSeats: teacherSeats,
		StudentSeats: studentSeats,
	})
	if err != nil {
		return "", err
	}
	return session.URL, nil
}

// HandleEvent applies one webhook event. Duplicate and out-of-order
// deliveries converge to the same row state.
func (r *SubscriptionReconciler) HandleEvent(ctx context.Context, evt *payments.Event) error {
	reqID := id.Correlation(ctx)
	log.Infow("processing payment event", "eventId", evt.ID, "type", evt.Type, "requestId", reqID)

	switch evt.Type {
	case payments.EventCheckoutCompleted:
		session, err := evt.CheckoutSession()
		if err != nil {
			return newError(KindConfigurationFatal, "malformed checkout event payload", err)
		}
		return r.handleCheckoutCompleted(ctx, session)
	case payments.EventSubscriptionUpdated:
		sub, err := evt.Subscription()
		if err != nil {
			return newError(KindConfigurationFatal, "malformed subscription event payload", err)
		}
		return r.handleSubscriptionUpdated(ctx, sub)
	case payments.EventSubscriptionDeleted:
		sub, err := evt.Subscription()
		if err != nil {
			return newError(KindConfigurationFatal, "malformed subscription event payload", err)
		}
		return r.handleSubscriptionDeleted(ctx, sub)
	default:
		log.Debugw("ignoring payment event", "eventId", evt.ID, "type", evt.Type)
		return nil
	}
}

func (r *SubscriptionReconciler) handleCheckoutCompleted(ctx context.Context, session *payments.CheckoutSession) error {
	schoolID := session.Metadata["schoolId"]
	if schoolID == "" {
		return newError(KindConfigurationFatal,
			"checkout session carries no school id, check checkout metadata wiring", nil)
	}
	if session.CustomerID == "" || session.SubscriptionID == "" {
		return newError(KindConfigurationFatal,
			"checkout session is missing provider ids, check checkout configuration", nil)
	}

	teacherSeats := atoiOrZero(session.Metadata["teacherSeats"])
	studentSeats := atoiOrZero(session.Metadata["studentSeats"])

	// Best-effort read for the billing period end. The ids and seat counts
	// above are authoritative either way.
	var periodEnd *time.Time
	if sub, err := r.api.RetrieveSubscription(ctx, session.SubscriptionID); err == nil {
		if !sub.CurrentPeriodEnd.IsZero() {
			end := sub.CurrentPeriodEnd
			periodEnd = &end
		}
	} else {
		log.Warnw("could not read subscription period end", "subscriptionId", session.SubscriptionID, "error", err)
	}

	return r.applyActiveState(ctx, schoolID, session.CustomerID, session.SubscriptionID,
		teacherSeats, studentSeats, periodEnd)
}

// applyActiveState is the shared upsert both entry points converge through.
// After writing it reads the row back and asserts the provider ids stuck,
// issuing one corrective write when they did not.
func (r *SubscriptionReconciler) applyActiveState(ctx context.Context, schoolID, customerID, subscriptionID string,
	teacherSeats, studentSeats int, periodEnd *time.Time) error {
	reqID := id.Correlation(ctx)

	existing, err := r.subs.GetBySchoolID(ctx, schoolID)
	switch {
	case err == nil:
		existing.Status = model.SubStatusActive
		existing.StripeCustomerId = customerID
		existing.StripeSubscriptionId = subscriptionID
		existing.TotalTeacherSeats = teacherSeats
		existing.TotalStudentSeats = studentSeats
		existing.CurrentPeriodEnd = periodEnd
		if err := r.subs.Update(ctx, existing); err != nil {
			return errors.Wrap(err, "update subscription row")
		}
	case errors.Is(err, repo.ErrNotFound):
		row := &model.Subscription{
			SchoolId:             schoolID,
			Status:               model.SubStatusActive,
			StripeCustomerId:     customerID,
			StripeSubscriptionId: subscriptionID,
			TotalTeacherSeats:    teacherSeats,
			TotalStudentSeats:    studentSeats,
			CurrentPeriodEnd:     periodEnd,
		}
		if err := r.subs.Create(ctx, row); err != nil {
			return errors.Wrap(err, "create subscription row")
		}
	default:
		return errors.Wrap(err, "read subscription row")
	}

	// A concurrent writer can partially overwrite the row between our write
	// and this read. One corrective pass repairs the known race.
	verified, err := r.subs.GetBySchoolID(ctx, schoolID)
	if err != nil {
		return newError(KindDataIntegrity, "subscription row unreadable after write", err)
	}
	if !verified.HasProviderIDs() {
		log.Warnw("active subscription missing provider ids after write, repairing",
			"schoolId", schoolID, "requestId", reqID)
		if err := r.subs.SetProviderIDs(ctx, schoolID, customerID, subscriptionID); err != nil {
			log.Errorw("provider id repair failed, data defect needs operational follow-up",
				"schoolId", schoolID, "customerId", customerID, "subscriptionId", subscriptionID,
				"requestId", reqID, "error", err)
			return newError(KindDataIntegrity, "subscription row could not be repaired", err)
		}
	}

	log.Infow("subscription converged", "schoolId", schoolID, "subscriptionId", subscriptionID,
		"teacherSeats", teacherSeats, "studentSeats", studentSeats, "requestId", reqID)
	return nil
}

func (r *SubscriptionReconciler) handleSubscriptionUpdated(ctx context.Context, sub *payments.ProviderSubscription) error {
	row, err := r.subs.GetByStripeSubscriptionID(ctx, sub.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// the checkout-completed event has not arrived yet; the row will
			// pick up this state when it does
			log.Warnw("subscription-updated event for unknown subscription", "subscriptionId", sub.ID)
			return nil
		}
		return errors.Wrap(err, "read subscription row")
	}

	// A seat type whose price is absent from the line items keeps its
	// current total rather than being zeroed.
	if qty, ok := sub.SeatQuantity(r.conf.TeacherSeatPriceID); ok {
		row.TotalTeacherSeats = qty
	}
	if qty, ok := sub.SeatQuantity(r.conf.StudentSeatPriceID); ok {
		row.TotalStudentSeats = qty
	}
	row.Status = mapProviderStatus(sub.Status, row.Status)
	if !sub.CurrentPeriodEnd.IsZero() {
		end := sub.CurrentPeriodEnd
		row.CurrentPeriodEnd = &end
	}

	if err := r.subs.Update(ctx, row); err != nil {
		return errors.Wrap(err, "update subscription row")
	}
	log.Infow("subscription state updated", "schoolId", row.SchoolId, "subscriptionId", sub.ID,
		"status", row.Status)
	return nil
}

func (r *SubscriptionReconciler) handleSubscriptionDeleted(ctx context.Context, sub *payments.ProviderSubscription) error {
	err := r.subs.SetStatusBySubscriptionID(ctx, sub.ID, model.SubStatusCanceled)
	if errors.Is(err, repo.ErrNotFound) {
		log.Warnw("subscription-deleted event for unknown subscription", "subscriptionId", sub.ID)
		return nil
	}
	return err
}

// VerifySession is the pull-side fallback for a delayed or missed webhook.
// Safe to call repeatedly and safe to race against the webhook path.
func (r *SubscriptionReconciler) VerifySession(ctx context.Context, sessionID string) (*model.Subscription, error) {
	session, err := r.api.RetrieveCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.SubscriptionID == "" {
		return nil, ErrSessionNotReady
	}

	schoolID := session.Metadata["schoolId"]
	if schoolID == "" {
		return nil, newError(KindConfigurationFatal, "no school ID in session metadata", nil)
	}

	if row, err := r.subs.GetBySchoolID(ctx, schoolID); err == nil && row.HasProviderIDs() {
		// already converged, typically by the webhook
		return row, nil
	}

	sub, err := r.api.RetrieveSubscription(ctx, session.SubscriptionID)
	if err != nil {
		return nil, err
	}

	// the session payload can lag behind the subscription record, so the
	// customer id may only be present on the latter
	customerID := session.CustomerID
	if customerID == "" {
		customerID = sub.CustomerID
	}
	if customerID == "" {
		return nil, newError(KindConfigurationFatal,
			"checkout session is missing provider ids, check checkout configuration", nil)
	}

	teacherSeats, studentSeats := r.seatTotals(sub, session.Metadata)
	var periodEnd *time.Time
	if !sub.CurrentPeriodEnd.IsZero() {
		end := sub.CurrentPeriodEnd
		periodEnd = &end
	}
	if err := r.applyActiveState(ctx, schoolID, customerID, session.SubscriptionID,
		teacherSeats, studentSeats, periodEnd); err != nil {
		return nil, err
	}
	return r.subs.GetBySchoolID(ctx, schoolID)
}

// UpdateSeats changes the seat quantities on the provider subscription and
// mirrors the new totals into the relational row.
func (r *SubscriptionReconciler) UpdateSeats(ctx context.Context, schoolID string, teacherSeats, studentSeats int) (*model.Subscription, error) {
	row, err := r.subs.GetBySchoolID(ctx, schoolID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, newError(KindNotFound, "no subscription for this school", err)
		}
		return nil, err
	}
	if !row.HasProviderIDs() {
		return nil, newError(KindConflict, "subscription has no active billing yet, complete checkout first", nil)
	}
	if teacherSeats < row.UsedTeacherSeats {
		return nil, newError(KindConflict, "cannot reduce teacher seats below seats already in use", nil)
	}
	if studentSeats < row.UsedStudentSeats {
		return nil, newError(KindConflict, "cannot reduce student seats below seats already in use", nil)
	}

	sub, err := r.api.UpdateSeatQuantities(ctx, row.StripeSubscriptionId, teacherSeats, studentSeats)
	if err != nil {
		return nil, err
	}

	row.Status = mapProviderStatus(sub.Status, row.Status)
	row.TotalTeacherSeats = teacherSeats
	row.TotalStudentSeats = studentSeats
	if !sub.CurrentPeriodEnd.IsZero() {
		end := sub.CurrentPeriodEnd
		row.CurrentPeriodEnd = &end
	}
	if err := r.subs.Update(ctx, row); err != nil {
		return nil, errors.Wrap(err, "update subscription row")
	}
	return row, nil
}

// seatTotals reads quantities from the provider's line items, falling back
// to the session metadata for a seat type whose price is absent.
func (r *SubscriptionReconciler) seatTotals(sub *payments.ProviderSubscription, metadata map[string]string) (int, int) {
	teacherSeats := atoiOrZero(metadata["teacherSeats"])
	studentSeats := atoiOrZero(metadata["studentSeats"])
	if qty, ok := sub.SeatQuantity(r.conf.TeacherSeatPriceID); ok {
		teacherSeats = qty
	}
	if qty, ok := sub.SeatQuantity(r.conf.StudentSeatPriceID); ok {
		studentSeats = qty
	}
	return teacherSeats, studentSeats
}

// mapProviderStatus translates the provider's subscription status into the
// local status set, keeping the current value for statuses with no mapping.
func mapProviderStatus(providerStatus, current string) string {
	switch providerStatus {
	case "active", "trialing":
		return model.SubStatusActive
	case "past_due", "unpaid":
		return model.SubStatusPastDue
	case "canceled", "incomplete_expired":
		return model.SubStatusCanceled
	case "incomplete":
		return model.SubStatusPending
	default:
		return current
	}
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
