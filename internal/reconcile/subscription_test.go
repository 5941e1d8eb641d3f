package reconcile

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superlearn/school-central/internal/model"
	"github.com/superlearn/school-central/internal/payments"
)

func checkoutEvent(t *testing.T, sessionID, customerID, subscriptionID, schoolID, teacherSeats, studentSeats string) *payments.Event {
	t.Helper()
	object := map[string]interface{}{
		"id":           sessionID,
		"customer":     customerID,
		"subscription": subscriptionID,
		"metadata": map[string]string{
			"schoolId":     schoolID,
			"teacherSeats": teacherSeats,
			"studentSeats": studentSeats,
		},
	}
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	evt := &payments.Event{ID: "evt_" + sessionID, Type: payments.EventCheckoutCompleted}
	evt.Data.Object = raw
	return evt
}

func subscriptionEvent(t *testing.T, eventType, subscriptionID, status string, periodEnd int64, items map[string]int) *payments.Event {
	t.Helper()
	var data []map[string]interface{}
	for priceID, qty := range items {
		data = append(data, map[string]interface{}{
			"id":       "si_" + priceID,
			"price":    map[string]string{"id": priceID},
			"quantity": qty,
		})
	}
	object := map[string]interface{}{
		"id":                 subscriptionID,
		"customer":           "cus_1",
		"status":             status,
		"current_period_end": periodEnd,
		"items":              map[string]interface{}{"data": data},
	}
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	evt := &payments.Event{ID: "evt_" + subscriptionID, Type: eventType}
	evt.Data.Object = raw
	return evt
}

func TestHandleEvent_CheckoutCompletedScenario(t *testing.T) {
	subs := newFakeSubRepo()
	r := NewSubscriptionReconciler(subs, newFakePayments(), testPaymentsConf())

	evt := checkoutEvent(t, "cs_1", "cus_1", "sub_1", "s1", "2", "10")
	require.NoError(t, r.HandleEvent(context.Background(), evt))

	row, err := subs.GetBySchoolID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, model.SubStatusActive, row.Status)
	assert.Equal(t, "cus_1", row.StripeCustomerId)
	assert.Equal(t, "sub_1", row.StripeSubscriptionId)
	assert.Equal(t, 2, row.TotalTeacherSeats)
	assert.Equal(t, 10, row.TotalStudentSeats)
}

func TestHandleEvent_CheckoutCompletedIsIdempotent(t *testing.T) {
	subs := newFakeSubRepo()
	r := NewSubscriptionReconciler(subs, newFakePayments(), testPaymentsConf())

	evt := checkoutEvent(t, "cs_1", "cus_1", "sub_1", "s1", "2", "10")
	require.NoError(t, r.HandleEvent(context.Background(), evt))
	first, err := subs.GetBySchoolID(context.Background(), "s1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, r.HandleEvent(context.Background(), evt))
	}
	replayed, err := subs.GetBySchoolID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, first, replayed)
	assert.Len(t, subs.rows, 1)
}

func TestHandleEvent_CheckoutMissingProviderIDsIsFatal(t *testing.T) {
	subs := newFakeSubRepo()
	r := NewSubscriptionReconciler(subs, newFakePayments(), testPaymentsConf())

	evt := checkoutEvent(t, "cs_1", "", "sub_1", "s1", "2", "10")
	err := r.HandleEvent(context.Background(), evt)
	require.Error(t, err)
	assert.Equal(t, KindConfigurationFatal, KindOf(err))
	assert.Empty(t, subs.rows)
}

func TestHandleEvent_CheckoutMissingSchoolIDIsFatal(t *testing.T) {
	subs := newFakeSubRepo()
	r := NewSubscriptionReconciler(subs, newFakePayments(), testPaymentsConf())

	evt := checkoutEvent(t, "cs_1", "cus_1", "sub_1", "", "2", "10")
	err := r.HandleEvent(context.Background(), evt)
	require.Error(t, err)
	assert.Equal(t, KindConfigurationFatal, KindOf(err))
}

func TestHandleEvent_RepairsPartiallyOverwrittenRow(t *testing.T) {
	subs := newFakeSubRepo()
	// the upsert lands but a concurrent writer wipes the provider ids
	// before the verification read
	subs.corruptNextWrites = 1
	r := NewSubscriptionReconciler(subs, newFakePayments(), testPaymentsConf())

	evt := checkoutEvent(t, "cs_1", "cus_1", "sub_1", "s1", "2", "10")
	require.NoError(t, r.HandleEvent(context.Background(), evt))

	row, err := subs.GetBySchoolID(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, row.HasProviderIDs())
}

func TestHandleEvent_SubscriptionUpdatedRecomputesSeats(t *testing.T) {
	subs := newFakeSubRepo(&model.Subscription{
		SchoolId:             "s1",
		Status:               model.SubStatusActive,
		StripeCustomerId:     "cus_1",
		StripeSubscriptionId: "sub_1",
		TotalTeacherSeats:    2,
		TotalStudentSeats:    10,
	})
	r := NewSubscriptionReconciler(subs, newFakePayments(), testPaymentsConf())

	evt := subscriptionEvent(t, payments.EventSubscriptionUpdated, "sub_1", "active", 1735689600,
		map[string]int{testTeacherPrice: 5, testStudentPrice: 30})
	require.NoError(t, r.HandleEvent(context.Background(), evt))

	row, err := subs.GetBySchoolID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 5, row.TotalTeacherSeats)
	assert.Equal(t, 30, row.TotalStudentSeats)
	require.NotNil(t, row.CurrentPeriodEnd)
	assert.Equal(t, time.Unix(1735689600, 0).UTC(), row.CurrentPeriodEnd.UTC())
}

func TestHandleEvent_SubscriptionUpdatedPreservesAbsentSeatType(t *testing.T) {
	subs := newFakeSubRepo(&model.Subscription{
		SchoolId:             "s1",
		Status:               model.SubStatusActive,
		StripeCustomerId:     "cus_1",
		StripeSubscriptionId: "sub_1",
		TotalTeacherSeats:    2,
		TotalStudentSeats:    10,
	})
	r := NewSubscriptionReconciler(subs, newFakePayments(), testPaymentsConf())

	// only the teacher price appears in the line items
	evt := subscriptionEvent(t, payments.EventSubscriptionUpdated, "sub_1", "past_due", 0,
		map[string]int{testTeacherPrice: 4})
	require.NoError(t, r.HandleEvent(context.Background(), evt))

	row, err := subs.GetBySchoolID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 4, row.TotalTeacherSeats)
	assert.Equal(t, 10, row.TotalStudentSeats)
	assert.Equal(t, model.SubStatusPastDue, row.Status)
}

func TestHandleEvent_SubscriptionUpdatedForUnknownRowIsAcked(t *testing.T) {
	subs := newFakeSubRepo()
	r := NewSubscriptionReconciler(subs, newFakePayments(), testPaymentsConf())

	evt := subscriptionEvent(t, payments.EventSubscriptionUpdated, "sub_unknown", "active", 0, nil)
	assert.NoError(t, r.HandleEvent(context.Background(), evt))
}

func TestHandleEvent_SubscriptionDeletedCancels(t *testing.T) {
	subs := newFakeSubRepo(&model.Subscription{
		SchoolId:             "s1",
		Status:               model.SubStatusActive,
		StripeCustomerId:     "cus_1",
		StripeSubscriptionId: "sub_1",
	})
	r := NewSubscriptionReconciler(subs, newFakePayments(), testPaymentsConf())

	evt := subscriptionEvent(t, payments.EventSubscriptionDeleted, "sub_1", "canceled", 0, nil)
	require.NoError(t, r.HandleEvent(context.Background(), evt))

	row, err := subs.GetBySchoolID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, model.SubStatusCanceled, row.Status)
}

func TestHandleEvent_UnknownEventTypeIgnored(t *testing.T) {
	r := NewSubscriptionReconciler(newFakeSubRepo(), newFakePayments(), testPaymentsConf())
	evt := &payments.Event{ID: "evt_x", Type: "invoice.created"}
	assert.NoError(t, r.HandleEvent(context.Background(), evt))
}

// The active-row invariant must survive any interleaving of the three
// event types for the same subscription.
func TestHandleEvent_ActiveInvariantOverInterleavings(t *testing.T) {
	build := func(tb *testing.T) []*payments.Event {
		return []*payments.Event{
			checkoutEvent(tb, "cs_1", "cus_1", "sub_1", "s1", "2", "10"),
			subscriptionEvent(tb, payments.EventSubscriptionUpdated, "sub_1", "active", 1735689600,
				map[string]int{testTeacherPrice: 3}),
			subscriptionEvent(tb, payments.EventSubscriptionDeleted, "sub_1", "canceled", 0, nil),
		}
	}
	orders := [][]int{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}

	for _, order := range orders {
		subs := newFakeSubRepo()
		r := NewSubscriptionReconciler(subs, newFakePayments(), testPaymentsConf())
		events := build(t)
		for _, i := range order {
			require.NoError(t, r.HandleEvent(context.Background(), events[i]))
		}
		for _, row := range subs.rows {
			if row.Status == model.SubStatusActive {
				assert.True(t, row.HasProviderIDs(), "order %v left an active row without provider ids", order)
			}
		}
	}
}

func TestVerifySession_NotReadyWithoutSubscription(t *testing.T) {
	api := newFakePayments()
	api.sessions["cs_1"] = &payments.CheckoutSession{
		ID:       "cs_1",
		Metadata: map[string]string{"schoolId": "s1"},
	}
	r := NewSubscriptionReconciler(newFakeSubRepo(), api, testPaymentsConf())

	_, err := r.VerifySession(context.Background(), "cs_1")
	assert.ErrorIs(t, err, ErrSessionNotReady)
}

func TestVerifySession_MissingSchoolIDIsFatal(t *testing.T) {
	api := newFakePayments()
	api.sessions["cs_1"] = &payments.CheckoutSession{
		ID:             "cs_1",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		Metadata:       map[string]string{},
	}
	r := NewSubscriptionReconciler(newFakeSubRepo(), api, testPaymentsConf())

	_, err := r.VerifySession(context.Background(), "cs_1")
	require.Error(t, err)
	assert.Equal(t, KindConfigurationFatal, KindOf(err))
}

func TestVerifySession_CustomerIDFromSubscriptionWhenSessionLags(t *testing.T) {
	api := newFakePayments()
	api.sessions["cs_1"] = &payments.CheckoutSession{
		ID:             "cs_1",
		SubscriptionID: "sub_1",
		Metadata:       map[string]string{"schoolId": "s1"},
	}
	api.subs["sub_1"] = &payments.ProviderSubscription{
		ID:         "sub_1",
		CustomerID: "cus_1",
		Status:     "active",
		Items: []payments.LineItem{
			{ItemID: "si_1", PriceID: testTeacherPrice, Quantity: 2},
			{ItemID: "si_2", PriceID: testStudentPrice, Quantity: 10},
		},
	}
	subs := newFakeSubRepo()
	r := NewSubscriptionReconciler(subs, api, testPaymentsConf())

	row, err := r.VerifySession(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, model.SubStatusActive, row.Status)
	assert.Equal(t, "cus_1", row.StripeCustomerId)
	assert.Equal(t, "sub_1", row.StripeSubscriptionId)
	assert.True(t, row.HasProviderIDs())
}

func TestVerifySession_MissingCustomerIDEverywhereIsFatal(t *testing.T) {
	api := newFakePayments()
	api.sessions["cs_1"] = &payments.CheckoutSession{
		ID:             "cs_1",
		SubscriptionID: "sub_1",
		Metadata:       map[string]string{"schoolId": "s1"},
	}
	api.subs["sub_1"] = &payments.ProviderSubscription{
		ID:     "sub_1",
		Status: "active",
		Items: []payments.LineItem{
			{ItemID: "si_1", PriceID: testTeacherPrice, Quantity: 2},
		},
	}
	subs := newFakeSubRepo()
	r := NewSubscriptionReconciler(subs, api, testPaymentsConf())

	_, err := r.VerifySession(context.Background(), "cs_1")
	require.Error(t, err)
	assert.Equal(t, KindConfigurationFatal, KindOf(err))
	// no half-written active row without both provider ids
	assert.Empty(t, subs.rows)
}

func TestVerifySession_ConvergesThenSecondCallIsNoop(t *testing.T) {
	api := newFakePayments()
	api.sessions["cs_1"] = &payments.CheckoutSession{
		ID:             "cs_1",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		Metadata:       map[string]string{"schoolId": "s1", "teacherSeats": "2", "studentSeats": "10"},
	}
	api.subs["sub_1"] = &payments.ProviderSubscription{
		ID:               "sub_1",
		CustomerID:       "cus_1",
		Status:           "active",
		CurrentPeriodEnd: time.Unix(1735689600, 0).UTC(),
		Items: []payments.LineItem{
			{ItemID: "si_1", PriceID: testTeacherPrice, Quantity: 2},
			{ItemID: "si_2", PriceID: testStudentPrice, Quantity: 10},
		},
	}
	subs := newFakeSubRepo()
	r := NewSubscriptionReconciler(subs, api, testPaymentsConf())

	first, err := r.VerifySession(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, model.SubStatusActive, first.Status)
	assert.Equal(t, 2, first.TotalTeacherSeats)
	assert.Equal(t, 10, first.TotalStudentSeats)
	callsAfterFirst := api.retrieveSubCalls

	second, err := r.VerifySession(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, first.StripeSubscriptionId, second.StripeSubscriptionId)
	assert.Equal(t, first.TotalTeacherSeats, second.TotalTeacherSeats)
	// already converged: the provider subscription is not re-fetched
	assert.Equal(t, callsAfterFirst, api.retrieveSubCalls)
	assert.Len(t, subs.rows, 1)
}

func TestUpdateSeats_UpdatesProviderAndRow(t *testing.T) {
	api := newFakePayments()
	api.subs["sub_1"] = &payments.ProviderSubscription{
		ID:         "sub_1",
		CustomerID: "cus_1",
		Status:     "active",
		Items: []payments.LineItem{
			{ItemID: "si_1", PriceID: testTeacherPrice, Quantity: 2},
			{ItemID: "si_2", PriceID: testStudentPrice, Quantity: 10},
		},
	}
	subs := newFakeSubRepo(&model.Subscription{
		SchoolId:             "s1",
		Status:               model.SubStatusActive,
		StripeCustomerId:     "cus_1",
		StripeSubscriptionId: "sub_1",
		TotalTeacherSeats:    2,
		UsedTeacherSeats:     1,
		TotalStudentSeats:    10,
	})
	r := NewSubscriptionReconciler(subs, api, testPaymentsConf())

	row, err := r.UpdateSeats(context.Background(), "s1", 5, 30)
	require.NoError(t, err)
	assert.Equal(t, 5, row.TotalTeacherSeats)
	assert.Equal(t, 30, row.TotalStudentSeats)

	qty, ok := api.subs["sub_1"].SeatQuantity(testTeacherPrice)
	require.True(t, ok)
	assert.Equal(t, 5, qty)
}

func TestUpdateSeats_CannotReduceBelowUsed(t *testing.T) {
	subs := newFakeSubRepo(&model.Subscription{
		SchoolId:             "s1",
		Status:               model.SubStatusActive,
		StripeCustomerId:     "cus_1",
		StripeSubscriptionId: "sub_1",
		TotalTeacherSeats:    5,
		UsedTeacherSeats:     3,
	})
	r := NewSubscriptionReconciler(subs, newFakePayments(), testPaymentsConf())

	_, err := r.UpdateSeats(context.Background(), "s1", 2, 0)
	require.Error(t, err)
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestUpdateSeats_RequiresActiveBilling(t *testing.T) {
	subs := newFakeSubRepo(&model.Subscription{
		SchoolId: "s1",
		Status:   model.SubStatusInactive,
	})
	r := NewSubscriptionReconciler(subs, newFakePayments(), testPaymentsConf())

	_, err := r.UpdateSeats(context.Background(), "s1", 2, 10)
	require.Error(t, err)
	assert.Equal(t, KindConflict, KindOf(err))
}
