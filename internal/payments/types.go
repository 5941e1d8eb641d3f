package payments

import (
	"fmt"
	"net/http"
	"time"
)

// Conf holds payment-provider settings. The two price ids map provider
// line items onto teacher/student seat totals.
type Conf struct {
	BaseURL            string `mapstructure:"baseUrl"`
	SecretKey          string `mapstructure:"secretKey"`
	WebhookSecret      string `mapstructure:"webhookSecret"`
	TeacherSeatPriceID string `mapstructure:"teacherSeatPriceId"`
	StudentSeatPriceID string `mapstructure:"studentSeatPriceId"`
	SuccessURL         string `mapstructure:"successUrl"`
	CancelURL          string `mapstructure:"cancelUrl"`
	Timeout            time.Duration
}

// CheckoutParams are the inputs for a new checkout session.
type CheckoutParams struct {
	SchoolID     string
	TeacherSeats int
	StudentSeats int
}

// CheckoutSession is the provider's checkout session. CustomerID and
// SubscriptionID stay empty until the customer completes payment.
type CheckoutSession struct {
	ID             string
	URL            string
	CustomerID     string
	SubscriptionID string
	Metadata       map[string]string
}

// LineItem is one priced item on a provider subscription.
type LineItem struct {
	ItemID   string
	PriceID  string
	Quantity int
}

// ProviderSubscription is the provider-owned subscription record.
type ProviderSubscription struct {
	ID               string
	CustomerID       string
	Status           string
	CurrentPeriodEnd time.Time
	Items            []LineItem
	Metadata         map[string]string
}

// SeatQuantity returns the quantity for the given price id and whether the
// price appears among the line items at all. Callers must preserve their
// existing totals when the price is absent.
func (s *ProviderSubscription) SeatQuantity(priceID string) (int, bool) {
	for _, item := range s.Items {
		if item.PriceID == priceID {
			return item.Quantity, true
		}
	}
	return 0, false
}

// PaymentError is a failed call against the payment provider.
type PaymentError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment provider %s: status=%d: %s", e.Op, e.StatusCode, e.Message)
}

// Transient reports whether the failure is worth retrying as-is.
func (e *PaymentError) Transient() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}
