package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Webhook event types handled by the subscription reconciler.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Event is the webhook envelope. Data is decoded lazily by the typed
// accessors so unknown event types can be acknowledged without parsing.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseEvent verifies the signature header against the raw payload and,
// only if it matches, decodes the envelope.
func ParseEvent(secret, header string, payload []byte) (*Event, error) {
	if err := VerifySignature(secret, header, payload); err != nil {
		return nil, err
	}
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, errors.Wrap(err, "decode webhook event")
	}
	return &evt, nil
}

// VerifySignature checks a "t=<ts>,v1=<hex>" header. The signed message
// is the timestamp and the raw payload joined by a dot.
func VerifySignature(secret, header string, payload []byte) error {
	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sig = v
		}
	}
	if ts == "" || sig == "" {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrInvalidSignature
	}
	return nil
}

// CheckoutSession decodes the event payload as a checkout session.
func (e *Event) CheckoutSession() (*CheckoutSession, error) {
	var dto sessionDTO
	if err := json.Unmarshal(e.Data.Object, &dto); err != nil {
		return nil, errors.Wrap(err, "decode checkout session")
	}
	return dto.toDomain(), nil
}

// Subscription decodes the event payload as a subscription.
func (e *Event) Subscription() (*ProviderSubscription, error) {
	var dto subscriptionDTO
	if err := json.Unmarshal(e.Data.Object, &dto); err != nil {
		return nil, errors.Wrap(err, "decode subscription")
	}
	return dto.toDomain(), nil
}
