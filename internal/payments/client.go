package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/superlearn/school-central/pkg/id"
	"github.com/superlearn/school-central/pkg/log"
	"github.com/superlearn/school-central/pkg/retry"
)

const (
	defaultBaseURL = "https://api.stripe.com/v1"
	defaultTimeout = 12 * time.Second
)

// API is the payment-provider surface the reconcilers depend on.
type API interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
	// UpdateSeatQuantities sets the line-item quantities for the two seat
	// prices on an existing subscription.
	UpdateSeatQuantities(ctx context.Context, subscriptionID string, teacherSeats, studentSeats int) (*ProviderSubscription, error)
}

// Client is the resty-backed API implementation. The provider speaks
// form-encoded requests and JSON responses.
type Client struct {
	conf Conf
	http *resty.Client
}

var _ API = (*Client)(nil)

// NewClient creates a payment-provider client.
func NewClient(conf Conf) *Client {
	baseURL := conf.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(conf.SecretKey)

	return &Client{conf: conf, http: httpClient}
}

// wire DTOs

type sessionDTO struct {
	ID           string            `json:"id"`
	URL          string            `json:"url"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

func (d *sessionDTO) toDomain() *CheckoutSession {
	return &CheckoutSession{
		ID:             d.ID,
		URL:            d.URL,
		CustomerID:     d.Customer,
		SubscriptionID: d.Subscription,
		Metadata:       d.Metadata,
	}
}

type subscriptionDTO struct {
	ID               string            `json:"id"`
	Customer         string            `json:"customer"`
	Status           string            `json:"status"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	Metadata         map[string]string `json:"metadata"`
	Items            struct {
		Data []struct {
			ID    string `json:"id"`
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
			Quantity int `json:"quantity"`
		} `json:"data"`
	} `json:"items"`
}

func (d *subscriptionDTO) toDomain() *ProviderSubscription {
	sub := &ProviderSubscription{
		ID:               d.ID,
		CustomerID:       d.Customer,
		Status:           d.Status,
		CurrentPeriodEnd: time.Unix(d.CurrentPeriodEnd, 0).UTC(),
		Metadata:         d.Metadata,
	}
	for _, item := range d.Items.Data {
		sub.Items = append(sub.Items, LineItem{
			ItemID:   item.ID,
			PriceID:  item.Price.ID,
			Quantity: item.Quantity,
		})
	}
	return sub
}

func (c *Client) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	reqID := id.Correlation(ctx)
	form := map[string]string{
		"mode":                    "subscription",
		"success_url":             c.conf.SuccessURL,
		"cancel_url":              c.conf.CancelURL,
		"line_items[0][price]":    c.conf.TeacherSeatPriceID,
		"line_items[0][quantity]": strconv.Itoa(params.TeacherSeats),
		"line_items[1][price]":    c.conf.StudentSeatPriceID,
		"line_items[1][quantity]": strconv.Itoa(params.StudentSeats),
		"metadata[schoolId]":      params.SchoolID,
		"metadata[teacherSeats]":  strconv.Itoa(params.TeacherSeats),
		"metadata[studentSeats]":  strconv.Itoa(params.StudentSeats),
		// subscription-updated / deleted events need the school id on the
		// subscription object too, not just the session
		"subscription_data[metadata][schoolId]": params.SchoolID,
	}

	var out sessionDTO
	log.Infow("creating checkout session", "schoolId", params.SchoolID,
		"teacherSeats", params.TeacherSeats, "studentSeats", params.StudentSeats, "requestId", reqID)
	if err := c.doForm(ctx, "createCheckoutSession", "/checkout/sessions", form, &out); err != nil {
		log.Errorw("create checkout session failed", "schoolId", params.SchoolID, "requestId", reqID, "error", err)
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	var out sessionDTO
	err := c.doGetRetried(ctx, "retrieveCheckoutSession", "/checkout/sessions/"+sessionID, &out)
	if err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) RetrieveSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	var out subscriptionDTO
	err := c.doGetRetried(ctx, "retrieveSubscription", "/subscriptions/"+subscriptionID, &out)
	if err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) UpdateSeatQuantities(ctx context.Context, subscriptionID string, teacherSeats, studentSeats int) (*ProviderSubscription, error) {
	reqID := id.Correlation(ctx)

	// line-item updates need the provider's item ids
	current, err := c.RetrieveSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	form := map[string]string{}
	idx := 0
	for _, item := range current.Items {
		var quantity int
		switch item.PriceID {
		case c.conf.TeacherSeatPriceID:
			quantity = teacherSeats
		case c.conf.StudentSeatPriceID:
			quantity = studentSeats
		default:
			continue
		}
		form[fmt.Sprintf("items[%d][id]", idx)] = item.ItemID
		form[fmt.Sprintf("items[%d][quantity]", idx)] = strconv.Itoa(quantity)
		idx++
	}
	if idx == 0 {
		return nil, &PaymentError{
			Op:         "updateSeatQuantities",
			StatusCode: http.StatusUnprocessableEntity,
			Message:    "subscription has no seat line items",
		}
	}

	var out subscriptionDTO
	log.Infow("updating subscription seats", "subscriptionId", subscriptionID,
		"teacherSeats", teacherSeats, "studentSeats", studentSeats, "requestId", reqID)
	if err := c.doForm(ctx, "updateSeatQuantities", "/subscriptions/"+subscriptionID, form, &out); err != nil {
		log.Errorw("update subscription seats failed", "subscriptionId", subscriptionID, "requestId", reqID, "error", err)
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) doForm(ctx context.Context, op, path string, form map[string]string, out interface{}) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Request-Id", id.Correlation(ctx)).
		// the provider dedupes retried writes by this key
		SetHeader("Idempotency-Key", id.GetUUID()).
		SetFormData(form).
		SetResult(out).
		Post(path)
	return c.mapError(op, resp, err)
}

func (c *Client) doGetRetried(ctx context.Context, op, path string, out interface{}) error {
	return retry.Do(ctx, func(ctx context.Context) error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("X-Request-Id", id.Correlation(ctx)).
			SetResult(out).
			Get(path)
		return c.mapError(op, resp, err)
	}, retry.WithMaxAttempts(3),
		retry.WithBackoff(retry.Exponential(300*time.Millisecond, 2*time.Second)),
		retry.WithJitter(retry.FullJitter),
		retry.WithRetryIf(func(err error) bool {
			if pe, ok := err.(*PaymentError); ok {
				return pe.Transient()
			}
			return retry.IsRetryableError(err)
		}))
}

func (c *Client) mapError(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &PaymentError{Op: op, StatusCode: 0, Message: err.Error()}
	}
	if resp.IsError() {
		return &PaymentError{Op: op, StatusCode: resp.StatusCode(), Message: errMessage(resp.Body())}
	}
	return nil
}

func errMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	if len(body) > 256 {
		body = body[:256]
	}
	return string(body)
}
