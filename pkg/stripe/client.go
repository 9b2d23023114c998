package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	stripesdk "github.com/stripe/stripe-go/v78"
	stripeclient "github.com/stripe/stripe-go/v78/client"

	"github.com/novamart/orderflow/pkg/config"
	pkgerrors "github.com/novamart/orderflow/pkg/errors"
	"github.com/novamart/orderflow/pkg/logger"
)

var (
	errAPIKeyRequired = errors.New("stripe api key is required")
	errLoggerRequired = errors.New("stripe logger is required")
)

type paymentIntentAPI interface {
	New(params *stripesdk.PaymentIntentParams) (*stripesdk.PaymentIntent, error)
	Confirm(id string, params *stripesdk.PaymentIntentConfirmParams) (*stripesdk.PaymentIntent, error)
	Get(id string, params *stripesdk.PaymentIntentParams) (*stripesdk.PaymentIntent, error)
}

type refundAPI interface {
	New(params *stripesdk.RefundParams) (*stripesdk.Refund, error)
}

// Client exposes Stripe primitives with centralized auth, logging, idempotency,
// and error mapping.
type Client struct {
	intents     paymentIntentAPI
	refunds     refundAPI
	environment string
	logger      *logger.Logger
}

// NewClient initializes the Stripe wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	sc := stripeclient.New(apiKey, nil)
	c := &Client{
		intents:     sc.PaymentIntents,
		refunds:     sc.Refunds,
		environment: cfg.Environment(),
		logger:      logg,
	}

	logg.Info(ctx, "stripe client initialized")
	return c, nil
}

// NewClientWithAPIs wires explicit API backends, used by tests.
func NewClientWithAPIs(intents paymentIntentAPI, refunds refundAPI, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	if intents == nil || refunds == nil {
		return nil, errors.New("stripe api backends are required")
	}
	return &Client{intents: intents, refunds: refunds, environment: "test", logger: logg}, nil
}

// Environment reports the normalized Stripe environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// NewIdempotencyKey returns a unique key for Stripe operations.
func (c *Client) NewIdempotencyKey(prefix string) string {
	key := strings.TrimSpace(prefix)
	if key == "" {
		key = "of"
	}
	return fmt.Sprintf("%s-%s", key, uuid.NewString())
}

// IntentCreateParams carries the inputs for a new payment intent.
type IntentCreateParams struct {
	AmountCents    int64
	Currency       string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

// CreatePaymentIntent registers a new payment intent with Stripe.
func (c *Client) CreatePaymentIntent(ctx context.Context, params IntentCreateParams) (*stripesdk.PaymentIntent, error) {
	req := &stripesdk.PaymentIntentParams{
		Amount:   stripesdk.Int64(params.AmountCents),
		Currency: stripesdk.String(strings.ToLower(params.Currency)),
	}
	req.Context = ctx
	req.SetIdempotencyKey(c.ensureIdempotencyKey("intent.create", params.IdempotencyKey))
	if params.Description != "" {
		req.Description = stripesdk.String(params.Description)
	}
	if len(params.Metadata) > 0 {
		req.Metadata = make(map[string]string, len(params.Metadata))
		for k, v := range params.Metadata {
			req.Metadata[k] = v
		}
	}

	c.log(ctx, "request", "create_payment_intent", map[string]any{
		"amount":   params.AmountCents,
		"currency": params.Currency,
	})

	intent, err := c.intents.New(req)
	if err != nil {
		c.log(ctx, "error", "create_payment_intent", map[string]any{"error": err.Error()})
		return nil, c.mapStripeError(ctx, err, "create payment intent")
	}

	c.log(ctx, "response", "create_payment_intent", map[string]any{
		"intent_id": intent.ID,
		"status":    string(intent.Status),
	})
	return intent, nil
}

// ConfirmPaymentIntent confirms a previously created payment intent with the
// buyer's payment method.
func (c *Client) ConfirmPaymentIntent(ctx context.Context, intentID, paymentMethod, idempotencyKey string) (*stripesdk.PaymentIntent, error) {
	req := &stripesdk.PaymentIntentConfirmParams{}
	req.Context = ctx
	req.SetIdempotencyKey(c.ensureIdempotencyKey("intent.confirm", idempotencyKey))
	if trimmed := strings.TrimSpace(paymentMethod); trimmed != "" {
		req.PaymentMethod = stripesdk.String(trimmed)
	}

	c.log(ctx, "request", "confirm_payment_intent", map[string]any{"intent_id": intentID})

	intent, err := c.intents.Confirm(intentID, req)
	if err != nil {
		c.log(ctx, "error", "confirm_payment_intent", map[string]any{"error": err.Error()})
		return nil, c.mapStripeError(ctx, err, "confirm payment intent")
	}

	c.log(ctx, "response", "confirm_payment_intent", map[string]any{
		"intent_id": intent.ID,
		"status":    string(intent.Status),
	})
	return intent, nil
}

// GetPaymentIntent retrieves the current state of a payment intent.
func (c *Client) GetPaymentIntent(ctx context.Context, intentID string) (*stripesdk.PaymentIntent, error) {
	req := &stripesdk.PaymentIntentParams{}
	req.Context = ctx

	intent, err := c.intents.Get(intentID, req)
	if err != nil {
		return nil, c.mapStripeError(ctx, err, "get payment intent")
	}
	return intent, nil
}

// RefundCreateParams carries the inputs for a refund against an intent.
type RefundCreateParams struct {
	IntentID       string
	AmountCents    *int64
	IdempotencyKey string
}

// CreateRefund issues a refund for a payment intent.
func (c *Client) CreateRefund(ctx context.Context, params RefundCreateParams) (*stripesdk.Refund, error) {
	req := &stripesdk.RefundParams{
		PaymentIntent: stripesdk.String(params.IntentID),
	}
	req.Context = ctx
	req.SetIdempotencyKey(c.ensureIdempotencyKey("refund.create", params.IdempotencyKey))
	if params.AmountCents != nil {
		req.Amount = stripesdk.Int64(*params.AmountCents)
	}

	c.log(ctx, "request", "create_refund", map[string]any{"intent_id": params.IntentID})

	refund, err := c.refunds.New(req)
	if err != nil {
		c.log(ctx, "error", "create_refund", map[string]any{"error": err.Error()})
		return nil, c.mapStripeError(ctx, err, "create refund")
	}

	c.log(ctx, "response", "create_refund", map[string]any{
		"refund_id": refund.ID,
		"status":    string(refund.Status),
	})
	return refund, nil
}

func (c *Client) ensureIdempotencyKey(prefix, provided string) string {
	if strings.TrimSpace(provided) != "" {
		return provided
	}
	return c.NewIdempotencyKey(prefix)
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("stripe %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("stripe %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"card", "secret", "token", "cvc", "email", "phone"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func (c *Client) mapStripeError(ctx context.Context, err error, op string) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeGatewayTimeout, err, fmt.Sprintf("stripe %s timed out", op))
	}

	var apiErr *stripesdk.Error
	if errors.As(err, &apiErr) {
		code := domainCodeForStatus(apiErr.HTTPStatusCode)
		switch apiErr.Code {
		case stripesdk.ErrorCodeCardDeclined, stripesdk.ErrorCodeExpiredCard, stripesdk.ErrorCodeIncorrectCVC:
			code = pkgerrors.CodeGatewayRejected
		case stripesdk.ErrorCodeIdempotencyKeyInUse:
			code = pkgerrors.CodeIdempotency
		}
		return pkgerrors.Wrap(code, err, fmt.Sprintf("stripe %s failed", op))
	}
	return pkgerrors.Wrap(pkgerrors.CodeGatewayTimeout, err, fmt.Sprintf("stripe %s failed", op))
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeIdempotency
	case http.StatusPaymentRequired, http.StatusUnprocessableEntity:
		return pkgerrors.CodeGatewayRejected
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeGatewayTimeout
	}
}
