package payments

import (
	"context"
	"encoding/json"
	"fmt"

	stripesdk "github.com/stripe/stripe-go/v78"

	"github.com/novamart/orderflow/pkg/enums"
	pkgerrors "github.com/novamart/orderflow/pkg/errors"
	"github.com/novamart/orderflow/pkg/logger"
	stripeclient "github.com/novamart/orderflow/pkg/stripe"
)

type cardAPI interface {
	CreatePaymentIntent(ctx context.Context, params stripeclient.IntentCreateParams) (*stripesdk.PaymentIntent, error)
	ConfirmPaymentIntent(ctx context.Context, intentID, paymentMethod, idempotencyKey string) (*stripesdk.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, intentID string) (*stripesdk.PaymentIntent, error)
	CreateRefund(ctx context.Context, params stripeclient.RefundCreateParams) (*stripesdk.Refund, error)
}

// CardGateway adapts the card processor. Initiate creates a server-side
// payment intent, Confirm settles it synchronously.
type CardGateway struct {
	api    cardAPI
	logger *logger.Logger
}

// NewCardGateway wires the card gateway onto the stripe wrapper.
func NewCardGateway(api cardAPI, logg *logger.Logger) (*CardGateway, error) {
	if api == nil {
		return nil, fmt.Errorf("card api required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &CardGateway{api: api, logger: logg}, nil
}

// Method identifies the provider slot this gateway fills.
func (g *CardGateway) Method() enums.PaymentMethod {
	return enums.PaymentMethodCard
}

// Initiate creates a payment intent and returns its client secret.
func (g *CardGateway) Initiate(ctx context.Context, amountCents int, currency enums.Currency) (*ClientHandle, error) {
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid currency")
	}

	intent, err := g.api.CreatePaymentIntent(ctx, stripeclient.IntentCreateParams{
		AmountCents: int64(amountCents),
		Currency:    currency.String(),
	})
	if err != nil {
		return nil, err
	}

	return &ClientHandle{
		Method:       enums.PaymentMethodCard,
		Reference:    intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

// Confirm settles the intent. A decline is a failed result, not an error; a
// succeeded intent without an id is an inconsistency that requires manual
// reconciliation and never produces an order.
func (g *CardGateway) Confirm(ctx context.Context, handle ClientHandle, methodDetails string) (*PaymentResult, error) {
	if handle.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent reference is required")
	}

	intent, err := g.api.ConfirmPaymentIntent(ctx, handle.Reference, methodDetails, "")
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeGatewayRejected {
			return &PaymentResult{
				Status:            enums.PaymentStatusFailed,
				ProviderReference: handle.Reference,
				Message:           typed.Message(),
			}, nil
		}
		return nil, err
	}

	if intent.Status != stripesdk.PaymentIntentStatusSucceeded {
		return &PaymentResult{
			Status:            enums.PaymentStatusFailed,
			ProviderReference: intent.ID,
			Message:           fmt.Sprintf("payment intent ended in status %s", intent.Status),
			Raw:               rawPayload(intent),
		}, nil
	}

	if intent.ID == "" {
		logCtx := g.logger.WithField(ctx, "gateway", "card")
		g.logger.Error(logCtx, "succeeded payment with no provider reference", nil)
		return nil, pkgerrors.New(pkgerrors.CodeInconsistent, "succeeded payment with no provider reference")
	}

	return &PaymentResult{
		Status:            enums.PaymentStatusSucceeded,
		ProviderReference: intent.ID,
		Raw:               rawPayload(intent),
	}, nil
}

// Verify re-reads the intent. A retried commit uses it to check that a
// stored reference still denotes a settled charge before building the order.
func (g *CardGateway) Verify(ctx context.Context, providerRef string) (*PaymentResult, error) {
	if providerRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider reference is required")
	}

	intent, err := g.api.GetPaymentIntent(ctx, providerRef)
	if err != nil {
		return nil, err
	}

	if intent.Status != stripesdk.PaymentIntentStatusSucceeded {
		return &PaymentResult{
			Status:            enums.PaymentStatusFailed,
			ProviderReference: intent.ID,
			Message:           fmt.Sprintf("payment intent is in status %s", intent.Status),
		}, nil
	}

	return &PaymentResult{
		Status:            enums.PaymentStatusSucceeded,
		ProviderReference: intent.ID,
	}, nil
}

// Refund issues a refund against the original intent.
func (g *CardGateway) Refund(ctx context.Context, providerRef string, amountCents int, currency enums.Currency, idempotencyKey string) (*RefundResult, error) {
	if providerRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider reference is required")
	}

	var amount *int64
	if amountCents > 0 {
		v := int64(amountCents)
		amount = &v
	}

	refund, err := g.api.CreateRefund(ctx, stripeclient.RefundCreateParams{
		IntentID:       providerRef,
		AmountCents:    amount,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeRefundFailed, err, "card refund failed")
	}

	status := enums.PaymentStatusSucceeded
	if refund.Status == stripesdk.RefundStatusFailed || refund.Status == stripesdk.RefundStatusCanceled {
		status = enums.PaymentStatusFailed
	}

	return &RefundResult{
		Status:           status,
		ProviderRefundID: refund.ID,
	}, nil
}

func rawPayload(v any) map[string]any {
	raw := map[string]any{}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	return raw
}
