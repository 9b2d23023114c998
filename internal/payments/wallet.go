package payments

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/square/square-go-sdk"

	"github.com/novamart/orderflow/pkg/enums"
	pkgerrors "github.com/novamart/orderflow/pkg/errors"
	"github.com/novamart/orderflow/pkg/logger"
	squareclient "github.com/novamart/orderflow/pkg/square"
)

type walletAPI interface {
	CreatePayment(ctx context.Context, params squareclient.PaymentCreateParams) (*sq.Payment, error)
	CompletePayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	RefundPayment(ctx context.Context, params squareclient.RefundCreateParams) (*sq.PaymentRefund, error)
}

// WalletGateway adapts the wallet/redirect processor. Initiate creates a
// provider-hosted order with delayed capture; the buyer approves out-of-band
// and Confirm captures the funds.
type WalletGateway struct {
	api    walletAPI
	logger *logger.Logger
}

// NewWalletGateway wires the wallet gateway onto the square wrapper.
func NewWalletGateway(api walletAPI, logg *logger.Logger) (*WalletGateway, error) {
	if api == nil {
		return nil, fmt.Errorf("wallet api required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &WalletGateway{api: api, logger: logg}, nil
}

// Method identifies the provider slot this gateway fills.
func (g *WalletGateway) Method() enums.PaymentMethod {
	return enums.PaymentMethodWallet
}

// Initiate authorizes a provider-hosted order and returns its id.
func (g *WalletGateway) Initiate(ctx context.Context, amountCents int, currency enums.Currency) (*ClientHandle, error) {
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid currency")
	}

	payment, err := g.api.CreatePayment(ctx, squareclient.PaymentCreateParams{
		AmountCents:  int64(amountCents),
		Currency:     currency.String(),
		SourceID:     "EXTERNAL",
		Autocomplete: false,
	})
	if err != nil {
		return nil, err
	}

	reference := stringValue(payment.GetID())
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInconsistent, "provider order created without an id")
	}

	return &ClientHandle{
		Method:    enums.PaymentMethodWallet,
		Reference: reference,
	}, nil
}

// Confirm captures the approved provider order. methodDetails is unused for
// the wallet flow; approval happened in the provider-hosted page.
func (g *WalletGateway) Confirm(ctx context.Context, handle ClientHandle, methodDetails string) (*PaymentResult, error) {
	if handle.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider order reference is required")
	}

	payment, err := g.api.CompletePayment(ctx, handle.Reference)
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

	status := strings.ToUpper(stringValue(payment.GetStatus()))
	captureID := stringValue(payment.GetID())

	if status != "COMPLETED" {
		return &PaymentResult{
			Status:            enums.PaymentStatusFailed,
			ProviderReference: captureID,
			Message:           fmt.Sprintf("capture ended in status %s", status),
			Raw:               rawPayload(payment),
		}, nil
	}

	if captureID == "" {
		logCtx := g.logger.WithField(ctx, "gateway", "wallet")
		g.logger.Error(logCtx, "succeeded capture with no provider reference", nil)
		return nil, pkgerrors.New(pkgerrors.CodeInconsistent, "succeeded capture with no provider reference")
	}

	return &PaymentResult{
		Status:            enums.PaymentStatusSucceeded,
		ProviderReference: captureID,
		Raw:               rawPayload(payment),
	}, nil
}

// Verify re-reads the provider payment. A retried commit uses it to check
// that a stored reference still denotes a captured payment.
func (g *WalletGateway) Verify(ctx context.Context, providerRef string) (*PaymentResult, error) {
	if providerRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider reference is required")
	}

	payment, err := g.api.GetPayment(ctx, providerRef)
	if err != nil {
		return nil, err
	}

	status := strings.ToUpper(stringValue(payment.GetStatus()))
	if status != "COMPLETED" {
		return &PaymentResult{
			Status:            enums.PaymentStatusFailed,
			ProviderReference: stringValue(payment.GetID()),
			Message:           fmt.Sprintf("payment is in status %s", status),
		}, nil
	}

	return &PaymentResult{
		Status:            enums.PaymentStatusSucceeded,
		ProviderReference: stringValue(payment.GetID()),
	}, nil
}

// Refund issues a refund against the captured payment.
func (g *WalletGateway) Refund(ctx context.Context, providerRef string, amountCents int, currency enums.Currency, idempotencyKey string) (*RefundResult, error) {
	if providerRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider reference is required")
	}
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}

	refund, err := g.api.RefundPayment(ctx, squareclient.RefundCreateParams{
		PaymentID:      providerRef,
		AmountCents:    int64(amountCents),
		Currency:       currency.String(),
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeRefundFailed, err, "wallet refund failed")
	}

	status := enums.PaymentStatusSucceeded
	if s := strings.ToUpper(stringValue(refund.GetStatus())); s == "FAILED" || s == "REJECTED" {
		status = enums.PaymentStatusFailed
	}

	return &RefundResult{
		Status:           status,
		ProviderRefundID: refund.GetID(),
	}, nil
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
