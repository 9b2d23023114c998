package payments

import (
	"context"

	"github.com/novamart/orderflow/pkg/enums"
)

// ClientHandle is the provider-agnostic token handed to the client after
// initiation. For the card processor it carries the intent's client secret;
// for the wallet processor the provider-hosted order id is the reference and
// the secret is empty.
type ClientHandle struct {
	Method       enums.PaymentMethod `json:"method"`
	Reference    string              `json:"reference"`
	ClientSecret string              `json:"client_secret,omitempty"`
}

// PaymentResult is the normalized outcome of a confirm call.
type PaymentResult struct {
	Status            enums.PaymentStatus `json:"status"`
	ProviderReference string              `json:"provider_reference"`
	Message           string              `json:"message,omitempty"`
	Raw               map[string]any      `json:"raw,omitempty"`
}

// Succeeded reports whether the payment completed.
func (r PaymentResult) Succeeded() bool {
	return r.Status == enums.PaymentStatusSucceeded
}

// RefundResult is the normalized outcome of a refund call.
type RefundResult struct {
	Status           enums.PaymentStatus `json:"status"`
	ProviderRefundID string              `json:"provider_refund_id"`
}

// Gateway normalizes the two external payment providers behind one shape.
// Declines come back as a failed PaymentResult, not an error; errors are
// reserved for conditions where no terminal provider answer exists (timeout,
// transport failure, inconsistent response).
type Gateway interface {
	Method() enums.PaymentMethod
	Initiate(ctx context.Context, amountCents int, currency enums.Currency) (*ClientHandle, error)
	Confirm(ctx context.Context, handle ClientHandle, methodDetails string) (*PaymentResult, error)
	// Verify re-reads an already-confirmed charge without moving money.
	Verify(ctx context.Context, providerRef string) (*PaymentResult, error)
	Refund(ctx context.Context, providerRef string, amountCents int, currency enums.Currency, idempotencyKey string) (*RefundResult, error)
}
