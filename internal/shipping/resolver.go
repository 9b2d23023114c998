package shipping

import (
	"context"
	"fmt"
	"strings"

	"github.com/novamart/orderflow/pkg/enums"
	pkgerrors "github.com/novamart/orderflow/pkg/errors"
	"github.com/novamart/orderflow/pkg/logger"
	"github.com/novamart/orderflow/pkg/metrics"
)

// Destination is the subset of the address needed for quoting.
type Destination struct {
	CountryCode string
	Region      string
	City        string
}

// Quote is the resolved shipping estimate applied to a checkout. It is always
// recomputed when destination or method changes and never persisted on its
// own.
type Quote struct {
	CostCents     int                  `json:"cost_cents"`
	Zone          string               `json:"zone"`
	EstimatedDays int                  `json:"estimated_days"`
	Method        enums.ShippingMethod `json:"method"`
	Source        enums.QuoteSource    `json:"source"`
	NeedsReview   bool                 `json:"needs_review"`
}

type rateQuoter interface {
	Rate(ctx context.Context, dest Destination, weightGrams int, method enums.ShippingMethod) (*Quote, error)
}

// Resolver produces shipping quotes with the remote-then-fallback strategy.
// Shipping cost is never a hard failure point in checkout: when both tiers
// miss, Resolve returns a zero-cost quote flagged for manual review.
type Resolver struct {
	remote  rateQuoter
	logger  *logger.Logger
	metrics *metrics.CommerceMetrics
}

// NewResolver builds the resolver. The remote quoter may be nil when no rate
// service is configured; resolution then starts at the fallback table.
func NewResolver(remote rateQuoter, logg *logger.Logger, m *metrics.CommerceMetrics) (*Resolver, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Resolver{remote: remote, logger: logg, metrics: m}, nil
}

// Resolve returns a quote for the destination, weight, and method.
func (r *Resolver) Resolve(ctx context.Context, dest Destination, weightGrams int, method enums.ShippingMethod) (*Quote, error) {
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid shipping method")
	}
	if strings.TrimSpace(dest.CountryCode) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "destination country is required")
	}
	if weightGrams < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "weight must be non-negative")
	}

	if r.remote != nil {
		quote, err := r.remote.Rate(ctx, dest, weightGrams, method)
		if err == nil {
			return quote, nil
		}
		logCtx := r.logger.WithFields(ctx, map[string]any{
			"country": dest.CountryCode,
			"method":  method.String(),
		})
		r.logger.Warn(logCtx, fmt.Sprintf("remote rate service failed, using fallback table: %v", err))
		r.metrics.IncQuoteFallback("remote_failure")
	}

	if quote := lookupFallback(dest.CountryCode, method); quote != nil {
		return quote, nil
	}

	logCtx := r.logger.WithField(ctx, "country", dest.CountryCode)
	r.logger.Warn(logCtx, "destination unknown to rate service and fallback table, flagging for review")
	r.metrics.IncQuoteFallback("unknown_destination")

	return &Quote{
		CostCents:     0,
		Zone:          "unknown",
		EstimatedDays: 0,
		Method:        method,
		Source:        enums.QuoteSourceFallbackTable,
		NeedsReview:   true,
	}, nil
}
