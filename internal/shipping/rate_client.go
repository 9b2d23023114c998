package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/novamart/orderflow/pkg/enums"
	pkgerrors "github.com/novamart/orderflow/pkg/errors"
)

const (
	defaultRateTimeout       = 3 * time.Second
	rateBodyReadLimit  int64 = 1024
)

var errRateURLRequired = errors.New("shipping rate service url is required")

// RateClient calls the remote shipping rate service. Failures of any kind are
// reported as errors so the resolver can fall back; the client never blocks
// beyond its bounded timeout.
type RateClient struct {
	httpClient *http.Client
	baseURL    string
}

// RateOption configures optional client behavior.
type RateOption func(*RateClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) RateOption {
	return func(c *RateClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(timeout time.Duration) RateOption {
	return func(c *RateClient) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewRateClient builds the remote rate client.
func NewRateClient(baseURL string, opts ...RateOption) (*RateClient, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, errRateURLRequired
	}

	client := &RateClient{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: defaultRateTimeout},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

type rateRequest struct {
	Country string `json:"country"`
	City    string `json:"city,omitempty"`
	Weight  int    `json:"weight"`
	Method  string `json:"method"`
}

type rateResponse struct {
	ShippingCost  int    `json:"shippingCost"`
	EstimatedDays int    `json:"estimatedDays"`
	Zone          string `json:"zone"`
}

// Rate quotes the remote service for the destination and weight.
func (c *RateClient) Rate(ctx context.Context, dest Destination, weightGrams int, method enums.ShippingMethod) (*Quote, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayTimeout, "rate client not configured")
	}

	payload, err := json.Marshal(rateRequest{
		Country: dest.CountryCode,
		City:    dest.City,
		Weight:  weightGrams,
		Method:  method.String(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayTimeout, err, "marshal rate request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rates", bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayTimeout, err, "build rate request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayTimeout, err, "execute rate request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, rateBodyReadLimit))
		return nil, pkgerrors.Wrap(
			pkgerrors.CodeGatewayTimeout,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"rate request failed",
		)
	}

	var apiResp rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayTimeout, err, "decode rate response")
	}
	if apiResp.ShippingCost < 0 || apiResp.Zone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayTimeout, "malformed rate response")
	}

	return &Quote{
		CostCents:     apiResp.ShippingCost,
		Zone:          apiResp.Zone,
		EstimatedDays: apiResp.EstimatedDays,
		Method:        method,
		Source:        enums.QuoteSourceRemote,
	}, nil
}
