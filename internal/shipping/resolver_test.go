package shipping

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/novamart/orderflow/pkg/enums"
	pkgerrors "github.com/novamart/orderflow/pkg/errors"
	"github.com/novamart/orderflow/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test"})
}

func newTestResolver(t *testing.T, remote rateQuoter) *Resolver {
	t.Helper()
	r, err := NewResolver(remote, testLogger(), nil)
	if err != nil {
		t.Fatalf("building resolver: %v", err)
	}
	return r
}

type failingQuoter struct{}

func (failingQuoter) Rate(ctx context.Context, dest Destination, weightGrams int, method enums.ShippingMethod) (*Quote, error) {
	return nil, pkgerrors.New(pkgerrors.CodeGatewayTimeout, "rate request failed")
}

func TestResolvePrefersRemoteQuote(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rates" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"shippingCost": 1200, "estimatedDays": 4, "zone": "domestic"}`))
	}))
	defer srv.Close()

	client, err := NewRateClient(srv.URL)
	if err != nil {
		t.Fatalf("building rate client: %v", err)
	}
	resolver := newTestResolver(t, client)

	quote, err := resolver.Resolve(context.Background(), Destination{CountryCode: "US"}, 1000, enums.ShippingMethodStandard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.Source != enums.QuoteSourceRemote {
		t.Fatalf("source = %s, want remote", quote.Source)
	}
	if quote.CostCents != 1200 || quote.Zone != "domestic" || quote.EstimatedDays != 4 {
		t.Fatalf("unexpected quote: %+v", quote)
	}
}

func TestResolveFallsBackOnRemoteFailure(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"non-2xx", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{not json`))
		}},
		{"missing zone", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"shippingCost": 100, "estimatedDays": 3, "zone": ""}`))
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			client, err := NewRateClient(srv.URL)
			if err != nil {
				t.Fatalf("building rate client: %v", err)
			}
			resolver := newTestResolver(t, client)

			quote, err := resolver.Resolve(context.Background(), Destination{CountryCode: "US"}, 500, enums.ShippingMethodStandard)
			if err != nil {
				t.Fatalf("fallback must never surface a remote error, got %v", err)
			}
			if quote.Source != enums.QuoteSourceFallbackTable {
				t.Fatalf("source = %s, want fallback-table", quote.Source)
			}
			if quote.CostCents != 500 || quote.Zone != "domestic" {
				t.Fatalf("unexpected fallback quote: %+v", quote)
			}
		})
	}
}

func TestResolveFallsBackOnTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client, err := NewRateClient(srv.URL, WithTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatalf("building rate client: %v", err)
	}
	resolver := newTestResolver(t, client)

	quote, err := resolver.Resolve(context.Background(), Destination{CountryCode: "GB"}, 500, enums.ShippingMethodExpress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.Source != enums.QuoteSourceFallbackTable {
		t.Fatalf("source = %s, want fallback-table", quote.Source)
	}
	if quote.CostCents != 3000 {
		t.Fatalf("express doubles the GB base rate, got %d", quote.CostCents)
	}
}

func TestResolveUnknownDestinationFlagsForReview(t *testing.T) {
	t.Parallel()

	resolver := newTestResolver(t, failingQuoter{})

	quote, err := resolver.Resolve(context.Background(), Destination{CountryCode: "ZZ"}, 500, enums.ShippingMethodStandard)
	if err != nil {
		t.Fatalf("unknown destination must not error, got %v", err)
	}
	if !quote.NeedsReview {
		t.Fatal("expected quote flagged for review")
	}
	if quote.CostCents != 0 || quote.Zone != "unknown" {
		t.Fatalf("unexpected quote: %+v", quote)
	}
}

func TestResolveValidatesInput(t *testing.T) {
	t.Parallel()

	resolver := newTestResolver(t, nil)

	_, err := resolver.Resolve(context.Background(), Destination{}, 500, enums.ShippingMethodStandard)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = resolver.Resolve(context.Background(), Destination{CountryCode: "US"}, 500, enums.ShippingMethod("overnight"))
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLookupFallbackExpressAdjustsDays(t *testing.T) {
	t.Parallel()

	standard := lookupFallback("us", enums.ShippingMethodStandard)
	if standard == nil || standard.EstimatedDays != 5 {
		t.Fatalf("unexpected standard quote: %+v", standard)
	}

	express := lookupFallback("US", enums.ShippingMethodExpress)
	if express == nil || express.EstimatedDays != 2 || express.CostCents != 1000 {
		t.Fatalf("unexpected express quote: %+v", express)
	}

	if lookupFallback("ZZ", enums.ShippingMethodStandard) != nil {
		t.Fatal("unknown country must miss the table")
	}
}
