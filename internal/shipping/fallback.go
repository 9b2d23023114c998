package shipping

import (
	"strings"

	"github.com/novamart/orderflow/pkg/enums"
)

// fallbackRate is one static zone table entry.
type fallbackRate struct {
	Zone     string
	BaseRate int
	Days     int
}

// Static country table used when the remote rate service fails. Express
// doubles the base rate and halves the lead time (minimum one day).
var fallbackTable = map[string]fallbackRate{
	"US": {Zone: "domestic", BaseRate: 500, Days: 5},
	"CA": {Zone: "north-america", BaseRate: 900, Days: 7},
	"MX": {Zone: "north-america", BaseRate: 900, Days: 8},
	"GB": {Zone: "europe", BaseRate: 1500, Days: 10},
	"DE": {Zone: "europe", BaseRate: 1500, Days: 10},
	"FR": {Zone: "europe", BaseRate: 1500, Days: 10},
	"ES": {Zone: "europe", BaseRate: 1500, Days: 11},
	"IT": {Zone: "europe", BaseRate: 1500, Days: 11},
	"JP": {Zone: "asia-pacific", BaseRate: 2200, Days: 12},
	"AU": {Zone: "asia-pacific", BaseRate: 2200, Days: 14},
}

// lookupFallback returns the table quote for a country, or nil when the
// country is absent.
func lookupFallback(countryCode string, method enums.ShippingMethod) *Quote {
	entry, ok := fallbackTable[strings.ToUpper(strings.TrimSpace(countryCode))]
	if !ok {
		return nil
	}

	cost := entry.BaseRate
	days := entry.Days
	if method == enums.ShippingMethodExpress {
		cost *= 2
		days = days / 2
		if days < 1 {
			days = 1
		}
	}

	return &Quote{
		CostCents:     cost,
		Zone:          entry.Zone,
		EstimatedDays: days,
		Method:        method,
		Source:        enums.QuoteSourceFallbackTable,
	}
}
