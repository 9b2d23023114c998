package types

import "strings"

// Address is the shipping destination captured during checkout. It is stored
// as jsonb on orders so the record read back matches what was priced.
type Address struct {
	FullName    string `json:"full_name"`
	Street      string `json:"street"`
	City        string `json:"city"`
	Region      string `json:"region"`
	PostalCode  string `json:"postal_code"`
	CountryCode string `json:"country_code"`
	Phone       string `json:"phone"`
}

// IsComplete reports whether every field required for quoting and persistence
// is present.
func (a Address) IsComplete() bool {
	for _, field := range []string{a.FullName, a.Street, a.City, a.Region, a.PostalCode, a.CountryCode} {
		if strings.TrimSpace(field) == "" {
			return false
		}
	}
	return true
}

// NormalizedCountry returns the upper-cased, trimmed country code.
func (a Address) NormalizedCountry() string {
	return strings.ToUpper(strings.TrimSpace(a.CountryCode))
}
