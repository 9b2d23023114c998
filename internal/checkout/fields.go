package checkout

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Field names as they appear in form payloads and progress documents.
const (
	FieldFullName    = "full_name"
	FieldEmail       = "email"
	FieldPhone       = "phone"
	FieldStreet      = "street"
	FieldCity        = "city"
	FieldRegion      = "region"
	FieldPostalCode  = "postal_code"
	FieldCountryCode = "country_code"
)

// RequiredFields lists every field that must validate before a session can
// reach the ready state.
var RequiredFields = []string{
	FieldFullName,
	FieldEmail,
	FieldPhone,
	FieldStreet,
	FieldCity,
	FieldRegion,
	FieldPostalCode,
	FieldCountryCode,
}

// FormData holds the buyer contact and shipping address collected across the
// checkout steps.
type FormData struct {
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Street      string `json:"street"`
	City        string `json:"city"`
	Region      string `json:"region"`
	PostalCode  string `json:"postal_code"`
	CountryCode string `json:"country_code"`
}

// Get returns the current value for a named field.
func (f FormData) Get(field string) string {
	switch field {
	case FieldFullName:
		return f.FullName
	case FieldEmail:
		return f.Email
	case FieldPhone:
		return f.Phone
	case FieldStreet:
		return f.Street
	case FieldCity:
		return f.City
	case FieldRegion:
		return f.Region
	case FieldPostalCode:
		return f.PostalCode
	case FieldCountryCode:
		return f.CountryCode
	}
	return ""
}

// Set assigns a named field, returning false for unknown names.
func (f *FormData) Set(field, value string) bool {
	switch field {
	case FieldFullName:
		f.FullName = value
	case FieldEmail:
		f.Email = value
	case FieldPhone:
		f.Phone = value
	case FieldStreet:
		f.Street = value
	case FieldCity:
		f.City = value
	case FieldRegion:
		f.Region = value
	case FieldPostalCode:
		f.PostalCode = value
	case FieldCountryCode:
		f.CountryCode = value
	default:
		return false
	}
	return true
}

var (
	fieldValidator = validator.New(validator.WithRequiredStructEnabled())
	nonDigits      = regexp.MustCompile(`\D`)
)

// ValidateField checks a single field and returns an empty string when it
// passes. Only the named field is examined; the rest of the form is left
// alone.
func ValidateField(field, value string) string {
	trimmed := strings.TrimSpace(value)
	switch field {
	case FieldFullName:
		if len(trimmed) < 2 {
			return "name must be at least 2 characters"
		}
	case FieldEmail:
		if err := fieldValidator.Var(trimmed, "required,email"); err != nil {
			return "email address is not valid"
		}
	case FieldPhone:
		digits := nonDigits.ReplaceAllString(trimmed, "")
		if len(digits) < 8 || len(digits) > 10 {
			return "phone number must contain 8 to 10 digits"
		}
	case FieldStreet, FieldCity, FieldRegion, FieldPostalCode, FieldCountryCode:
		if trimmed == "" {
			return "this field is required"
		}
	default:
		return "unknown field"
	}
	return ""
}

// ValidateAll runs every required field through ValidateField and returns the
// map of failing fields.
func ValidateAll(form FormData) map[string]string {
	errs := map[string]string{}
	for _, field := range RequiredFields {
		if msg := ValidateField(field, form.Get(field)); msg != "" {
			errs[field] = msg
		}
	}
	return errs
}
