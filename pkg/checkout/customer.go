// Package checkout orchestrates order submission: customer validation,
// duplicate-submission guarding, payload transformation and payment
// dispatch.
package checkout

import (
	"regexp"
	"strings"
)

// CustomerInfo is the customer form as submitted.
type CustomerInfo struct {
	Email      string `json:"email"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// FieldErrors maps form field names to user-facing messages. Iteration
// order is irrelevant; FirstInvalid carries the field to focus.
type FieldErrors map[string]string

// ValidationResult reports form validation.
type ValidationResult struct {
	Valid        bool        `json:"valid"`
	Errors       FieldErrors `json:"errors,omitempty"`
	FirstInvalid string      `json:"firstInvalid,omitempty"`
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Country-specific phone patterns. Anything not listed falls back to a
// generic digit-count check.
var phonePatterns = map[string]*regexp.Regexp{
	"FR": regexp.MustCompile(`^(\+33|0)[1-9](\d{2}){4}$`),
	"BE": regexp.MustCompile(`^(\+32|0)\d{8,9}$`),
	"CH": regexp.MustCompile(`^(\+41|0)\d{9}$`),
	"LU": regexp.MustCompile(`^(\+352)?\d{6,9}$`),
}

var genericPhone = regexp.MustCompile(`^\+?\d{10,15}$`)

// fieldOrder fixes which invalid field is reported first, matching the
// form's visual order.
var fieldOrder = []string{"email", "firstName", "lastName", "phone", "address", "city", "postalCode", "country"}

// Validate checks the customer form. The phone rule depends on the
// selected country.
func (c *CustomerInfo) Validate() *ValidationResult {
	errors := FieldErrors{}

	email := strings.TrimSpace(c.Email)
	if email == "" {
		errors["email"] = "L'adresse e-mail est requise"
	} else if !emailPattern.MatchString(email) {
		errors["email"] = "L'adresse e-mail est invalide"
	}

	if strings.TrimSpace(c.FirstName) == "" {
		errors["firstName"] = "Le prénom est requis"
	}
	if strings.TrimSpace(c.LastName) == "" {
		errors["lastName"] = "Le nom est requis"
	}

	phone := stripPhoneNoise(c.Phone)
	if phone == "" {
		errors["phone"] = "Le numéro de téléphone est requis"
	} else if !validPhone(phone, strings.ToUpper(strings.TrimSpace(c.Country))) {
		errors["phone"] = "Le numéro de téléphone est invalide"
	}

	if strings.TrimSpace(c.Address) == "" {
		errors["address"] = "L'adresse est requise"
	}
	if strings.TrimSpace(c.City) == "" {
		errors["city"] = "La ville est requise"
	}
	if strings.TrimSpace(c.PostalCode) == "" {
		errors["postalCode"] = "Le code postal est requis"
	}
	if strings.TrimSpace(c.Country) == "" {
		errors["country"] = "Le pays est requis"
	}

	result := &ValidationResult{Valid: len(errors) == 0, Errors: errors}
	if !result.Valid {
		for _, f := range fieldOrder {
			if _, bad := errors[f]; bad {
				result.FirstInvalid = f
				break
			}
		}
	}
	return result
}

func validPhone(phone, country string) bool {
	if p, ok := phonePatterns[country]; ok {
		return p.MatchString(phone)
	}
	return genericPhone.MatchString(phone)
}

// stripPhoneNoise removes spaces, dots, dashes and parentheses so user
// formatting never fails validation.
func stripPhoneNoise(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch r {
		case ' ', '.', '-', '(', ')':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
