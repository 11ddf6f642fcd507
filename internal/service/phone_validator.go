package service

import (
	"github.com/nyaruka/phonenumbers"

	appErrors "github.com/unclebandit/smsleopard-intake/internal/errors"
	"github.com/unclebandit/smsleopard-intake/internal/model"
)

// PhoneValidator decides whether a destination is a dialable international number.
type PhoneValidator interface {
	Validate(raw string) error
}

// LibPhoneValidator checks numbers against libphonenumber metadata. Numbers
// are parsed without a default region, so they must carry a country code.
type LibPhoneValidator struct{}

func NewPhoneValidator() *LibPhoneValidator {
	return &LibPhoneValidator{}
}

// Validate returns nil for a valid number or a *PhoneValidationError whose
// reason is either the parser's message or "Invalid phone number".
func (LibPhoneValidator) Validate(raw string) error {
	num, err := phonenumbers.Parse(raw, "")
	if err != nil {
		return &appErrors.PhoneValidationError{Reason: err.Error(), Err: err}
	}
	if !phonenumbers.IsValidNumber(num) {
		return &appErrors.PhoneValidationError{Reason: model.ReasonInvalidPhone}
	}
	return nil
}

var _ PhoneValidator = LibPhoneValidator{}
