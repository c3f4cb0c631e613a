// Package forms validates user input before anything is sent to the backend.
package forms

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MinPasswordLength is the shortest password accepted at registration
const MinPasswordLength = 6

// MinRecipientLength is the shortest username worth checking with the backend
const MinRecipientLength = 3

var (
	ErrMissingFields    = errors.New("please fill in all fields")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
	ErrInvalidRecipient = errors.New("recipient is not valid")
	ErrSelfTransfer     = errors.New("you cannot send money to yourself")
	ErrInvalidAmount    = errors.New("enter a valid amount")
)

type Login struct {
	Username string `validate:"required"`
	Password string `validate:"required"`
}

type Registration struct {
	Username        string `validate:"required"`
	Password        string `validate:"required,min=6"`
	ConfirmPassword string `validate:"required,eqfield=Password"`
}

type Transfer struct {
	Recipient   string `validate:"required,min=3"`
	Amount      string `validate:"required,amount"`
	Description string `validate:"max=255"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		_, err := ParseAmount(fl.Field().String())
		return err == nil
	})
	return v
}

// ParseAmount parses a positive, finite amount
func ParseAmount(s string) (float64, error) {
	amount, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, ErrInvalidAmount
	}
	return amount, nil
}

func ValidateLogin(f Login) error {
	return check(f)
}

// ValidateRegistration checks that every field is filled in, the passwords
// match and the password is long enough, reporting the first problem found
// in that order.
func ValidateRegistration(f Registration) error {
	return check(f)
}

// ValidateTransfer checks the transfer form of currentUser and returns the
// parsed amount.
func ValidateTransfer(f Transfer, currentUser string) (float64, error) {
	if err := check(f); err != nil {
		return 0, err
	}
	if f.Recipient == currentUser {
		return 0, ErrSelfTransfer
	}
	return ParseAmount(f.Amount)
}

// ValidateRecipient is the cheap check done before asking the backend
// whether a recipient exists.
func ValidateRecipient(recipient, currentUser string) error {
	if len(recipient) < MinRecipientLength {
		return ErrInvalidRecipient
	}
	if recipient == currentUser {
		return ErrSelfTransfer
	}
	return nil
}

// ordered by how the problems are reported to the user
var tagErrors = []struct {
	tag   string
	field string
	err   error
}{
	{"required", "", ErrMissingFields},
	{"eqfield", "", ErrPasswordMismatch},
	{"min", "Password", ErrPasswordTooShort},
	{"min", "Recipient", ErrInvalidRecipient},
	{"amount", "", ErrInvalidAmount},
}

func check(form any) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	for _, te := range tagErrors {
		for _, fe := range verrs {
			if fe.Tag() == te.tag && (te.field == "" || fe.Field() == te.field) {
				return te.err
			}
		}
	}
	return verrs
}
