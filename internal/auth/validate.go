package auth

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"riskboard/internal/errors"
)

var validate = validator.New()

type credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateSignUp checks the fields a new account needs
func validateSignUp(email, password string) error {
	err := validate.Struct(credentials{Email: normalizeEmail(email), Password: password})
	if err == nil {
		return nil
	}

	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		switch verrs[0].Field() {
		case "Email":
			return errors.InvalidInput("Please enter a valid email address")
		case "Password":
			return errors.InvalidInput("Password is required")
		}
	}
	return errors.InvalidInput("Invalid sign-up details")
}
