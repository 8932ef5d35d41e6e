package handlers

import (
	"errors"
	"strings"

	"chinasource/internal/forms"
	"chinasource/internal/services"
	"chinasource/internal/storage"
)

const genericError = "Something went wrong. Please try again."

// authMessage maps auth failures to user-facing text.
func authMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, services.ErrEmailNotConfirmed):
		return "Please confirm your email address before signing in."
	case errors.Is(err, services.ErrWeakPassword):
		return "Password must be at least 6 characters."
	case errors.Is(err, services.ErrPasswordMismatch):
		return "Passwords do not match."
	case errors.Is(err, services.ErrInvalidEmail):
		return "Enter a valid email address."
	case errors.Is(err, services.ErrEmailTaken):
		return "An account with this email already exists."
	case errors.Is(err, services.ErrPhoneTaken):
		return "This phone number is already registered to another account."
	case errors.Is(err, services.ErrInvalidPhone):
		return "Phone number must have 10 digits."
	case errors.Is(err, services.ErrNameRequired):
		return "Please enter your name."
	case errors.Is(err, services.ErrInvalidRecovery), errors.Is(err, services.ErrInvalidToken):
		return "This link is invalid or has expired. Please request a new one."
	}
	return genericError
}

// dataMessage maps offer workflow failures to user-facing text. A missing
// bucket gets operator guidance since nothing else can fix it.
func dataMessage(err error) string {
	var ve *forms.ValidationError
	switch {
	case errors.As(err, &ve):
		return ve.Error()
	case errors.Is(err, storage.ErrBucketNotFound), strings.Contains(err.Error(), "Bucket not found"):
		return "Image storage is not set up: the product image bucket does not exist. An administrator must create it before images can be uploaded."
	case errors.Is(err, services.ErrNotFound):
		return "The requested record was not found."
	case errors.Is(err, services.ErrStatusUnchanged):
		return "Select a different status before saving."
	}
	return genericError
}
