package paymentidentifier

import (
	"encoding/json"
	"fmt"

	x402 "github.com/algorandfoundation/x402"
)

// parseExtension converts an extension interface{} to a PaymentIdentifierExtension.
// This centralizes the marshal/unmarshal pattern used throughout the package.
func parseExtension(extension interface{}) (*PaymentIdentifierExtension, error) {
	extBytes, err := json.Marshal(extension)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extension: %w", err)
	}

	var ext PaymentIdentifierExtension
	if err := json.Unmarshal(extBytes, &ext); err != nil {
		return nil, fmt.Errorf("failed to unmarshal extension: %w", err)
	}

	return &ext, nil
}

// getPaymentIdentifierExtension extracts the raw payment-identifier extension from a payload.
// Returns the raw extension and true if found, or nil and false if not present.
func getPaymentIdentifierExtension(payload x402.PaymentPayload) (interface{}, bool) {
	if payload.Extensions == nil {
		return nil, false
	}
	ext, ok := payload.Extensions[PAYMENT_IDENTIFIER]
	return ext, ok
}

// IsPaymentIdentifierExtension checks if an object is a valid payment-identifier extension structure.
//
// This checks for the basic structure (info object with required boolean),
// but does not validate the id format if present.
//
// Args:
//   - extension: The object to check
//
// Returns:
//   - True if the object has the expected payment-identifier extension structure
func IsPaymentIdentifierExtension(extension interface{}) bool {
	if extension == nil {
		return false
	}

	// Try to marshal and unmarshal to check structure
	extBytes, err := json.Marshal(extension)
	if err != nil {
		return false
	}

	// Check for the basic structure: must have "info" with "required" boolean
	var raw struct {
		Info *struct {
			Required *bool `json:"required"`
		} `json:"info"`
	}
	if err := json.Unmarshal(extBytes, &raw); err != nil {
		return false
	}

	// Must have info object with required field
	if raw.Info == nil || raw.Info.Required == nil {
		return false
	}

	return true
}

// ValidatePaymentIdentifier validates a payment-identifier extension object.
//
// Checks both the structure (by decoding it into a PaymentIdentifierExtension
// through a JSON round-trip) and the ID format.
//
// Args:
//   - extension: The extension object to validate
//
// Returns:
//   - ValidationResult with errors if invalid
func ValidatePaymentIdentifier(extension interface{}) ValidationResult {
	if extension == nil {
		return ValidationResult{
			Valid:  false,
			Errors: []string{"Extension must be an object"},
		}
	}

	ext, err := parseExtension(extension)
	if err != nil {
		return ValidationResult{
			Valid:  false,
			Errors: []string{fmt.Sprintf("Extension must have an 'info' property: %v", err)},
		}
	}

	// Validate ID format if provided
	if ext.Info.ID != "" && !IsValidPaymentID(ext.Info.ID) {
		return ValidationResult{
			Valid: false,
			Errors: []string{
				fmt.Sprintf("Invalid payment ID format. ID must be %d-%d characters and contain only alphanumeric characters, hyphens, and underscores.",
					PAYMENT_ID_MIN_LENGTH, PAYMENT_ID_MAX_LENGTH),
			},
		}
	}

	return ValidationResult{Valid: true}
}

// ExtractPaymentIdentifier extracts the payment identifier from a PaymentPayload.
//
// Args:
//   - payload: The payment payload to extract from
//   - validate: Whether to validate the ID before returning
//
// Returns:
//   - The payment ID string, or empty string if not present
//   - Error if extraction fails or validation fails (when validate is true)
func ExtractPaymentIdentifier(payload x402.PaymentPayload, validate bool) (string, error) {
	ext, ok := getPaymentIdentifierExtension(payload)
	if !ok {
		return "", nil
	}

	paymentExt, err := parseExtension(ext)
	if err != nil {
		return "", err
	}

	if paymentExt.Info.ID == "" {
		return "", nil
	}

	if validate && !IsValidPaymentID(paymentExt.Info.ID) {
		return "", fmt.Errorf("invalid payment ID format")
	}

	return paymentExt.Info.ID, nil
}

// ExtractAndValidatePaymentIdentifier extracts and validates the payment identifier from a PaymentPayload.
//
// Args:
//   - payload: The payment payload to extract from
//
// Returns:
//   - The ID (or empty string if not present)
//   - ValidationResult with any errors
func ExtractAndValidatePaymentIdentifier(payload x402.PaymentPayload) (string, ValidationResult) {
	ext, ok := getPaymentIdentifierExtension(payload)
	if !ok {
		return "", ValidationResult{Valid: true}
	}

	validation := ValidatePaymentIdentifier(ext)
	if !validation.Valid {
		return "", validation
	}

	paymentExt, err := parseExtension(ext)
	if err != nil {
		return "", ValidationResult{
			Valid:  false,
			Errors: []string{err.Error()},
		}
	}

	return paymentExt.Info.ID, ValidationResult{Valid: true}
}

// HasPaymentIdentifier checks if a PaymentPayload contains a payment-identifier extension.
//
// Args:
//   - payload: The payment payload to check
//
// Returns:
//   - True if the extension is present
func HasPaymentIdentifier(payload x402.PaymentPayload) bool {
	_, ok := getPaymentIdentifierExtension(payload)
	return ok
}

// IsPaymentIdentifierRequired checks if the server requires a payment identifier
// based on the extension info.
//
// Args:
//   - extension: The payment-identifier extension from PaymentRequired or PaymentPayload
//
// Returns:
//   - True if the server requires a payment identifier
func IsPaymentIdentifierRequired(extension interface{}) bool {
	if extension == nil {
		return false
	}

	ext, err := parseExtension(extension)
	if err != nil {
		return false
	}

	return ext.Info.Required
}

// ValidatePaymentIdentifierRequirement validates that a payment identifier is provided when required.
//
// Use this to check if a client's PaymentPayload satisfies the server's requirement.
//
// Args:
//   - payload: The client's payment payload
//   - serverRequired: Whether the server requires a payment identifier (from PaymentRequired)
//
// Returns:
//   - ValidationResult - invalid if required but not provided
func ValidatePaymentIdentifierRequirement(payload x402.PaymentPayload, serverRequired bool) ValidationResult {
	if !serverRequired {
		return ValidationResult{Valid: true}
	}

	id, err := ExtractPaymentIdentifier(payload, false)
	if err != nil {
		return ValidationResult{
			Valid:  false,
			Errors: []string{fmt.Sprintf("Failed to extract payment identifier: %v", err)},
		}
	}

	if id == "" {
		return ValidationResult{
			Valid:  false,
			Errors: []string{"Server requires a payment identifier but none was provided"},
		}
	}

	// Validate the ID format
	if !IsValidPaymentID(id) {
		return ValidationResult{
			Valid: false,
			Errors: []string{
				fmt.Sprintf("Invalid payment ID format. ID must be %d-%d characters and contain only alphanumeric characters, hyphens, and underscores.",
					PAYMENT_ID_MIN_LENGTH, PAYMENT_ID_MAX_LENGTH),
			},
		}
	}

	return ValidationResult{Valid: true}
}

// ExtractPaymentIdentifierFromPaymentRequired extracts the required flag from
// a PaymentRequired response, so a client can determine whether it needs to
// attach a payment identifier before retrying with payment.
func ExtractPaymentIdentifierFromPaymentRequired(required x402.PaymentRequired) bool {
	if required.Extensions == nil {
		return false
	}

	ext, ok := required.Extensions[PAYMENT_IDENTIFIER]
	if !ok {
		return false
	}

	return IsPaymentIdentifierRequired(ext)
}
