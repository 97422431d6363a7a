package http

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"

	x402 "github.com/algorandfoundation/x402"
)

// base64Regex requires at least one character.
var base64Regex = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)

// ValidateAndDecodePaymentHeader validates and decodes an X-PAYMENT header
// value. It checks base64 format, JSON structure, and required fields before
// unmarshaling into a PaymentPayload.
func ValidateAndDecodePaymentHeader(paymentHeader string) (*x402.PaymentPayload, error) {
	if paymentHeader == "" {
		return nil, fmt.Errorf("payment header is empty")
	}

	if !base64Regex.MatchString(paymentHeader) {
		return nil, fmt.Errorf("invalid payment header format: not valid base64")
	}

	decoded, err := base64.StdEncoding.DecodeString(paymentHeader)
	if err != nil {
		return nil, fmt.Errorf("invalid payment header format: base64 decoding failed - %v", err)
	}

	var rawPayload map[string]interface{}
	if err := json.Unmarshal(decoded, &rawPayload); err != nil {
		return nil, fmt.Errorf("invalid payment header format: not valid JSON - %v", err)
	}

	version, exists := rawPayload["x402Version"]
	if !exists {
		return nil, fmt.Errorf("missing required field: x402Version")
	}
	versionNum, ok := version.(float64)
	if !ok {
		return nil, fmt.Errorf("invalid field type: x402Version must be a number")
	}
	if int(versionNum) < 1 {
		return nil, fmt.Errorf("invalid value: x402Version must be at least 1")
	}

	if _, exists := rawPayload["accepted"]; !exists {
		return nil, fmt.Errorf("missing required field: accepted")
	}
	if _, ok := rawPayload["accepted"].(map[string]interface{}); !ok {
		return nil, fmt.Errorf("invalid field type: accepted must be an object")
	}

	if _, exists := rawPayload["payload"]; !exists {
		return nil, fmt.Errorf("missing required field: payload")
	}
	if _, ok := rawPayload["payload"].(map[string]interface{}); !ok {
		return nil, fmt.Errorf("invalid field type: payload must be an object")
	}

	var payload x402.PaymentPayload
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse payment payload: %v", err)
	}

	return &payload, nil
}
