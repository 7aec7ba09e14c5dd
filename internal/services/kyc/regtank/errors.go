package regtank

import (
	"errors"
	"fmt"
)

// Error codes assigned by the client when the vendor did not supply one
const (
	CodeTimeout     = "timeout"
	CodeTransport   = "transport"
	CodeBadResponse = "bad_response"
	CodeRateLimited = "rate_limited"
)

// VendorError wraps a failed vendor call, preserving the vendor's code and message
type VendorError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

// Error implements the error interface
func (e *VendorError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("regtank %s: status %d [%s]: %s", e.Op, e.StatusCode, e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("regtank %s [%s]: %s: %v", e.Op, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("regtank %s [%s]: %s", e.Op, e.Code, e.Message)
}

// Unwrap supports error unwrapping
func (e *VendorError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the call may succeed if repeated
func (e *VendorError) Retryable() bool {
	return e.Code == CodeTimeout || e.Code == CodeTransport || e.Code == CodeRateLimited || e.StatusCode >= 500
}

// IsVendorError reports whether err carries a VendorError
func IsVendorError(err error) bool {
	var ve *VendorError
	return errors.As(err, &ve)
}
