// Package provider reconciles email vendors behind one send/receive/verify
// contract. Exactly one adapter is active per deployment.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"clawderous/internal/domain"
)

var (
	ErrNotFound         = errors.New("provider not found")
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrBadSignature     = errors.New("invalid webhook signature")
)

type Provider interface {
	Name() string

	// SendEmail delivers req and returns the vendor's message id.
	SendEmail(ctx context.Context, req *domain.OutboundSendRequest) (string, error)

	// HandleInboundWebhook decodes a raw webhook body into the canonical
	// model. contentType is the request's Content-Type header.
	HandleInboundWebhook(ctx context.Context, body []byte, contentType string) (*domain.InboundEmail, error)

	// SignatureFromHeaders extracts the value VerifyWebhookSignature expects.
	SignatureFromHeaders(h http.Header) string

	// VerifyWebhookSignature is false for an empty signature and whenever the
	// adapter has no verification key configured.
	VerifyWebhookSignature(payload []byte, signature string) bool

	// ValidateConfig performs a cheap credential check against the vendor.
	ValidateConfig(ctx context.Context) (bool, error)
}

// ProviderError reports a failed send: transport failure or non-2xx status.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s API error: %d - %s", e.Provider, e.StatusCode, e.Body)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ParseError reports an inbound payload that does not fit the vendor schema.
type ParseError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s inbound: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s inbound: %s", e.Provider, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }
