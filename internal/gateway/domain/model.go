// Package domain defines the payment gateway boundary. Any provider that can
// initialize a hosted payment, verify a transaction by reference, and sign
// its webhooks can back the slot purchase flow.
package domain

import (
	"context"
	"errors"
)

// InitializeRequest starts a hosted payment for a slot purchase. Amount is
// in minor currency units. RoutingToken tells the provider how to split
// funds for the chapter.
type InitializeRequest struct {
	Amount       int64
	Reference    string
	Email        string
	RoutingToken string
	CallbackURL  string
	Metadata     map[string]any
}

type InitializeResponse struct {
	RedirectURL string
	AccessCode  string
}

type VerifyStatus string

const (
	VerifyStatusSuccess VerifyStatus = "success"
	VerifyStatusFailed  VerifyStatus = "failed"
	VerifyStatusPending VerifyStatus = "pending"
)

// VerifyResult is the gateway's authoritative answer for one reference.
type VerifyResult struct {
	Status           VerifyStatus
	AmountPaid       int64
	GatewayReference string
	RawResponse      []byte
}

// Adapter is the provider boundary consumed by the purchase ledger and the
// reconciliation engine.
type Adapter interface {
	Provider() string
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResponse, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
	// ValidateWebhookSignature authenticates the webhook sender. It says
	// nothing about the current truth of the transaction; crediting always
	// goes through Verify.
	ValidateWebhookSignature(payload []byte, signature string) bool
}

// AdapterConfig carries provider credentials from configuration.
type AdapterConfig struct {
	Provider    string
	BaseURL     string
	SecretKey   string
	CallbackURL string
	Config      map[string]any
}

// AdapterFactory builds an adapter for one provider key.
type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Adapter, error)
}

var (
	ErrProviderNotFound  = errors.New("gateway_provider_not_found")
	ErrInvalidConfig     = errors.New("gateway_invalid_config")
	ErrInitializeFailed  = errors.New("gateway_initialize_failed")
	ErrVerifyUnavailable = errors.New("gateway_verify_unavailable")
	ErrInvalidSignature  = errors.New("gateway_invalid_signature")
	ErrReferenceNotFound = errors.New("gateway_reference_not_found")
)
