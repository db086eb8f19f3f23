// Package domain defines the reconciliation engine: the single idempotent
// operation that turns a gateway-confirmed payment into exactly one balance
// credit.
package domain

import (
	"context"
	"errors"
)

// Reason explains why a reconciliation call did not credit.
type Reason string

const (
	ReasonAlreadyCompleted   Reason = "already_completed"
	ReasonNotYetSuccessful   Reason = "not_yet_successful"
	ReasonVerificationFailed Reason = "verification_failed"
	ReasonGatewayRejected    Reason = "gateway_rejected"
)

// Result is the outcome of one reconciliation call. Credited is true only
// for the single call that applied the credit; every other call for the
// same reference reports a reason instead.
type Result struct {
	Credited         bool   `json:"credited"`
	Reason           Reason `json:"reason,omitempty"`
	PaymentReference string `json:"payment_reference"`
	SlotsCredited    int    `json:"slots_credited,omitempty"`
	AvailableSlots   int    `json:"available_slots,omitempty"`
	Message          string `json:"message,omitempty"`
}

type Service interface {
	// Reconcile drives a purchase to its true terminal state. Safe to call
	// any number of times, from webhooks, operators, or the poller.
	Reconcile(ctx context.Context, reference string) (*Result, error)
	// HandleWebhook authenticates an inbound gateway event and feeds its
	// reference through Reconcile. Event fields are never trusted for
	// crediting.
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*Result, error)
}

var (
	ErrInvalidSignature = errors.New("webhook_invalid_signature")
	ErrInvalidPayload   = errors.New("webhook_invalid_payload")
	ErrEventIgnored     = errors.New("webhook_event_ignored")
)
