// Package paystack implements the gateway adapter for Paystack-compatible
// providers: split-code fund routing, hosted checkout, HMAC-SHA512 signed
// webhooks.
package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chapterhq/examslots/internal/gateway/domain"
)

type Factory struct {
	timeout time.Duration
}

func NewFactory(timeout time.Duration) *Factory {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Factory{timeout: timeout}
}

func (f *Factory) Provider() string {
	return "paystack"
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, domain.ErrInvalidConfig
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, domain.ErrInvalidConfig
	}

	return &Adapter{
		baseURL:     baseURL,
		secretKey:   secret,
		callbackURL: strings.TrimSpace(cfg.CallbackURL),
		client:      &http.Client{Timeout: f.timeout},
	}, nil
}

type Adapter struct {
	baseURL     string
	secretKey   string
	callbackURL string
	client      *http.Client
}

func (a *Adapter) Provider() string {
	return "paystack"
}

type initializePayload struct {
	Email       string         `json:"email"`
	Amount      int64          `json:"amount"`
	Reference   string         `json:"reference"`
	SplitCode   string         `json:"split_code,omitempty"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type initializeEnvelope struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

func (a *Adapter) Initialize(ctx context.Context, req domain.InitializeRequest) (*domain.InitializeResponse, error) {
	payload := initializePayload{
		Email:       req.Email,
		Amount:      req.Amount,
		Reference:   req.Reference,
		SplitCode:   req.RoutingToken,
		CallbackURL: req.CallbackURL,
		Metadata:    req.Metadata,
	}
	if payload.CallbackURL == "" {
		payload.CallbackURL = a.callbackURL
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInitializeFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInitializeFailed, err)
	}

	var envelope initializeEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: malformed response", domain.ErrInitializeFailed)
	}
	if resp.StatusCode != http.StatusOK || !envelope.Status {
		return nil, fmt.Errorf("%w: %s", domain.ErrInitializeFailed, strings.TrimSpace(envelope.Message))
	}
	if envelope.Data.AuthorizationURL == "" {
		return nil, fmt.Errorf("%w: missing authorization url", domain.ErrInitializeFailed)
	}

	return &domain.InitializeResponse{
		RedirectURL: envelope.Data.AuthorizationURL,
		AccessCode:  envelope.Data.AccessCode,
	}, nil
}

type verifyEnvelope struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		ID              int64  `json:"id"`
		Status          string `json:"status"`
		Amount          int64  `json:"amount"`
		Reference       string `json:"reference"`
		GatewayResponse string `json:"gateway_response"`
	} `json:"data"`
}

func (a *Adapter) Verify(ctx context.Context, reference string) (*domain.VerifyResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, domain.ErrReferenceNotFound
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.secretKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		// Timeouts and transport failures are inconclusive, never a
		// success and never an authoritative failure.
		return nil, fmt.Errorf("%w: %v", domain.ErrVerifyUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrVerifyUnavailable, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrReferenceNotFound
	}

	var envelope verifyEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: malformed response", domain.ErrVerifyUnavailable)
	}
	if resp.StatusCode != http.StatusOK || !envelope.Status {
		return nil, fmt.Errorf("%w: %s", domain.ErrVerifyUnavailable, strings.TrimSpace(envelope.Message))
	}

	return &domain.VerifyResult{
		Status:           mapVerifyStatus(envelope.Data.Status),
		AmountPaid:       envelope.Data.Amount,
		GatewayReference: strconv.FormatInt(envelope.Data.ID, 10),
		RawResponse:      raw,
	}, nil
}

func (a *Adapter) ValidateWebhookSignature(payload []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}

	mac := hmac.New(sha512.New, []byte(a.secretKey))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected))
}

func mapVerifyStatus(raw string) domain.VerifyStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success":
		return domain.VerifyStatusSuccess
	case "failed", "reversed":
		return domain.VerifyStatusFailed
	default:
		// ongoing, abandoned, queued and anything unrecognized stay
		// inconclusive.
		return domain.VerifyStatusPending
	}
}
