// Package sandbox is an always-accepting in-process gateway for development
// and tests. Webhooks are trusted when the shared secret matches.
package sandbox

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/campuskit/billing/internal/gateway/domain"
	"github.com/google/uuid"
)

const signatureHeader = "Sandbox-Signature"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "sandbox"
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	secret, _ := cfg.Config["webhook_secret"].(string)
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, domain.ErrInvalidConfig
	}
	return &Adapter{webhookSecret: secret}, nil
}

type Adapter struct {
	webhookSecret string
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get(signatureHeader))
	if signature == "" {
		return domain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*domain.Event, error) {
	var event struct {
		ID            string `json:"id"`
		Type          string `json:"type"`
		TransactionID string `json:"transaction_id"`
		Amount        int64  `json:"amount"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if event.ID == "" || event.TransactionID == "" {
		return nil, domain.ErrInvalidEvent
	}

	switch event.Type {
	case domain.EventTypePaymentSucceeded, domain.EventTypePaymentFailed,
		domain.EventTypeRefunded, domain.EventTypeDisputeOpened:
	default:
		return nil, domain.ErrEventIgnored
	}

	return &domain.Event{
		Provider:        "sandbox",
		ProviderEventID: event.ID,
		Type:            event.Type,
		TransactionID:   event.TransactionID,
		Amount:          event.Amount,
		OccurredAt:      time.Now().UTC(),
		RawPayload:      payload,
	}, nil
}

func (a *Adapter) Submit(ctx context.Context, req domain.SubmitRequest) (domain.SubmitResult, error) {
	return domain.SubmitResult{
		Accepted:      true,
		TransactionID: "sbx_" + uuid.NewString(),
	}, nil
}

// SignPayload computes the webhook signature the adapter expects; exported
// for tests and the local gateway simulator.
func SignPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
