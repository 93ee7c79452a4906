// Package flux integrates the Flux payment processor: HMAC-signed webhooks
// and a JSON submission endpoint.
package flux

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/campuskit/billing/internal/gateway/domain"
)

const signatureHeader = "Flux-Signature"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "flux"
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	secret, ok := readString(cfg.Config, "webhook_secret")
	if !ok || strings.TrimSpace(secret) == "" {
		return nil, domain.ErrInvalidConfig
	}
	apiKey, _ := readString(cfg.Config, "api_key")
	endpoint, _ := readString(cfg.Config, "endpoint")

	return &Adapter{
		webhookSecret: strings.TrimSpace(secret),
		apiKey:        strings.TrimSpace(apiKey),
		endpoint:      strings.TrimSpace(endpoint),
		client:        &http.Client{},
	}, nil
}

type Adapter struct {
	webhookSecret string
	apiKey        string
	endpoint      string
	client        *http.Client
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get(signatureHeader))
	if sigHeader == "" {
		return domain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignature(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return domain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*domain.Event, error) {
	var event fluxEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	var eventType string
	switch strings.TrimSpace(event.Type) {
	case "charge.succeeded":
		eventType = domain.EventTypePaymentSucceeded
	case "charge.failed":
		eventType = domain.EventTypePaymentFailed
	case "charge.refunded":
		eventType = domain.EventTypeRefunded
	case "charge.disputed":
		eventType = domain.EventTypeDisputeOpened
	default:
		return nil, domain.ErrEventIgnored
	}

	if strings.TrimSpace(event.Data.TransactionID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	occurredAt := time.Unix(event.Created, 0).UTC()
	if event.Created == 0 {
		occurredAt = time.Now().UTC()
	}

	return &domain.Event{
		Provider:        "flux",
		ProviderEventID: event.ID,
		Type:            eventType,
		TransactionID:   event.Data.TransactionID,
		Amount:          event.Data.Amount,
		OccurredAt:      occurredAt,
		RawPayload:      payload,
	}, nil
}

func (a *Adapter) Submit(ctx context.Context, req domain.SubmitRequest) (domain.SubmitResult, error) {
	if a.endpoint == "" || a.apiKey == "" {
		return domain.SubmitResult{}, domain.ErrInvalidConfig
	}

	body, err := json.Marshal(map[string]any{
		"reference": req.ReceiptNumber,
		"amount":    req.Amount,
	})
	if err != nil {
		return domain.SubmitResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/v1/charges", bytes.NewReader(body))
	if err != nil {
		return domain.SubmitResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return domain.SubmitResult{}, domain.ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.SubmitResult{}, domain.ErrGatewayUnavailable
	}

	var result struct {
		Accepted      bool   `json:"accepted"`
		TransactionID string `json:"transaction_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.SubmitResult{}, domain.ErrGatewayUnavailable
	}
	if result.TransactionID == "" {
		return domain.SubmitResult{}, domain.ErrGatewayUnavailable
	}

	return domain.SubmitResult{Accepted: result.Accepted, TransactionID: result.TransactionID}, nil
}

type fluxEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		TransactionID string `json:"transaction_id"`
		Amount        int64  `json:"amount"`
	} `json:"data"`
}

func parseSignature(header string) (string, []string, error) {
	var timestamp string
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		pair := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(pair) != 2 {
			continue
		}
		switch pair[0] {
		case "t":
			if _, err := strconv.ParseInt(pair[1], 10, 64); err != nil {
				return "", nil, err
			}
			timestamp = pair[1]
		case "v1":
			signatures = append(signatures, pair[1])
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		return "", nil, domain.ErrInvalidSignature
	}
	return timestamp, signatures, nil
}

func readString(config map[string]any, key string) (string, bool) {
	if config == nil {
		return "", false
	}
	value, ok := config[key]
	if !ok {
		return "", false
	}
	typed, ok := value.(string)
	return typed, ok
}
