package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	EventTypePaymentSucceeded = "payment_succeeded"
	EventTypePaymentFailed    = "payment_failed"
	EventTypeRefunded         = "refunded"
	EventTypeDisputeOpened    = "dispute_opened"
)

// Event is the canonical gateway event parsed by adapters.
type Event struct {
	Provider        string
	ProviderEventID string
	Type            string
	TransactionID   string
	Amount          int64
	OccurredAt      time.Time
	RawPayload      []byte
}

// EventRecord is the durable copy of a received webhook. The unique
// (provider, provider_event_id) index makes ingestion idempotent: a replay
// hits the existing row instead of applying the transition again.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	TenantID        snowflake.ID   `json:"tenant_id" gorm:"not null;index"`
	Provider        string         `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_gateway_events_provider_event,priority:1"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:ux_gateway_events_provider_event,priority:2"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	TransactionID   string         `json:"transaction_id" gorm:"type:text;not null"`
	PaymentID       snowflake.ID   `json:"payment_id" gorm:"index"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "gateway_events" }

// Config is a tenant's provider credentials, stored per (tenant, provider).
type Config struct {
	ID        snowflake.ID      `json:"id" gorm:"primaryKey"`
	TenantID  snowflake.ID      `json:"tenant_id" gorm:"not null;uniqueIndex:ux_gateway_configs_tenant_provider,priority:1"`
	Provider  string            `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_gateway_configs_tenant_provider,priority:2"`
	Config    datatypes.JSONMap `json:"config" gorm:"type:jsonb;not null"`
	IsActive  bool              `json:"is_active" gorm:"not null;default:true"`
	CreatedAt time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time         `json:"updated_at" gorm:"not null"`
}

func (Config) TableName() string { return "gateway_configs" }

type SubmitRequest struct {
	TenantID      snowflake.ID
	PaymentID     snowflake.ID
	ReceiptNumber string
	Amount        int64
}

type SubmitResult struct {
	Accepted      bool
	TransactionID string
}

// AdapterConfig carries the decoded per-tenant provider settings into a
// factory.
type AdapterConfig struct {
	TenantID snowflake.ID
	Config   map[string]any
}

// Adapter is one provider integration: outbound submission plus inbound
// webhook verification and parsing.
type Adapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*Event, error)
	Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error)
}

type Factory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Adapter, error)
}

// Submitter is the narrow outbound boundary the payment lifecycle uses.
type Submitter interface {
	Submit(ctx context.Context, tenantID snowflake.ID, provider string, req SubmitRequest) (SubmitResult, error)
}

// WebhookService ingests raw provider callbacks.
type WebhookService interface {
	Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) error
}
