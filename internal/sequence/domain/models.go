package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// DocumentNumber reserves one suffix per (tenant, prefix, year). The unique
// index across those columns is what makes allocation safe under concurrent
// load; the read-max-then-insert path alone is not.
type DocumentNumber struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	TenantID snowflake.ID `gorm:"not null;uniqueIndex:ux_document_numbers_scope,priority:1"`
	Prefix   string       `gorm:"type:text;not null;uniqueIndex:ux_document_numbers_scope,priority:2"`
	Year     int          `gorm:"not null;uniqueIndex:ux_document_numbers_scope,priority:3"`
	Suffix   int64        `gorm:"not null;uniqueIndex:ux_document_numbers_scope,priority:4"`
	// Number is the rendered PREFIX-YEAR-NNNNNN form.
	Number    string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (DocumentNumber) TableName() string { return "document_numbers" }

const (
	PrefixReceipt = "RCP"
	PrefixBill    = "BIL"
)

var (
	// ErrConflict surfaces after allocation lost the race more times than
	// the configured retry budget allows.
	ErrConflict      = errors.New("sequence_conflict")
	ErrInvalidPrefix = errors.New("invalid_prefix")
	ErrInvalidTenant = errors.New("invalid_tenant")
)
