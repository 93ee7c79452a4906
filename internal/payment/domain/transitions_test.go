package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct {
		from Status
		to   Status
	}{
		{StatusPending, StatusProcessing},
		{StatusPending, StatusPaid},
		{StatusPending, StatusFailed},
		{StatusPending, StatusCancelled},
		{StatusProcessing, StatusPaid},
		{StatusProcessing, StatusFailed},
		{StatusPaid, StatusRefunded},
		{StatusPaid, StatusDisputed},
		{StatusUnpaid, StatusOverdue},
		{StatusOverdue, StatusPaid},
		{StatusFailed, StatusPending},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	denied := []struct {
		from Status
		to   Status
	}{
		{StatusCancelled, StatusPaid},
		{StatusCancelled, StatusProcessing},
		{StatusVoided, StatusPaid},
		{StatusRefunded, StatusPaid},
		{StatusPaid, StatusPending},
		{StatusPaid, StatusCancelled},
	}
	for _, tc := range denied {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be denied", tc.from, tc.to)
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, Terminal(StatusCancelled))
	assert.True(t, Terminal(StatusVoided))
	assert.True(t, Terminal(StatusRefunded))
	assert.False(t, Terminal(StatusPaid))
	assert.False(t, Terminal(StatusPending))
}

func TestDerivedStatusKeepsCurrent(t *testing.T) {
	// The derivation policy intentionally leaves the status alone even when
	// children would suggest otherwise.
	assert.Equal(t, StatusPaid, DerivedStatus(StatusPaid, 500, 1000, false))
	assert.Equal(t, StatusPending, DerivedStatus(StatusPending, 0, 1000, true))
	assert.Equal(t, StatusPartiallyPaid, DerivedStatus(StatusPartiallyPaid, 0, 1000, true))
}
