// Package money holds the pure monetary arithmetic for the billing core.
// Amounts are int64 minor units of the tenant currency; nothing here touches
// storage or the clock.
package money

import (
	"errors"
	"time"
)

var (
	// ErrInvalidAmount rejects negative inputs and totals. A charge that
	// nets out below zero is a caller mistake, not something to clamp.
	ErrInvalidAmount = errors.New("invalid_amount")
	// ErrInvalidSplit rejects installment counts below 1 or above the total.
	ErrInvalidSplit = errors.New("invalid_split")
)

const (
	// DefaultLateFeeDailyRateBp is 1% of the amount per day late.
	DefaultLateFeeDailyRateBp int64 = 100
	// DefaultLateFeeCapBp caps accrual at 50% of the amount.
	DefaultLateFeeCapBp int64 = 5000

	bpDenominator int64 = 10000
)

// Total derives the collectible total: amount - discount + fine.
func Total(amount, discount, fine int64) (int64, error) {
	if amount < 0 || discount < 0 || fine < 0 {
		return 0, ErrInvalidAmount
	}
	total := amount - discount + fine
	if total < 0 {
		return 0, ErrInvalidAmount
	}
	return total, nil
}

// LateFee accrues dailyRateBp of amount per started day past dueDate,
// capped at capBp of amount. Zero when now is on or before the due date.
func LateFee(amount int64, dueDate, now time.Time, dailyRateBp, capBp int64) int64 {
	if amount <= 0 || !now.After(dueDate) {
		return 0
	}

	daysLate := int64(now.Sub(dueDate) / (24 * time.Hour))
	if now.Sub(dueDate)%(24*time.Hour) > 0 {
		daysLate++
	}

	fee := amount * dailyRateBp * daysLate / bpDenominator
	cap := amount * capBp / bpDenominator
	if fee > cap {
		return cap
	}
	return fee
}

// SplitInstallments divides total into n amounts summing exactly to total.
// The remainder is front-loaded: the first total%n installments carry one
// extra minor unit. Callers depend on this exact distribution.
func SplitInstallments(total int64, n int) ([]int64, error) {
	if total < 0 {
		return nil, ErrInvalidAmount
	}
	if n < 1 {
		return nil, ErrInvalidSplit
	}

	base := total / int64(n)
	remainder := total % int64(n)

	amounts := make([]int64, n)
	for i := range amounts {
		amounts[i] = base
		if int64(i) < remainder {
			amounts[i]++
		}
	}
	return amounts, nil
}
