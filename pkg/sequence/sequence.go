// Package sequence issues human readable document numbers of the form
// PREFIX-YYYY-NNNN. Counters live in sequence_counters and are bumped with a
// single upsert, so concurrent writers serialize on the counter row.
package sequence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

type Prefix string

const (
	PrefixOrder   Prefix = "ORD"
	PrefixPayment Prefix = "PMT"
	PrefixInvoice Prefix = "INV"
	PrefixDispute Prefix = "DSP"
	PrefixReturn  Prefix = "RET"
	PrefixPayout  Prefix = "PAY-OUT"
)

const nextValueSQL = `
INSERT INTO sequence_counters (prefix, year, value, updated_at)
VALUES (?, ?, 1, ?)
ON CONFLICT (prefix, year) DO UPDATE
SET value = sequence_counters.value + 1, updated_at = excluded.updated_at
RETURNING value`

// Next reserves the next number for prefix in the year of at. It must run in
// the transaction that stores the numbered row.
func Next(tx *gorm.DB, prefix Prefix, at time.Time) (string, error) {
	if tx == nil {
		return "", errors.New("transaction required")
	}
	if prefix == "" {
		return "", errors.New("prefix required")
	}
	year := at.UTC().Year()

	var value int64
	if err := tx.Raw(nextValueSQL, string(prefix), year, at.UTC()).Scan(&value).Error; err != nil {
		return "", fmt.Errorf("reserve %s number: %w", prefix, err)
	}
	if value <= 0 {
		return "", fmt.Errorf("reserve %s number: counter returned %d", prefix, value)
	}
	return Format(prefix, year, value), nil
}

// Format renders a number with at least four digits.
func Format(prefix Prefix, year int, value int64) string {
	return fmt.Sprintf("%s-%04d-%04d", prefix, year, value)
}

// Parse splits a formatted number back into its parts.
func Parse(number string) (Prefix, int, int64, error) {
	idx := strings.LastIndex(number, "-")
	if idx <= 0 {
		return "", 0, 0, fmt.Errorf("malformed number %q", number)
	}
	head, tail := number[:idx], number[idx+1:]
	yIdx := strings.LastIndex(head, "-")
	if yIdx <= 0 {
		return "", 0, 0, fmt.Errorf("malformed number %q", number)
	}
	year, err := strconv.Atoi(head[yIdx+1:])
	if err != nil || len(head[yIdx+1:]) != 4 {
		return "", 0, 0, fmt.Errorf("malformed year in %q", number)
	}
	value, err := strconv.ParseInt(tail, 10, 64)
	if err != nil || value <= 0 {
		return "", 0, 0, fmt.Errorf("malformed sequence in %q", number)
	}
	return Prefix(head[:yIdx]), year, value, nil
}
