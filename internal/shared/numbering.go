package shared

import (
	"fmt"
	"time"
)

// Document number prefixes.
const (
	PrefixPurchaseOrder = "PO"
	PrefixAdjustment    = "ADJ"
	PrefixTransfer      = "TRF"
)

// SequenceDay returns the counter key for a day.
func SequenceDay(t time.Time) string {
	return t.Format("20060102")
}

// FormatDocumentNumber renders prefix + YYYYMMDD + zero padded daily sequence.
func FormatDocumentNumber(prefix string, day time.Time, seq int64) string {
	return fmt.Sprintf("%s%s%04d", prefix, SequenceDay(day), seq)
}
