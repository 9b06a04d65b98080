package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Monetary amounts are carried as int64 minor units (cents) throughout the
// service to avoid floating-point drift in financial data. PSP APIs exchange
// decimal strings ("20.00"), so conversion happens at the wire boundary.

// ParseMinorUnits converts a decimal amount string (e.g. "20.00") into minor units.
func ParseMinorUnits(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("empty amount")
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return int64(math.Round(parsed * 100)), nil
}

// MinorUnitsFromFloat converts a float amount (used by APIs that send JSON
// numbers) into minor units.
func MinorUnitsFromFloat(value float64) int64 {
	return int64(math.Round(value * 100))
}

// FormatMinorUnits renders minor units as a two-decimal string ("20.00").
func FormatMinorUnits(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
