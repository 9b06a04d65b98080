/**
 * @description
 * Pure fee-calculation engine. Turns raw processor data plus an optional
 * settlement rate table into an exact fee amount, with a documented fallback
 * ordering:
 *
 *   1. Processor-reported fee (SumUp payout events) — used verbatim, it
 *      already reflects every surcharge.
 *   2. Exact-rate path — fee = fixed + amount * percentage / 100 from the
 *      settlement's rate table (or the tenant's last known rates for payments
 *      that have not settled yet).
 *   3. Estimation path — static published {fixed, percentage} schedule per
 *      payment method.
 *
 * Everything here is side-effect free; callers own caching and persistence.
 */

package feecalc

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ticketfabric/psp-fee-service/internal/domain"
)

var (
	// ErrNoApplicableRate means the only matching rate categories are pure
	// accounting adjustments (non-customer-facing rounding correction lines).
	// These must never be billed as a transaction fee.
	ErrNoApplicableRate = errors.New("no applicable rate category")

	// ErrNoRates means no usable rate table was available; callers fall back
	// to the estimation path.
	ErrNoRates = errors.New("no rates available")
)

// GenericCardCategory is the settlement cost label used when a payment's fee
// region has no exact mapping.
const GenericCardCategory = "Credit card - Other"

// adjustmentMarker flags settlement cost lines that are accounting corrections
// rather than per-transaction fees.
const adjustmentMarker = "Rounding"

// feeRegionCategories maps the processor's feeRegion attribute onto settlement
// cost-line labels.
var feeRegionCategories = map[string]string{
	"carte-bancaire": "Credit card - Carte Bancaire",
	"intra-eu":       "Credit card - Domestic consumer cards",
	"eu-card":        "Credit card - Domestic consumer cards",
	"other":          "Credit card - Other",
}

// IsAdjustmentCategory reports whether a rate-category label is an accounting
// adjustment line.
func IsAdjustmentCategory(label string) bool {
	return strings.Contains(label, adjustmentMarker)
}

// SelectRateCategory resolves a payment's fee region to a rate-table category.
// Resolution order: exact region mapping, then the generic card label, then the
// first non-adjustment category (alphabetical, for determinism). Adjustment
// categories are never selected; if nothing else matches, ErrNoApplicableRate.
func SelectRateCategory(feeRegion string, rates domain.RateTable) (string, error) {
	if len(rates) == 0 {
		return "", ErrNoRates
	}

	if label, ok := feeRegionCategories[feeRegion]; ok {
		if _, present := rates[label]; present {
			if IsAdjustmentCategory(label) {
				return "", ErrNoApplicableRate
			}
			return label, nil
		}
	}

	if _, present := rates[GenericCardCategory]; present {
		return GenericCardCategory, nil
	}

	labels := make([]string, 0, len(rates))
	for label := range rates {
		if IsAdjustmentCategory(label) {
			continue
		}
		labels = append(labels, label)
	}
	if len(labels) == 0 {
		return "", ErrNoApplicableRate
	}
	sort.Strings(labels)
	return labels[0], nil
}

// FeeFromRate computes fixed + amount * percentage / 100 in minor units,
// rounded to currency-minor-unit precision.
func FeeFromRate(amountMinor int64, rate domain.Rate) (int64, error) {
	fixedMinor, err := domain.ParseMinorUnits(rate.Fixed)
	if err != nil {
		return 0, fmt.Errorf("invalid fixed rate: %w", err)
	}
	percentage, err := strconv.ParseFloat(strings.TrimSpace(rate.Percentage), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid percentage rate: %w", err)
	}
	return fixedMinor + domain.MinorUnitsFromFloat(float64(amountMinor)*percentage/100/100), nil
}

// ExactMollieFee computes the exact fee for a payment from a settlement rate
// table. Returns the fee, the category label used, and an error when no
// applicable category exists.
func ExactMollieFee(amountMinor int64, feeRegion string, rates domain.RateTable) (int64, string, error) {
	category, err := SelectRateCategory(feeRegion, rates)
	if err != nil {
		return 0, "", err
	}
	fee, err := FeeFromRate(amountMinor, rates[category])
	if err != nil {
		return 0, "", fmt.Errorf("category %q: %w", category, err)
	}
	if fee < 0 {
		fee = 0
	}
	return fee, category, nil
}

// Published standard schedule used when no settlement rates are obtainable.
// Fixed components are minor units.
const (
	estimateFixedMinor = 29 // 0.29 per transaction, all methods

	estimatePctCardDomestic = 1.19
	estimatePctCardEU       = 1.79
	estimatePctCardOther    = 2.89
	estimatePctPayPal       = 3.49
	estimatePctSofort       = 1.29
	estimatePctDefault      = 1.79
)

// EstimateMollieFee applies the static per-method schedule. The returned
// description names the schedule row used, for auditability.
func EstimateMollieFee(method, feeRegion string, amountMinor int64) (int64, string) {
	fixed := int64(estimateFixedMinor)
	percentage := 0.0
	label := method

	switch method {
	case "creditcard":
		switch feeRegion {
		case "carte-bancaire":
			percentage = estimatePctCardDomestic
			label = "domestic card"
		case "eu-card", "european-eea-card", "intra-eu":
			percentage = estimatePctCardEU
			label = "EU card"
		default:
			percentage = estimatePctCardOther
			label = "non-EU card"
		}
	case "ideal", "bancontact":
		// Bank-redirect methods carry a flat fixed fee only.
	case "paypal":
		percentage = estimatePctPayPal
	case "sofort":
		percentage = estimatePctSofort
	default:
		percentage = estimatePctDefault
		label = fmt.Sprintf("unknown method %q", method)
	}

	fee := fixed + domain.MinorUnitsFromFloat(float64(amountMinor)*percentage/100/100)
	desc := fmt.Sprintf("%s: %s fixed + %.2f%%", label, domain.FormatMinorUnits(fixed), percentage)
	return fee, desc
}

// SumUp online/in-person estimation percentages, used only for transactions
// that have no payout events yet.
const (
	sumUpEstimatePctOnline   = 2.5
	sumUpEstimatePctInPerson = 1.69
)

// ExtractSumUpFee derives a fee result from a SumUp transaction. The payout
// event's fee_amount is the processor-reported deduction and takes priority
// over any computed path; without payout events the published percentage
// schedule is applied.
func ExtractSumUpFee(tx *domain.SumUpTransaction) *domain.FeeResult {
	gross := domain.MinorUnitsFromFloat(tx.Amount)
	result := &domain.FeeResult{
		GrossMinor: gross,
		NetMinor:   gross,
		Currency:   tx.Currency,
		Status:     normalizeSumUpStatus(tx.Status, tx.SimpleStatus),
	}

	for _, event := range tx.Events {
		if event.Type != "PAYOUT" && event.FeeAmount == nil {
			continue
		}
		if event.FeeAmount == nil || *event.FeeAmount == 0 {
			continue
		}
		result.FeeMinor = domain.MinorUnitsFromFloat(*event.FeeAmount)
		if event.Amount != nil {
			result.NetMinor = domain.MinorUnitsFromFloat(*event.Amount)
		} else {
			result.NetMinor = gross - result.FeeMinor
		}
		if event.PayoutID != 0 {
			result.SettlementID = strconv.FormatInt(event.PayoutID, 10)
		}
		details := fmt.Sprintf("SumUp fee: %s %s", domain.FormatMinorUnits(result.FeeMinor), tx.Currency)
		if event.PayoutReference != "" {
			details += "; payout: " + event.PayoutReference
		}
		result.Details = details
		result.Source = domain.FeeSourcePSPReported
		return result
	}

	if len(tx.Events) == 0 {
		percentage := sumUpEstimatePctInPerson
		kind := "in-person"
		if tx.PaymentType == "ECOM" {
			percentage = sumUpEstimatePctOnline
			kind = "online"
		}
		result.FeeMinor = domain.MinorUnitsFromFloat(float64(gross) * percentage / 100 / 100)
		result.NetMinor = gross - result.FeeMinor
		result.Details = fmt.Sprintf("estimated %s rate %.2f%% (no payout yet)", kind, percentage)
		result.Source = domain.FeeSourceEstimated
	}

	return result
}

// NormalizeMollieStatus folds the processor's payment status into the small
// set the cache and annotation carry.
func NormalizeMollieStatus(status string) string {
	switch status {
	case "paid":
		return "ok"
	case "refunded", "chargeback":
		return status
	case "":
		return "unknown"
	default:
		return status
	}
}

func normalizeSumUpStatus(status, simpleStatus string) string {
	switch status {
	case "SUCCESSFUL":
		if simpleStatus == "PAID_OUT" {
			return "paid_out"
		}
		return "ok"
	case "CANCELLED":
		return "cancelled"
	case "FAILED":
		return "failed"
	case "REFUNDED":
		return "refunded"
	case "":
		return "unknown"
	default:
		return strings.ToLower(status)
	}
}
