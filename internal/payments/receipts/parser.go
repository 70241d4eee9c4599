package receipts

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Parsed holds the fields pulled out of receipt text. Nil means the field was
// not found.
type Parsed struct {
	AmountCentavos *int64
	Reference      string
}

var (
	// Peso amounts as PH banking apps print them: "₱12,500.00", "PHP 12500",
	// "P 1,250.50". The currency marker is required so random numbers in the
	// receipt (dates, account digits) are not mistaken for the amount.
	amountPattern = regexp.MustCompile(`(?i)(?:₱|PHP|P)\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)

	referencePattern = regexp.MustCompile(`(?i)\bEVT-[0-9]{8}-[0-9a-f]{10}\b`)
)

// ParseReceipt scans OCR text for the transfer amount and our payment
// reference. The largest currency-marked figure wins, since receipts often
// show fees alongside the principal.
func ParseReceipt(text string) Parsed {
	var parsed Parsed

	var best decimal.Decimal
	found := false
	for _, match := range amountPattern.FindAllStringSubmatch(text, -1) {
		raw := strings.ReplaceAll(match[1], ",", "")
		value, err := decimal.NewFromString(raw)
		if err != nil {
			continue
		}
		if !found || value.GreaterThan(best) {
			best = value
			found = true
		}
	}
	if found {
		centavos := best.Mul(decimal.NewFromInt(100)).IntPart()
		parsed.AmountCentavos = &centavos
	}

	if ref := referencePattern.FindString(text); ref != "" {
		parsed.Reference = strings.ToUpper(ref[:len("EVT-00000000-")]) + strings.ToLower(ref[len("EVT-00000000-"):])
	}
	return parsed
}
