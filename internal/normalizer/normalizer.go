// Package normalizer converts raw OCR invoice line items and purchase order
// line items into a canonical comparable form for matching.
//
// Normalization is a pure transform: it never fails an invoice. A field that
// cannot be interpreted becomes a zero value plus a diagnostic, and a line
// item with no recoverable monetary signal is flagged unparseable, which
// routes it to manual review and keeps it out of the assignment pool.
package normalizer

import (
	"sort"
	"strings"

	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// CanonicalLine is the normalized form shared by invoice and PO line items.
// Description tokens are lower-cased, punctuation-stripped, stop-word-free,
// deduplicated and sorted, so re-normalizing a canonical line is stable.
type CanonicalLine struct {
	SourceID          uint
	DescriptionTokens []string
	Quantity          decimal.Decimal
	UnitPriceMinor    int64
	AmountMinor       int64
	ServiceType       string
	Unparseable       bool
	Diagnostics       []string
}

// TokenSet returns the description tokens as a set for similarity scoring
func (c *CanonicalLine) TokenSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.DescriptionTokens))
	for _, tok := range c.DescriptionTokens {
		set[tok] = struct{}{}
	}
	return set
}

// stopWords are dropped from descriptions before similarity scoring.
// Service descriptions are short; connective words only dilute the Jaccard.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {},
	"for": {}, "to": {}, "in": {}, "on": {}, "at": {}, "with": {},
	"per": {}, "by": {}, "from": {},
}

// ocrDigitConfusions maps characters OCR commonly misreads in numeric fields
var ocrDigitConfusions = map[rune]rune{
	'O': '0', 'o': '0',
	'l': '1', 'I': '1',
	'S': '5', 's': '5',
	'B': '8',
}

// Normalizer converts invoice and PO line items into canonical form
type Normalizer struct{}

// New creates a Normalizer
func New() *Normalizer {
	return &Normalizer{}
}

// Tokenize lower-cases a description, maps punctuation to spaces, removes
// stop words, and returns the sorted set of remaining tokens.
func (n *Normalizer) Tokenize(description string) []string {
	lowered := strings.ToLower(description)

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	seen := make(map[string]struct{})
	for _, tok := range strings.Fields(b.String()) {
		if _, stop := stopWords[tok]; stop {
			continue
		}
		seen[tok] = struct{}{}
	}

	tokens := make([]string, 0, len(seen))
	for tok := range seen {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)

	return tokens
}

// NormalizeInvoiceLine produces the canonical form of an invoice line item.
// Structured fields on the line item win; missing numeric fields are
// recovered from the raw OCR strings (with digit-confusion repair), then
// back-derived from each other where arithmetic allows. raw may be nil when
// no OCR extraction exists for the line (e.g. a manually added item).
func (n *Normalizer) NormalizeInvoiceLine(li *models.InvoiceLineItem, raw *models.OCRLineItem) *CanonicalLine {
	line := &CanonicalLine{
		SourceID:          li.ID,
		DescriptionTokens: n.Tokenize(li.Description),
		Quantity:          li.Quantity,
		UnitPriceMinor:    li.UnitPriceMinor,
		AmountMinor:       li.AmountMinor,
	}

	if len(line.DescriptionTokens) == 0 && raw != nil {
		line.DescriptionTokens = n.Tokenize(raw.Description)
	}

	if line.Quantity.IsZero() && raw != nil && raw.Quantity != "" {
		if qty, err := parseQuantityLenient(raw.Quantity); err == nil {
			line.Quantity = qty
		} else {
			line.Diagnostics = append(line.Diagnostics,
				errors.ParseFailure("quantity", raw.Quantity, err).Error())
		}
	}

	if line.UnitPriceMinor == 0 && raw != nil && raw.UnitPrice != "" {
		if price, err := parseMoneyLenient(raw.UnitPrice); err == nil {
			line.UnitPriceMinor = price
		} else {
			line.Diagnostics = append(line.Diagnostics,
				errors.ParseFailure("unit_price", raw.UnitPrice, err).Error())
		}
	}

	if line.AmountMinor == 0 && raw != nil && raw.Amount != "" {
		if amount, err := parseMoneyLenient(raw.Amount); err == nil {
			line.AmountMinor = amount
		} else {
			line.Diagnostics = append(line.Diagnostics,
				errors.ParseFailure("amount", raw.Amount, err).Error())
		}
	}

	n.deriveMissingFields(line)

	// No recoverable monetary signal: exclude from automatic matching
	if line.AmountMinor == 0 && line.UnitPriceMinor == 0 {
		line.Unparseable = true
		line.Diagnostics = append(line.Diagnostics,
			"no parseable amount or unit price; routed to manual review")
	}

	return line
}

// NormalizePOLine produces the canonical form of a purchase order line item.
// PO data is structured, so this path never flags unparseable; the vendor
// unit price is the comparison basis because vendor invoices bill at it.
func (n *Normalizer) NormalizePOLine(po *models.POLineItem) *CanonicalLine {
	return &CanonicalLine{
		SourceID:          po.ID,
		DescriptionTokens: n.Tokenize(po.Description),
		Quantity:          po.Quantity,
		UnitPriceMinor:    po.VendorUnitPriceMinor,
		AmountMinor:       po.VendorAmountMinor(),
		ServiceType:       normalizeServiceType(po.ServiceType),
	}
}

// deriveMissingFields fills whichever of unit price / amount is absent when
// the other two values allow back-derivation.
func (n *Normalizer) deriveMissingFields(line *CanonicalLine) {
	qtyPositive := line.Quantity.IsPositive()

	if line.UnitPriceMinor == 0 && line.AmountMinor != 0 && qtyPositive {
		derived := decimal.New(line.AmountMinor, 0).Div(line.Quantity).Round(0)
		line.UnitPriceMinor = derived.IntPart()
		line.Diagnostics = append(line.Diagnostics, "unit price back-derived from amount and quantity")
	}

	if line.AmountMinor == 0 && line.UnitPriceMinor != 0 && qtyPositive {
		derived := line.Quantity.Mul(decimal.New(line.UnitPriceMinor, 0)).Round(0)
		line.AmountMinor = derived.IntPart()
		line.Diagnostics = append(line.Diagnostics, "amount derived from quantity and unit price")
	}
}

// parseMoneyLenient parses a money string, retrying once with OCR digit
// confusions repaired when the first attempt fails.
func parseMoneyLenient(s string) (int64, error) {
	minor, err := models.ParseMoneyMinor(s)
	if err == nil {
		return minor, nil
	}

	repaired := repairDigitConfusions(s)
	if repaired != s {
		if minor, retryErr := models.ParseMoneyMinor(repaired); retryErr == nil {
			return minor, nil
		}
	}

	return 0, err
}

// parseQuantityLenient parses a quantity string with the same repair pass
func parseQuantityLenient(s string) (decimal.Decimal, error) {
	qty, err := models.ParseQuantity(s)
	if err == nil {
		return qty, nil
	}

	repaired := repairDigitConfusions(s)
	if repaired != s {
		if qty, retryErr := models.ParseQuantity(repaired); retryErr == nil {
			return qty, nil
		}
	}

	return decimal.Zero, err
}

// repairDigitConfusions substitutes characters OCR commonly misreads for
// digits. Only applied after a strict parse has already failed.
func repairDigitConfusions(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if repaired, ok := ocrDigitConfusions[r]; ok {
			b.WriteRune(repaired)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizeServiceType canonicalizes the PO service-type tag
func normalizeServiceType(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
