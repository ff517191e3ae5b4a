package scraper

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParsePrice converts a price rendered in the home-market locale, where "."
// groups thousands and "," marks decimals ("R$ 1.299,90" -> 1299.90).
// Prices are rounded to cents. Anything unparseable or not strictly positive
// after rounding yields 0, which callers treat as "no usable signal".
func ParsePrice(text string) float64 {
	cleaned := stripToNumber(text)
	if cleaned == "" {
		return 0
	}
	cleaned = strings.ReplaceAll(cleaned, ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	return positiveDecimal(cleaned)
}

// parseMachineNumber parses an already machine-formatted value such as a
// meta tag content ("1299.90")
func parseMachineNumber(text string) float64 {
	return positiveDecimal(strings.TrimSpace(text))
}

func positiveDecimal(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return cents(d)
}

// roundPrice rounds an already decoded number, such as a JSON-LD offer price
func roundPrice(f float64) float64 {
	return cents(decimal.NewFromFloat(f))
}

// cents rounds d to two places, matching the stored precision
func cents(d decimal.Decimal) float64 {
	d = d.Round(2)
	if !d.IsPositive() {
		return 0
	}
	return d.InexactFloat64()
}

// stripToNumber drops currency symbols, markers and whitespace, keeping
// digits, separators and a sign
func stripToNumber(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}
